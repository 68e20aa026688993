// Package listview holds the state of one rendered order list: the view
// parameters, the last page fetched for them, and whether a fetch is in
// flight. Every parameter change starts a new fetch; a completion that is
// not the latest is discarded.
package listview

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/orderdesk/internal/query"
	"github.com/jogardn/orderdesk/internal/store"
	"github.com/jogardn/orderdesk/pkg/models"
)

type Status int

const (
	Idle Status = iota
	Loading
	Error
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

var (
	// ErrStale is returned by a load whose result was superseded by a newer
	// one. The view is unchanged.
	ErrStale = errors.New("listview: superseded by a newer request")
	// ErrClosed is returned once the view has been closed.
	ErrClosed = errors.New("listview: view closed")
)

// Fetcher is the read side the view depends on.
type Fetcher interface {
	FetchPage(ctx context.Context, p query.Params) (store.Result, error)
}

type Snapshot struct {
	Status     Status         `json:"status"`
	Params     query.Params   `json:"params"`
	Rows       []models.Order `json:"rows"`
	TotalCount int            `json:"total_count"`
	PageCount  int            `json:"page_count"`
	Error      string         `json:"error,omitempty"`
	Seq        uint64         `json:"seq"`
}

type View struct {
	fetcher Fetcher
	logger  *logrus.Logger
	// onChange sees every state transition in order. It runs with the view
	// locked and must not call back into the view.
	onChange func(Snapshot)

	mutex  sync.Mutex
	params query.Params
	status Status
	rows   []models.Order
	total  int
	errMsg string
	seq    uint64
	cancel context.CancelFunc
	closed bool
}

func New(fetcher Fetcher, onChange func(Snapshot), logger *logrus.Logger) *View {
	return &View{
		fetcher:  fetcher,
		logger:   logger,
		onChange: onChange,
		params:   query.DefaultParams(),
		rows:     []models.Order{},
	}
}

func (v *View) Snapshot() Snapshot {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return v.snapshotLocked()
}

func (v *View) snapshotLocked() Snapshot {
	rows := make([]models.Order, len(v.rows))
	copy(rows, v.rows)
	return Snapshot{
		Status:     v.status,
		Params:     v.params,
		Rows:       rows,
		TotalCount: v.total,
		PageCount:  query.PageCount(v.total, v.params.PageSize),
		Error:      v.errMsg,
		Seq:        v.seq,
	}
}

func (v *View) emitLocked() {
	if v.onChange != nil {
		v.onChange(v.snapshotLocked())
	}
}

// load applies change to the parameters and fetches the new page. A change
// that leaves the parameters invalid is rejected with its ValidationError
// and the view keeps its current parameters, rows and status.
func (v *View) load(ctx context.Context, change func(p *query.Params)) error {
	v.mutex.Lock()
	if v.closed {
		v.mutex.Unlock()
		return ErrClosed
	}
	next := v.params
	change(&next)
	if err := next.Validate(); err != nil {
		v.mutex.Unlock()
		return err
	}
	v.params = next
	v.seq++
	seq := v.seq
	params := v.params
	if v.cancel != nil {
		v.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.status = Loading
	v.emitLocked()
	v.mutex.Unlock()

	res, err := v.fetcher.FetchPage(fetchCtx, params)

	v.mutex.Lock()
	defer v.mutex.Unlock()
	cancel()
	if v.closed {
		return ErrClosed
	}
	if seq != v.seq {
		return ErrStale
	}
	v.cancel = nil

	if err != nil {
		v.status = Error
		v.errMsg = err.Error()
		v.logger.WithError(err).WithField("seq", seq).Error("Failed to load orders")
		v.emitLocked()
		return err
	}

	v.status = Idle
	v.errMsg = ""
	v.rows = res.Rows
	v.total = res.TotalCount
	v.emitLocked()
	return nil
}

// Load replaces every parameter.
func (v *View) Load(ctx context.Context, p query.Params) error {
	return v.load(ctx, func(cur *query.Params) { *cur = p })
}

// SetSearch changes the search term and returns to the first page.
func (v *View) SetSearch(ctx context.Context, term string) error {
	return v.load(ctx, func(p *query.Params) {
		p.SearchTerm = term
		p.Page = 0
	})
}

// SetStatusFilter changes the status filter and returns to the first page.
func (v *View) SetStatusFilter(ctx context.Context, status string) error {
	return v.load(ctx, func(p *query.Params) {
		p.StatusFilter = status
		p.Page = 0
	})
}

func (v *View) SetFilters(ctx context.Context, term, status string) error {
	return v.load(ctx, func(p *query.Params) {
		p.SearchTerm = term
		p.StatusFilter = status
		p.Page = 0
	})
}

// SetSort keeps the current page.
func (v *View) SetSort(ctx context.Context, field string, dir store.SortDirection) error {
	return v.load(ctx, func(p *query.Params) {
		p.SortField = field
		p.SortDirection = dir
	})
}

func (v *View) SetPage(ctx context.Context, page int) error {
	return v.load(ctx, func(p *query.Params) { p.Page = page })
}

// SetPageSize changes the page size and returns to the first page.
func (v *View) SetPageSize(ctx context.Context, size int) error {
	return v.load(ctx, func(p *query.Params) {
		p.PageSize = size
		p.Page = 0
	})
}

// Refresh refetches the current parameters, typically after a mutation.
func (v *View) Refresh(ctx context.Context) error {
	return v.load(ctx, func(*query.Params) {})
}

func (v *View) Reset(ctx context.Context) error {
	return v.load(ctx, func(p *query.Params) { *p = query.DefaultParams() })
}

// Close cancels any in-flight fetch. No further state changes are applied
// or reported.
func (v *View) Close() {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.closed = true
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
}
