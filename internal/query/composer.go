// Package query turns list view parameters into a store query and serves
// the resulting pages through a read cache.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jogardn/orderdesk/internal/store"
	"github.com/jogardn/orderdesk/pkg/models"
)

const DefaultPageSize = 10

// Params is what the list view knows about the page it wants.
type Params struct {
	SearchTerm    string              `json:"search_term"`
	StatusFilter  string              `json:"status_filter"`
	SortField     string              `json:"sort_field"`
	SortDirection store.SortDirection `json:"sort_direction"`
	Page          int                 `json:"page"`
	PageSize      int                 `json:"page_size"`
}

// DefaultParams is the first page of every order, newest first.
func DefaultParams() Params {
	return Params{StatusFilter: string(models.StatusAll), PageSize: DefaultPageSize}
}

// Validate reports every parameter the composer cannot translate.
func (p Params) Validate() error {
	fields := map[string]string{}
	if p.Page < 0 {
		fields["page"] = "Page must be 0 or greater"
	}
	if p.PageSize < 1 {
		fields["page_size"] = "Page size must be at least 1"
	}
	if s := strings.TrimSpace(p.StatusFilter); s != "" && s != string(models.StatusAll) && !models.Status(s).Valid() {
		fields["status"] = fmt.Sprintf("Unknown status %q", s)
	}
	if p.SortField != "" && !store.IsSortable(p.SortField) {
		fields["sort"] = fmt.Sprintf("Cannot sort by %q", p.SortField)
	}
	switch p.SortDirection {
	case "", store.Ascending, store.Descending:
	default:
		fields["dir"] = fmt.Sprintf("Unknown sort direction %q", p.SortDirection)
	}
	if len(fields) > 0 {
		return &models.ValidationError{Fields: fields}
	}
	return nil
}

// Compose translates p into a select: a case-insensitive customer_name
// filter for a non-empty search term, an exact status filter unless the
// filter is ALL or empty, created_at descending unless a sort is given, and
// offset = page × pageSize with an exact count.
func Compose(p Params) (store.Query, error) {
	if err := p.Validate(); err != nil {
		return store.Query{}, err
	}

	q := store.Query{
		Range:      store.Range{Offset: p.Page * p.PageSize, Limit: p.PageSize},
		CountExact: true,
	}
	if term := strings.TrimSpace(p.SearchTerm); term != "" {
		q.Filter.CustomerNameContains = term
	}
	if s := strings.TrimSpace(p.StatusFilter); s != "" && s != string(models.StatusAll) {
		q.Filter.Status = models.Status(s)
	}
	if p.SortField != "" {
		q.Sort = store.Sort{Field: p.SortField, Direction: p.SortDirection}
	}
	return q.WithDefaults(), nil
}

// Key is a canonical encoding of p: equal queries produce equal keys.
func (p Params) Key() string {
	q, err := Compose(p)
	if err != nil {
		return ""
	}
	v := url.Values{}
	v.Set("q", strings.ToLower(q.Filter.CustomerNameContains))
	v.Set("status", string(q.Filter.Status))
	v.Set("sort", q.Sort.Field+"."+string(q.Sort.Direction))
	v.Set("offset", strconv.Itoa(q.Range.Offset))
	v.Set("limit", strconv.Itoa(q.Range.Limit))
	return v.Encode()
}

// PageCount is the number of pages needed for total rows, at least one.
func PageCount(total, pageSize int) int {
	if pageSize < 1 || total <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}
