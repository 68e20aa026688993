package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jogardn/orderdesk/pkg/models"
)

type memoryRow struct {
	order models.Order
	seq   int64
}

// Memory is an in-process Table. It backs the "memory" backend and stands
// in for the hosted store in tests.
type Memory struct {
	mutex sync.RWMutex
	rows  map[string]*memoryRow
	seq   int64
	now   func() time.Time
	fail  error
}

func NewMemory() *Memory {
	return &Memory{
		rows: make(map[string]*memoryRow),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the created_at source.
func (m *Memory) SetClock(now func() time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.now = now
}

// Fail makes every subsequent call return a StoreError wrapping err, until
// Fail(nil) is called.
func (m *Memory) Fail(err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.fail = err
}

func (m *Memory) failure(op string) error {
	if m.fail == nil {
		return nil
	}
	return &models.StoreError{Op: op, Message: m.fail.Error(), Err: m.fail}
}

func (m *Memory) Select(ctx context.Context, q Query) (Result, error) {
	if err := ctx.Err(); err != nil {
		return EmptyResult(), &models.StoreError{Op: "select", Err: err}
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if err := m.failure("select"); err != nil {
		return EmptyResult(), err
	}

	q = q.WithDefaults()
	term := strings.ToLower(q.Filter.CustomerNameContains)

	matched := make([]*memoryRow, 0, len(m.rows))
	for _, row := range m.rows {
		if term != "" && !strings.Contains(strings.ToLower(row.order.CustomerName), term) {
			continue
		}
		if q.Filter.Status != "" && row.order.Status != q.Filter.Status {
			continue
		}
		matched = append(matched, row)
	}

	slices.SortFunc(matched, func(a, b *memoryRow) int {
		c := compareField(a.order, b.order, q.Sort.Field)
		if c == 0 {
			c = compareInt(a.seq, b.seq)
		}
		if q.Sort.Direction == Descending {
			c = -c
		}
		return c
	})

	result := Result{Rows: []models.Order{}}
	if q.CountExact {
		result.TotalCount = len(matched)
	}

	start := q.Range.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if q.Range.Limit > 0 && start+q.Range.Limit < end {
		end = start + q.Range.Limit
	}
	for _, row := range matched[start:end] {
		result.Rows = append(result.Rows, row.order.WithDerived())
	}
	return result, nil
}

func (m *Memory) Get(ctx context.Context, id string) (models.Order, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if err := m.failure("get"); err != nil {
		return models.Order{}, err
	}
	row, ok := m.rows[id]
	if !ok {
		return models.Order{}, &models.NotFoundError{ID: id}
	}
	return row.order.WithDerived(), nil
}

func (m *Memory) Insert(ctx context.Context, form models.OrderFormData) (models.Order, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.failure("insert"); err != nil {
		return models.Order{}, err
	}

	m.seq++
	order := models.Order{
		ID:            uuid.New().String(),
		OrderFormData: PrepareInsert(form),
		CreatedAt:     m.now(),
	}
	m.rows[order.ID] = &memoryRow{order: order, seq: m.seq}
	return order.WithDerived(), nil
}

func (m *Memory) UpdateByID(ctx context.Context, id string, form models.OrderFormData) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.failure("update"); err != nil {
		return err
	}
	row, ok := m.rows[id]
	if !ok {
		return &models.NotFoundError{ID: id}
	}
	row.order.OrderFormData = form
	return nil
}

func (m *Memory) DeleteByID(ctx context.Context, id string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.failure("delete"); err != nil {
		return err
	}
	if _, ok := m.rows[id]; !ok {
		return &models.NotFoundError{ID: id}
	}
	delete(m.rows, id)
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.failure("ping")
}

// Len is the number of stored orders.
func (m *Memory) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rows)
}

func compareField(a, b models.Order, field string) int {
	switch field {
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "customer_name":
		return strings.Compare(a.CustomerName, b.CustomerName)
	case "product_name":
		return strings.Compare(a.ProductName, b.ProductName)
	case "delivery_address":
		return strings.Compare(a.DeliveryAddress, b.DeliveryAddress)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "quantity":
		return compareInt(int64(a.Quantity), int64(b.Quantity))
	case "price_per_unit":
		return a.PricePerUnit.Cmp(b.PricePerUnit)
	}
	return 0
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
