package query

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/orderdesk/internal/cache"
	"github.com/jogardn/orderdesk/internal/store"
	"github.com/jogardn/orderdesk/pkg/models"
)

type countingTable struct {
	store.Table
	selects atomic.Int32
	gets    atomic.Int32
}

func (c *countingTable) Select(ctx context.Context, q store.Query) (store.Result, error) {
	c.selects.Add(1)
	return c.Table.Select(ctx, q)
}

func (c *countingTable) Get(ctx context.Context, id string) (models.Order, error) {
	c.gets.Add(1)
	return c.Table.Get(ctx, id)
}

func newFetcher(t *testing.T) (*Fetcher, *countingTable, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	table := &countingTable{Table: mem}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewFetcher(table, cache.NewMemory(), time.Minute, logger), table, mem
}

func form(customer string, status models.Status) models.OrderFormData {
	return models.OrderFormData{
		ProductName:     "Widget",
		CustomerName:    customer,
		Quantity:        3,
		PricePerUnit:    decimal.RequireFromString("9.99"),
		DeliveryAddress: "1 Main St",
		Status:          status,
	}
}

func TestFetchPageCachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	f, table, mem := newFetcher(t)
	_, err := mem.Insert(ctx, form("Ana Horvat", models.StatusCreated))
	require.NoError(t, err)

	p := Params{StatusFilter: "CREATED", PageSize: 10}
	first, err := f.FetchPage(ctx, p)
	require.NoError(t, err)
	second, err := f.FetchPage(ctx, p)
	require.NoError(t, err)

	assert.EqualValues(t, 1, table.selects.Load())
	require.Len(t, second.Rows, 1)
	assert.Equal(t, first.Rows[0].ID, second.Rows[0].ID)
	assert.Equal(t, "29.97", second.Rows[0].TotalAmount.StringFixed(2))
	assert.Equal(t, 1, second.TotalCount)

	_, err = mem.Insert(ctx, form("Bob Stone", models.StatusCreated))
	require.NoError(t, err)
	f.Invalidate(ctx, models.Invalidation{List: true})

	third, err := f.FetchPage(ctx, p)
	require.NoError(t, err)
	assert.EqualValues(t, 2, table.selects.Load())
	assert.Equal(t, 2, third.TotalCount)
}

func TestFetchPagePagination(t *testing.T) {
	ctx := context.Background()
	f, _, mem := newFetcher(t)
	for i := 0; i < 25; i++ {
		_, err := mem.Insert(ctx, form("Customer", models.StatusCreated))
		require.NoError(t, err)
	}

	page0, err := f.FetchPage(ctx, Params{Page: 0, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, page0.Rows, 10)
	assert.Equal(t, 25, page0.TotalCount)

	page2, err := f.FetchPage(ctx, Params{Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, page2.Rows, 5)
}

func TestFetchPageStoreErrorReturnsEmptyResult(t *testing.T) {
	f, _, mem := newFetcher(t)
	mem.Fail(errors.New("connection refused"))

	res, err := f.FetchPage(context.Background(), DefaultParams())

	var se *models.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "connection refused", err.Error())
	assert.NotNil(t, res.Rows)
	assert.Empty(t, res.Rows)
}

func TestFetchPageValidationSkipsStore(t *testing.T) {
	f, table, _ := newFetcher(t)

	_, err := f.FetchPage(context.Background(), Params{PageSize: 0})

	assert.True(t, models.IsValidation(err))
	assert.EqualValues(t, 0, table.selects.Load())
}

func TestFetchOrderCachesAndInvalidatesByID(t *testing.T) {
	ctx := context.Background()
	f, table, mem := newFetcher(t)
	o, err := mem.Insert(ctx, form("Ana Horvat", models.StatusCreated))
	require.NoError(t, err)

	_, err = f.FetchOrder(ctx, o.ID)
	require.NoError(t, err)
	_, err = f.FetchOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, table.gets.Load())

	next := form("Ana Horvat", models.StatusShipped)
	require.NoError(t, mem.UpdateByID(ctx, o.ID, next))
	f.Invalidate(ctx, models.Invalidation{List: true, OrderID: o.ID})

	got, err := f.FetchOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, got.Status)
	assert.EqualValues(t, 2, table.gets.Load())
}

func TestFetchOrderDoesNotCacheNotFound(t *testing.T) {
	ctx := context.Background()
	f, table, _ := newFetcher(t)

	for i := 0; i < 2; i++ {
		_, err := f.FetchOrder(ctx, "missing")
		assert.True(t, models.IsNotFound(err))
	}
	assert.EqualValues(t, 2, table.gets.Load())
}

// pausingTable holds the next read after it has hit the table until release
// is closed.
type pausingTable struct {
	store.Table
	armed   atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func newPausingTable(t store.Table) *pausingTable {
	p := &pausingTable{Table: t, read: make(chan struct{}), release: make(chan struct{})}
	p.armed.Store(true)
	return p
}

func (p *pausingTable) pause() {
	if p.armed.CompareAndSwap(true, false) {
		close(p.read)
		<-p.release
	}
}

func (p *pausingTable) Select(ctx context.Context, q store.Query) (store.Result, error) {
	res, err := p.Table.Select(ctx, q)
	p.pause()
	return res, err
}

func (p *pausingTable) Get(ctx context.Context, id string) (models.Order, error) {
	o, err := p.Table.Get(ctx, id)
	p.pause()
	return o, err
}

func TestFetchPageReadOlderThanInvalidationIsNotCached(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	table := newPausingTable(mem)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	f := NewFetcher(table, cache.NewMemory(), time.Minute, logger)
	p := DefaultParams()

	done := make(chan store.Result)
	go func() {
		res, _ := f.FetchPage(ctx, p)
		done <- res
	}()
	<-table.read

	_, err := mem.Insert(ctx, form("Ana Horvat", models.StatusCreated))
	require.NoError(t, err)
	f.Invalidate(ctx, models.Invalidation{List: true})
	close(table.release)
	assert.Empty(t, (<-done).Rows)

	res, err := f.FetchPage(ctx, p)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)
	assert.Equal(t, 1, res.TotalCount)
}

func TestFetchOrderReadOlderThanInvalidationIsNotCached(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	o, err := mem.Insert(ctx, form("Ana Horvat", models.StatusCreated))
	require.NoError(t, err)
	table := newPausingTable(mem)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	f := NewFetcher(table, cache.NewMemory(), time.Minute, logger)

	done := make(chan models.Order)
	go func() {
		got, _ := f.FetchOrder(ctx, o.ID)
		done <- got
	}()
	<-table.read

	require.NoError(t, mem.UpdateByID(ctx, o.ID, form("Ana Horvat", models.StatusShipped)))
	f.Invalidate(ctx, models.Invalidation{List: true, OrderID: o.ID})
	close(table.release)
	assert.Equal(t, models.StatusCreated, (<-done).Status)

	got, err := f.FetchOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, got.Status)
}
