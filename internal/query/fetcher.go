package query

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/orderdesk/internal/cache"
	"github.com/jogardn/orderdesk/internal/store"
	"github.com/jogardn/orderdesk/pkg/models"
)

const (
	listPrefix   = "orders:list:"
	detailPrefix = "orders:detail:"
)

func ListKey(p Params) string { return listPrefix + p.Key() }

func DetailKey(id string) string { return detailPrefix + id }

// Fetcher reads pages and single orders from the injected table, keeping
// results in c until a mutation invalidates them or ttl passes.
//
// A read that started before an invalidation never writes its result back:
// each fill records the generation it started under and skips the write when
// Invalidate has moved the generation on since.
type Fetcher struct {
	table  store.Table
	cache  cache.Cache
	ttl    time.Duration
	logger *logrus.Logger

	// mu is held shared by fills and exclusively by Invalidate, so a fill's
	// generation check and its cache write happen on one side of a purge.
	mu        sync.RWMutex
	listGen   uint64
	detailGen uint64
}

func NewFetcher(table store.Table, c cache.Cache, ttl time.Duration, logger *logrus.Logger) *Fetcher {
	if c == nil {
		c = cache.Nop{}
	}
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Fetcher{table: table, cache: c, ttl: ttl, logger: logger}
}

func (f *Fetcher) Table() store.Table { return f.table }

// FetchPage composes p and returns the matching page with its exact count.
// On error the result is empty, never nil.
func (f *Fetcher) FetchPage(ctx context.Context, p Params) (store.Result, error) {
	q, err := Compose(p)
	if err != nil {
		return store.EmptyResult(), err
	}

	key := ListKey(p)
	var cached store.Result
	if ok, err := f.cache.Get(ctx, key, &cached); err != nil {
		f.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
	} else if ok {
		return derive(cached), nil
	}

	gen := f.generation(&f.listGen)
	res, err := f.table.Select(ctx, q)
	if err != nil {
		return store.EmptyResult(), err
	}
	f.fill(ctx, &f.listGen, gen, key, res)
	return derive(res), nil
}

// FetchOrder returns one order. A missing order is not cached.
func (f *Fetcher) FetchOrder(ctx context.Context, id string) (models.Order, error) {
	key := DetailKey(id)
	var cached models.Order
	if ok, err := f.cache.Get(ctx, key, &cached); err != nil {
		f.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
	} else if ok {
		return cached.WithDerived(), nil
	}

	gen := f.generation(&f.detailGen)
	o, err := f.table.Get(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	f.fill(ctx, &f.detailGen, gen, key, o)
	return o.WithDerived(), nil
}

func (f *Fetcher) generation(counter *uint64) uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return *counter
}

// fill caches value under key unless the generation moved on after the
// read that produced value started.
func (f *Fetcher) fill(ctx context.Context, counter *uint64, started uint64, key string, value any) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if *counter != started {
		f.logger.WithField("key", key).Debug("Skipping cache write for read older than last invalidation")
		return
	}
	if err := f.cache.Set(ctx, key, value, f.ttl); err != nil {
		f.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
}

// Invalidate drops the cached reads inv names.
func (f *Fetcher) Invalidate(ctx context.Context, inv models.Invalidation) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if inv.List {
		f.listGen++
		if err := f.cache.DeletePrefix(ctx, listPrefix); err != nil {
			f.logger.WithError(err).Warn("Failed to purge cached list pages")
		}
	}
	if inv.OrderID != "" {
		f.detailGen++
		if err := f.cache.Delete(ctx, DetailKey(inv.OrderID)); err != nil {
			f.logger.WithError(err).WithField("order_id", inv.OrderID).Warn("Failed to purge cached order")
		}
	}
}

func derive(res store.Result) store.Result {
	if res.Rows == nil {
		res.Rows = []models.Order{}
	}
	for i := range res.Rows {
		res.Rows[i] = res.Rows[i].WithDerived()
	}
	return res
}
