// Package migration copies orders between two backends, for example from
// an embedded sqlite file into the hosted table.
package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/orderdesk/internal/query"
	"github.com/jogardn/orderdesk/internal/store"
	"github.com/jogardn/orderdesk/pkg/models"
)

type Config struct {
	BatchSize    int           `json:"batch_size"`
	Concurrency  int           `json:"concurrency"`
	DelayBetween time.Duration `json:"delay_between"`
	DryRun       bool          `json:"dry_run"`
}

func DefaultConfig() Config {
	return Config{
		BatchSize:   50,
		Concurrency: 5,
	}
}

type Result struct {
	TotalOrders    int           `json:"total_orders"`
	Copied         int           `json:"copied"`
	Failed         int           `json:"failed"`
	ProcessingTime time.Duration `json:"processing_time"`
	Errors         []CopyError   `json:"errors"`
	Statistics     Statistics    `json:"statistics"`
	DryRun         bool          `json:"dry_run"`
	Timestamp      time.Time     `json:"timestamp"`
}

type CopyError struct {
	OrderID   string    `json:"order_id"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

type Statistics struct {
	OrdersPerSecond   float64         `json:"orders_per_second"`
	AverageOrderTotal decimal.Decimal `json:"average_order_total"`
	LargestOrderTotal decimal.Decimal `json:"largest_order_total"`
}

type Migrator struct {
	config Config
	logger *logrus.Logger
}

func New(config Config, logger *logrus.Logger) *Migrator {
	def := DefaultConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	return &Migrator{config: config, logger: logger}
}

// Copy inserts every order of src into dst. dst assigns new ids and
// creation times. src is read oldest first in BatchSize pages and batches
// are copied one after another, but the inserts within a batch run on up to
// Concurrency workers, so dst keeps the source order only across batches.
// With Concurrency 1 the destination order matches the source exactly.
// Rows dst rejects are counted and reported in the result; a failure to read
// src aborts the copy.
func (m *Migrator) Copy(ctx context.Context, src, dst store.Table) (*Result, error) {
	if src == dst {
		return nil, errors.New("source and destination are the same table")
	}

	startTime := time.Now()
	result := &Result{
		Errors:    []CopyError{},
		DryRun:    m.config.DryRun,
		Timestamp: startTime.UTC(),
	}

	m.logger.WithFields(logrus.Fields{
		"batch_size":  m.config.BatchSize,
		"concurrency": m.config.Concurrency,
		"dry_run":     m.config.DryRun,
	}).Info("Starting order copy")

	p := query.Params{
		StatusFilter:  models.StatusAll,
		SortField:     store.DefaultSortField,
		SortDirection: store.Ascending,
		PageSize:      m.config.BatchSize,
	}
	var sum decimal.Decimal
	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		q, err := query.Compose(p)
		if err != nil {
			return result, err
		}
		page, err := src.Select(ctx, q)
		if err != nil {
			return result, fmt.Errorf("failed to read page %d from source: %w", p.Page, err)
		}
		result.TotalOrders = page.TotalCount

		for _, o := range page.Rows {
			total := o.WithDerived().TotalAmount
			sum = sum.Add(total)
			if total.GreaterThan(result.Statistics.LargestOrderTotal) {
				result.Statistics.LargestOrderTotal = total
			}
		}

		m.merge(result, m.copyBatch(ctx, dst, page.Rows))

		if len(page.Rows) < p.PageSize || (p.Page+1)*p.PageSize >= page.TotalCount {
			break
		}
		p.Page++
		if m.config.DelayBetween > 0 {
			time.Sleep(m.config.DelayBetween)
		}
	}

	result.ProcessingTime = time.Since(startTime)
	if secs := result.ProcessingTime.Seconds(); secs > 0 {
		result.Statistics.OrdersPerSecond = float64(result.Copied) / secs
	}
	if result.TotalOrders > 0 {
		result.Statistics.AverageOrderTotal = sum.Div(decimal.NewFromInt(int64(result.TotalOrders))).Round(2)
	}

	m.logger.WithFields(logrus.Fields{
		"total":       result.TotalOrders,
		"copied":      result.Copied,
		"failed":      result.Failed,
		"duration_ms": result.ProcessingTime.Milliseconds(),
		"dry_run":     result.DryRun,
	}).Info("Order copy completed")

	return result, nil
}

// copyBatch inserts orders with up to Concurrency workers. Inserts start in
// slice order but may complete in any order.
func (m *Migrator) copyBatch(ctx context.Context, dst store.Table, orders []models.Order) *Result {
	result := &Result{Errors: []CopyError{}}
	if m.config.DryRun {
		m.logger.WithField("count", len(orders)).Info("DRY RUN: Would copy orders")
		result.Copied = len(orders)
		return result
	}

	var wg sync.WaitGroup
	var mutex sync.Mutex
	semaphore := make(chan struct{}, m.config.Concurrency)

	for _, order := range orders {
		wg.Add(1)
		go func(order models.Order) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			err := ctx.Err()
			if err == nil {
				_, err = dst.Insert(ctx, order.OrderFormData)
			}

			mutex.Lock()
			defer mutex.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, CopyError{
					OrderID:   order.ID,
					Error:     err.Error(),
					Timestamp: time.Now().UTC(),
				})
				m.logger.WithError(err).WithField("order_id", order.ID).Error("Failed to copy order")
				return
			}
			result.Copied++
			m.logger.WithField("order_id", order.ID).Debug("Copied order")
		}(order)
	}
	wg.Wait()

	return result
}

func (m *Migrator) merge(target, source *Result) {
	target.Copied += source.Copied
	target.Failed += source.Failed
	target.Errors = append(target.Errors, source.Errors...)
}
