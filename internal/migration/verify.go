package migration

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/orderdesk/internal/query"
	"github.com/jogardn/orderdesk/internal/store"
	"github.com/jogardn/orderdesk/pkg/models"
)

// Verification compares the contents of two tables. Ids and creation times
// are assigned per table, so orders are matched on their form data.
type Verification struct {
	SourceCount      int       `json:"source_count"`
	DestinationCount int       `json:"destination_count"`
	Matched          int       `json:"matched"`
	Missing          []string  `json:"missing"`
	SyncPercentage   float64   `json:"sync_percentage"`
	OverallStatus    string    `json:"overall_status"`
	Timestamp        time.Time `json:"timestamp"`
}

// Verify reports which source orders have no counterpart in dst. Missing
// lists source ids.
func (m *Migrator) Verify(ctx context.Context, src, dst store.Table) (*Verification, error) {
	srcRows, err := m.readAll(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	dstRows, err := m.readAll(ctx, dst)
	if err != nil {
		return nil, fmt.Errorf("read destination: %w", err)
	}

	remaining := make(map[string]int, len(dstRows))
	for _, o := range dstRows {
		remaining[fingerprint(o)]++
	}

	v := &Verification{
		SourceCount:      len(srcRows),
		DestinationCount: len(dstRows),
		Missing:          []string{},
		Timestamp:        time.Now().UTC(),
	}
	for _, o := range srcRows {
		key := fingerprint(o)
		if remaining[key] > 0 {
			remaining[key]--
			v.Matched++
			continue
		}
		v.Missing = append(v.Missing, o.ID)
	}
	sort.Strings(v.Missing)

	v.SyncPercentage = 100
	if v.SourceCount > 0 {
		v.SyncPercentage = float64(v.Matched) / float64(v.SourceCount) * 100
	}
	switch {
	case v.SyncPercentage >= 100:
		v.OverallStatus = "synchronized"
	case v.SyncPercentage >= 95:
		v.OverallStatus = "good"
	case v.SyncPercentage >= 70:
		v.OverallStatus = "fair"
	default:
		v.OverallStatus = "poor"
	}

	m.logger.WithFields(logrus.Fields{
		"source_count":      v.SourceCount,
		"destination_count": v.DestinationCount,
		"missing":           len(v.Missing),
		"sync_percentage":   v.SyncPercentage,
	}).Info("Copy verification completed")

	return v, nil
}

func (m *Migrator) readAll(ctx context.Context, table store.Table) ([]models.Order, error) {
	p := query.Params{
		StatusFilter:  models.StatusAll,
		SortField:     store.DefaultSortField,
		SortDirection: store.Ascending,
		PageSize:      m.config.BatchSize,
	}
	var out []models.Order
	for {
		q, err := query.Compose(p)
		if err != nil {
			return nil, err
		}
		page, err := table.Select(ctx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Rows...)
		if len(page.Rows) < p.PageSize || len(out) >= page.TotalCount {
			return out, nil
		}
		p.Page++
	}
}

func fingerprint(o models.Order) string {
	return fmt.Sprintf("%s\x00%s\x00%d\x00%s\x00%s\x00%s",
		o.ProductName, o.CustomerName, o.Quantity, o.PricePerUnit.StringFixed(2), o.DeliveryAddress, o.Status)
}
