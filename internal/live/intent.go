package live

import (
	"context"
	"fmt"

	"github.com/jogardn/orderdesk/internal/listview"
	"github.com/jogardn/orderdesk/internal/store"
)

// Intent is one user action sent by the browser.
type Intent struct {
	Type     string              `json:"type"`
	Search   string              `json:"search,omitempty"`
	Status   string              `json:"status,omitempty"`
	Field    string              `json:"field,omitempty"`
	Dir      store.SortDirection `json:"dir,omitempty"`
	Page     int                 `json:"page,omitempty"`
	PageSize int                 `json:"page_size,omitempty"`
}

func (in Intent) action(v *listview.View) (func(ctx context.Context) error, error) {
	switch in.Type {
	case "search":
		return func(ctx context.Context) error { return v.SetSearch(ctx, in.Search) }, nil
	case "status":
		return func(ctx context.Context) error { return v.SetStatusFilter(ctx, in.Status) }, nil
	case "filters":
		return func(ctx context.Context) error { return v.SetFilters(ctx, in.Search, in.Status) }, nil
	case "sort":
		return func(ctx context.Context) error { return v.SetSort(ctx, in.Field, in.Dir) }, nil
	case "page":
		return func(ctx context.Context) error { return v.SetPage(ctx, in.Page) }, nil
	case "page_size":
		return func(ctx context.Context) error { return v.SetPageSize(ctx, in.PageSize) }, nil
	case "refresh":
		return v.Refresh, nil
	case "reset":
		return v.Reset, nil
	}
	return nil, fmt.Errorf("unknown intent %q", in.Type)
}
