package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/orderdesk/internal/store"
	"github.com/jogardn/orderdesk/pkg/models"
)

func TestCompose(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   store.Query
	}{
		{
			name:   "defaults",
			params: DefaultParams(),
			want: store.Query{
				Sort:       store.Sort{Field: "created_at", Direction: store.Descending},
				Range:      store.Range{Offset: 0, Limit: 10},
				CountExact: true,
			},
		},
		{
			name:   "search term is trimmed",
			params: Params{SearchTerm: "  ana ", PageSize: 10},
			want: store.Query{
				Filter:     store.Filter{CustomerNameContains: "ana"},
				Sort:       store.Sort{Field: "created_at", Direction: store.Descending},
				Range:      store.Range{Limit: 10},
				CountExact: true,
			},
		},
		{
			name:   "blank search adds no filter",
			params: Params{SearchTerm: "   ", PageSize: 10},
			want: store.Query{
				Sort:       store.Sort{Field: "created_at", Direction: store.Descending},
				Range:      store.Range{Limit: 10},
				CountExact: true,
			},
		},
		{
			name:   "status filter and explicit sort",
			params: Params{StatusFilter: "SHIPPED", SortField: "quantity", SortDirection: store.Ascending, Page: 2, PageSize: 10},
			want: store.Query{
				Filter:     store.Filter{Status: models.StatusShipped},
				Sort:       store.Sort{Field: "quantity", Direction: store.Ascending},
				Range:      store.Range{Offset: 20, Limit: 10},
				CountExact: true,
			},
		},
		{
			name:   "empty status means all",
			params: Params{StatusFilter: "", PageSize: 50, Page: 1},
			want: store.Query{
				Sort:       store.Sort{Field: "created_at", Direction: store.Descending},
				Range:      store.Range{Offset: 50, Limit: 50},
				CountExact: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compose(tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComposeRejectsInvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		field  string
	}{
		{"negative page", Params{Page: -1, PageSize: 10}, "page"},
		{"zero page size", Params{PageSize: 0}, "page_size"},
		{"unknown status", Params{StatusFilter: "LOST", PageSize: 10}, "status"},
		{"unsortable field", Params{SortField: "total_amount", PageSize: 10}, "sort"},
		{"bad direction", Params{SortField: "quantity", SortDirection: "up", PageSize: 10}, "dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compose(tt.params)

			var ve *models.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Fields, tt.field)
		})
	}
}

func TestKeyIsCanonical(t *testing.T) {
	a := Params{SearchTerm: "Ana", StatusFilter: "ALL", PageSize: 10}
	b := Params{SearchTerm: " ana ", StatusFilter: "", SortField: "created_at", SortDirection: store.Descending, PageSize: 10}
	assert.Equal(t, a.Key(), b.Key())

	c := a
	c.Page = 1
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestPageCount(t *testing.T) {
	assert.Equal(t, 3, PageCount(25, 10))
	assert.Equal(t, 1, PageCount(0, 10))
	assert.Equal(t, 2, PageCount(20, 10))
	assert.Equal(t, 1, PageCount(5, 0))
}
