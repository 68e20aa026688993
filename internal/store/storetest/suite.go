// Package storetest holds the behaviour every store.Table must share. Backend
// packages run it from their own tests.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/orderdesk/internal/store"
	"github.com/jogardn/orderdesk/pkg/models"
)

// Factory returns an empty table. Suites call it once per subtest.
type Factory func(t *testing.T) store.Table

func Form(customer string, status models.Status) models.OrderFormData {
	return models.OrderFormData{
		ProductName:     "Widget",
		CustomerName:    customer,
		Quantity:        3,
		PricePerUnit:    decimal.RequireFromString("9.99"),
		DeliveryAddress: "1 Main St",
		Status:          status,
	}
}

// Seed inserts forms in order, sleeping a millisecond between rows so that
// created_at is strictly increasing on every backend.
func Seed(t *testing.T, table store.Table, forms ...models.OrderFormData) []models.Order {
	t.Helper()
	out := make([]models.Order, 0, len(forms))
	for _, f := range forms {
		o, err := table.Insert(context.Background(), f)
		require.NoError(t, err)
		out = append(out, o)
		time.Sleep(time.Millisecond)
	}
	return out
}

func RunTableSuite(t *testing.T, newTable Factory) {
	ctx := context.Background()

	t.Run("insert then select returns derived total", func(t *testing.T) {
		table := newTable(t)
		created, err := table.Insert(ctx, Form("Ana Horvat", models.StatusCreated))
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())

		res, err := table.Select(ctx, store.Query{
			Filter:     store.Filter{Status: models.StatusCreated},
			CountExact: true,
		})
		require.NoError(t, err)
		require.Len(t, res.Rows, 1)
		row := res.Rows[0]
		assert.Equal(t, created.ID, row.ID)
		assert.Equal(t, "Ana Horvat", row.CustomerName)
		assert.Equal(t, "Widget", row.ProductName)
		assert.Equal(t, 3, row.Quantity)
		assert.True(t, row.PricePerUnit.Equal(decimal.RequireFromString("9.99")))
		assert.Equal(t, "1 Main St", row.DeliveryAddress)
		assert.Equal(t, "29.97", row.TotalAmount.StringFixed(2))
		assert.Equal(t, 1, res.TotalCount)
	})

	t.Run("insert defaults status to CREATED", func(t *testing.T) {
		table := newTable(t)
		created, err := table.Insert(ctx, Form("Ana", ""))
		require.NoError(t, err)
		assert.Equal(t, models.StatusCreated, created.Status)

		got, err := table.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCreated, got.Status)
	})

	t.Run("search is case-insensitive substring on customer_name", func(t *testing.T) {
		table := newTable(t)
		Seed(t, table,
			Form("Ana Horvat", models.StatusShipped),
			Form("DIANA Prince", models.StatusCreated),
			Form("Bob Stone", models.StatusShipped),
		)

		res, err := table.Select(ctx, store.Query{Filter: store.Filter{CustomerNameContains: "ana"}, CountExact: true})
		require.NoError(t, err)
		assert.Equal(t, 2, res.TotalCount)
		for _, r := range res.Rows {
			assert.Contains(t, []string{"Ana Horvat", "DIANA Prince"}, r.CustomerName)
		}
	})

	t.Run("status filter is exact and intersects with search", func(t *testing.T) {
		table := newTable(t)
		Seed(t, table,
			Form("Ana Horvat", models.StatusShipped),
			Form("Diana Prince", models.StatusCreated),
			Form("Bob Stone", models.StatusShipped),
		)

		shipped, err := table.Select(ctx, store.Query{Filter: store.Filter{Status: models.StatusShipped}, CountExact: true})
		require.NoError(t, err)
		assert.Equal(t, 2, shipped.TotalCount)
		for _, r := range shipped.Rows {
			assert.Equal(t, models.StatusShipped, r.Status)
		}

		both, err := table.Select(ctx, store.Query{
			Filter:     store.Filter{CustomerNameContains: "ana", Status: models.StatusShipped},
			CountExact: true,
		})
		require.NoError(t, err)
		require.Len(t, both.Rows, 1)
		assert.Equal(t, "Ana Horvat", both.Rows[0].CustomerName)
	})

	t.Run("search treats LIKE wildcards literally", func(t *testing.T) {
		table := newTable(t)
		Seed(t, table, Form("100% Cotton Ltd", models.StatusCreated), Form("Plain Name", models.StatusCreated))

		res, err := table.Select(ctx, store.Query{Filter: store.Filter{CustomerNameContains: "%"}, CountExact: true})
		require.NoError(t, err)
		assert.Equal(t, 1, res.TotalCount)
	})

	t.Run("default sort is created_at descending", func(t *testing.T) {
		table := newTable(t)
		seeded := Seed(t, table,
			Form("First", models.StatusCreated),
			Form("Second", models.StatusCreated),
			Form("Third", models.StatusCreated),
		)

		res, err := table.Select(ctx, store.Query{})
		require.NoError(t, err)
		require.Len(t, res.Rows, 3)
		assert.Equal(t, seeded[2].ID, res.Rows[0].ID)
		assert.Equal(t, seeded[0].ID, res.Rows[2].ID)
	})

	t.Run("explicit sort overrides default", func(t *testing.T) {
		table := newTable(t)
		Seed(t, table,
			Form("Carla", models.StatusCreated),
			Form("Ana", models.StatusCreated),
			Form("Bob", models.StatusCreated),
		)

		res, err := table.Select(ctx, store.Query{Sort: store.Sort{Field: "customer_name", Direction: store.Ascending}})
		require.NoError(t, err)
		require.Len(t, res.Rows, 3)
		assert.Equal(t, "Ana", res.Rows[0].CustomerName)
		assert.Equal(t, "Bob", res.Rows[1].CustomerName)
		assert.Equal(t, "Carla", res.Rows[2].CustomerName)
	})

	t.Run("pagination returns page rows and exact count", func(t *testing.T) {
		table := newTable(t)
		forms := make([]models.OrderFormData, 25)
		for i := range forms {
			forms[i] = Form(fmt.Sprintf("Customer %02d", i), models.StatusCreated)
		}
		for _, f := range forms {
			_, err := table.Insert(ctx, f)
			require.NoError(t, err)
		}

		first, err := table.Select(ctx, store.Query{Range: store.Range{Offset: 0, Limit: 10}, CountExact: true})
		require.NoError(t, err)
		assert.Len(t, first.Rows, 10)
		assert.Equal(t, 25, first.TotalCount)

		last, err := table.Select(ctx, store.Query{Range: store.Range{Offset: 20, Limit: 10}, CountExact: true})
		require.NoError(t, err)
		assert.Len(t, last.Rows, 5)
		assert.Equal(t, 25, last.TotalCount)

		beyond, err := table.Select(ctx, store.Query{Range: store.Range{Offset: 40, Limit: 10}, CountExact: true})
		require.NoError(t, err)
		assert.Empty(t, beyond.Rows)
		assert.NotNil(t, beyond.Rows)
	})

	t.Run("update overwrites every field", func(t *testing.T) {
		table := newTable(t)
		created, err := table.Insert(ctx, Form("Ana Horvat", models.StatusCreated))
		require.NoError(t, err)

		next := models.OrderFormData{
			ProductName:     "Gadget",
			CustomerName:    "Ana H.",
			Quantity:        7,
			PricePerUnit:    decimal.RequireFromString("2.50"),
			DeliveryAddress: "22 Side Road",
			Status:          models.StatusDelivered,
		}
		require.NoError(t, table.UpdateByID(ctx, created.ID, next))

		got, err := table.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, next.ProductName, got.ProductName)
		assert.Equal(t, next.CustomerName, got.CustomerName)
		assert.Equal(t, next.Quantity, got.Quantity)
		assert.True(t, next.PricePerUnit.Equal(got.PricePerUnit))
		assert.Equal(t, next.DeliveryAddress, got.DeliveryAddress)
		assert.Equal(t, next.Status, got.Status)
		assert.Equal(t, "17.50", got.TotalAmount.StringFixed(2))
		assert.Equal(t, created.ID, got.ID)
	})

	t.Run("update of unknown id is not found", func(t *testing.T) {
		table := newTable(t)
		err := table.UpdateByID(ctx, "00000000-0000-0000-0000-000000000000", Form("Ana", models.StatusCreated))
		assert.True(t, models.IsNotFound(err), "got %v", err)
	})

	t.Run("delete removes row and repeated delete is not found", func(t *testing.T) {
		table := newTable(t)
		seeded := Seed(t, table, Form("Ana", models.StatusCreated), Form("Bob", models.StatusShipped))

		require.NoError(t, table.DeleteByID(ctx, seeded[0].ID))

		res, err := table.Select(ctx, store.Query{CountExact: true})
		require.NoError(t, err)
		assert.Equal(t, 1, res.TotalCount)
		for _, r := range res.Rows {
			assert.NotEqual(t, seeded[0].ID, r.ID)
		}

		_, err = table.Get(ctx, seeded[0].ID)
		assert.True(t, models.IsNotFound(err))

		err = table.DeleteByID(ctx, seeded[0].ID)
		assert.True(t, models.IsNotFound(err), "got %v", err)
	})

	t.Run("ping succeeds", func(t *testing.T) {
		assert.NoError(t, newTable(t).Ping(ctx))
	})
}
