package gormstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/jogardn/orderdesk/pkg/models"
)

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError("ping", nil))

	for _, err := range []error{gorm.ErrDuplicatedKey, gorm.ErrCheckConstraintViolated, gorm.ErrForeignKeyViolated} {
		got := mapError("insert", fmt.Errorf("exec: %w", err))
		assert.True(t, models.IsValidation(got), "%v", err)
	}

	got := mapError("select", context.DeadlineExceeded)
	var se *models.StoreError
	assert.ErrorAs(t, got, &se)
	assert.Equal(t, "select", se.Op)
	assert.True(t, errors.Is(got, context.DeadlineExceeded))
}

func TestOrderRowConversion(t *testing.T) {
	created := time.Date(2025, 4, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	r := orderRow{
		ID:           "id-1",
		CreatedAt:    created,
		ProductName:  "Widget",
		CustomerName: "Ana Lima",
		Quantity:     3,
		PricePerUnit: decimal.RequireFromString("12.75"),
		Status:       "SHIPPED",
	}

	o := r.order()
	assert.Equal(t, "38.25", o.TotalAmount.StringFixed(2))
	assert.Equal(t, time.UTC, o.CreatedAt.Location())
	assert.True(t, created.Equal(o.CreatedAt))
	assert.Empty(t, o.DeliveryAddress)
	assert.Equal(t, models.StatusShipped, o.Status)

	r.DeliveryAddress = address("12 Elm Street")
	assert.Equal(t, "12 Elm Street", r.order().DeliveryAddress)
	assert.Nil(t, address(""))
	assert.Equal(t, "orders", orderRow{}.TableName())
}
