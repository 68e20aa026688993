package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCanceled   Status = "CANCELED"
)

// StatusAll is the list-filter sentinel meaning "no status filter".
const StatusAll = "ALL"

// Statuses lists every status in display order.
var Statuses = []Status{
	StatusCreated,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCanceled,
}

func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// OrderFormData is the writable part of an order, shared by the create and
// edit forms and by every backend's insert/update path.
type OrderFormData struct {
	ProductName     string          `json:"product_name" validate:"required"`
	CustomerName    string          `json:"customer_name" validate:"required,min=2"`
	Quantity        int             `json:"quantity" validate:"required,min=1"`
	PricePerUnit    decimal.Decimal `json:"price_per_unit" validate:"required,gt=0"`
	DeliveryAddress string          `json:"delivery_address" validate:"required,min=5"`
	Status          Status          `json:"status" validate:"required,order_status"`
}

type Order struct {
	ID string `json:"id"`
	OrderFormData
	CreatedAt   time.Time       `json:"created_at"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// Total is quantity × price_per_unit.
func (f OrderFormData) Total() decimal.Decimal {
	return f.PricePerUnit.Mul(decimal.NewFromInt(int64(f.Quantity)))
}

// WithDerived returns the order with TotalAmount recomputed. Stored totals are
// never trusted; rows may predate the column.
func (o Order) WithDerived() Order {
	o.TotalAmount = o.Total()
	return o
}

// Invalidation tells caches and live views which cached reads a mutation
// made stale.
type Invalidation struct {
	List    bool   `json:"list"`
	OrderID string `json:"order_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type ActionResponse struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Data       *Order            `json:"data,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
	Invalidate *Invalidation     `json:"invalidate,omitempty"`

	// Cause is the classified error behind a failed response.
	Cause error `json:"-"`
}
