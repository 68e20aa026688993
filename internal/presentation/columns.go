// Package presentation describes how orders are shown: the grid columns,
// cell formatting, and status colours shared by the HTML views and the
// CLI table.
package presentation

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jogardn/orderdesk/pkg/models"
)

type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

type Column struct {
	Field    string `json:"field"`
	Header   string `json:"header"`
	Sortable bool   `json:"sortable"`
	Align    Align  `json:"align"`
}

// Columns is the order grid, left to right.
var Columns = []Column{
	{Field: "id", Header: "Order ID", Align: AlignLeft},
	{Field: "product_name", Header: "Product", Sortable: true, Align: AlignLeft},
	{Field: "customer_name", Header: "Customer", Sortable: true, Align: AlignLeft},
	{Field: "delivery_address", Header: "Address", Align: AlignLeft},
	{Field: "status", Header: "Status", Sortable: true, Align: AlignCenter},
	{Field: "created_at", Header: "Date", Sortable: true, Align: AlignLeft},
	{Field: "total_amount", Header: "Amount", Align: AlignRight},
	{Field: "actions", Header: "", Align: AlignRight},
}

// DataColumns is Columns without the trailing actions column.
func DataColumns() []Column {
	return Columns[:len(Columns)-1]
}

const DateLayout = "Jan 2, 2006"

func ShortID(id string) string {
	if len(id) > 7 {
		id = id[:7]
	}
	return "#" + strings.ToUpper(id)
}

func Address(addr string) string {
	if strings.TrimSpace(addr) == "" {
		return "N/A"
	}
	return addr
}

func Date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

func Money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// Cells renders o in the order of DataColumns.
func Cells(o models.Order) []string {
	return []string{
		ShortID(o.ID),
		o.ProductName,
		o.CustomerName,
		Address(o.DeliveryAddress),
		string(o.Status),
		Date(o.CreatedAt),
		Money(o.TotalAmount),
	}
}

type StatusColor struct {
	Background string `json:"background"`
	Text       string `json:"text"`
	Border     string `json:"border"`
}

var statusColors = map[models.Status]StatusColor{
	models.StatusCreated:    {Background: "#eff6ff", Text: "#1d4ed8", Border: "#bfdbfe"},
	models.StatusProcessing: {Background: "#fefce8", Text: "#a16207", Border: "#fde68a"},
	models.StatusShipped:    {Background: "#f5f3ff", Text: "#6d28d9", Border: "#ddd6fe"},
	models.StatusDelivered:  {Background: "#f0fdf4", Text: "#15803d", Border: "#bbf7d0"},
	models.StatusCanceled:   {Background: "#fef2f2", Text: "#b91c1c", Border: "#fecaca"},
}

var neutral = StatusColor{Background: "#f9fafb", Text: "#374151", Border: "#e5e7eb"}

func ColorFor(s models.Status) StatusColor {
	if c, ok := statusColors[s]; ok {
		return c
	}
	return neutral
}

func OrdersFound(total int) string {
	if total == 1 {
		return "1 order found"
	}
	return fmt.Sprintf("%d orders found", total)
}

// PageOf is 1-based for display. An empty result is page 1 of 1.
func PageOf(page, pageCount int) string {
	if pageCount < 1 {
		pageCount = 1
	}
	return fmt.Sprintf("page %d of %d", page+1, pageCount)
}
