package web

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jogardn/orderdesk/internal/query"
	"github.com/jogardn/orderdesk/internal/store"
	"github.com/jogardn/orderdesk/pkg/models"
)

// ParseParams reads list parameters from a query string. Missing values
// take the list defaults; the returned params are usable even on error.
func ParseParams(v url.Values) (query.Params, error) {
	p := query.DefaultParams()
	p.SearchTerm = strings.TrimSpace(v.Get("search"))
	if s := strings.TrimSpace(v.Get("status")); s != "" {
		p.StatusFilter = strings.ToUpper(s)
	}
	p.SortField = v.Get("sort")
	p.SortDirection = store.SortDirection(strings.ToLower(v.Get("dir")))

	fields := map[string]string{}
	if s := v.Get("page"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			p.Page = n
		} else {
			fields["page"] = "Page must be a number"
		}
	}
	if s := v.Get("page_size"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			p.PageSize = n
		} else {
			fields["page_size"] = "Page size must be a number"
		}
	}
	if len(fields) > 0 {
		return p, &models.ValidationError{Fields: fields}
	}
	return p, p.Validate()
}

// values is the inverse of ParseParams, omitting defaults.
func values(p query.Params) url.Values {
	v := url.Values{}
	if p.SearchTerm != "" {
		v.Set("search", p.SearchTerm)
	}
	if p.StatusFilter != "" && p.StatusFilter != models.StatusAll {
		v.Set("status", p.StatusFilter)
	}
	if p.SortField != "" {
		v.Set("sort", p.SortField)
		if p.SortDirection != "" {
			v.Set("dir", string(p.SortDirection))
		}
	}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize != query.DefaultPageSize {
		v.Set("page_size", strconv.Itoa(p.PageSize))
	}
	return v
}

func listURL(p query.Params) string {
	if encoded := values(p).Encode(); encoded != "" {
		return "/orders?" + encoded
	}
	return "/orders"
}

// formValues keeps what the user typed so a rejected form re-renders as
// submitted.
type formValues struct {
	ProductName     string
	CustomerName    string
	Quantity        string
	PricePerUnit    string
	DeliveryAddress string
	Status          string
}

func readForm(v url.Values) formValues {
	return formValues{
		ProductName:     v.Get("product_name"),
		CustomerName:    v.Get("customer_name"),
		Quantity:        strings.TrimSpace(v.Get("quantity")),
		PricePerUnit:    strings.TrimSpace(v.Get("price_per_unit")),
		DeliveryAddress: v.Get("delivery_address"),
		Status:          v.Get("status"),
	}
}

// data converts the form. Unparseable numbers become zero and are then
// reported by validation.
func (f formValues) data() models.OrderFormData {
	qty, _ := strconv.Atoi(f.Quantity)
	price, err := decimal.NewFromString(f.PricePerUnit)
	if err != nil {
		price = decimal.Zero
	}
	return models.OrderFormData{
		ProductName:     f.ProductName,
		CustomerName:    f.CustomerName,
		Quantity:        qty,
		PricePerUnit:    price,
		DeliveryAddress: f.DeliveryAddress,
		Status:          models.Status(strings.ToUpper(strings.TrimSpace(f.Status))),
	}
}

func formFromOrder(o models.Order) formValues {
	return formValues{
		ProductName:     o.ProductName,
		CustomerName:    o.CustomerName,
		Quantity:        strconv.Itoa(o.Quantity),
		PricePerUnit:    o.PricePerUnit.StringFixed(2),
		DeliveryAddress: o.DeliveryAddress,
		Status:          string(o.Status),
	}
}
