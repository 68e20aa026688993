package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/orderdesk/internal/actions"
	"github.com/jogardn/orderdesk/internal/cache"
	"github.com/jogardn/orderdesk/internal/circuitbreaker"
	"github.com/jogardn/orderdesk/internal/query"
	"github.com/jogardn/orderdesk/internal/store"
	"github.com/jogardn/orderdesk/pkg/models"
)

type fixture struct {
	table  *store.Memory
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	table := store.NewMemory()
	fetcher := query.NewFetcher(table, cache.NewMemory(), time.Minute, logger)
	srv, err := New(Deps{
		Actions:  actions.New(table, fetcher, logger),
		Fetcher:  fetcher,
		Breakers: circuitbreaker.NewManager(logger),
		Logger:   logger,
	})
	require.NoError(t, err)
	return &fixture{table: table, router: srv.Router()}
}

func (f *fixture) do(method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) postForm(target string, v url.Values) *httptest.ResponseRecorder {
	return f.do(http.MethodPost, target, strings.NewReader(v.Encode()), "application/x-www-form-urlencoded")
}

func (f *fixture) seed(t *testing.T, customer string) models.Order {
	t.Helper()
	o, err := f.table.Insert(context.Background(), models.OrderFormData{
		ProductName:     "Widget",
		CustomerName:    customer,
		Quantity:        3,
		PricePerUnit:    decimal.RequireFromString("12.75"),
		DeliveryAddress: "12 Elm Street",
		Status:          models.StatusCreated,
	})
	require.NoError(t, err)
	return o
}

const validJSON = `{"product_name":"Widget","customer_name":"Ana Lima","quantity":3,"price_per_unit":"12.75","delivery_address":"12 Elm Street","status":"PROCESSING"}`

func decodeAction(t *testing.T, rec *httptest.ResponseRecorder) models.ActionResponse {
	t.Helper()
	var resp models.ActionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAPICreateAndList(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/orders", strings.NewReader(validJSON), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeAction(t, rec)
	assert.True(t, created.Success)
	assert.Equal(t, actions.MsgCreated, created.Message)
	require.NotNil(t, created.Data)
	assert.Equal(t, "38.25", created.Data.TotalAmount.StringFixed(2))

	rec = f.do(http.MethodGet, "/api/orders?search=ana", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.TotalCount)
	assert.Equal(t, 1, list.PageCount)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, created.Data.ID, list.Orders[0].ID)
}

func TestAPICreateRejectsInvalidForm(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/orders", strings.NewReader(`{"product_name":"Widget","customer_name":"A","quantity":0,"price_per_unit":"1","delivery_address":"12 Elm Street"}`), "application/json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeAction(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "Customer name must be at least 2 characters", resp.Errors["customer_name"])
	assert.Equal(t, "Quantity must be at least 1", resp.Errors["quantity"])
	assert.Zero(t, f.table.Len())
}

func TestAPIMalformedBody(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/orders", strings.NewReader("{"), "application/json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decodeAction(t, rec).Message)
}

func TestAPIUpdateReturnsStoredRow(t *testing.T) {
	f := newFixture(t)
	o := f.seed(t, "Ana Lima")

	body := strings.Replace(validJSON, `"quantity":3`, `"quantity":4`, 1)
	rec := f.do(http.MethodPut, "/api/orders/"+o.ID, strings.NewReader(body), "application/json")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAction(t, rec)
	require.NotNil(t, resp.Data)
	assert.Equal(t, 4, resp.Data.Quantity)
	assert.Equal(t, models.StatusProcessing, resp.Data.Status)
	assert.Equal(t, "51.00", resp.Data.TotalAmount.StringFixed(2))
}

func TestAPIDeleteTwice(t *testing.T) {
	f := newFixture(t)
	o := f.seed(t, "Ana Lima")

	rec := f.do(http.MethodDelete, "/api/orders/"+o.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, actions.MsgDeleted, decodeAction(t, rec).Message)

	rec = f.do(http.MethodDelete, "/api/orders/"+o.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeAction(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, actions.MsgNotFound, resp.Message)
}

func TestAPIGetMissingOrder(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/orders/missing", nil, "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, actions.MsgNotFound, decodeAction(t, rec).Message)
}

func TestAPIListRejectsBadParams(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/orders?page=-1&sort=total_amount", nil, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeAction(t, rec)
	assert.Equal(t, "Page must be 0 or greater", resp.Errors["page"])
	assert.Contains(t, resp.Errors, "sort")
}

func TestAPIStoreFailureIsBadGateway(t *testing.T) {
	f := newFixture(t)
	f.table.Fail(errors.New("connection refused"))

	rec := f.do(http.MethodGet, "/api/orders", nil, "")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "connection refused", decodeAction(t, rec).Message)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 0, body["live_clients"])

	f.table.Fail(errors.New("down"))
	rec = f.do(http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHTMLCreateRedirectsWithNotice(t *testing.T) {
	f := newFixture(t)

	rec := f.postForm("/orders", url.Values{
		"product_name":     {"Widget"},
		"customer_name":    {"Ana Lima"},
		"quantity":         {"2"},
		"price_per_unit":   {"9.99"},
		"delivery_address": {"12 Elm Street"},
		"status":           {"CREATED"},
	})

	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/orders", loc.Path)
	assert.Equal(t, actions.MsgCreated, loc.Query().Get("notice"))
	assert.Equal(t, 1, f.table.Len())

	rec = f.do(http.MethodGet, loc.String(), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, actions.MsgCreated)
	assert.Contains(t, body, "1 order found")
	assert.Contains(t, body, "$19.98")
}

func TestHTMLCreateRerendersRejectedForm(t *testing.T) {
	f := newFixture(t)

	rec := f.postForm("/orders", url.Values{
		"product_name":     {"Gadget"},
		"customer_name":    {"A"},
		"quantity":         {"abc"},
		"price_per_unit":   {"9.99"},
		"delivery_address": {"12 Elm Street"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Customer name must be at least 2 characters")
	assert.Contains(t, body, "Quantity must be at least 1")
	assert.Contains(t, body, `value="Gadget"`)
	assert.Contains(t, body, `value="abc"`)
	assert.Zero(t, f.table.Len())
}

func TestHTMLEditAndDeleteFlow(t *testing.T) {
	f := newFixture(t)
	o := f.seed(t, "Ana Lima")

	rec := f.do(http.MethodGet, "/orders/"+o.ID+"?edit=true", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="12.75"`)

	rec = f.do(http.MethodGet, "/orders/"+o.ID+"/delete", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), DeleteWarning)

	rec = f.postForm("/orders/"+o.ID+"/delete", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), url.QueryEscape(actions.MsgDeleted))

	rec = f.do(http.MethodGet, "/orders/"+o.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTMLListPagination(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 12; i++ {
		f.seed(t, "Customer")
	}

	rec := f.do(http.MethodGet, "/orders?page=1", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "12 orders found, page 2 of 2")
	assert.Contains(t, body, "Previous")
	assert.NotContains(t, body, ">Next<")
}

func TestLandingReportsStoreConnection(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/", nil, "")
	assert.Contains(t, rec.Body.String(), "connected")

	f.table.Fail(errors.New("down"))
	rec = f.do(http.MethodGet, "/", nil, "")
	assert.Contains(t, rec.Body.String(), "unavailable")
}

func TestParseParams(t *testing.T) {
	p, err := ParseParams(url.Values{
		"search":    {"  ana "},
		"status":    {"shipped"},
		"sort":      {"customer_name"},
		"dir":       {"DESC"},
		"page":      {"2"},
		"page_size": {"25"},
	})
	require.NoError(t, err)
	assert.Equal(t, query.Params{
		SearchTerm:    "ana",
		StatusFilter:  "SHIPPED",
		SortField:     "customer_name",
		SortDirection: store.Descending,
		Page:          2,
		PageSize:      25,
	}, p)

	p, err = ParseParams(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, query.DefaultParams(), p)

	_, err = ParseParams(url.Values{"page": {"two"}})
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Page must be a number", ve.Fields["page"])
}

func TestValuesRoundTrip(t *testing.T) {
	p := query.Params{SearchTerm: "ana", StatusFilter: "DELIVERED", SortField: "status", SortDirection: store.Ascending, Page: 3, PageSize: 20}

	got, err := ParseParams(values(p))
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.Equal(t, "/orders", listURL(query.DefaultParams()))
}

func TestHeadersToggleActiveSort(t *testing.T) {
	p := query.DefaultParams()
	p.Page = 2
	hs := headers(p)

	// created_at desc is the default sort.
	assert.Equal(t, "Date", hs[5].Header)
	assert.Equal(t, " ▼", hs[5].Arrow)
	assert.Contains(t, hs[5].URL, "dir=asc")
	assert.Contains(t, hs[5].URL, "page=2")
	assert.Empty(t, hs[0].URL)
	assert.Empty(t, hs[6].URL)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{models.NewValidationError("quantity", "bad"), http.StatusBadRequest},
		{&models.NotFoundError{ID: "x"}, http.StatusNotFound},
		{&models.StoreError{Op: "select", Err: circuitbreaker.ErrCircuitBreakerOpen}, http.StatusServiceUnavailable},
		{&models.StoreError{Op: "select", Message: "boom"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}
