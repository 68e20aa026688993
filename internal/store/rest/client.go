// Package rest implements store.Table against a hosted PostgREST-style
// endpoint: one resource per table, filters as query parameters, counts in
// Content-Range.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/orderdesk/internal/circuitbreaker"
	"github.com/jogardn/orderdesk/internal/store"
	"github.com/jogardn/orderdesk/pkg/models"
)

type Config struct {
	BaseURL string
	APIKey  string
	Table   string
	Timeout time.Duration
}

type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *logrus.Logger
}

// IsFailure is the breaker classifier for store calls: rows that do not
// exist and rejected writes say nothing about the health of the store.
func IsFailure(err error) bool {
	return !models.IsNotFound(err) && !models.IsValidation(err) && !errors.Is(err, context.Canceled)
}

func NewClient(cfg Config, breaker *circuitbreaker.CircuitBreaker, logger *logrus.Logger) *Client {
	if cfg.Table == "" {
		cfg.Table = "orders"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.Table,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		breaker: breaker,
		logger:  logger,
	}
}

// row is the wire shape of an order. total_amount is never sent.
type row struct {
	ID              string          `json:"id,omitempty"`
	CreatedAt       *time.Time      `json:"created_at,omitempty"`
	ProductName     string          `json:"product_name"`
	CustomerName    string          `json:"customer_name"`
	Quantity        int             `json:"quantity"`
	PricePerUnit    decimal.Decimal `json:"price_per_unit"`
	DeliveryAddress *string         `json:"delivery_address"`
	Status          models.Status   `json:"status"`
}

func toRow(f models.OrderFormData) row {
	r := row{
		ProductName:  f.ProductName,
		CustomerName: f.CustomerName,
		Quantity:     f.Quantity,
		PricePerUnit: f.PricePerUnit,
		Status:       f.Status,
	}
	if f.DeliveryAddress != "" {
		addr := f.DeliveryAddress
		r.DeliveryAddress = &addr
	}
	return r
}

func (r row) order() models.Order {
	o := models.Order{
		ID: r.ID,
		OrderFormData: models.OrderFormData{
			ProductName:  r.ProductName,
			CustomerName: r.CustomerName,
			Quantity:     r.Quantity,
			PricePerUnit: r.PricePerUnit,
			Status:       r.Status,
		},
	}
	if r.CreatedAt != nil {
		o.CreatedAt = r.CreatedAt.UTC()
	}
	if r.DeliveryAddress != nil {
		o.DeliveryAddress = *r.DeliveryAddress
	}
	return o.WithDerived()
}

// apiError is the error body the store returns on non-2xx responses.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

type request struct {
	op     string
	method string
	query  url.Values
	body   any
	prefer []string
	// id is set for single-row operations; an empty representation then
	// means the row does not exist.
	id string
}

type response struct {
	rows         []row
	contentRange string
}

func (c *Client) do(ctx context.Context, req request) (response, error) {
	var resp response
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.roundTrip(ctx, req)
		return err
	})
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		return response{}, &models.StoreError{Op: req.op, Message: "order store temporarily unavailable", Err: err}
	}
	return resp, err
}

func (c *Client) roundTrip(ctx context.Context, req request) (response, error) {
	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return response{}, &models.StoreError{Op: req.op, Err: fmt.Errorf("failed to marshal body: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	target := c.endpoint
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return response{}, &models.StoreError{Op: req.op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("apikey", c.apiKey)
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if len(req.prefer) > 0 {
		httpReq.Header.Set("Prefer", strings.Join(req.prefer, ","))
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return response{}, &models.StoreError{Op: req.op, Err: ctx.Err()}
		}
		return response{}, &models.StoreError{Op: req.op, Err: fmt.Errorf("failed to reach order store: %w", err)}
	}
	defer httpResp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"op":          req.op,
		"method":      req.method,
		"status":      httpResp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Order store call")

	if httpResp.StatusCode == http.StatusRequestedRangeNotSatisfiable && req.op == "select" {
		// Offset past the last row (PGRST103): an empty page. The total is
		// still reported as "*/N".
		return response{contentRange: httpResp.Header.Get("Content-Range")}, nil
	}
	if httpResp.StatusCode >= 300 {
		return response{}, decodeError(req, httpResp)
	}

	resp := response{contentRange: httpResp.Header.Get("Content-Range")}
	if httpResp.StatusCode == http.StatusNoContent {
		return resp, nil
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&resp.rows); err != nil && !errors.Is(err, io.EOF) {
		return response{}, &models.StoreError{Op: req.op, Err: fmt.Errorf("failed to decode order store response: %w", err)}
	}
	if req.id != "" && len(resp.rows) == 0 {
		return response{}, &models.NotFoundError{ID: req.id}
	}
	return resp, nil
}

func decodeError(req request, resp *http.Response) error {
	var apiErr apiError
	_ = json.NewDecoder(resp.Body).Decode(&apiErr)

	switch {
	case strings.HasPrefix(apiErr.Code, "23"):
		return models.NewValidationError(models.StoreField, apiErr.Message)
	case req.id != "" && apiErr.Code == "22P02":
		// Malformed uuid: no such row can exist.
		return &models.NotFoundError{ID: req.id}
	}

	msg := apiErr.Message
	if msg == "" {
		msg = fmt.Sprintf("order store returned status %d", resp.StatusCode)
	}
	return &models.StoreError{Op: req.op, Message: msg, Err: fmt.Errorf("status %d code %q", resp.StatusCode, apiErr.Code)}
}

// parseTotal reads the total from a Content-Range header such as "0-9/25".
func parseTotal(contentRange string) (int, error) {
	i := strings.LastIndex(contentRange, "/")
	if i < 0 {
		return 0, fmt.Errorf("malformed Content-Range %q", contentRange)
	}
	total := contentRange[i+1:]
	if total == "*" {
		return 0, fmt.Errorf("store did not report an exact count")
	}
	return strconv.Atoi(total)
}

func (c *Client) Select(ctx context.Context, q store.Query) (store.Result, error) {
	q = q.WithDefaults()
	if !store.IsSortable(q.Sort.Field) {
		return store.EmptyResult(), models.NewValidationError("sort", fmt.Sprintf("cannot sort by %q", q.Sort.Field))
	}

	params := url.Values{}
	params.Set("select", "*")
	if q.Filter.CustomerNameContains != "" {
		params.Set("customer_name", "ilike.*"+store.EscapeLike(q.Filter.CustomerNameContains)+"*")
	}
	if q.Filter.Status != "" {
		params.Set("status", "eq."+string(q.Filter.Status))
	}
	params.Set("order", fmt.Sprintf("%s.%s,id.%s", q.Sort.Field, q.Sort.Direction, q.Sort.Direction))
	params.Set("offset", strconv.Itoa(q.Range.Offset))
	if q.Range.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Range.Limit))
	}

	req := request{op: "select", method: http.MethodGet, query: params}
	if q.CountExact {
		req.prefer = []string{"count=exact"}
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return store.EmptyResult(), err
	}

	result := store.EmptyResult()
	for _, r := range resp.rows {
		result.Rows = append(result.Rows, r.order())
	}
	if q.CountExact {
		total, err := parseTotal(resp.contentRange)
		if err != nil {
			return store.EmptyResult(), &models.StoreError{Op: "select", Err: err}
		}
		result.TotalCount = total
	}
	return result, nil
}

func byID(id string) url.Values {
	return url.Values{"id": {"eq." + id}}
}

func (c *Client) Get(ctx context.Context, id string) (models.Order, error) {
	params := byID(id)
	params.Set("select", "*")
	resp, err := c.do(ctx, request{op: "get", method: http.MethodGet, query: params, id: id})
	if err != nil {
		return models.Order{}, err
	}
	return resp.rows[0].order(), nil
}

func (c *Client) Insert(ctx context.Context, form models.OrderFormData) (models.Order, error) {
	resp, err := c.do(ctx, request{
		op:     "insert",
		method: http.MethodPost,
		body:   []row{toRow(store.PrepareInsert(form))},
		prefer: []string{"return=representation"},
	})
	if err != nil {
		return models.Order{}, err
	}
	if len(resp.rows) == 0 {
		return models.Order{}, &models.StoreError{Op: "insert", Message: "order store returned no row"}
	}

	order := resp.rows[0].order()
	c.logger.WithField("order_id", order.ID).Info("Order created in order store")
	return order, nil
}

func (c *Client) UpdateByID(ctx context.Context, id string, form models.OrderFormData) error {
	_, err := c.do(ctx, request{
		op:     "update",
		method: http.MethodPatch,
		query:  byID(id),
		body:   toRow(form),
		prefer: []string{"return=representation"},
		id:     id,
	})
	return err
}

func (c *Client) DeleteByID(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{
		op:     "delete",
		method: http.MethodDelete,
		query:  byID(id),
		prefer: []string{"return=representation"},
		id:     id,
	})
	return err
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, request{
		op:     "ping",
		method: http.MethodGet,
		query:  url.Values{"select": {"id"}, "limit": {"1"}},
	})
	return err
}
