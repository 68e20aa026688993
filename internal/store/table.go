// Package store defines the capability interface every order backend
// implements, and the query shape the composer hands to it.
package store

import (
	"context"
	"strings"

	"github.com/jogardn/orderdesk/pkg/models"
)

type SortDirection string

const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

const DefaultSortField = "created_at"

// sortable lists the columns a backend may order by. total_amount is
// derived and is not a column.
var sortable = map[string]bool{
	"created_at":       true,
	"customer_name":    true,
	"product_name":     true,
	"quantity":         true,
	"price_per_unit":   true,
	"status":           true,
	"delivery_address": true,
}

func IsSortable(field string) bool {
	return sortable[field]
}

// Filter holds the two supported predicates. Zero values disable them.
type Filter struct {
	CustomerNameContains string
	Status               models.Status
}

type Sort struct {
	Field     string
	Direction SortDirection
}

type Range struct {
	Offset int
	Limit  int
}

type Query struct {
	Filter     Filter
	Sort       Sort
	Range      Range
	CountExact bool
}

// Result is one page of rows. TotalCount is the number of rows matching the
// filter, ignoring the range; it is zero unless CountExact was requested.
type Result struct {
	Rows       []models.Order `json:"rows"`
	TotalCount int            `json:"total_count"`
}

// Table is the remote orders table. Implementations must report zero rows
// affected on update and delete as *models.NotFoundError.
type Table interface {
	Select(ctx context.Context, q Query) (Result, error)
	Get(ctx context.Context, id string) (models.Order, error)
	// Insert stores a new order and returns it with the id and created_at
	// the store assigned.
	Insert(ctx context.Context, form models.OrderFormData) (models.Order, error)
	UpdateByID(ctx context.Context, id string, form models.OrderFormData) error
	DeleteByID(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// EmptyResult is what Select returns alongside an error.
func EmptyResult() Result {
	return Result{Rows: []models.Order{}}
}

// WithDefaults applies created_at descending when no sort field is given. A
// field without a direction sorts ascending.
func (q Query) WithDefaults() Query {
	if q.Sort.Field == "" {
		q.Sort = Sort{Field: DefaultSortField, Direction: Descending}
	}
	if q.Sort.Direction == "" {
		q.Sort.Direction = Ascending
	}
	return q
}

// PrepareInsert assigns the CREATED default when the caller omits a status.
func PrepareInsert(form models.OrderFormData) models.OrderFormData {
	if form.Status == "" {
		form.Status = models.StatusCreated
	}
	return form
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike backslash-escapes the LIKE wildcards in term.
func EscapeLike(term string) string {
	return likeEscaper.Replace(term)
}

// LikePattern wraps term for a lower-cased LIKE ... ESCAPE '\' match.
func LikePattern(term string) string {
	return "%" + EscapeLike(strings.ToLower(term)) + "%"
}
