// Package sqlstore implements store.Table on database/sql, against
// PostgreSQL through lib/pq or SQLite through modernc.org/sqlite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/jogardn/orderdesk/internal/store"
	"github.com/jogardn/orderdesk/pkg/models"
)

const columns = "id, created_at, product_name, customer_name, quantity, price_per_unit, delivery_address, status"

type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *logrus.Logger
	now     func() time.Time
}

func New(db *sql.DB, dialect Dialect, logger *logrus.Logger) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		logger:  logger,
		now:     time.Now,
	}
}

// Open connects and waits for the database to answer, retrying up to
// attempts times.
func Open(ctx context.Context, dialect Dialect, dsn string, attempts int, logger *logrus.Logger) (*sql.DB, error) {
	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	if dialect.Name == SQLite.Name {
		db.SetMaxOpenConns(1)
	}

	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			logger.WithField("dialect", dialect.Name).Info("Database connection established")
			return db, nil
		}
		logger.WithError(err).Info("Waiting for database...")
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	db.Close()
	return nil, fmt.Errorf("database not ready after %d attempts: %w", attempts, err)
}

// CreateSchema creates the orders table and its indexes when missing.
func (s *Store) CreateSchema(ctx context.Context) error {
	for _, ddl := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// SetClock replaces the created_at source.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) Select(ctx context.Context, q store.Query) (store.Result, error) {
	q = q.WithDefaults()
	if !store.IsSortable(q.Sort.Field) {
		return store.EmptyResult(), models.NewValidationError("sort", fmt.Sprintf("cannot sort by %q", q.Sort.Field))
	}

	where, args := s.where(q.Filter)
	dir := "ASC"
	if q.Sort.Direction == store.Descending {
		dir = "DESC"
	}
	limit := s.dialect.NoLimit
	if q.Range.Limit > 0 {
		limit = fmt.Sprint(q.Range.Limit)
	}
	query := fmt.Sprintf("SELECT %s FROM orders%s ORDER BY %s %s, id %s LIMIT %s OFFSET %d",
		columns, where, q.Sort.Field, dir, dir, limit, q.Range.Offset)

	s.logger.WithFields(logrus.Fields{
		"dialect": s.dialect.Name,
		"sort":    q.Sort.Field,
		"offset":  q.Range.Offset,
		"limit":   q.Range.Limit,
	}).Debug("Selecting orders")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return store.EmptyResult(), s.dialect.mapError("select", err)
	}
	defer rows.Close()

	result := store.EmptyResult()
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return store.EmptyResult(), s.dialect.mapError("select", err)
		}
		result.Rows = append(result.Rows, o)
	}
	if err := rows.Err(); err != nil {
		return store.EmptyResult(), s.dialect.mapError("select", err)
	}

	if q.CountExact {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders"+where, args...).Scan(&result.TotalCount); err != nil {
			return store.EmptyResult(), s.dialect.mapError("count", err)
		}
	}
	return result, nil
}

func (s *Store) where(f store.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.CustomerNameContains != "" {
		args = append(args, store.LikePattern(f.CustomerNameContains))
		conds = append(conds, fmt.Sprintf(`LOWER(customer_name) LIKE %s ESCAPE '\'`, s.dialect.Placeholder(len(args))))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, "status = "+s.dialect.Placeholder(len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) Get(ctx context.Context, id string) (models.Order, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM orders WHERE id = %s", columns, s.dialect.Placeholder(1)), id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, &models.NotFoundError{ID: id}
	}
	if err != nil {
		return models.Order{}, s.dialect.mapError("get", err)
	}
	return o, nil
}

func (s *Store) Insert(ctx context.Context, form models.OrderFormData) (models.Order, error) {
	order := models.Order{
		ID:            uuid.New().String(),
		OrderFormData: store.PrepareInsert(form),
		CreatedAt:     s.now().UTC(),
	}

	ph := make([]string, 8)
	for i := range ph {
		ph[i] = s.dialect.Placeholder(i + 1)
	}
	query := fmt.Sprintf("INSERT INTO orders (%s) VALUES (%s)", columns, strings.Join(ph, ", "))
	_, err := s.db.ExecContext(ctx, query,
		order.ID, s.dialect.TimeArg(order.CreatedAt), order.ProductName, order.CustomerName,
		order.Quantity, order.PricePerUnit, nullable(order.DeliveryAddress), string(order.Status))
	if err != nil {
		return models.Order{}, s.dialect.mapError("insert", err)
	}

	s.logger.WithField("order_id", order.ID).Debug("Order inserted")
	return order.WithDerived(), nil
}

func (s *Store) UpdateByID(ctx context.Context, id string, form models.OrderFormData) error {
	p := s.dialect.Placeholder
	query := fmt.Sprintf(
		"UPDATE orders SET product_name = %s, customer_name = %s, quantity = %s, price_per_unit = %s, delivery_address = %s, status = %s WHERE id = %s",
		p(1), p(2), p(3), p(4), p(5), p(6), p(7))
	res, err := s.db.ExecContext(ctx, query,
		form.ProductName, form.CustomerName, form.Quantity, form.PricePerUnit,
		nullable(form.DeliveryAddress), string(form.Status), id)
	if err != nil {
		return s.dialect.mapError("update", err)
	}
	return affected(res, id, s.dialect, "update")
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM orders WHERE id = "+s.dialect.Placeholder(1), id)
	if err != nil {
		return s.dialect.mapError("delete", err)
	}
	return affected(res, id, s.dialect, "delete")
}

func (s *Store) Ping(ctx context.Context) error {
	return s.dialect.mapError("ping", s.db.PingContext(ctx))
}

func affected(res sql.Result, id string, d Dialect, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return d.mapError(op, err)
	}
	if n == 0 {
		return &models.NotFoundError{ID: id}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (models.Order, error) {
	var (
		o       models.Order
		created any
		address sql.NullString
		status  string
	)
	if err := row.Scan(&o.ID, &created, &o.ProductName, &o.CustomerName,
		&o.Quantity, &o.PricePerUnit, &address, &status); err != nil {
		return models.Order{}, err
	}
	t, err := parseTime(created)
	if err != nil {
		return models.Order{}, err
	}
	o.CreatedAt = t
	o.DeliveryAddress = address.String
	o.Status = models.Status(status)
	return o.WithDerived(), nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
