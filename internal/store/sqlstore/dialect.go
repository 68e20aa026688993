package sqlstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/jogardn/orderdesk/pkg/models"
)

// timeLayout is fixed width so that text timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Dialect captures what differs between the SQL engines the store runs on.
type Dialect struct {
	Name       string
	DriverName string
	// Placeholder returns the bind marker for the n-th argument, starting at 1.
	Placeholder func(n int) string
	// NoLimit is the LIMIT value meaning "all rows".
	NoLimit string
	// TimeArg converts created_at before binding.
	TimeArg func(t time.Time) any
	Schema  []string
	// constraint reports an integrity violation and its message.
	constraint func(err error) (string, bool)
}

var Postgres = Dialect{
	Name:        "postgres",
	DriverName:  "postgres",
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	NoLimit:     "ALL",
	TimeArg:     func(t time.Time) any { return t.UTC() },
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(64) PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			product_name VARCHAR(255) NOT NULL,
			customer_name VARCHAR(255) NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			price_per_unit NUMERIC(12,2) NOT NULL CHECK (price_per_unit > 0),
			delivery_address TEXT,
			status VARCHAR(32) NOT NULL DEFAULT 'CREATED'
				CHECK (status IN ('CREATED','PROCESSING','SHIPPED','DELIVERED','CANCELED'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
	},
	constraint: func(err error) (string, bool) {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
			return pqErr.Message, true
		}
		return "", false
	},
}

var SQLite = Dialect{
	Name:        "sqlite",
	DriverName:  "sqlite",
	Placeholder: func(int) string { return "?" },
	NoLimit:     "-1",
	TimeArg:     func(t time.Time) any { return t.UTC().Format(timeLayout) },
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			product_name TEXT NOT NULL,
			customer_name TEXT NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			price_per_unit NUMERIC NOT NULL CHECK (price_per_unit > 0),
			delivery_address TEXT,
			status TEXT NOT NULL DEFAULT 'CREATED'
				CHECK (status IN ('CREATED','PROCESSING','SHIPPED','DELIVERED','CANCELED'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
	},
	constraint: func(err error) (string, bool) {
		var liteErr *sqlite.Error
		if errors.As(err, &liteErr) && liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			return liteErr.Error(), true
		}
		return "", false
	},
}

// DialectFor resolves a backend name.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case Postgres.Name:
		return Postgres, nil
	case SQLite.Name:
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unsupported sql dialect %q", name)
}

func (d Dialect) mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var nf *models.NotFoundError
	if errors.As(err, &nf) {
		return err
	}
	if msg, ok := d.constraint(err); ok {
		return models.NewValidationError(models.StoreField, msg)
	}
	return &models.StoreError{Op: op, Err: err}
}

func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return parseTimeString(t)
	case []byte:
		return parseTimeString(string(t))
	case nil:
		return time.Time{}, nil
	}
	return time.Time{}, fmt.Errorf("unsupported created_at type %T", v)
}

func parseTimeString(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable created_at %q", s)
}
