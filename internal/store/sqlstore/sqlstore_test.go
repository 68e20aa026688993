package sqlstore

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/orderdesk/internal/store"
	"github.com/jogardn/orderdesk/internal/store/storetest"
	"github.com/jogardn/orderdesk/pkg/models"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newSQLite(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, SQLite, filepath.Join(t.TempDir(), "orders.db"), 1, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := New(db, SQLite, quietLogger())
	require.NoError(t, s.CreateSchema(ctx))
	return s
}

func TestSQLiteTable(t *testing.T) {
	storetest.RunTableSuite(t, func(t *testing.T) store.Table {
		return newSQLite(t)
	})
}

func TestSQLiteConstraintIsValidationError(t *testing.T) {
	s := newSQLite(t)
	form := storetest.Form("Ana Horvat", models.StatusCreated)
	form.Quantity = 0

	_, err := s.Insert(context.Background(), form)

	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, models.StoreField)
}

func TestSQLiteCreatedAtRoundTrip(t *testing.T) {
	s := newSQLite(t)
	at := time.Date(2025, 3, 4, 10, 11, 12, 345000000, time.UTC)
	s.SetClock(func() time.Time { return at })

	created, err := s.Insert(context.Background(), storetest.Form("Ana", models.StatusCreated))
	require.NoError(t, err)

	got, err := s.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, at.Equal(got.CreatedAt), "got %v", got.CreatedAt)
}

func TestSQLiteEmptyAddressIsStoredAsNull(t *testing.T) {
	s := newSQLite(t)
	form := storetest.Form("Ana", models.StatusCreated)
	form.DeliveryAddress = ""

	created, err := s.Insert(context.Background(), form)
	require.NoError(t, err)

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM orders WHERE delivery_address IS NULL").Scan(&n))
	assert.Equal(t, 1, n)

	got, err := s.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "", got.DeliveryAddress)
}

func TestSelectRejectsUnknownSortColumn(t *testing.T) {
	s := newSQLite(t)

	_, err := s.Select(context.Background(), store.Query{Sort: store.Sort{Field: "id; DROP TABLE orders"}})

	assert.True(t, models.IsValidation(err))
}

func TestWherePlaceholdersPerDialect(t *testing.T) {
	f := store.Filter{CustomerNameContains: "an_a", Status: models.StatusShipped}

	pg := &Store{dialect: Postgres}
	where, args := pg.where(f)
	assert.Equal(t, ` WHERE LOWER(customer_name) LIKE $1 ESCAPE '\' AND status = $2`, where)
	assert.Equal(t, []any{`%an\_a%`, "SHIPPED"}, args)

	lite := &Store{dialect: SQLite}
	where, _ = lite.where(f)
	assert.Equal(t, ` WHERE LOWER(customer_name) LIKE ? ESCAPE '\' AND status = ?`, where)

	where, args = lite.where(store.Filter{})
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestParseTime(t *testing.T) {
	want := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, v := range []any{
		want,
		want.Format(timeLayout),
		[]byte(want.Format(time.RFC3339Nano)),
		"2025-01-02 03:04:05",
	} {
		got, err := parseTime(v)
		require.NoError(t, err)
		assert.True(t, want.Equal(got))
	}

	_, err := parseTime(42)
	assert.Error(t, err)
}

func TestDecimalPriceSurvivesSQLite(t *testing.T) {
	s := newSQLite(t)
	form := storetest.Form("Ana", models.StatusCreated)
	form.PricePerUnit = decimal.RequireFromString("12.75")

	created, err := s.Insert(context.Background(), form)
	require.NoError(t, err)

	got, err := s.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "12.75", got.PricePerUnit.StringFixed(2))
	assert.Equal(t, "38.25", got.TotalAmount.StringFixed(2))
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("postgres")
	require.NoError(t, err)
	assert.Equal(t, "$3", d.Placeholder(3))

	_, err = DialectFor("oracle")
	assert.Error(t, err)
}
