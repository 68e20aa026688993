// Package gormstore implements store.Table on MySQL through gorm.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/jogardn/orderdesk/internal/store"
	"github.com/jogardn/orderdesk/pkg/models"
)

type orderRow struct {
	ID              string          `gorm:"primaryKey;size:64"`
	CreatedAt       time.Time       `gorm:"not null;index"`
	ProductName     string          `gorm:"size:255;not null"`
	CustomerName    string          `gorm:"size:255;not null;index"`
	Quantity        int             `gorm:"not null;check:quantity > 0"`
	PricePerUnit    decimal.Decimal `gorm:"type:decimal(12,2);not null;check:price_per_unit > 0"`
	DeliveryAddress *string         `gorm:"type:text"`
	Status          string          `gorm:"size:32;not null;default:CREATED;index"`
}

func (orderRow) TableName() string { return "orders" }

func (r orderRow) order() models.Order {
	o := models.Order{
		ID:        r.ID,
		CreatedAt: r.CreatedAt.UTC(),
		OrderFormData: models.OrderFormData{
			ProductName:  r.ProductName,
			CustomerName: r.CustomerName,
			Quantity:     r.Quantity,
			PricePerUnit: r.PricePerUnit,
			Status:       models.Status(r.Status),
		},
	}
	if r.DeliveryAddress != nil {
		o.DeliveryAddress = *r.DeliveryAddress
	}
	return o.WithDerived()
}

func address(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type Store struct {
	db *gorm.DB
}

// Open connects to MySQL. parseTime=True is required in dsn.
func Open(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	return gdb, nil
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateSchema(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&orderRow{})
}

func (s *Store) filtered(ctx context.Context, f store.Filter) *gorm.DB {
	tx := s.db.WithContext(ctx).Model(&orderRow{})
	if f.CustomerNameContains != "" {
		tx = tx.Where("LOWER(customer_name) LIKE ?", store.LikePattern(f.CustomerNameContains))
	}
	if f.Status != "" {
		tx = tx.Where("status = ?", string(f.Status))
	}
	return tx
}

func (s *Store) Select(ctx context.Context, q store.Query) (store.Result, error) {
	q = q.WithDefaults()
	if !store.IsSortable(q.Sort.Field) {
		return store.EmptyResult(), models.NewValidationError("sort", fmt.Sprintf("cannot sort by %q", q.Sort.Field))
	}
	desc := q.Sort.Direction == store.Descending

	tx := s.filtered(ctx, q.Filter).
		Order(clause.OrderByColumn{Column: clause.Column{Name: q.Sort.Field}, Desc: desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: desc}).
		Offset(q.Range.Offset)
	if q.Range.Limit > 0 {
		tx = tx.Limit(q.Range.Limit)
	}

	var rows []orderRow
	if err := tx.Find(&rows).Error; err != nil {
		return store.EmptyResult(), mapError("select", err)
	}

	result := store.EmptyResult()
	for _, r := range rows {
		result.Rows = append(result.Rows, r.order())
	}

	if q.CountExact {
		var n int64
		if err := s.filtered(ctx, q.Filter).Count(&n).Error; err != nil {
			return store.EmptyResult(), mapError("count", err)
		}
		result.TotalCount = int(n)
	}
	return result, nil
}

func (s *Store) Get(ctx context.Context, id string) (models.Order, error) {
	var r orderRow
	err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Order{}, &models.NotFoundError{ID: id}
	}
	if err != nil {
		return models.Order{}, mapError("get", err)
	}
	return r.order(), nil
}

func (s *Store) Insert(ctx context.Context, form models.OrderFormData) (models.Order, error) {
	form = store.PrepareInsert(form)
	r := orderRow{
		ID:              uuid.New().String(),
		CreatedAt:       time.Now().UTC(),
		ProductName:     form.ProductName,
		CustomerName:    form.CustomerName,
		Quantity:        form.Quantity,
		PricePerUnit:    form.PricePerUnit,
		DeliveryAddress: address(form.DeliveryAddress),
		Status:          string(form.Status),
	}
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return models.Order{}, mapError("insert", err)
	}
	return r.order(), nil
}

func (s *Store) UpdateByID(ctx context.Context, id string, form models.OrderFormData) error {
	res := s.db.WithContext(ctx).Model(&orderRow{}).Where("id = ?", id).Updates(map[string]any{
		"product_name":     form.ProductName,
		"customer_name":    form.CustomerName,
		"quantity":         form.Quantity,
		"price_per_unit":   form.PricePerUnit,
		"delivery_address": address(form.DeliveryAddress),
		"status":           string(form.Status),
	})
	if res.Error != nil {
		return mapError("update", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// MySQL reports zero affected rows when the values did not change.
	var n int64
	if err := s.db.WithContext(ctx).Model(&orderRow{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return mapError("update", err)
	}
	if n == 0 {
		return &models.NotFoundError{ID: id}
	}
	return nil
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&orderRow{})
	if res.Error != nil {
		return mapError("delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return &models.NotFoundError{ID: id}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return mapError("ping", err)
	}
	return mapError("ping", sqlDB.PingContext(ctx))
}

func mapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey),
		errors.Is(err, gorm.ErrCheckConstraintViolated),
		errors.Is(err, gorm.ErrForeignKeyViolated):
		return models.NewValidationError(models.StoreField, err.Error())
	}
	return &models.StoreError{Op: op, Err: err}
}
