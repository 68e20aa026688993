// Package actions performs create, update and delete against the orders
// table and reports each outcome as a models.ActionResponse. Actions never
// return a Go error.
package actions

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/orderdesk/internal/store"
	"github.com/jogardn/orderdesk/pkg/models"
)

const (
	MsgCreated  = "Order successfully created!"
	MsgUpdated  = "Order updated successfully"
	MsgDeleted  = "Order deleted successfully"
	MsgNotFound = "Order not found"
)

type Service struct {
	table       store.Table
	invalidator Invalidator
	logger      *logrus.Logger
}

func New(table store.Table, invalidator Invalidator, logger *logrus.Logger) *Service {
	if invalidator == nil {
		invalidator = Fanout{}
	}
	return &Service{table: table, invalidator: invalidator, logger: logger}
}

func (s *Service) Create(ctx context.Context, form models.OrderFormData) models.ActionResponse {
	form = form.Normalize()
	if err := form.Validate(); err != nil {
		return s.failure("create", "", err)
	}

	order, err := s.table.Insert(ctx, form)
	if err != nil {
		return s.failure("create", "", err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"customer": order.CustomerName,
		"total":    order.TotalAmount.StringFixed(2),
	}).Info("Order created")

	return s.success(ctx, MsgCreated, &order, models.Invalidation{List: true, Reason: "create"})
}

// Update overwrites every field of the order. The response carries the row
// as read back from the store when that read succeeds.
func (s *Service) Update(ctx context.Context, id string, form models.OrderFormData) models.ActionResponse {
	form = form.Normalize()
	if err := form.Validate(); err != nil {
		return s.failure("update", id, err)
	}

	if err := s.table.UpdateByID(ctx, id, form); err != nil {
		return s.failure("update", id, err)
	}

	var data *models.Order
	if order, err := s.table.Get(ctx, id); err == nil {
		data = &order
	} else {
		s.logger.WithError(err).WithField("order_id", id).Warn("Failed to read back updated order")
	}

	s.logger.WithField("order_id", id).Info("Order updated")
	return s.success(ctx, MsgUpdated, data, models.Invalidation{List: true, OrderID: id, Reason: "update"})
}

// Delete removes the order permanently. Deleting an id that no longer
// exists reports success=false with MsgNotFound.
func (s *Service) Delete(ctx context.Context, id string) models.ActionResponse {
	if err := s.table.DeleteByID(ctx, id); err != nil {
		return s.failure("delete", id, err)
	}

	s.logger.WithField("order_id", id).Info("Order deleted")
	return s.success(ctx, MsgDeleted, nil, models.Invalidation{List: true, OrderID: id, Reason: "delete"})
}

func (s *Service) success(ctx context.Context, msg string, data *models.Order, inv models.Invalidation) models.ActionResponse {
	s.invalidator.Invalidate(ctx, inv)
	return models.ActionResponse{
		Success:    true,
		Message:    msg,
		Data:       data,
		Invalidate: &inv,
	}
}

func (s *Service) failure(action, id string, err error) models.ActionResponse {
	entry := s.logger.WithError(err).WithFields(logrus.Fields{
		"action":   action,
		"order_id": id,
	})
	resp := models.ActionResponse{Success: false, Message: err.Error(), Cause: err}

	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		entry.Warn("Order rejected")
		resp.Errors = ve.Fields
	case models.IsNotFound(err):
		entry.Warn("Order not found")
		resp.Message = MsgNotFound
	default:
		entry.Error("Order store call failed")
	}
	return resp
}
