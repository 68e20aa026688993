package models

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report fields by their wire names so form and API errors line up.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("order_status", func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).Valid()
	})

	return v
}

var fieldMessages = map[string]map[string]string{
	"customer_name": {
		"required": "Customer name is required",
		"min":      "Customer name must be at least 2 characters",
	},
	"product_name": {
		"required": "Product name is required",
	},
	"quantity": {
		"required": "Quantity must be at least 1",
		"min":      "Quantity must be at least 1",
	},
	"price_per_unit": {
		"required": "Price is required",
		"gt":       "Price must be greater than 0",
	},
	"delivery_address": {
		"required": "Delivery address is required",
		"min":      "Delivery address must be at least 5 characters",
	},
	"status": {
		"required":     "Status is required",
		"order_status": "Status must be one of CREATED, PROCESSING, SHIPPED, DELIVERED, CANCELED",
	},
}

// Normalize trims text fields and applies the CREATED status default.
func (f OrderFormData) Normalize() OrderFormData {
	f.ProductName = strings.TrimSpace(f.ProductName)
	f.CustomerName = strings.TrimSpace(f.CustomerName)
	f.DeliveryAddress = strings.TrimSpace(f.DeliveryAddress)
	f.Status = Status(strings.TrimSpace(string(f.Status)))
	if f.Status == "" {
		f.Status = StatusCreated
	}
	return f
}

// Validate applies the form rules. It returns a *ValidationError listing
// every failing field, or nil.
func (f OrderFormData) Validate() error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewValidationError(StoreField, err.Error())
	}

	ve := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		if _, seen := ve.Fields[fe.Field()]; seen {
			continue
		}
		msg, ok := fieldMessages[fe.Field()][fe.Tag()]
		if !ok {
			msg = fe.Field() + " is invalid"
		}
		ve.Fields[fe.Field()] = msg
	}
	return ve
}
