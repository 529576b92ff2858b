package service

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/homeschool-api/pkg/calendar"
)

// NewValidator returns a validator that reports json field names and treats a
// zero calendar.Date as missing, so `required` works on date fields.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		d, ok := field.Interface().(calendar.Date)
		if !ok || d.IsZero() {
			return ""
		}
		return d.String()
	}, calendar.Date{})
	return v
}
