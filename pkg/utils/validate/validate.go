// Package validate checks request structs against their `validate` tags and
// reports failures as ValidationFailed errors.
package validate

import (
	"errors"
	"reflect"
	"strings"

	pkgerrors "itsm/pkg/errors"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// Struct validates v. The first failing field becomes the error message and
// every failing field is listed in the details as field -> rule.
func Struct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return pkgerrors.Wrap(err, pkgerrors.ValidationFailed)
	}

	first := fieldErrs[0]
	out := pkgerrors.ValidationError(first.Field(), rule(first))
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = rule(fe)
	}
	return out.WithDetail("fields", fields)
}

func rule(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
