// Package validator checks decoded payloads against their validate tags and
// reports failures by JSON path, e.g. items[0].product_id.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	apperrors "github.com/Swed0ua/Integration-SK-Surve/pkg/errors"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{}, decimal.NullDecimal{})
	return v
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// decimalValue lets numeric rules such as gt and gte compare decimals.
func decimalValue(field reflect.Value) any {
	switch d := field.Interface().(type) {
	case decimal.Decimal:
		return d.InexactFloat64()
	case decimal.NullDecimal:
		if d.Valid {
			return d.Decimal.InexactFloat64()
		}
	}
	return nil
}

// Violation is one failed rule.
type Violation struct {
	Path    string
	Message string
}

// ValidationError lists every rule s failed. It matches
// apperrors.ErrInvalidInput.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	for i, v := range e.Violations {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "field '%s' %s", v.Path, v.Message)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// Fields maps each failing path to its message.
func (e *ValidationError) Fields() map[string]string {
	out := make(map[string]string, len(e.Violations))
	for _, v := range e.Violations {
		out[v.Path] = v.Message
	}
	return out
}

// Validate checks s against its validate tags. Rule failures come back as
// *ValidationError; anything else, such as a non-struct argument, is
// returned as is.
func Validate(s any) error {
	err := validate.Struct(s)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := &ValidationError{Violations: make([]Violation, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Violations = append(out.Violations, Violation{Path: path(fe), Message: message(fe)})
	}
	return out
}

// path drops the root struct name from the namespace.
func path(fe validator.FieldError) string {
	if _, rest, ok := strings.Cut(fe.Namespace(), "."); ok {
		return rest
	}
	return fe.Field()
}

var messages = map[string]string{
	"required": "is required",
	"gt":       "must be greater than %s",
	"gte":      "must be greater than or equal to %s",
	"lt":       "must be less than %s",
	"lte":      "must be less than or equal to %s",
	"oneof":    "must be one of: %s",
	"uuid":     "must be a valid UUID",
	"url":      "must be a valid URL",
}

func message(fe validator.FieldError) string {
	if fe.Tag() == "min" {
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s entries", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	}
	format, ok := messages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
	if strings.Contains(format, "%s") {
		return fmt.Sprintf(format, fe.Param())
	}
	return format
}
