package ledger

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ukydev/vehicle-ledger/internal/db"
	"github.com/ukydev/vehicle-ledger/internal/models"
)

// newValidator returns a validator that reports json field names and knows
// the "finite" rule for floats.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("finite", isFinite); err != nil {
		panic(err)
	}
	v.RegisterStructValidation(triggerValue, models.NextService{})
	return v
}

// triggerValue rejects trigger values that cannot be read for their type.
// Unknown types are left to the oneof rule on Type.
func triggerValue(sl validator.StructLevel) {
	n := sl.Current().Interface().(models.NextService)
	if n.Type != models.TriggerDate && n.Type != models.TriggerOdometer {
		return
	}
	if err := n.Check(); err != nil {
		sl.ReportError(n.Value, "value", "Value", "trigger", err.Error())
	}
}

func isFinite(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Float32, reflect.Float64:
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return true
	}
}

// Validate checks a record or document and converts the first failure into
// a db.ValidationError.
func (l *Ledger) Validate(v any) error {
	err := l.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return db.NewValidationError("", err.Error())
	}
	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	return db.NewValidationError(field, describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "finite":
		return "must be a finite number"
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "min", "max":
		return fmt.Sprintf("must be %s %s", map[string]string{"min": "at least", "max": "at most"}[fe.Tag()], fe.Param())
	case "trigger":
		return fe.Param()
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
