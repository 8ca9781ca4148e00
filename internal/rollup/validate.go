package rollup

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError points at one invalid field of one record.
type FieldError struct {
	Index int    `json:"index"`
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError is returned when a rollup batch fails boundary checks.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("[%d].%s: %s", f.Index, f.Field, f.Error))
	}
	return "invalid rollups: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report JSON names instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	return v
}

var fieldText = map[string]string{
	"required": "this field is required",
	"max":      "value is too long",
	"finite":   "must be a finite number",
	"gte":      "must not be negative",
}

// Validate checks every record and rejects duplicate outcome IDs.
func Validate(records []Record) error {
	var out []FieldError
	seen := make(map[string]int, len(records))
	for i, r := range records {
		if err := validate.Struct(r); err != nil {
			var verrs validator.ValidationErrors
			if !errors.As(err, &verrs) {
				return err
			}
			for _, fe := range verrs {
				msg, ok := fieldText[fe.Tag()]
				if !ok {
					msg = "failed " + fe.Tag()
				}
				out = append(out, FieldError{Index: i, Field: fe.Field(), Error: msg})
			}
			continue
		}
		if first, dup := seen[r.OutcomeID]; dup {
			out = append(out, FieldError{Index: i, Field: "outcome_id", Error: fmt.Sprintf("duplicate of record %d", first)})
			continue
		}
		seen[r.OutcomeID] = i
	}
	if len(out) > 0 {
		return &ValidationError{Fields: out}
	}
	return nil
}
