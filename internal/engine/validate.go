package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"anchor-backend/internal/apperr"
	"anchor-backend/internal/registry"
)

// ValidateFields checks a payload of field-name -> value pairs against the
// entity definition. On create (isUpdate=false) every required field must be
// present and non-empty; on update partial payloads are legal. Nil values
// are always skipped so partial updates can clear nothing by accident.
// Validation never short-circuits: all errors are accumulated so a caller
// can show every problem at once.
func ValidateFields(entity *registry.Entity, payload map[string]any, isUpdate bool) []apperr.ErrorDetail {
	var errs []apperr.ErrorDetail

	if !isUpdate {
		for _, f := range entity.Fields {
			if !f.Required {
				continue
			}
			v, ok := payload[f.Name]
			if !ok || v == nil || isEmptyString(v) {
				errs = append(errs, apperr.ErrorDetail{
					Field:   f.Name,
					Rule:    "required",
					Message: fmt.Sprintf("Field %s is required", f.Name),
				})
			}
		}
	}

	for name, value := range payload {
		if value == nil {
			continue
		}
		f := entity.GetField(name)
		if f == nil {
			// Unknown keys are rejected by the engine before validation;
			// skipping here keeps the validator a pure type check.
			continue
		}
		if detail := validateType(f, value); detail != nil {
			errs = append(errs, *detail)
		}
	}

	return errs
}

func validateType(f *registry.Field, value any) *apperr.ErrorDetail {
	switch f.Type {
	case registry.FieldNumber:
		if _, ok := toFiniteNumber(value); !ok {
			return &apperr.ErrorDetail{
				Field:   f.Name,
				Rule:    "type",
				Message: fmt.Sprintf("Field %s must be a number", f.Name),
			}
		}

	case registry.FieldBoolean:
		if _, ok := value.(bool); !ok {
			return &apperr.ErrorDetail{
				Field:   f.Name,
				Rule:    "type",
				Message: fmt.Sprintf("Field %s must be true or false", f.Name),
			}
		}

	case registry.FieldSelect:
		s, ok := value.(string)
		if !ok || !f.HasOption(s) {
			return &apperr.ErrorDetail{
				Field:   f.Name,
				Rule:    "option",
				Message: fmt.Sprintf("Field %s must be one of the declared options", f.Name),
			}
		}

	case registry.FieldMultiSelect:
		items, ok := toStringSlice(value)
		if !ok {
			return &apperr.ErrorDetail{
				Field:   f.Name,
				Rule:    "type",
				Message: fmt.Sprintf("Field %s must be an array", f.Name),
			}
		}
		for _, item := range items {
			if !f.HasOption(item) {
				return &apperr.ErrorDetail{
					Field:   f.Name,
					Rule:    "option",
					Message: fmt.Sprintf("Field %s contains a value outside the declared options", f.Name),
				}
			}
		}
	}

	// All other types (text, email, url, date, json, ...) pass through;
	// format validation for those is a caller responsibility.
	return nil
}

func isEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// toFiniteNumber coerces JSON numbers and numeric strings, rejecting
// NaN and infinities.
func toFiniteNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toStringSlice(v any) ([]string, bool) {
	switch items := v.(type) {
	case []string:
		return items, true
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
