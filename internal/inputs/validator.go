// Package inputs validates student-supplied values against a brief's
// required-input schema and decides overall completeness.
package inputs

import (
	"strconv"

	"github.com/gradeforge/gradeforge-api/internal/models"
)

// Invalid reasons surfaced per field.
const (
	ReasonRequired    = "required"
	ReasonTooShort    = "too short"
	ReasonTooLong     = "too long"
	ReasonNotNumeric  = "not a number"
	ReasonInvalidType = "invalid type"
	ReasonBadOption   = "value not in options"
)

// FieldResult reports validity for a single field.
type FieldResult struct {
	FieldID string `json:"field_id"`
	Valid   bool   `json:"valid"`
	Reason  string `json:"reason,omitempty"`
}

// Result aggregates per-field validity and overall completeness.
// Completeness depends on required fields only; invalid optional fields are
// reported as warnings and never block generation.
type Result struct {
	Complete      bool          `json:"complete"`
	Fields        []FieldResult `json:"fields"`
	MissingFields []string      `json:"missing_fields,omitempty"`
	Warnings      []FieldResult `json:"warnings,omitempty"`
}

// Validate checks data against the schema field by field.
func Validate(schema models.InputSchema, data models.StudentInputs) Result {
	result := Result{Complete: true}
	for _, def := range schema {
		value, present := data[def.ID]
		if isEmpty(value) {
			present = false
		}

		if !present {
			if def.Required {
				fr := FieldResult{FieldID: def.ID, Valid: false, Reason: ReasonRequired}
				result.Fields = append(result.Fields, fr)
				result.MissingFields = append(result.MissingFields, def.ID)
				result.Complete = false
			}
			continue
		}

		valid, reason := checkField(def, value)
		fr := FieldResult{FieldID: def.ID, Valid: valid, Reason: reason}
		result.Fields = append(result.Fields, fr)
		if valid {
			continue
		}
		if def.Required {
			result.MissingFields = append(result.MissingFields, def.ID)
			result.Complete = false
		} else {
			result.Warnings = append(result.Warnings, fr)
		}
	}
	return result
}

// checkField applies the kind-specific rule to a present, non-empty value.
func checkField(def models.InputFieldDefinition, value interface{}) (bool, string) {
	switch def.Kind {
	case models.FieldText, models.FieldTextarea:
		s, ok := value.(string)
		if !ok {
			return false, ReasonInvalidType
		}
		if def.MinLength > 0 && len(s) < def.MinLength {
			return false, ReasonTooShort
		}
		if def.MaxLength > 0 && len(s) > def.MaxLength {
			return false, ReasonTooLong
		}
		return true, ""
	case models.FieldNumber:
		switch v := value.(type) {
		case float64, int, int64:
			return true, ""
		case string:
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return false, ReasonNotNumeric
			}
			return true, ""
		default:
			return false, ReasonNotNumeric
		}
	case models.FieldSelect:
		s, ok := value.(string)
		if !ok {
			return false, ReasonInvalidType
		}
		if !inOptions(def.Options, s) {
			return false, ReasonBadOption
		}
		return true, ""
	case models.FieldMultiselect:
		items, ok := asStringSlice(value)
		if !ok {
			return false, ReasonInvalidType
		}
		for _, item := range items {
			if !inOptions(def.Options, item) {
				return false, ReasonBadOption
			}
		}
		return true, ""
	case models.FieldBoolean, models.FieldArray:
		// Presence is enough for these kinds.
		return true, ""
	default:
		return true, ""
	}
}

// isEmpty treats nil, empty string, and empty array as absent. A boolean
// false is a present value, not an empty one.
func isEmpty(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []interface{}:
		return len(v) == 0
	case []string:
		return len(v) == 0
	default:
		return false
	}
}

func inOptions(options []string, value string) bool {
	for _, opt := range options {
		if opt == value {
			return true
		}
	}
	return false
}

func asStringSlice(value interface{}) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
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
