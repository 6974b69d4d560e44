package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// TargetGrade is the quality tier requested for generated coursework.
type TargetGrade string

const (
	GradePass        TargetGrade = "PASS"
	GradeMerit       TargetGrade = "MERIT"
	GradeDistinction TargetGrade = "DISTINCTION"
)

// FieldKind enumerates the supported student input field variants.
type FieldKind string

const (
	FieldText        FieldKind = "text"
	FieldTextarea    FieldKind = "textarea"
	FieldNumber      FieldKind = "number"
	FieldBoolean     FieldKind = "boolean"
	FieldSelect      FieldKind = "select"
	FieldMultiselect FieldKind = "multiselect"
	FieldArray       FieldKind = "array"
)

// InputFieldDefinition describes one field of a brief's required-input schema.
// Constraint fields apply per kind: MinLength/MaxLength to text kinds,
// Options to select kinds.
type InputFieldDefinition struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Kind      FieldKind `json:"kind"`
	Required  bool      `json:"required"`
	MinLength int       `json:"minLength,omitempty"`
	MaxLength int       `json:"maxLength,omitempty"`
	Options   []string  `json:"options,omitempty"`
}

// InputSchema is the ordered list of field definitions, stored as JSONB.
type InputSchema []InputFieldDefinition

// Value marshals the schema for persistence.
func (s InputSchema) Value() (driver.Value, error) {
	if s == nil {
		s = InputSchema{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSONB payloads into the schema.
func (s *InputSchema) Scan(value interface{}) error {
	return scanJSON(value, s, "InputSchema")
}

// Brief is a tutor-authored assignment template: scenario text plus the
// schema of inputs students must supply before generation unlocks.
type Brief struct {
	ID             string         `db:"id" json:"id"`
	Title          string         `db:"title" json:"title"`
	Scenario       string         `db:"scenario" json:"scenario"`
	Level          int            `db:"level" json:"level"`
	AllowedGrades  pq.StringArray `db:"allowed_grades" json:"allowed_grades"`
	RequiredInputs InputSchema    `db:"required_inputs" json:"required_inputs"`
	CreatedBy      string         `db:"created_by" json:"created_by"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// AllowsGrade reports whether the brief supports the requested target grade.
func (b *Brief) AllowsGrade(grade TargetGrade) bool {
	if len(b.AllowedGrades) == 0 {
		return grade == GradePass || grade == GradeMerit || grade == GradeDistinction
	}
	for _, g := range b.AllowedGrades {
		if TargetGrade(g) == grade {
			return true
		}
	}
	return false
}

func scanJSON(value interface{}, dest interface{}, label string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, label)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", label, err)
	}
	return nil
}
