package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AssignmentStatus captures the assignment lifecycle states.
type AssignmentStatus string

const (
	AssignmentDraft      AssignmentStatus = "DRAFT"
	AssignmentGenerating AssignmentStatus = "GENERATING"
	AssignmentCompleted  AssignmentStatus = "COMPLETED"
	AssignmentFailed     AssignmentStatus = "FAILED"
)

// Terminal reports whether the status is a terminal state.
func (s AssignmentStatus) Terminal() bool {
	return s == AssignmentCompleted || s == AssignmentFailed
}

// BriefSnapshot is the immutable copy of the brief taken at assignment
// creation. It is never re-read from the live brief, so regeneration stays
// reproducible even after the brief is edited.
type BriefSnapshot struct {
	BriefID        string      `json:"briefId"`
	Title          string      `json:"title"`
	Scenario       string      `json:"scenario"`
	Level          int         `json:"level"`
	RequiredInputs InputSchema `json:"requiredInputs"`
}

// Value marshals the snapshot for persistence.
func (b BriefSnapshot) Value() (driver.Value, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal brief snapshot: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSONB payloads into the snapshot.
func (b *BriefSnapshot) Scan(value interface{}) error {
	return scanJSON(value, b, "BriefSnapshot")
}

// StudentInputs maps field id to the student-supplied value. Saves replace
// the whole map (last write wins), never merge per field.
type StudentInputs map[string]interface{}

// Value marshals the inputs for persistence.
func (i StudentInputs) Value() (driver.Value, error) {
	if i == nil {
		i = StudentInputs{}
	}
	data, err := json.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("marshal student inputs: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSONB payloads into the inputs map.
func (i *StudentInputs) Scan(value interface{}) error {
	return scanJSON(value, i, "StudentInputs")
}

// Assignment is the central entity: one piece of coursework requested by a
// student against a brief snapshot.
type Assignment struct {
	ID                       string           `db:"id" json:"id"`
	UserID                   string           `db:"user_id" json:"user_id"`
	Status                   AssignmentStatus `db:"status" json:"status"`
	TargetGrade              TargetGrade      `db:"target_grade" json:"target_grade"`
	Language                 string           `db:"language" json:"language"`
	Level                    int              `db:"level" json:"level"`
	BriefSnapshot            BriefSnapshot    `db:"brief_snapshot" json:"brief_snapshot"`
	StudentInputs            StudentInputs    `db:"student_inputs" json:"student_inputs"`
	StudentInputsCompletedAt *time.Time       `db:"student_inputs_completed_at" json:"student_inputs_completed_at,omitempty"`
	Content                  *string          `db:"content" json:"content,omitempty"`
	ErrorMessage             *string          `db:"error_message" json:"error_message,omitempty"`
	ActiveJobID              *string          `db:"active_job_id" json:"active_job_id,omitempty"`
	CreatedAt                time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time        `db:"updated_at" json:"updated_at"`
}

// GenerationUnlocked reports whether required inputs are satisfied: either the
// snapshot demands none, or the completion timestamp is set.
func (a *Assignment) GenerationUnlocked() bool {
	if len(a.BriefSnapshot.RequiredInputs) == 0 {
		return true
	}
	for _, field := range a.BriefSnapshot.RequiredInputs {
		if field.Required {
			return a.StudentInputsCompletedAt != nil
		}
	}
	return true
}

// AssignmentFilter captures list criteria for assignments.
type AssignmentFilter struct {
	UserID   string
	Status   *AssignmentStatus
	Page     int
	PageSize int
}
