package dto

import (
	"time"

	"github.com/gradeforge/gradeforge-api/internal/models"
)

// CreateAssignmentRequest captures POST /assignments payload.
type CreateAssignmentRequest struct {
	BriefID     string             `json:"briefId" binding:"required"`
	TargetGrade models.TargetGrade `json:"targetGrade" binding:"required"`
	Language    string             `json:"language"`
}

// SaveInputsRequest replaces the student input map for a draft assignment.
type SaveInputsRequest struct {
	Inputs models.StudentInputs `json:"inputs" binding:"required"`
}

// FieldResultResponse reports a single field's validation outcome.
type FieldResultResponse struct {
	FieldID string `json:"fieldId"`
	Valid   bool   `json:"valid"`
	Reason  string `json:"reason,omitempty"`
}

// InputsValidationResponse summarises completeness after saving inputs.
type InputsValidationResponse struct {
	Complete      bool                  `json:"complete"`
	MissingFields []string              `json:"missingFields,omitempty"`
	Warnings      []FieldResultResponse `json:"warnings,omitempty"`
}

// AssignmentResponse is the API projection of an assignment.
type AssignmentResponse struct {
	ID             string                  `json:"id"`
	Status         models.AssignmentStatus `json:"status"`
	TargetGrade    models.TargetGrade      `json:"targetGrade"`
	Language       string                  `json:"language"`
	Level          int                     `json:"level"`
	Brief          models.BriefSnapshot    `json:"brief"`
	StudentInputs  models.StudentInputs    `json:"studentInputs"`
	InputsComplete bool                    `json:"inputsComplete"`
	Content        *string                 `json:"content,omitempty"`
	ErrorMessage   *string                 `json:"errorMessage,omitempty"`
	ActiveJobID    *string                 `json:"activeJobId,omitempty"`
	CreatedAt      time.Time               `json:"createdAt"`
	UpdatedAt      time.Time               `json:"updatedAt"`
}

// GenerationStartResponse is returned when a generation job is accepted.
type GenerationStartResponse struct {
	JobID           string                  `json:"jobId"`
	AssignmentID    string                  `json:"assignmentId"`
	Status          models.AssignmentStatus `json:"status"`
	TokensRemaining int                     `json:"tokensRemaining"`
}

// JobStatusResponse is the polling projection of a generation job. The
// websocket stream carries the same fields event by event.
type JobStatusResponse struct {
	JobID        string           `json:"jobId"`
	AssignmentID string           `json:"assignmentId"`
	Status       models.JobStatus `json:"status"`
	Progress     int              `json:"progress"`
	Stage        string           `json:"stage"`
	WordCount    int              `json:"wordCount"`
	Content      *string          `json:"content,omitempty"`
	ErrorMessage *string          `json:"errorMessage,omitempty"`
}

// ForceCompleteRequest captures the admin force-complete payload.
type ForceCompleteRequest struct {
	Note string `json:"note"`
}

// BulkAssignmentRequest names assignments for an admin bulk operation.
type BulkAssignmentRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

// BulkAssignmentResponse reports how many assignments were affected.
type BulkAssignmentResponse struct {
	Requested int `json:"requested"`
	Affected  int `json:"affected"`
}
