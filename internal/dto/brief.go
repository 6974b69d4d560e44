package dto

import "github.com/gradeforge/gradeforge-api/internal/models"

// BriefRequest captures create/update payloads for assignment briefs.
type BriefRequest struct {
	Title          string             `json:"title" binding:"required"`
	Scenario       string             `json:"scenario" binding:"required"`
	Level          int                `json:"level" binding:"required,min=1,max=5"`
	AllowedGrades  []string           `json:"allowedGrades" binding:"required,min=1"`
	RequiredInputs models.InputSchema `json:"requiredInputs"`
}

// BriefResponse is the API projection of a brief.
type BriefResponse struct {
	ID             string             `json:"id"`
	Title          string             `json:"title"`
	Scenario       string             `json:"scenario"`
	Level          int                `json:"level"`
	AllowedGrades  []string           `json:"allowedGrades"`
	RequiredInputs models.InputSchema `json:"requiredInputs"`
}
