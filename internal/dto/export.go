package dto

import "time"

// ExportResponse carries a signed download link for a rendered document.
type ExportResponse struct {
	AssignmentID string    `json:"assignmentId"`
	URL          string    `json:"url"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expiresAt"`
}
