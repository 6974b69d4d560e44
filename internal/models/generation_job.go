package models

import "time"

// JobStatus captures generation job lifecycle states.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobRunning    JobStatus = "RUNNING"
	JobHumanizing JobStatus = "HUMANIZING"
	JobAssembling JobStatus = "ASSEMBLING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

// Terminal reports whether the job status is final.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// GenerationJob is a single execution attempt bound to one assignment. An
// assignment has at most one active job; regeneration supersedes old jobs.
type GenerationJob struct {
	ID               string     `db:"id" json:"id"`
	AssignmentID     string     `db:"assignment_id" json:"assignment_id"`
	Status           JobStatus  `db:"status" json:"status"`
	Progress         int        `db:"progress" json:"progress"`
	CurrentStage     string     `db:"current_stage" json:"current_stage"`
	CurrentWordCount int        `db:"current_word_count" json:"current_word_count"`
	TargetWordCount  int        `db:"target_word_count" json:"target_word_count"`
	ErrorMessage     *string    `db:"error_message" json:"error_message,omitempty"`
	Superseded       bool       `db:"superseded" json:"superseded"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	FinishedAt       *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}
