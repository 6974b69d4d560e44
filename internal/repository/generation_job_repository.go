package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gradeforge/gradeforge-api/internal/models"
)

const jobColumns = `id, assignment_id, status, progress, current_stage, current_word_count, target_word_count, error_message, superseded, created_at, finished_at`

// GenerationJobRepository persists generation job attempts.
type GenerationJobRepository struct {
	db *sqlx.DB
}

// NewGenerationJobRepository constructs the repository.
func NewGenerationJobRepository(db *sqlx.DB) *GenerationJobRepository {
	return &GenerationJobRepository{db: db}
}

// GetByID returns a job row by its identifier.
func (r *GenerationJobRepository) GetByID(ctx context.Context, id string) (*models.GenerationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE id = $1`
	var job models.GenerationJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, fmt.Errorf("get generation job: %w", err)
	}
	return &job, nil
}

// GetActiveByAssignment returns the non-superseded job for an assignment.
func (r *GenerationJobRepository) GetActiveByAssignment(ctx context.Context, assignmentID string) (*models.GenerationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE assignment_id = $1 AND superseded = FALSE ORDER BY created_at DESC LIMIT 1`
	var job models.GenerationJob
	if err := r.db.GetContext(ctx, &job, query, assignmentID); err != nil {
		return nil, fmt.Errorf("get active generation job: %w", err)
	}
	return &job, nil
}

// AdvanceProgress moves a running job forward. The guard keeps progress
// monotonic at the storage layer: a regressive update matches no row.
func (r *GenerationJobRepository) AdvanceProgress(ctx context.Context, id string, status models.JobStatus, progress int, stage string, wordCount int) error {
	const query = `UPDATE generation_jobs SET status = $2, progress = $3, current_stage = $4, current_word_count = $5
WHERE id = $1 AND progress <= $3 AND status NOT IN ('COMPLETED', 'FAILED')`
	result, err := r.db.ExecContext(ctx, query, id, status, progress, stage, wordCount)
	if err != nil {
		return fmt.Errorf("advance job progress: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrStateConflict
	}
	return nil
}

// MarkFailed records a terminal failure on the job row.
func (r *GenerationJobRepository) MarkFailed(ctx context.Context, id, errorMessage string) error {
	const query = `UPDATE generation_jobs SET status = 'FAILED', error_message = $2, finished_at = $3 WHERE id = $1 AND status NOT IN ('COMPLETED', 'FAILED')`
	result, err := r.db.ExecContext(ctx, query, id, errorMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrStateConflict
	}
	return nil
}

// ListByAssignment returns job history for an assignment, newest first.
func (r *GenerationJobRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.GenerationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE assignment_id = $1 ORDER BY created_at DESC`
	var jobs []models.GenerationJob
	if err := r.db.SelectContext(ctx, &jobs, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list generation jobs: %w", err)
	}
	return jobs, nil
}

// ListStale returns PENDING jobs older than the cutoff (cold start recovery).
func (r *GenerationJobRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]models.GenerationJob, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE status = 'PENDING' AND superseded = FALSE AND created_at < $1 ORDER BY created_at ASC LIMIT $2`
	var jobs []models.GenerationJob
	if err := r.db.SelectContext(ctx, &jobs, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list stale generation jobs: %w", err)
	}
	return jobs, nil
}
