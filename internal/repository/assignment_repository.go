package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gradeforge/gradeforge-api/internal/models"
)

// Sentinel errors for guarded updates, mapped to domain errors by services.
var (
	// ErrInsufficientTokens is returned when a debit would push the balance
	// below zero.
	ErrInsufficientTokens = errors.New("insufficient token balance")
	// ErrStateConflict is returned when a guarded transition matched no row,
	// meaning the entity was not in the expected state.
	ErrStateConflict = errors.New("state conflict")
)

const assignmentColumns = `id, user_id, status, target_grade, language, level, brief_snapshot, student_inputs, student_inputs_completed_at, content, error_message, active_job_id, created_at, updated_at`

// AssignmentRepository persists assignments and owns the transactional
// lifecycle transitions that span assignments, jobs, and the token ledger.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create inserts a new DRAFT assignment.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.Status == "" {
		assignment.Status = models.AssignmentDraft
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now

	const query = `INSERT INTO assignments (id, user_id, status, target_grade, language, level, brief_snapshot, student_inputs, student_inputs_completed_at, content, error_message, active_job_id, created_at, updated_at)
VALUES (:id, :user_id, :status, :target_grade, :language, :level, :brief_snapshot, :student_inputs, :student_inputs_completed_at, :content, :error_message, :active_job_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// GetByID returns an assignment by its identifier.
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1`
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return &assignment, nil
}

// List returns assignments matching the filter with a total count.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	baseQuery := `FROM assignments WHERE 1=1`
	var args []interface{}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		baseQuery += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		baseQuery += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d", assignmentColumns, baseQuery, len(args)-1, len(args))

	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, total, nil
}

// SaveInputs replaces the whole student input map (last write wins). Guarded
// so inputs can only change while the assignment is DRAFT.
func (r *AssignmentRepository) SaveInputs(ctx context.Context, id string, data models.StudentInputs, completedAt *time.Time) error {
	const query = `UPDATE assignments SET student_inputs = $2, student_inputs_completed_at = $3, updated_at = $4 WHERE id = $1 AND status = 'DRAFT'`
	result, err := r.db.ExecContext(ctx, query, id, data, completedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save student inputs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save student inputs: %w", err)
	}
	if affected == 0 {
		return ErrStateConflict
	}
	return nil
}

// BeginGeneration atomically debits tokens, flips the assignment to
// GENERATING, supersedes any previous job, and inserts the new job. Either
// everything commits or nothing does; there is no partial debit.
func (r *AssignmentRepository) BeginGeneration(ctx context.Context, assignmentID, userID string, cost int, job *models.GenerationJob) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin generation tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if cost > 0 {
		result, err := tx.ExecContext(ctx,
			`UPDATE token_balances SET tokens_remaining = tokens_remaining - $2, updated_at = $3 WHERE user_id = $1 AND tokens_remaining >= $2`,
			userID, cost, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("debit tokens: %w", err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return ErrInsufficientTokens
		}

		var balanceAfter int
		if err := tx.GetContext(ctx, &balanceAfter, `SELECT tokens_remaining FROM token_balances WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("read balance after debit: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO token_ledger (id, user_id, kind, amount, balance_after, reference, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.NewString(), userID, models.TokenEntryDebit, -cost, balanceAfter, job.ID, time.Now().UTC()); err != nil {
			return fmt.Errorf("record debit: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE assignments SET status = $2, active_job_id = $3, error_message = NULL, updated_at = $4 WHERE id = $1 AND status = 'DRAFT'`,
		assignmentID, models.AssignmentGenerating, job.ID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("transition assignment: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrStateConflict
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE generation_jobs SET superseded = TRUE WHERE assignment_id = $1 AND superseded = FALSE`,
		assignmentID); err != nil {
		return fmt.Errorf("supersede previous jobs: %w", err)
	}

	if err := insertJob(ctx, tx, job); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit generation tx: %w", err)
	}
	return nil
}

// Regenerate creates a fresh job for a terminal assignment under the same id,
// preserving student inputs. Admin-only; does not debit tokens.
func (r *AssignmentRepository) Regenerate(ctx context.Context, assignmentID string, job *models.GenerationJob) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin regenerate tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		`UPDATE assignments SET status = $2, active_job_id = $3, error_message = NULL, updated_at = $4 WHERE id = $1 AND status IN ('COMPLETED', 'FAILED')`,
		assignmentID, models.AssignmentGenerating, job.ID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("transition assignment: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrStateConflict
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE generation_jobs SET superseded = TRUE WHERE assignment_id = $1 AND superseded = FALSE`,
		assignmentID); err != nil {
		return fmt.Errorf("supersede previous jobs: %w", err)
	}

	if err := insertJob(ctx, tx, job); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit regenerate tx: %w", err)
	}
	return nil
}

// Resolve marks a GENERATING assignment terminal together with its job.
func (r *AssignmentRepository) Resolve(ctx context.Context, assignmentID, jobID string, status models.AssignmentStatus, content, errorMessage *string) error {
	if !status.Terminal() {
		return fmt.Errorf("resolve requires a terminal status, got %s", status)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin resolve tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE assignments SET status = $2, content = COALESCE($3, content), error_message = $4, updated_at = $5 WHERE id = $1 AND status = 'GENERATING'`,
		assignmentID, status, content, errorMessage, now)
	if err != nil {
		return fmt.Errorf("resolve assignment: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrStateConflict
	}

	jobStatus := models.JobCompleted
	if status == models.AssignmentFailed {
		jobStatus = models.JobFailed
	}
	// A failed job keeps its last real progress; only success means 100.
	if _, err := tx.ExecContext(ctx,
		`UPDATE generation_jobs SET status = $2, progress = CASE WHEN $2 = 'COMPLETED' THEN 100 ELSE progress END, error_message = $3, finished_at = $4 WHERE id = $1`,
		jobID, jobStatus, errorMessage, now); err != nil {
		return fmt.Errorf("resolve job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit resolve tx: %w", err)
	}
	return nil
}

// Delete removes assignments by id (admin bulk delete).
func (r *AssignmentRepository) Delete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM assignments WHERE id IN (?)`, ids)
	if err != nil {
		return 0, fmt.Errorf("build delete query: %w", err)
	}
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("delete assignments: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete assignments: %w", err)
	}
	return affected, nil
}

func insertJob(ctx context.Context, tx *sqlx.Tx, job *models.GenerationJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.JobPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO generation_jobs (id, assignment_id, status, progress, current_stage, current_word_count, target_word_count, error_message, superseded, created_at, finished_at)
VALUES (:id, :assignment_id, :status, :progress, :current_stage, :current_word_count, :target_word_count, :error_message, :superseded, :created_at, :finished_at)`
	if _, err := tx.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("insert generation job: %w", err)
	}
	return nil
}

// IsNotFound reports whether an error stems from an empty result set.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
