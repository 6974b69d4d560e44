package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gradeforge/gradeforge-api/internal/models"
)

const briefColumns = `id, title, scenario, level, allowed_grades, required_inputs, created_by, created_at, updated_at`

// BriefRepository persists assignment briefs.
type BriefRepository struct {
	db *sqlx.DB
}

// NewBriefRepository constructs the repository.
func NewBriefRepository(db *sqlx.DB) *BriefRepository {
	return &BriefRepository{db: db}
}

// Create inserts a new brief.
func (r *BriefRepository) Create(ctx context.Context, brief *models.Brief) error {
	if brief.ID == "" {
		brief.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if brief.CreatedAt.IsZero() {
		brief.CreatedAt = now
	}
	brief.UpdatedAt = now
	const query = `INSERT INTO briefs (id, title, scenario, level, allowed_grades, required_inputs, created_by, created_at, updated_at)
VALUES (:id, :title, :scenario, :level, :allowed_grades, :required_inputs, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, brief); err != nil {
		return fmt.Errorf("create brief: %w", err)
	}
	return nil
}

// GetByID returns a brief by identifier.
func (r *BriefRepository) GetByID(ctx context.Context, id string) (*models.Brief, error) {
	query := `SELECT ` + briefColumns + ` FROM briefs WHERE id = $1`
	var brief models.Brief
	if err := r.db.GetContext(ctx, &brief, query, id); err != nil {
		return nil, fmt.Errorf("get brief: %w", err)
	}
	return &brief, nil
}

// List returns all briefs ordered by recency.
func (r *BriefRepository) List(ctx context.Context, limit int) ([]models.Brief, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + briefColumns + ` FROM briefs ORDER BY created_at DESC LIMIT $1`
	var briefs []models.Brief
	if err := r.db.SelectContext(ctx, &briefs, query, limit); err != nil {
		return nil, fmt.Errorf("list briefs: %w", err)
	}
	return briefs, nil
}

// Update rewrites the mutable brief fields. Existing assignments keep their
// snapshots; edits only affect assignments created afterwards.
func (r *BriefRepository) Update(ctx context.Context, brief *models.Brief) error {
	brief.UpdatedAt = time.Now().UTC()
	const query = `UPDATE briefs SET title = :title, scenario = :scenario, level = :level, allowed_grades = :allowed_grades, required_inputs = :required_inputs, updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, brief)
	if err != nil {
		return fmt.Errorf("update brief: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrStateConflict
	}
	return nil
}

// Delete removes a brief.
func (r *BriefRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM briefs WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete brief: %w", err)
	}
	return nil
}
