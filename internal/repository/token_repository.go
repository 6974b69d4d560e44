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

// TokenRepository persists token balances and the ledger history.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository constructs the repository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// GetBalance returns the balance row for a user, creating a FREE-plan row on
// first touch.
func (r *TokenRepository) GetBalance(ctx context.Context, userID string) (*models.TokenBalance, error) {
	const query = `SELECT user_id, tokens_remaining, tokens_per_month, plan_type, last_reset_at, next_reset_at, updated_at FROM token_balances WHERE user_id = $1`
	var balance models.TokenBalance
	err := r.db.GetContext(ctx, &balance, query, userID)
	if err == nil {
		return &balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get token balance: %w", err)
	}

	now := time.Now().UTC()
	balance = models.TokenBalance{
		UserID:          userID,
		TokensRemaining: models.PlanFree.MonthlyTokens(),
		TokensPerMonth:  models.PlanFree.MonthlyTokens(),
		PlanType:        models.PlanFree,
		LastResetAt:     now,
		NextResetAt:     now.AddDate(0, 1, 0),
		UpdatedAt:       now,
	}
	const insert = `INSERT INTO token_balances (user_id, tokens_remaining, tokens_per_month, plan_type, last_reset_at, next_reset_at, updated_at)
VALUES (:user_id, :tokens_remaining, :tokens_per_month, :plan_type, :last_reset_at, :next_reset_at, :updated_at)
ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, insert, balance); err != nil {
		return nil, fmt.Errorf("init token balance: %w", err)
	}
	return &balance, nil
}

// History returns the most recent ledger entries for a user.
func (r *TokenRepository) History(ctx context.Context, userID string, limit int) ([]models.TokenLedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	const query = `SELECT id, user_id, kind, amount, balance_after, reference, created_at FROM token_ledger WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	var entries []models.TokenLedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, userID, limit); err != nil {
		return nil, fmt.Errorf("token history: %w", err)
	}
	return entries, nil
}

// Adjust applies a signed delta to the balance and records a ledger entry.
// A negative adjustment that would go below zero fails with
// ErrInsufficientTokens and leaves the balance untouched.
func (r *TokenRepository) Adjust(ctx context.Context, userID string, delta int, kind models.TokenEntryKind, reference *string) (*models.TokenBalance, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin adjust tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		`UPDATE token_balances SET tokens_remaining = tokens_remaining + $2, updated_at = $3 WHERE user_id = $1 AND tokens_remaining + $2 >= 0`,
		userID, delta, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("adjust balance: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return nil, ErrInsufficientTokens
	}

	balance, err := recordLedgerEntry(ctx, tx, userID, delta, kind, reference)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit adjust tx: %w", err)
	}
	return balance, nil
}

// UpgradePlan switches the plan and grants the new monthly quota immediately.
func (r *TokenRepository) UpgradePlan(ctx context.Context, userID string, plan models.PlanType) (*models.TokenBalance, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upgrade tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	tokens := plan.MonthlyTokens()
	if _, err := tx.ExecContext(ctx,
		`UPDATE token_balances SET plan_type = $2, tokens_per_month = $3, tokens_remaining = $3, last_reset_at = $4, next_reset_at = $5, updated_at = $4 WHERE user_id = $1`,
		userID, plan, tokens, now, now.AddDate(0, 1, 0)); err != nil {
		return nil, fmt.Errorf("upgrade plan: %w", err)
	}

	reference := string(plan)
	balance, err := recordLedgerEntry(ctx, tx, userID, tokens, models.TokenEntryUpgrade, &reference)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upgrade tx: %w", err)
	}
	return balance, nil
}

// ListDueForReset returns balances whose monthly reset is overdue.
func (r *TokenRepository) ListDueForReset(ctx context.Context, now time.Time, limit int) ([]models.TokenBalance, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT user_id, tokens_remaining, tokens_per_month, plan_type, last_reset_at, next_reset_at, updated_at FROM token_balances WHERE next_reset_at <= $1 ORDER BY next_reset_at ASC LIMIT $2`
	var balances []models.TokenBalance
	if err := r.db.SelectContext(ctx, &balances, query, now, limit); err != nil {
		return nil, fmt.Errorf("list balances due for reset: %w", err)
	}
	return balances, nil
}

// Reset restores a balance to its monthly quota and records the ledger entry.
func (r *TokenRepository) Reset(ctx context.Context, userID string, now time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE token_balances SET tokens_remaining = tokens_per_month, last_reset_at = $2, next_reset_at = $3, updated_at = $2 WHERE user_id = $1`,
		userID, now, now.AddDate(0, 1, 0)); err != nil {
		return fmt.Errorf("reset balance: %w", err)
	}

	if _, err := recordLedgerEntry(ctx, tx, userID, 0, models.TokenEntryReset, nil); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset tx: %w", err)
	}
	return nil
}

func recordLedgerEntry(ctx context.Context, tx *sqlx.Tx, userID string, amount int, kind models.TokenEntryKind, reference *string) (*models.TokenBalance, error) {
	const balanceQuery = `SELECT user_id, tokens_remaining, tokens_per_month, plan_type, last_reset_at, next_reset_at, updated_at FROM token_balances WHERE user_id = $1`
	var balance models.TokenBalance
	if err := tx.GetContext(ctx, &balance, balanceQuery, userID); err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO token_ledger (id, user_id, kind, amount, balance_after, reference, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), userID, kind, amount, balance.TokensRemaining, reference, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("record ledger entry: %w", err)
	}
	return &balance, nil
}
