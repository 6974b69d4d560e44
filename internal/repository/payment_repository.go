package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/gradeforge/gradeforge-api/internal/models"
)

const paymentColumns = `id, user_id, plan_type, base_amount, final_amount, status, reject_reason, expires_at, resolved_at, resolved_by, created_at`

// uniqueViolation is the Postgres error code for unique constraint breaches.
const uniqueViolation = "23505"

// PaymentRepository persists manual bank-transfer transactions. A partial
// unique index on final_amount over WAITING_PAYMENT rows backs the
// amount-uniqueness invariant.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a WAITING_PAYMENT transaction, retrying the random decimal
// suffix until final_amount is unique among currently pending transactions.
func (r *PaymentRepository) Create(ctx context.Context, tx *models.PaymentTransaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.Status = models.PaymentWaiting
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO payment_transactions (id, user_id, plan_type, base_amount, final_amount, status, reject_reason, expires_at, resolved_at, resolved_by, created_at)
VALUES (:id, :user_id, :plan_type, :base_amount, :final_amount, :status, :reject_reason, :expires_at, :resolved_at, :resolved_by, :created_at)`

	for attempt := 0; attempt < 10; attempt++ {
		tx.FinalAmount = tx.BaseAmount + int64(rand.Intn(999)+1)
		_, err := r.db.NamedExecContext(ctx, query, tx)
		if err == nil {
			return nil
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			continue
		}
		return fmt.Errorf("create payment transaction: %w", err)
	}
	return fmt.Errorf("create payment transaction: could not allocate unique amount")
}

// GetByID returns a transaction by its identifier.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE id = $1`
	var tx models.PaymentTransaction
	if err := r.db.GetContext(ctx, &tx, query, id); err != nil {
		return nil, fmt.Errorf("get payment transaction: %w", err)
	}
	return &tx, nil
}

// ListByStatus returns transactions in a given status, newest first.
func (r *PaymentRepository) ListByStatus(ctx context.Context, status models.PaymentStatus, limit int) ([]models.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE status = $1 ORDER BY created_at DESC LIMIT $2`
	var txs []models.PaymentTransaction
	if err := r.db.SelectContext(ctx, &txs, query, status, limit); err != nil {
		return nil, fmt.Errorf("list payment transactions: %w", err)
	}
	return txs, nil
}

// Resolve flips a WAITING_PAYMENT transaction to a terminal status. The
// transition is one-way: a transaction already resolved matches no row.
func (r *PaymentRepository) Resolve(ctx context.Context, id string, status models.PaymentStatus, resolvedBy string, rejectReason *string) error {
	const query = `UPDATE payment_transactions SET status = $2, resolved_at = $3, resolved_by = $4, reject_reason = $5 WHERE id = $1 AND status = 'WAITING_PAYMENT'`
	result, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC(), resolvedBy, rejectReason)
	if err != nil {
		return fmt.Errorf("resolve payment transaction: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrStateConflict
	}
	return nil
}

// ExpireDue sweeps WAITING_PAYMENT transactions past their expiry window.
func (r *PaymentRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE payment_transactions SET status = 'EXPIRED', resolved_at = $1 WHERE status = 'WAITING_PAYMENT' AND expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire payment transactions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire payment transactions: %w", err)
	}
	return affected, nil
}
