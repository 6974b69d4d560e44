package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/gradeforge/gradeforge-api/internal/models"
)

func TestPaymentRepositoryCreateRetriesOnDuplicateAmount(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	// First suffix collides with a pending transaction, second succeeds.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_transactions")).
		WillReturnError(&pq.Error{Code: pq.ErrorCode(uniqueViolation)})
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_transactions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	tx := &models.PaymentTransaction{
		UserID:     "user-1",
		PlanType:   models.PlanPro,
		BaseAmount: 150000,
		ExpiresAt:  time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), tx))
	require.Equal(t, models.PaymentWaiting, tx.Status)
	require.Greater(t, tx.FinalAmount, tx.BaseAmount)
	require.LessOrEqual(t, tx.FinalAmount, tx.BaseAmount+999)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryResolveApprove(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE payment_transactions SET status = $2, resolved_at = $3, resolved_by = $4, reject_reason = $5 WHERE id = $1 AND status = 'WAITING_PAYMENT'")).
		WithArgs("tx-1", models.PaymentPaid, sqlmock.AnyArg(), "admin-1", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Resolve(context.Background(), "tx-1", models.PaymentPaid, "admin-1", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryResolveIsOneWay(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	reason := "amount mismatch"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payment_transactions SET status = $2")).
		WithArgs("tx-1", models.PaymentRejected, sqlmock.AnyArg(), "admin-1", &reason).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Resolve(context.Background(), "tx-1", models.PaymentRejected, "admin-1", &reason)
	require.ErrorIs(t, err, ErrStateConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryExpireDue(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payment_transactions SET status = 'EXPIRED', resolved_at = $1 WHERE status = 'WAITING_PAYMENT' AND expires_at < $1")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	affected, err := repo.ExpireDue(context.Background(), now)
	require.NoError(t, err)
	require.EqualValues(t, 3, affected)
	require.NoError(t, mock.ExpectationsWereMet())
}
