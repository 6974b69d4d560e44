package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/gradeforge/gradeforge-api/internal/models"
)

const balanceColumns = "user_id, tokens_remaining, tokens_per_month, plan_type, last_reset_at, next_reset_at, updated_at"

func balanceRows(remaining int, plan models.PlanType) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"user_id", "tokens_remaining", "tokens_per_month", "plan_type", "last_reset_at", "next_reset_at", "updated_at"}).
		AddRow("user-1", remaining, plan.MonthlyTokens(), plan, now, now.AddDate(0, 1, 0), now)
}

func TestTokenRepositoryGetBalanceInitialisesFreePlan(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + balanceColumns + " FROM token_balances WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO token_balances")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	balance, err := repo.GetBalance(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, models.PlanFree, balance.PlanType)
	require.Equal(t, models.PlanFree.MonthlyTokens(), balance.TokensRemaining)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryAdjustBelowZero(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE token_balances SET tokens_remaining = tokens_remaining + $2, updated_at = $3 WHERE user_id = $1 AND tokens_remaining + $2 >= 0")).
		WithArgs("user-1", -50, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Adjust(context.Background(), "user-1", -50, models.TokenEntryAdjustment, nil)
	require.ErrorIs(t, err, ErrInsufficientTokens)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryAdjustRecordsLedger(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE token_balances SET tokens_remaining = tokens_remaining + $2")).
		WithArgs("user-1", 25, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + balanceColumns + " FROM token_balances WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnRows(balanceRows(55, models.PlanBasic))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO token_ledger")).
		WithArgs(sqlmock.AnyArg(), "user-1", models.TokenEntryAdjustment, 25, 55, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	balance, err := repo.Adjust(context.Background(), "user-1", 25, models.TokenEntryAdjustment, nil)
	require.NoError(t, err)
	require.Equal(t, 55, balance.TokensRemaining)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryUpgradePlan(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE token_balances SET plan_type = $2, tokens_per_month = $3, tokens_remaining = $3")).
		WithArgs("user-1", models.PlanPro, 300, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + balanceColumns + " FROM token_balances WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnRows(balanceRows(300, models.PlanPro))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO token_ledger")).
		WithArgs(sqlmock.AnyArg(), "user-1", models.TokenEntryUpgrade, 300, 300, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	balance, err := repo.UpgradePlan(context.Background(), "user-1", models.PlanPro)
	require.NoError(t, err)
	require.Equal(t, models.PlanPro, balance.PlanType)
	require.Equal(t, 300, balance.TokensRemaining)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryReset(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE token_balances SET tokens_remaining = tokens_per_month, last_reset_at = $2, next_reset_at = $3, updated_at = $2 WHERE user_id = $1")).
		WithArgs("user-1", now, now.AddDate(0, 1, 0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + balanceColumns + " FROM token_balances WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnRows(balanceRows(100, models.PlanBasic))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO token_ledger")).
		WithArgs(sqlmock.AnyArg(), "user-1", models.TokenEntryReset, 0, 100, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Reset(context.Background(), "user-1", now))
	require.NoError(t, mock.ExpectationsWereMet())
}
