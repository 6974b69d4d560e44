package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/gradeforge/gradeforge-api/internal/models"
)

func TestGenerationJobRepositoryAdvanceProgress(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE generation_jobs SET status = $2, progress = $3, current_stage = $4, current_word_count = $5")).
		WithArgs("job-1", models.JobRunning, 40, "writing", 1100).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AdvanceProgress(context.Background(), "job-1", models.JobRunning, 40, "writing", 1100))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationJobRepositoryAdvanceProgressRegression(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	// Lower progress matches no row because of the progress <= $3 guard.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE generation_jobs SET status = $2, progress = $3")).
		WithArgs("job-1", models.JobRunning, 10, "planning", 0).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AdvanceProgress(context.Background(), "job-1", models.JobRunning, 10, "planning", 0)
	require.ErrorIs(t, err, ErrStateConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationJobRepositoryMarkFailedTerminalOnce(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE generation_jobs SET status = 'FAILED', error_message = $2, finished_at = $3 WHERE id = $1 AND status NOT IN ('COMPLETED', 'FAILED')")).
		WithArgs("job-1", "model backend unavailable", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkFailed(context.Background(), "job-1", "model backend unavailable"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE generation_jobs SET status = 'FAILED'")).
		WithArgs("job-1", "second failure", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.MarkFailed(context.Background(), "job-1", "second failure")
	require.ErrorIs(t, err, ErrStateConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationJobRepositoryListStale(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	rows := sqlmock.NewRows([]string{"id", "assignment_id", "status", "progress", "current_stage", "current_word_count", "target_word_count", "error_message", "superseded", "created_at", "finished_at"}).
		AddRow("job-1", "assignment-1", "PENDING", 0, "", 0, 2500, nil, false, time.Now().Add(-time.Hour), nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM generation_jobs WHERE status = 'PENDING' AND superseded = FALSE AND created_at < $1 ORDER BY created_at ASC LIMIT $2")).
		WithArgs(sqlmock.AnyArg(), 20).
		WillReturnRows(rows)

	jobs, err := repo.ListStale(context.Background(), time.Now(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, models.JobPending, jobs[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
