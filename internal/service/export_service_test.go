package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradeforge/gradeforge-api/internal/models"
	appErrors "github.com/gradeforge/gradeforge-api/pkg/errors"
	"github.com/gradeforge/gradeforge-api/pkg/storage"
)

type ledgerStub struct {
	entries []models.TokenLedgerEntry
}

func (s *ledgerStub) History(_ context.Context, userID string, limit int) ([]models.TokenLedgerEntry, error) {
	var out []models.TokenLedgerEntry
	for _, e := range s.entries {
		if e.UserID != userID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func newExportServiceForTest(t *testing.T, store *lifecycleStub, ledger *ledgerStub) *ExportService {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	return NewExportService(store, ledger, files, signer, cfg, nil, nil, nil)
}

func seedCompletedAssignment(store *lifecycleStub) *models.Assignment {
	content := "# Unit 1 Coursework\n\n## Introduction\n\nThe company operates in retail.\n\n- Point one\n- Point two\n"
	a := &models.Assignment{
		ID:          "assignment-1",
		UserID:      "student-1",
		Status:      models.AssignmentCompleted,
		TargetGrade: models.GradeMerit,
		Content:     &content,
	}
	store.assignments[a.ID] = a
	return a
}

func TestExportAssignmentProducesSignedLink(t *testing.T) {
	store := newLifecycleStub()
	seedCompletedAssignment(store)
	svc := newExportServiceForTest(t, store, &ledgerStub{})

	res, err := svc.ExportAssignment(context.Background(), "assignment-1", "student-1", models.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, "assignment-1", res.AssignmentID)
	assert.True(t, strings.HasPrefix(res.URL, "/api/v1/documents/download?token="))
	assert.True(t, res.ExpiresAt.After(time.Now()))

	file, err := svc.OpenDocument(res.Token)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck

	payload, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(payload), "%PDF"))
}

func TestExportAssignmentRequiresCompletedState(t *testing.T) {
	store := newLifecycleStub()
	a := seedCompletedAssignment(store)
	a.Status = models.AssignmentGenerating
	svc := newExportServiceForTest(t, store, &ledgerStub{})

	_, err := svc.ExportAssignment(context.Background(), "assignment-1", "student-1", models.RoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestExportAssignmentEnforcesOwnership(t *testing.T) {
	store := newLifecycleStub()
	seedCompletedAssignment(store)
	svc := newExportServiceForTest(t, store, &ledgerStub{})

	_, err := svc.ExportAssignment(context.Background(), "assignment-1", "student-2", models.RoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.ExportAssignment(context.Background(), "assignment-1", "admin-1", models.RoleAdmin)
	require.NoError(t, err)
}

func TestExportAssignmentUnknown(t *testing.T) {
	store := newLifecycleStub()
	svc := newExportServiceForTest(t, store, &ledgerStub{})

	_, err := svc.ExportAssignment(context.Background(), "missing", "student-1", models.RoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestOpenDocumentRejectsBadToken(t *testing.T) {
	store := newLifecycleStub()
	svc := newExportServiceForTest(t, store, &ledgerStub{})

	_, err := svc.OpenDocument("not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestExportLedgerCSV(t *testing.T) {
	ref := "assignment-1"
	ledger := &ledgerStub{entries: []models.TokenLedgerEntry{
		{ID: "entry-1", UserID: "student-1", Kind: models.TokenEntryDebit, Amount: -15, BalanceAfter: 15, Reference: &ref, CreatedAt: time.Now()},
		{ID: "entry-2", UserID: "student-1", Kind: models.TokenEntryReset, Amount: 30, BalanceAfter: 30, CreatedAt: time.Now()},
		{ID: "entry-3", UserID: "student-2", Kind: models.TokenEntryDebit, Amount: -10, BalanceAfter: 20, CreatedAt: time.Now()},
	}}
	svc := newExportServiceForTest(t, newLifecycleStub(), ledger)

	payload, err := svc.ExportLedgerCSV(context.Background(), "student-1", 50)
	require.NoError(t, err)

	text := string(payload)
	lines := strings.Split(strings.TrimSpace(text), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,kind,amount,balance_after,reference,created_at", lines[0])
	assert.Contains(t, text, "entry-1")
	assert.Contains(t, text, "entry-2")
	assert.NotContains(t, text, "entry-3")
}
