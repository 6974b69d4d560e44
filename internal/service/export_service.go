package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/gradeforge/gradeforge-api/internal/dto"
	"github.com/gradeforge/gradeforge-api/internal/models"
	"github.com/gradeforge/gradeforge-api/internal/repository"
	appErrors "github.com/gradeforge/gradeforge-api/pkg/errors"
	"github.com/gradeforge/gradeforge-api/pkg/export"
	"github.com/gradeforge/gradeforge-api/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type pdfRenderer interface {
	Render(content, footer string) ([]byte, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type ledgerReader interface {
	History(ctx context.Context, userID string, limit int) ([]models.TokenLedgerEntry, error)
}

type assignmentReader interface {
	GetByID(ctx context.Context, id string) (*models.Assignment, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportService renders completed coursework into downloadable PDFs and the
// token ledger into CSV, handing out HMAC-signed download links.
type ExportService struct {
	assignments assignmentReader
	ledger      ledgerReader
	storage     fileStorage
	pdf         pdfRenderer
	csv         csvRenderer
	signer      *storage.SignedURLSigner
	logger      *zap.Logger
	cfg         ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(assignments assignmentReader, ledger ledgerReader, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, pdf pdfRenderer, csv csvRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	return &ExportService{
		assignments: assignments,
		ledger:      ledger,
		storage:     store,
		pdf:         pdf,
		csv:         csv,
		signer:      signer,
		logger:      logger,
		cfg:         cfg,
	}
}

// ExportAssignment renders a completed assignment to PDF, stores it, and
// returns a signed download link.
func (s *ExportService) ExportAssignment(ctx context.Context, assignmentID, actorID string, role models.UserRole) (*dto.ExportResponse, error) {
	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if role != models.RoleAdmin && assignment.UserID != actorID {
		return nil, appErrors.ErrForbidden
	}
	if assignment.Status != models.AssignmentCompleted || assignment.Content == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only a completed assignment can be exported")
	}

	footer := fmt.Sprintf("Generated %s · target grade %s", time.Now().UTC().Format("2006-01-02"), assignment.TargetGrade)
	payload, err := s.pdf.Render(*assignment.Content, footer)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render document")
	}

	relPath, err := s.storage.Save(fmt.Sprintf("assignments/%s.pdf", assignment.ID), payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}

	token, expiresAt, err := s.signer.Generate(assignment.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	return &dto.ExportResponse{
		AssignmentID: assignment.ID,
		URL:          fmt.Sprintf("%s/documents/download?token=%s", s.cfg.APIPrefix, token),
		Token:        token,
		ExpiresAt:    expiresAt,
	}, nil
}

// ExportLedgerCSV renders a user's token ledger history as CSV for admin
// reconciliation.
func (s *ExportService) ExportLedgerCSV(ctx context.Context, userID string, limit int) ([]byte, error) {
	entries, err := s.ledger.History(ctx, userID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load token history")
	}
	dataset := export.Dataset{
		Headers: []string{"id", "kind", "amount", "balance_after", "reference", "created_at"},
	}
	for _, e := range entries {
		reference := ""
		if e.Reference != nil {
			reference = *e.Reference
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"id":            e.ID,
			"kind":          string(e.Kind),
			"amount":        strconv.Itoa(e.Amount),
			"balance_after": strconv.Itoa(e.BalanceAfter),
			"reference":     reference,
			"created_at":    e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render ledger csv")
	}
	return payload, nil
}

// OpenDocument validates a signed token and opens the referenced file.
func (s *ExportService) OpenDocument(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download link")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document no longer available")
	}
	return file, nil
}

// StartCleanup boots a ticker that removes expired document files.
func (s *ExportService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
				if err != nil {
					s.logger.Warn("document cleanup failed", zap.Error(err))
					continue
				}
				if len(deleted) > 0 {
					s.logger.Info("removed expired documents", zap.Int("count", len(deleted)))
				}
			}
		}
	}()
}
