package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/gradeforge/gradeforge-api/internal/dto"
	"github.com/gradeforge/gradeforge-api/internal/models"
	"github.com/gradeforge/gradeforge-api/internal/repository"
	appErrors "github.com/gradeforge/gradeforge-api/pkg/errors"
)

type paymentStore interface {
	Create(ctx context.Context, tx *models.PaymentTransaction) error
	GetByID(ctx context.Context, id string) (*models.PaymentTransaction, error)
	ListByStatus(ctx context.Context, status models.PaymentStatus, limit int) ([]models.PaymentTransaction, error)
	Resolve(ctx context.Context, id string, status models.PaymentStatus, resolvedBy string, rejectReason *string) error
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

type planUpgrader interface {
	UpgradePlan(ctx context.Context, userID string, plan models.PlanType) (*dto.TokenBalanceResponse, error)
}

// Plan prices in the smallest currency unit. The unique suffix added at
// creation stays well below the gap between tiers.
var planPrices = map[models.PlanType]int64{
	models.PlanBasic: 49000,
	models.PlanPro:   149000,
	models.PlanMax:   399000,
}

// PaymentServiceConfig tunes the expiry sweep.
type PaymentServiceConfig struct {
	ExpiryWindow  time.Duration
	SweepInterval time.Duration
}

// PaymentService manages manual bank-transfer plan purchases: pending
// transactions with operator-matchable unique amounts, admin approval that
// grants the plan, rejection, and automatic expiry.
type PaymentService struct {
	repo   paymentStore
	tokens planUpgrader
	audit  auditRecorder
	logger *zap.Logger
	cfg    PaymentServiceConfig
}

// NewPaymentService constructs the service.
func NewPaymentService(repo paymentStore, tokens planUpgrader, audit auditRecorder, logger *zap.Logger, cfg PaymentServiceConfig) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ExpiryWindow <= 0 {
		cfg.ExpiryWindow = 2 * time.Hour
	}
	return &PaymentService{repo: repo, tokens: tokens, audit: audit, logger: logger, cfg: cfg}
}

// Create opens a WAITING_PAYMENT transaction with a short expiry window.
func (s *PaymentService) Create(ctx context.Context, userID string, req dto.CreatePaymentRequest) (*dto.PaymentResponse, error) {
	base, ok := planPrices[req.PlanType]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "plan is not purchasable")
	}
	tx := &models.PaymentTransaction{
		UserID:     userID,
		PlanType:   req.PlanType,
		BaseAmount: base,
		ExpiresAt:  time.Now().UTC().Add(s.cfg.ExpiryWindow),
	}
	if err := s.repo.Create(ctx, tx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create payment transaction")
	}
	return paymentResponse(tx), nil
}

// Get returns a transaction, enforcing ownership for non-admins.
func (s *PaymentService) Get(ctx context.Context, id, actorID string, role models.UserRole) (*dto.PaymentResponse, error) {
	tx, err := s.loadTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if role != models.RoleAdmin && tx.UserID != actorID {
		return nil, appErrors.ErrForbidden
	}
	return paymentResponse(tx), nil
}

// ListPending returns WAITING_PAYMENT transactions for the admin review queue.
func (s *PaymentService) ListPending(ctx context.Context, limit int) ([]dto.PaymentResponse, error) {
	txs, err := s.repo.ListByStatus(ctx, models.PaymentWaiting, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending payments")
	}
	out := make([]dto.PaymentResponse, 0, len(txs))
	for i := range txs {
		out = append(out, *paymentResponse(&txs[i]))
	}
	return out, nil
}

// Approve marks a pending transaction PAID and grants the plan and its token
// quota. The transition is irreversible.
func (s *PaymentService) Approve(ctx context.Context, id, adminID string) (*dto.PaymentResponse, error) {
	tx, err := s.loadTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Resolve(ctx, id, models.PaymentPaid, adminID, nil); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "payment is no longer pending")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve payment")
	}
	if _, err := s.tokens.UpgradePlan(ctx, tx.UserID, tx.PlanType); err != nil {
		// Payment is already PAID; the grant must not be lost silently.
		s.logger.Error("payment approved but plan grant failed", zap.String("payment_id", id), zap.String("user_id", tx.UserID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "payment approved but plan grant failed; retry the grant")
	}
	s.recordAudit(ctx, adminID, models.AuditActionApprovePayment, id, map[string]string{"user_id": tx.UserID, "plan": string(tx.PlanType)})
	return s.Get(ctx, id, adminID, models.RoleAdmin)
}

// Reject marks a pending transaction REJECTED with the operator's reason.
func (s *PaymentService) Reject(ctx context.Context, id, adminID, reason string) (*dto.PaymentResponse, error) {
	if err := s.repo.Resolve(ctx, id, models.PaymentRejected, adminID, &reason); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "payment is no longer pending")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject payment")
	}
	s.recordAudit(ctx, adminID, models.AuditActionRejectPayment, id, map[string]string{"reason": reason})
	return s.Get(ctx, id, adminID, models.RoleAdmin)
}

// StartExpirySweep boots the periodic sweep that expires overdue pending
// transactions.
func (s *PaymentService) StartExpirySweep(ctx context.Context) {
	if s.cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.SweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				expired, err := s.repo.ExpireDue(ctx, time.Now().UTC())
				if err != nil {
					s.logger.Warn("payment expiry sweep failed", zap.Error(err))
					continue
				}
				if expired > 0 {
					s.logger.Info("expired overdue payments", zap.Int64("count", expired))
				}
			}
		}
	}()
}

func (s *PaymentService) loadTransaction(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	tx, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment transaction not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment transaction")
	}
	return tx, nil
}

func (s *PaymentService) recordAudit(ctx context.Context, actorID, action, resourceID string, values map[string]string) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(values)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "payment",
		ResourceID: &resourceID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func paymentResponse(tx *models.PaymentTransaction) *dto.PaymentResponse {
	return &dto.PaymentResponse{
		ID:           tx.ID,
		PlanType:     tx.PlanType,
		BaseAmount:   tx.BaseAmount,
		FinalAmount:  tx.FinalAmount,
		Status:       tx.Status,
		RejectReason: tx.RejectReason,
		ExpiresAt:    tx.ExpiresAt,
		CreatedAt:    tx.CreatedAt,
	}
}
