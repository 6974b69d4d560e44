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

type tokenStore interface {
	GetBalance(ctx context.Context, userID string) (*models.TokenBalance, error)
	History(ctx context.Context, userID string, limit int) ([]models.TokenLedgerEntry, error)
	Adjust(ctx context.Context, userID string, delta int, kind models.TokenEntryKind, reference *string) (*models.TokenBalance, error)
	UpgradePlan(ctx context.Context, userID string, plan models.PlanType) (*models.TokenBalance, error)
	ListDueForReset(ctx context.Context, now time.Time, limit int) ([]models.TokenBalance, error)
	Reset(ctx context.Context, userID string, now time.Time) error
}

// TokenServiceConfig tunes caching and the monthly reset sweep.
type TokenServiceConfig struct {
	BalanceCacheTTL time.Duration
	ResetInterval   time.Duration
}

// TokenService fronts the token ledger: balance reads with a short cache,
// history, admin adjustments, plan upgrades, and the monthly reset sweep.
// The balance itself is only ever mutated by the repository; the service
// never computes balances client-side.
type TokenService struct {
	repo   tokenStore
	cache  progressCache
	audit  auditRecorder
	logger *zap.Logger
	cfg    TokenServiceConfig
}

// NewTokenService constructs the service.
func NewTokenService(repo tokenStore, cache progressCache, audit auditRecorder, logger *zap.Logger, cfg TokenServiceConfig) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BalanceCacheTTL <= 0 {
		cfg.BalanceCacheTTL = time.Minute
	}
	return &TokenService{repo: repo, cache: cache, audit: audit, logger: logger, cfg: cfg}
}

// GetBalance returns the authoritative balance, read through a short cache.
func (s *TokenService) GetBalance(ctx context.Context, userID string) (*dto.TokenBalanceResponse, error) {
	key := balanceKey(userID)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key).Result(); err == nil {
			var resp dto.TokenBalanceResponse
			if err := json.Unmarshal([]byte(raw), &resp); err == nil {
				return &resp, nil
			}
		}
	}

	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load token balance")
	}
	resp := balanceResponse(balance)
	if s.cache != nil {
		if data, err := json.Marshal(resp); err == nil {
			if err := s.cache.Set(ctx, key, data, s.cfg.BalanceCacheTTL).Err(); err != nil {
				s.logger.Debug("failed to cache token balance", zap.Error(err))
			}
		}
	}
	return resp, nil
}

// InvalidateBalance drops the cached balance after any mutation elsewhere
// (generation debit, payment approval).
func (s *TokenService) InvalidateBalance(ctx context.Context, userID string) {
	if s.cache != nil {
		s.cache.Del(ctx, balanceKey(userID))
	}
}

// History returns recent ledger entries.
func (s *TokenService) History(ctx context.Context, userID string, limit int) ([]dto.TokenLedgerEntryResponse, error) {
	entries, err := s.repo.History(ctx, userID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load token history")
	}
	out := make([]dto.TokenLedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.TokenLedgerEntryResponse{
			ID:           e.ID,
			Kind:         e.Kind,
			Amount:       e.Amount,
			BalanceAfter: e.BalanceAfter,
			Reference:    e.Reference,
			CreatedAt:    e.CreatedAt,
		})
	}
	return out, nil
}

// Adjust applies an admin-signed delta. A negative delta that would go below
// zero is rejected without touching the balance.
func (s *TokenService) Adjust(ctx context.Context, adminID string, req dto.AdjustTokensRequest) (*dto.TokenBalanceResponse, error) {
	var reference *string
	if req.Reason != "" {
		reference = &req.Reason
	}
	balance, err := s.repo.Adjust(ctx, req.UserID, req.Delta, models.TokenEntryAdjustment, reference)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientTokens) {
			return nil, appErrors.Clone(appErrors.ErrInsufficientTokens, "adjustment would drive balance below zero")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to adjust token balance")
	}
	s.InvalidateBalance(ctx, req.UserID)
	s.recordAudit(ctx, adminID, models.AuditActionAdjustTokens, req.UserID, map[string]interface{}{"delta": req.Delta, "reason": req.Reason})
	return balanceResponse(balance), nil
}

// UpgradePlan switches plans and grants the new quota immediately.
func (s *TokenService) UpgradePlan(ctx context.Context, userID string, plan models.PlanType) (*dto.TokenBalanceResponse, error) {
	if plan == models.PlanFree {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot upgrade to the free plan")
	}
	balance, err := s.repo.UpgradePlan(ctx, userID, plan)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to upgrade plan")
	}
	s.InvalidateBalance(ctx, userID)
	return balanceResponse(balance), nil
}

// StartResetSweep boots the periodic monthly reset worker.
func (s *TokenService) StartResetSweep(ctx context.Context) {
	if s.cfg.ResetInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.ResetInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepResets(ctx)
			}
		}
	}()
}

func (s *TokenService) sweepResets(ctx context.Context) {
	now := time.Now().UTC()
	due, err := s.repo.ListDueForReset(ctx, now, 100)
	if err != nil {
		s.logger.Warn("failed to list balances due for reset", zap.Error(err))
		return
	}
	for _, balance := range due {
		if err := s.repo.Reset(ctx, balance.UserID, now); err != nil {
			s.logger.Warn("failed to reset token balance", zap.String("user_id", balance.UserID), zap.Error(err))
			continue
		}
		s.InvalidateBalance(ctx, balance.UserID)
	}
	if len(due) > 0 {
		s.logger.Info("monthly token reset sweep", zap.Int("reset", len(due)))
	}
}

func (s *TokenService) recordAudit(ctx context.Context, actorID, action, resourceID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(values)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "tokens",
		ResourceID: &resourceID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func balanceResponse(balance *models.TokenBalance) *dto.TokenBalanceResponse {
	return &dto.TokenBalanceResponse{
		TokensRemaining: balance.TokensRemaining,
		TokensPerMonth:  balance.TokensPerMonth,
		PlanType:        balance.PlanType,
		NextResetAt:     balance.NextResetAt,
	}
}

func balanceKey(userID string) string {
	return "tokens:balance:" + userID
}
