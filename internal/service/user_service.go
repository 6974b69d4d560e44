package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/gradeforge/gradeforge-api/internal/models"
	appErrors "github.com/gradeforge/gradeforge-api/pkg/errors"
)

type userLister interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

// UserService serves the admin user directory.
type UserService struct {
	repo   userLister
	logger *zap.Logger
}

// NewUserService constructs the service.
func NewUserService(repo userLister, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, logger: logger}
}

// List returns users matching the filter with a total count.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, total, nil
}
