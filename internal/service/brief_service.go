package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/gradeforge/gradeforge-api/internal/dto"
	"github.com/gradeforge/gradeforge-api/internal/models"
	"github.com/gradeforge/gradeforge-api/internal/repository"
	appErrors "github.com/gradeforge/gradeforge-api/pkg/errors"
)

type briefStore interface {
	Create(ctx context.Context, brief *models.Brief) error
	GetByID(ctx context.Context, id string) (*models.Brief, error)
	List(ctx context.Context, limit int) ([]models.Brief, error)
	Update(ctx context.Context, brief *models.Brief) error
	Delete(ctx context.Context, id string) error
}

// BriefService manages assignment brief templates. Edits never touch existing
// assignments: those keep the snapshot taken at creation.
type BriefService struct {
	repo   briefStore
	logger *zap.Logger
}

// NewBriefService constructs the service.
func NewBriefService(repo briefStore, logger *zap.Logger) *BriefService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BriefService{repo: repo, logger: logger}
}

// Create stores a new brief authored by an admin.
func (s *BriefService) Create(ctx context.Context, authorID string, req dto.BriefRequest) (*dto.BriefResponse, error) {
	if err := validateSchema(req.RequiredInputs); err != nil {
		return nil, err
	}
	brief := &models.Brief{
		Title:          req.Title,
		Scenario:       req.Scenario,
		Level:          req.Level,
		AllowedGrades:  req.AllowedGrades,
		RequiredInputs: req.RequiredInputs,
		CreatedBy:      authorID,
	}
	if err := s.repo.Create(ctx, brief); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create brief")
	}
	return briefResponse(brief), nil
}

// Get returns a brief by id.
func (s *BriefService) Get(ctx context.Context, id string) (*dto.BriefResponse, error) {
	brief, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "brief not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load brief")
	}
	return briefResponse(brief), nil
}

// List returns available briefs.
func (s *BriefService) List(ctx context.Context, limit int) ([]dto.BriefResponse, error) {
	briefs, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list briefs")
	}
	out := make([]dto.BriefResponse, 0, len(briefs))
	for i := range briefs {
		out = append(out, *briefResponse(&briefs[i]))
	}
	return out, nil
}

// Update rewrites a brief's mutable fields.
func (s *BriefService) Update(ctx context.Context, id string, req dto.BriefRequest) (*dto.BriefResponse, error) {
	if err := validateSchema(req.RequiredInputs); err != nil {
		return nil, err
	}
	brief := &models.Brief{
		ID:             id,
		Title:          req.Title,
		Scenario:       req.Scenario,
		Level:          req.Level,
		AllowedGrades:  req.AllowedGrades,
		RequiredInputs: req.RequiredInputs,
	}
	if err := s.repo.Update(ctx, brief); err != nil {
		if err == repository.ErrStateConflict {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "brief not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update brief")
	}
	return s.Get(ctx, id)
}

// Delete removes a brief.
func (s *BriefService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete brief")
	}
	return nil
}

// validateSchema rejects malformed field definitions before they can poison
// future assignment snapshots.
func validateSchema(schema models.InputSchema) error {
	seen := make(map[string]struct{}, len(schema))
	for _, def := range schema {
		if def.ID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "input field id is required")
		}
		if _, dup := seen[def.ID]; dup {
			return appErrors.Clone(appErrors.ErrValidation, "duplicate input field id: "+def.ID)
		}
		seen[def.ID] = struct{}{}
		switch def.Kind {
		case models.FieldText, models.FieldTextarea, models.FieldNumber, models.FieldBoolean, models.FieldSelect, models.FieldMultiselect, models.FieldArray:
		default:
			return appErrors.Clone(appErrors.ErrValidation, "unsupported field kind: "+string(def.Kind))
		}
		if (def.Kind == models.FieldSelect || def.Kind == models.FieldMultiselect) && len(def.Options) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "select field requires options: "+def.ID)
		}
		if def.MinLength > 0 && def.MaxLength > 0 && def.MinLength > def.MaxLength {
			return appErrors.Clone(appErrors.ErrValidation, "minLength exceeds maxLength: "+def.ID)
		}
	}
	return nil
}

func briefResponse(brief *models.Brief) *dto.BriefResponse {
	return &dto.BriefResponse{
		ID:             brief.ID,
		Title:          brief.Title,
		Scenario:       brief.Scenario,
		Level:          brief.Level,
		AllowedGrades:  brief.AllowedGrades,
		RequiredInputs: brief.RequiredInputs,
	}
}
