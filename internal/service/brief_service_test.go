package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gradeforge/gradeforge-api/internal/dto"
	"github.com/gradeforge/gradeforge-api/internal/models"
	"github.com/gradeforge/gradeforge-api/internal/repository"
	appErrors "github.com/gradeforge/gradeforge-api/pkg/errors"
)

type briefStoreStub struct {
	briefs map[string]*models.Brief
}

func newBriefStoreStub() *briefStoreStub {
	return &briefStoreStub{briefs: map[string]*models.Brief{}}
}

func (s *briefStoreStub) Create(_ context.Context, brief *models.Brief) error {
	brief.ID = uuid.NewString()
	s.briefs[brief.ID] = brief
	return nil
}

func (s *briefStoreStub) GetByID(_ context.Context, id string) (*models.Brief, error) {
	brief, ok := s.briefs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return brief, nil
}

func (s *briefStoreStub) List(_ context.Context, _ int) ([]models.Brief, error) {
	out := make([]models.Brief, 0, len(s.briefs))
	for _, b := range s.briefs {
		out = append(out, *b)
	}
	return out, nil
}

func (s *briefStoreStub) Update(_ context.Context, brief *models.Brief) error {
	if _, ok := s.briefs[brief.ID]; !ok {
		return repository.ErrStateConflict
	}
	s.briefs[brief.ID] = brief
	return nil
}

func (s *briefStoreStub) Delete(_ context.Context, id string) error {
	delete(s.briefs, id)
	return nil
}

func validBriefRequest() dto.BriefRequest {
	return dto.BriefRequest{
		Title:         "Unit 5: Data Modelling",
		Scenario:      "A regional retailer needs a new inventory system.",
		Level:         3,
		AllowedGrades: []string{"PASS", "MERIT"},
		RequiredInputs: models.InputSchema{
			{ID: "company_name", Label: "Company name", Kind: models.FieldText, Required: true},
			{ID: "sector", Kind: models.FieldSelect, Required: true, Options: []string{"retail"}},
		},
	}
}

func TestBriefServiceCreateAndGet(t *testing.T) {
	svc := NewBriefService(newBriefStoreStub(), zap.NewNop())

	created, err := svc.Create(context.Background(), "admin-1", validBriefRequest())
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Unit 5: Data Modelling", got.Title)
	assert.Len(t, got.RequiredInputs, 2)
}

func TestBriefServiceGetUnknown(t *testing.T) {
	svc := NewBriefService(newBriefStoreStub(), zap.NewNop())

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBriefServiceSchemaValidation(t *testing.T) {
	svc := NewBriefService(newBriefStoreStub(), zap.NewNop())

	cases := []struct {
		name   string
		mutate func(*dto.BriefRequest)
	}{
		{"missing field id", func(r *dto.BriefRequest) { r.RequiredInputs[0].ID = "" }},
		{"duplicate field id", func(r *dto.BriefRequest) { r.RequiredInputs[1].ID = r.RequiredInputs[0].ID }},
		{"unknown kind", func(r *dto.BriefRequest) { r.RequiredInputs[0].Kind = "RADIO" }},
		{"select without options", func(r *dto.BriefRequest) { r.RequiredInputs[1].Options = nil }},
		{"inverted length bounds", func(r *dto.BriefRequest) {
			r.RequiredInputs[0].MinLength = 10
			r.RequiredInputs[0].MaxLength = 5
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validBriefRequest()
			tc.mutate(&req)
			_, err := svc.Create(context.Background(), "admin-1", req)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestBriefServiceUpdateUnknown(t *testing.T) {
	svc := NewBriefService(newBriefStoreStub(), zap.NewNop())

	_, err := svc.Update(context.Background(), "missing", validBriefRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
