package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gradeforge/gradeforge-api/internal/dto"
	"github.com/gradeforge/gradeforge-api/internal/inputs"
	"github.com/gradeforge/gradeforge-api/internal/models"
	"github.com/gradeforge/gradeforge-api/internal/repository"
	"github.com/gradeforge/gradeforge-api/internal/ws"
	appErrors "github.com/gradeforge/gradeforge-api/pkg/errors"
	"github.com/gradeforge/gradeforge-api/pkg/jobs"
)

type briefReader interface {
	GetByID(ctx context.Context, id string) (*models.Brief, error)
}

type assignmentStore interface {
	Create(ctx context.Context, assignment *models.Assignment) error
	GetByID(ctx context.Context, id string) (*models.Assignment, error)
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error)
	SaveInputs(ctx context.Context, id string, data models.StudentInputs, completedAt *time.Time) error
	BeginGeneration(ctx context.Context, assignmentID, userID string, cost int, job *models.GenerationJob) error
	Regenerate(ctx context.Context, assignmentID string, job *models.GenerationJob) error
	Resolve(ctx context.Context, assignmentID, jobID string, status models.AssignmentStatus, content, errorMessage *string) error
	Delete(ctx context.Context, ids []string) (int64, error)
}

type activeJobReader interface {
	GetActiveByAssignment(ctx context.Context, assignmentID string) (*models.GenerationJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type eventPublisher interface {
	Publish(evt ws.Event)
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// PartialAssembler produces best-available content when an admin forces a
// GENERATING assignment to completion. The truncation policy is deliberately
// pluggable; the default stitches whatever the job has produced so far.
type PartialAssembler interface {
	Assemble(assignment *models.Assignment, job *models.GenerationJob) string
}

// GradeCosts maps each target grade to its token price.
type GradeCosts struct {
	Pass        int
	Merit       int
	Distinction int
}

// Cost returns the debit for a target grade.
func (c GradeCosts) Cost(grade models.TargetGrade) int {
	switch grade {
	case models.GradeMerit:
		return c.Merit
	case models.GradeDistinction:
		return c.Distinction
	default:
		return c.Pass
	}
}

// targetWordCount is the pipeline's output size per grade tier.
func targetWordCount(grade models.TargetGrade) int {
	switch grade {
	case models.GradeMerit:
		return 2500
	case models.GradeDistinction:
		return 3500
	default:
		return 1500
	}
}

// AssignmentService owns the assignment lifecycle: creation with a brief
// snapshot, progressive input saves, generation start with an atomic token
// debit, and the administrative overrides.
type AssignmentService struct {
	briefs    briefReader
	repo      assignmentStore
	jobs      activeJobReader
	queue     jobDispatcher
	publisher eventPublisher
	audit     auditRecorder
	assembler PartialAssembler
	costs     GradeCosts
	logger    *zap.Logger
}

// NewAssignmentService constructs the service.
func NewAssignmentService(briefs briefReader, repo assignmentStore, jobReader activeJobReader, queue jobDispatcher, publisher eventPublisher, audit auditRecorder, assembler PartialAssembler, costs GradeCosts, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if assembler == nil {
		assembler = StitchAssembler{}
	}
	return &AssignmentService{
		briefs:    briefs,
		repo:      repo,
		jobs:      jobReader,
		queue:     queue,
		publisher: publisher,
		audit:     audit,
		assembler: assembler,
		costs:     costs,
		logger:    logger,
	}
}

// Create opens a DRAFT assignment with an immutable snapshot of the brief.
func (s *AssignmentService) Create(ctx context.Context, userID string, req dto.CreateAssignmentRequest) (*dto.AssignmentResponse, error) {
	brief, err := s.briefs.GetByID(ctx, req.BriefID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "brief not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load brief")
	}
	if !brief.AllowsGrade(req.TargetGrade) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("target grade %s is not offered by this brief", req.TargetGrade))
	}

	language := req.Language
	if language == "" {
		language = "en"
	}
	assignment := &models.Assignment{
		UserID:      userID,
		Status:      models.AssignmentDraft,
		TargetGrade: req.TargetGrade,
		Language:    language,
		Level:       brief.Level,
		BriefSnapshot: models.BriefSnapshot{
			BriefID:        brief.ID,
			Title:          brief.Title,
			Scenario:       brief.Scenario,
			Level:          brief.Level,
			RequiredInputs: brief.RequiredInputs,
		},
		StudentInputs: models.StudentInputs{},
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	return s.toResponse(assignment), nil
}

// Get loads an assignment, enforcing ownership for students.
func (s *AssignmentService) Get(ctx context.Context, id, actorID string, role models.UserRole) (*dto.AssignmentResponse, error) {
	assignment, err := s.load(ctx, id, actorID, role)
	if err != nil {
		return nil, err
	}
	return s.toResponse(assignment), nil
}

// List returns assignments matching the filter. Students only ever see their
// own rows regardless of the requested filter.
func (s *AssignmentService) List(ctx context.Context, filter models.AssignmentFilter, actorID string, role models.UserRole) ([]dto.AssignmentResponse, int, error) {
	if role != models.RoleAdmin {
		filter.UserID = actorID
	}
	assignments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	out := make([]dto.AssignmentResponse, 0, len(assignments))
	for i := range assignments {
		out = append(out, *s.toResponse(&assignments[i]))
	}
	return out, total, nil
}

// SaveInputs replaces the whole student input map while the assignment is
// DRAFT. Partial saves are allowed: completeness only flips the timestamp.
func (s *AssignmentService) SaveInputs(ctx context.Context, id, actorID string, role models.UserRole, data models.StudentInputs) (*dto.InputsValidationResponse, error) {
	assignment, err := s.load(ctx, id, actorID, role)
	if err != nil {
		return nil, err
	}
	if assignment.Status != models.AssignmentDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "student inputs can only change while the assignment is a draft")
	}

	result := inputs.Validate(assignment.BriefSnapshot.RequiredInputs, data)
	var completedAt *time.Time
	if result.Complete {
		now := time.Now().UTC()
		completedAt = &now
	}
	if err := s.repo.SaveInputs(ctx, id, data, completedAt); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "student inputs can only change while the assignment is a draft")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save student inputs")
	}
	return validationResponse(result), nil
}

// InputsStatus re-validates the stored inputs without mutating anything.
func (s *AssignmentService) InputsStatus(ctx context.Context, id, actorID string, role models.UserRole) (*dto.InputsValidationResponse, error) {
	assignment, err := s.load(ctx, id, actorID, role)
	if err != nil {
		return nil, err
	}
	result := inputs.Validate(assignment.BriefSnapshot.RequiredInputs, assignment.StudentInputs)
	return validationResponse(result), nil
}

// StartGeneration debits tokens and flips the assignment to GENERATING in one
// transaction, then hands the job to the worker queue. There is no partial
// debit: an insufficient balance leaves the assignment DRAFT with no job row.
func (s *AssignmentService) StartGeneration(ctx context.Context, id, actorID string, role models.UserRole) (*dto.GenerationStartResponse, int, error) {
	assignment, err := s.load(ctx, id, actorID, role)
	if err != nil {
		return nil, 0, err
	}
	if assignment.Status != models.AssignmentDraft {
		return nil, 0, appErrors.Clone(appErrors.ErrInvalidState, "generation can only start from a draft")
	}
	if !assignment.GenerationUnlocked() {
		return nil, 0, appErrors.ErrIncompleteInputs
	}

	cost := s.costs.Cost(assignment.TargetGrade)
	job := &models.GenerationJob{
		ID:              uuid.NewString(),
		AssignmentID:    assignment.ID,
		Status:          models.JobPending,
		TargetWordCount: targetWordCount(assignment.TargetGrade),
	}
	if err := s.repo.BeginGeneration(ctx, assignment.ID, assignment.UserID, cost, job); err != nil {
		switch {
		case errors.Is(err, repository.ErrInsufficientTokens):
			return nil, 0, appErrors.ErrInsufficientTokens
		case errors.Is(err, repository.ErrStateConflict):
			return nil, 0, appErrors.Clone(appErrors.ErrInvalidState, "generation can only start from a draft")
		default:
			return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start generation")
		}
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "generation"}); err != nil {
		msg := "failed to enqueue generation job"
		if resolveErr := s.repo.Resolve(ctx, assignment.ID, job.ID, models.AssignmentFailed, nil, &msg); resolveErr != nil {
			s.logger.Error("failed to fail assignment after enqueue error", zap.String("assignment_id", assignment.ID), zap.Error(resolveErr))
		}
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, msg)
	}

	return &dto.GenerationStartResponse{
		JobID:        job.ID,
		AssignmentID: assignment.ID,
		Status:       models.AssignmentGenerating,
	}, cost, nil
}

// ForceComplete marks a GENERATING assignment COMPLETED with best-available
// partial content. Explicitly an escape hatch: output may be incomplete.
func (s *AssignmentService) ForceComplete(ctx context.Context, id, adminID, note string) (*dto.AssignmentResponse, error) {
	assignment, err := s.load(ctx, id, adminID, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if assignment.Status != models.AssignmentGenerating {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only a generating assignment can be force-completed")
	}
	job, err := s.activeJob(ctx, assignment)
	if err != nil {
		return nil, err
	}

	content := s.assembler.Assemble(assignment, job)
	if err := s.repo.Resolve(ctx, assignment.ID, job.ID, models.AssignmentCompleted, &content, nil); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "assignment already resolved")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to force-complete assignment")
	}
	s.publish(ws.Complete(job.ID, content))
	s.recordAudit(ctx, adminID, models.AuditActionForceComplete, assignment.ID, map[string]string{"note": note, "job_id": job.ID})
	return s.Get(ctx, id, adminID, models.RoleAdmin)
}

// Cancel fails a GENERATING assignment on admin request. Tokens already
// debited are not refunded; a refund is a separate adjustment.
func (s *AssignmentService) Cancel(ctx context.Context, id, adminID string) (*dto.AssignmentResponse, error) {
	assignment, err := s.load(ctx, id, adminID, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if assignment.Status != models.AssignmentGenerating {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only a generating assignment can be cancelled")
	}
	job, err := s.activeJob(ctx, assignment)
	if err != nil {
		return nil, err
	}

	msg := "cancelled by admin"
	if err := s.repo.Resolve(ctx, assignment.ID, job.ID, models.AssignmentFailed, nil, &msg); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "assignment already resolved")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel assignment")
	}
	s.publish(ws.Error(job.ID, msg, false))
	s.recordAudit(ctx, adminID, models.AuditActionCancelJob, assignment.ID, map[string]string{"job_id": job.ID})
	return s.Get(ctx, id, adminID, models.RoleAdmin)
}

// Regenerate starts a fresh job for a terminal assignment, preserving the
// student inputs and the original brief snapshot. No extra debit.
func (s *AssignmentService) Regenerate(ctx context.Context, id, adminID string) (*dto.GenerationStartResponse, error) {
	assignment, err := s.load(ctx, id, adminID, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if !assignment.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only a completed or failed assignment can be regenerated")
	}

	job := &models.GenerationJob{
		ID:              uuid.NewString(),
		AssignmentID:    assignment.ID,
		Status:          models.JobPending,
		TargetWordCount: targetWordCount(assignment.TargetGrade),
	}
	if err := s.repo.Regenerate(ctx, assignment.ID, job); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "assignment is no longer in a terminal state")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to regenerate assignment")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "generation"}); err != nil {
		msg := "failed to enqueue regeneration job"
		if resolveErr := s.repo.Resolve(ctx, assignment.ID, job.ID, models.AssignmentFailed, nil, &msg); resolveErr != nil {
			s.logger.Error("failed to fail assignment after enqueue error", zap.String("assignment_id", assignment.ID), zap.Error(resolveErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, msg)
	}
	s.recordAudit(ctx, adminID, models.AuditActionRegenerate, assignment.ID, map[string]string{"job_id": job.ID})
	return &dto.GenerationStartResponse{
		JobID:        job.ID,
		AssignmentID: assignment.ID,
		Status:       models.AssignmentGenerating,
	}, nil
}

// BulkDelete removes assignments by id.
func (s *AssignmentService) BulkDelete(ctx context.Context, ids []string, adminID string) (*dto.BulkAssignmentResponse, error) {
	affected, err := s.repo.Delete(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignments")
	}
	return &dto.BulkAssignmentResponse{Requested: len(ids), Affected: int(affected)}, nil
}

// BulkRegenerate retries regeneration over many assignments, skipping the
// ones whose state no longer allows it.
func (s *AssignmentService) BulkRegenerate(ctx context.Context, ids []string, adminID string) (*dto.BulkAssignmentResponse, error) {
	affected := 0
	for _, id := range ids {
		if _, err := s.Regenerate(ctx, id, adminID); err != nil {
			s.logger.Warn("bulk regenerate skipped assignment", zap.String("assignment_id", id), zap.Error(err))
			continue
		}
		affected++
	}
	return &dto.BulkAssignmentResponse{Requested: len(ids), Affected: affected}, nil
}

func (s *AssignmentService) load(ctx context.Context, id, actorID string, role models.UserRole) (*models.Assignment, error) {
	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if role != models.RoleAdmin && assignment.UserID != actorID {
		return nil, appErrors.ErrForbidden
	}
	return assignment, nil
}

func (s *AssignmentService) activeJob(ctx context.Context, assignment *models.Assignment) (*models.GenerationJob, error) {
	job, err := s.jobs.GetActiveByAssignment(ctx, assignment.ID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active generation job for assignment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load generation job")
	}
	return job, nil
}

func (s *AssignmentService) publish(evt ws.Event) {
	if s.publisher != nil {
		s.publisher.Publish(evt)
	}
}

func (s *AssignmentService) recordAudit(ctx context.Context, actorID, action, resourceID string, values map[string]string) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(values)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "assignment",
		ResourceID: &resourceID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *AssignmentService) toResponse(a *models.Assignment) *dto.AssignmentResponse {
	return &dto.AssignmentResponse{
		ID:             a.ID,
		Status:         a.Status,
		TargetGrade:    a.TargetGrade,
		Language:       a.Language,
		Level:          a.Level,
		Brief:          a.BriefSnapshot,
		StudentInputs:  a.StudentInputs,
		InputsComplete: a.StudentInputsCompletedAt != nil,
		Content:        a.Content,
		ErrorMessage:   a.ErrorMessage,
		ActiveJobID:    a.ActiveJobID,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func validationResponse(result inputs.Result) *dto.InputsValidationResponse {
	resp := &dto.InputsValidationResponse{
		Complete:      result.Complete,
		MissingFields: result.MissingFields,
	}
	for _, w := range result.Warnings {
		resp.Warnings = append(resp.Warnings, dto.FieldResultResponse{FieldID: w.FieldID, Valid: w.Valid, Reason: w.Reason})
	}
	return resp
}
