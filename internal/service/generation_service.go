package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gradeforge/gradeforge-api/internal/dto"
	"github.com/gradeforge/gradeforge-api/internal/models"
	"github.com/gradeforge/gradeforge-api/internal/repository"
	"github.com/gradeforge/gradeforge-api/internal/ws"
	appErrors "github.com/gradeforge/gradeforge-api/pkg/errors"
	"github.com/gradeforge/gradeforge-api/pkg/jobs"
)

// Pipeline stage labels, in execution order.
const (
	StagePlanning   = "planning"
	StageWriting    = "writing"
	StageHumanizing = "humanizing"
	StageAssembling = "assembling"
)

type generationJobStore interface {
	GetByID(ctx context.Context, id string) (*models.GenerationJob, error)
	GetActiveByAssignment(ctx context.Context, assignmentID string) (*models.GenerationJob, error)
	AdvanceProgress(ctx context.Context, id string, status models.JobStatus, progress int, stage string, wordCount int) error
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]models.GenerationJob, error)
}

type assignmentResolver interface {
	GetByID(ctx context.Context, id string) (*models.Assignment, error)
	Resolve(ctx context.Context, assignmentID, jobID string, status models.AssignmentStatus, content, errorMessage *string) error
}

// Composer produces the final coursework document for an assignment. The real
// AI pipeline sits behind this interface; CourseworkComposer is the built-in
// deterministic backend.
type Composer interface {
	Compose(ctx context.Context, assignment *models.Assignment, job *models.GenerationJob) (string, error)
}

// ApprovalPolicy decides whether a job pauses for a manual sign-off gate
// before assembly.
type ApprovalPolicy interface {
	RequiresApproval(assignment *models.Assignment) bool
}

type progressCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// GenerationConfig tunes the worker pipeline.
type GenerationConfig struct {
	MaxRetries     int
	StageDelay     time.Duration
	StatusCacheTTL time.Duration
	ApprovalPoll   time.Duration
}

// GenerationService runs the staged generation pipeline and serves job status
// snapshots for the polling fallback.
type GenerationService struct {
	jobs        generationJobStore
	assignments assignmentResolver
	composer    Composer
	approval    ApprovalPolicy
	publisher   eventPublisher
	cache       progressCache
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         GenerationConfig
}

// NewGenerationService constructs the service.
func NewGenerationService(jobStore generationJobStore, assignments assignmentResolver, composer Composer, approval ApprovalPolicy, publisher eventPublisher, cache progressCache, logger *zap.Logger, cfg GenerationConfig) *GenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if composer == nil {
		composer = CourseworkComposer{}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.StatusCacheTTL <= 0 {
		cfg.StatusCacheTTL = 5 * time.Second
	}
	if cfg.ApprovalPoll <= 0 {
		cfg.ApprovalPoll = 2 * time.Second
	}
	return &GenerationService{
		jobs:        jobStore,
		assignments: assignments,
		composer:    composer,
		approval:    approval,
		publisher:   publisher,
		cache:       cache,
		logger:      logger,
		cfg:         cfg,
	}
}

// SetMetrics attaches Prometheus instrumentation for job outcomes.
func (s *GenerationService) SetMetrics(metrics *MetricsService) {
	s.metrics = metrics
}

// Handle processes one queued generation job through the staged pipeline:
// planning, writing, humanizing, optional approval gate, assembly. Progress
// is persisted with a monotonic guard and mirrored to subscribers.
func (s *GenerationService) Handle(ctx context.Context, queued jobs.Job) error {
	job, err := s.jobs.GetByID(ctx, queued.ID)
	if err != nil {
		if repository.IsNotFound(err) {
			s.logger.Warn("queued job no longer exists", zap.String("job_id", queued.ID))
			return nil
		}
		return err
	}
	if job.Superseded || job.Status.Terminal() {
		return nil
	}
	started := time.Now()
	assignment, err := s.assignments.GetByID(ctx, job.AssignmentID)
	if err != nil {
		return err
	}

	steps := []struct {
		status    models.JobStatus
		stage     string
		progress  int
		wordShare float64
		boundary  bool
	}{
		{models.JobRunning, StagePlanning, 10, 0, true},
		{models.JobRunning, StageWriting, 30, 0.3, false},
		{models.JobRunning, StageWriting, 50, 0.6, false},
		{models.JobRunning, StageWriting, 70, 0.9, true},
		{models.JobHumanizing, StageHumanizing, 85, 1, false},
	}
	for _, step := range steps {
		wordCount := int(float64(job.TargetWordCount) * step.wordShare)
		if err := s.advance(ctx, job, step.status, step.progress, step.stage, wordCount); err != nil {
			if errors.Is(err, repository.ErrStateConflict) {
				// Cancelled or superseded underneath us; stop without failing.
				s.logger.Info("job overtaken, stopping pipeline", zap.String("job_id", job.ID))
				return nil
			}
			return err
		}
		if step.boundary {
			s.publish(ws.StageComplete(job.ID, step.stage, ""))
		}
		if s.cfg.StageDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.StageDelay):
			}
		}
	}

	if s.approval != nil && s.approval.RequiresApproval(assignment) {
		s.publish(ws.ApprovalRequired(job.ID, StageHumanizing))
		if proceed, err := s.waitForApproval(ctx, job.ID); err != nil || !proceed {
			return err
		}
	}

	if err := s.advance(ctx, job, models.JobAssembling, 95, StageAssembling, job.TargetWordCount); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil
		}
		return err
	}

	content, err := s.composer.Compose(ctx, assignment, job)
	if err != nil {
		return s.handleComposeFailure(ctx, job, queued.Attempt, started, err)
	}

	if err := s.assignments.Resolve(ctx, job.AssignmentID, job.ID, models.AssignmentCompleted, &content, nil); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil
		}
		return err
	}
	s.invalidateStatus(ctx, job.AssignmentID)
	s.publish(ws.Complete(job.ID, content))
	s.metrics.ObserveGenerationJob("completed", time.Since(started))
	return nil
}

// Approve releases a job paused at the manual sign-off gate.
func (s *GenerationService) Approve(ctx context.Context, jobID string) error {
	if s.cache == nil {
		return appErrors.Clone(appErrors.ErrInternal, "approval gate requires a cache backend")
	}
	if _, err := s.jobs.GetByID(ctx, jobID); err != nil {
		if repository.IsNotFound(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load generation job")
	}
	if err := s.cache.Set(ctx, approvalKey(jobID), "approved", time.Hour).Err(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record approval")
	}
	return nil
}

// Status serves the polling fallback: a read-through cached snapshot of the
// active job for an assignment.
func (s *GenerationService) Status(ctx context.Context, assignmentID string) (*dto.JobStatusResponse, error) {
	key := statusKey(assignmentID)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key).Result(); err == nil {
			var snapshot dto.JobStatusResponse
			if err := json.Unmarshal([]byte(raw), &snapshot); err == nil {
				s.metrics.RecordCacheOperation(true)
				return &snapshot, nil
			}
		}
		s.metrics.RecordCacheOperation(false)
	}

	job, err := s.jobs.GetActiveByAssignment(ctx, assignmentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no generation job for assignment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load generation job")
	}
	snapshot := &dto.JobStatusResponse{
		JobID:        job.ID,
		AssignmentID: job.AssignmentID,
		Status:       job.Status,
		Progress:     job.Progress,
		Stage:        job.CurrentStage,
		WordCount:    job.CurrentWordCount,
		ErrorMessage: job.ErrorMessage,
	}
	if job.Status == models.JobCompleted {
		if assignment, err := s.assignments.GetByID(ctx, assignmentID); err == nil {
			snapshot.Content = assignment.Content
		}
	}
	s.cacheStatus(ctx, key, snapshot)
	return snapshot, nil
}

// RecoverStaleJobs requeues PENDING jobs abandoned by a previous process.
func (s *GenerationService) RecoverStaleJobs(ctx context.Context, queue jobDispatcher, olderThan time.Duration) {
	stale, err := s.jobs.ListStale(ctx, time.Now().UTC().Add(-olderThan), 50)
	if err != nil {
		s.logger.Warn("failed to list stale generation jobs", zap.Error(err))
		return
	}
	for _, job := range stale {
		if err := queue.Enqueue(jobs.Job{ID: job.ID, Type: "generation"}); err != nil {
			s.logger.Warn("failed to requeue stale job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

func (s *GenerationService) advance(ctx context.Context, job *models.GenerationJob, status models.JobStatus, progress int, stage string, wordCount int) error {
	if err := s.jobs.AdvanceProgress(ctx, job.ID, status, progress, stage, wordCount); err != nil {
		return err
	}
	s.publish(ws.Progress(job.ID, stage, progress, wordCount))
	s.cacheStatus(ctx, statusKey(job.AssignmentID), &dto.JobStatusResponse{
		JobID:        job.ID,
		AssignmentID: job.AssignmentID,
		Status:       status,
		Progress:     progress,
		Stage:        stage,
		WordCount:    wordCount,
	})
	return nil
}

// handleComposeFailure distinguishes transient retries from terminal failure.
// While attempts remain the error is surfaced as recoverable and the queue
// retries; on the last attempt the assignment fails with the error message.
func (s *GenerationService) handleComposeFailure(ctx context.Context, job *models.GenerationJob, attempt int, started time.Time, composeErr error) error {
	if attempt < s.cfg.MaxRetries {
		s.publish(ws.Error(job.ID, composeErr.Error(), true))
		return fmt.Errorf("compose attempt %d: %w", attempt+1, composeErr)
	}

	msg := composeErr.Error()
	if err := s.assignments.Resolve(ctx, job.AssignmentID, job.ID, models.AssignmentFailed, nil, &msg); err != nil && !errors.Is(err, repository.ErrStateConflict) {
		s.logger.Error("failed to mark assignment failed", zap.String("assignment_id", job.AssignmentID), zap.Error(err))
	}
	s.invalidateStatus(ctx, job.AssignmentID)
	s.publish(ws.Error(job.ID, msg, false))
	s.metrics.ObserveGenerationJob("failed", time.Since(started))
	return nil
}

// waitForApproval blocks until an admin approves the job, the job is
// resolved underneath us, or the context ends. Returns false when the
// pipeline should stop without composing.
func (s *GenerationService) waitForApproval(ctx context.Context, jobID string) (bool, error) {
	if s.cache == nil {
		return true, nil
	}
	ticker := time.NewTicker(s.cfg.ApprovalPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
			if _, err := s.cache.Get(ctx, approvalKey(jobID)).Result(); err == nil {
				s.cache.Del(ctx, approvalKey(jobID))
				return true, nil
			}
			job, err := s.jobs.GetByID(ctx, jobID)
			if err != nil {
				return false, err
			}
			if job.Superseded || job.Status.Terminal() {
				return false, nil
			}
		}
	}
}

func (s *GenerationService) publish(evt ws.Event) {
	if s.publisher != nil {
		s.publisher.Publish(evt)
	}
}

func (s *GenerationService) cacheStatus(ctx context.Context, key string, snapshot *dto.JobStatusResponse) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cfg.StatusCacheTTL).Err(); err != nil {
		s.logger.Debug("failed to cache job status", zap.String("key", key), zap.Error(err))
	}
}

func (s *GenerationService) invalidateStatus(ctx context.Context, assignmentID string) {
	if s.cache == nil {
		return
	}
	s.cache.Del(ctx, statusKey(assignmentID))
}

func statusKey(assignmentID string) string {
	return "generation:status:" + assignmentID
}

func approvalKey(jobID string) string {
	return "generation:approval:" + jobID
}
