package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gradeforge/gradeforge-api/internal/dto"
	"github.com/gradeforge/gradeforge-api/internal/models"
	"github.com/gradeforge/gradeforge-api/internal/repository"
	"github.com/gradeforge/gradeforge-api/internal/ws"
	appErrors "github.com/gradeforge/gradeforge-api/pkg/errors"
	"github.com/gradeforge/gradeforge-api/pkg/jobs"
)

// lifecycleStub is an in-memory stand-in for the assignment, job, and token
// tables with the same guarded-transition semantics as the real repository.
type lifecycleStub struct {
	assignments map[string]*models.Assignment
	jobs        map[string]*models.GenerationJob
	tokens      map[string]int
}

func newLifecycleStub() *lifecycleStub {
	return &lifecycleStub{
		assignments: map[string]*models.Assignment{},
		jobs:        map[string]*models.GenerationJob{},
		tokens:      map[string]int{},
	}
}

func (s *lifecycleStub) Create(_ context.Context, a *models.Assignment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.AssignmentDraft
	}
	s.assignments[a.ID] = a
	return nil
}

func (s *lifecycleStub) GetByID(_ context.Context, id string) (*models.Assignment, error) {
	a, ok := s.assignments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return a, nil
}

func (s *lifecycleStub) List(_ context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	var out []models.Assignment
	for _, a := range s.assignments {
		if filter.UserID != "" && a.UserID != filter.UserID {
			continue
		}
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (s *lifecycleStub) SaveInputs(_ context.Context, id string, data models.StudentInputs, completedAt *time.Time) error {
	a, ok := s.assignments[id]
	if !ok || a.Status != models.AssignmentDraft {
		return repository.ErrStateConflict
	}
	a.StudentInputs = data
	a.StudentInputsCompletedAt = completedAt
	return nil
}

func (s *lifecycleStub) BeginGeneration(_ context.Context, assignmentID, userID string, cost int, job *models.GenerationJob) error {
	if s.tokens[userID] < cost {
		return repository.ErrInsufficientTokens
	}
	a, ok := s.assignments[assignmentID]
	if !ok || a.Status != models.AssignmentDraft {
		return repository.ErrStateConflict
	}
	s.tokens[userID] -= cost
	a.Status = models.AssignmentGenerating
	a.ActiveJobID = &job.ID
	for _, j := range s.jobs {
		if j.AssignmentID == assignmentID {
			j.Superseded = true
		}
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *lifecycleStub) Regenerate(_ context.Context, assignmentID string, job *models.GenerationJob) error {
	a, ok := s.assignments[assignmentID]
	if !ok || !a.Status.Terminal() {
		return repository.ErrStateConflict
	}
	a.Status = models.AssignmentGenerating
	a.ActiveJobID = &job.ID
	a.ErrorMessage = nil
	for _, j := range s.jobs {
		if j.AssignmentID == assignmentID {
			j.Superseded = true
		}
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *lifecycleStub) Resolve(_ context.Context, assignmentID, jobID string, status models.AssignmentStatus, content, errorMessage *string) error {
	a, ok := s.assignments[assignmentID]
	if !ok || a.Status != models.AssignmentGenerating {
		return repository.ErrStateConflict
	}
	a.Status = status
	if content != nil {
		a.Content = content
	}
	a.ErrorMessage = errorMessage
	if job, ok := s.jobs[jobID]; ok {
		if status == models.AssignmentCompleted {
			job.Status = models.JobCompleted
			job.Progress = 100
		} else {
			job.Status = models.JobFailed
		}
		job.ErrorMessage = errorMessage
	}
	return nil
}

func (s *lifecycleStub) Delete(_ context.Context, ids []string) (int64, error) {
	var affected int64
	for _, id := range ids {
		if _, ok := s.assignments[id]; ok {
			delete(s.assignments, id)
			affected++
		}
	}
	return affected, nil
}

func (s *lifecycleStub) GetActiveByAssignment(_ context.Context, assignmentID string) (*models.GenerationJob, error) {
	for _, j := range s.jobs {
		if j.AssignmentID == assignmentID && !j.Superseded {
			return j, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *lifecycleStub) AdvanceProgress(_ context.Context, id string, status models.JobStatus, progress int, stage string, wordCount int) error {
	j, ok := s.jobs[id]
	if !ok || j.Status.Terminal() || j.Progress > progress {
		return repository.ErrStateConflict
	}
	j.Status = status
	j.Progress = progress
	j.CurrentStage = stage
	j.CurrentWordCount = wordCount
	return nil
}

func (s *lifecycleStub) ListStale(_ context.Context, cutoff time.Time, limit int) ([]models.GenerationJob, error) {
	var out []models.GenerationJob
	for _, j := range s.jobs {
		if j.Status == models.JobPending && !j.Superseded && j.CreatedAt.Before(cutoff) {
			out = append(out, *j)
		}
	}
	return out, nil
}

type briefStub struct {
	briefs map[string]*models.Brief
}

func (b briefStub) GetByID(_ context.Context, id string) (*models.Brief, error) {
	brief, ok := b.briefs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return brief, nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type publisherStub struct {
	events []ws.Event
}

func (p *publisherStub) Publish(evt ws.Event) {
	p.events = append(p.events, evt)
}

type auditStub struct {
	logs []models.AuditLog
}

func (a *auditStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, *log)
	return nil
}

func testBrief() *models.Brief {
	return &models.Brief{
		ID:            "brief-1",
		Title:         "Unit 5: Data Modelling",
		Scenario:      "A regional retailer needs a new inventory system.",
		Level:         3,
		AllowedGrades: []string{"PASS", "MERIT"},
		RequiredInputs: models.InputSchema{
			{ID: "company_name", Label: "Company name", Kind: models.FieldText, Required: true, MinLength: 2},
			{ID: "sector", Label: "Sector", Kind: models.FieldSelect, Required: true, Options: []string{"retail", "logistics"}},
		},
	}
}

func newAssignmentServiceForTest() (*AssignmentService, *lifecycleStub, *queueStub, *publisherStub, *auditStub) {
	store := newLifecycleStub()
	queue := &queueStub{}
	publisher := &publisherStub{}
	audit := &auditStub{}
	briefs := briefStub{briefs: map[string]*models.Brief{"brief-1": testBrief()}}
	costs := GradeCosts{Pass: 10, Merit: 15, Distinction: 20}
	svc := NewAssignmentService(briefs, store, store, queue, publisher, audit, nil, costs, zap.NewNop())
	return svc, store, queue, publisher, audit
}

func TestAssignmentServiceCreateSnapshotsBrief(t *testing.T) {
	svc, store, _, _, _ := newAssignmentServiceForTest()

	resp, err := svc.Create(context.Background(), "student-1", dto.CreateAssignmentRequest{
		BriefID:     "brief-1",
		TargetGrade: models.GradeMerit,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentDraft, resp.Status)
	assert.Equal(t, "Unit 5: Data Modelling", resp.Brief.Title)
	assert.Len(t, resp.Brief.RequiredInputs, 2)

	stored := store.assignments[resp.ID]
	assert.Equal(t, "brief-1", stored.BriefSnapshot.BriefID)
	assert.Equal(t, "Unit 5: Data Modelling", stored.BriefSnapshot.Title)
	assert.NotNil(t, stored.StudentInputs)
}

func TestAssignmentServiceCreateUnknownBrief(t *testing.T) {
	svc, _, _, _, _ := newAssignmentServiceForTest()
	_, err := svc.Create(context.Background(), "student-1", dto.CreateAssignmentRequest{BriefID: "missing", TargetGrade: models.GradePass})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAssignmentServiceCreateUnsupportedGrade(t *testing.T) {
	svc, _, _, _, _ := newAssignmentServiceForTest()
	_, err := svc.Create(context.Background(), "student-1", dto.CreateAssignmentRequest{BriefID: "brief-1", TargetGrade: models.GradeDistinction})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAssignmentServiceProgressiveInputSaves(t *testing.T) {
	svc, _, _, _, _ := newAssignmentServiceForTest()
	created, err := svc.Create(context.Background(), "student-1", dto.CreateAssignmentRequest{BriefID: "brief-1", TargetGrade: models.GradePass})
	require.NoError(t, err)

	partial, err := svc.SaveInputs(context.Background(), created.ID, "student-1", models.RoleStudent, models.StudentInputs{"company_name": "Acme"})
	require.NoError(t, err)
	assert.False(t, partial.Complete)
	assert.Equal(t, []string{"sector"}, partial.MissingFields)

	full, err := svc.SaveInputs(context.Background(), created.ID, "student-1", models.RoleStudent, models.StudentInputs{
		"company_name": "Acme",
		"sector":       "retail",
	})
	require.NoError(t, err)
	assert.True(t, full.Complete)
	assert.Empty(t, full.MissingFields)
}

func TestAssignmentServiceSaveInputsOwnership(t *testing.T) {
	svc, _, _, _, _ := newAssignmentServiceForTest()
	created, err := svc.Create(context.Background(), "student-1", dto.CreateAssignmentRequest{BriefID: "brief-1", TargetGrade: models.GradePass})
	require.NoError(t, err)

	_, err = svc.SaveInputs(context.Background(), created.ID, "student-2", models.RoleStudent, models.StudentInputs{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAssignmentServiceStartGeneration(t *testing.T) {
	svc, store, queue, _, _ := newAssignmentServiceForTest()
	store.tokens["student-1"] = 30

	created, err := svc.Create(context.Background(), "student-1", dto.CreateAssignmentRequest{BriefID: "brief-1", TargetGrade: models.GradeMerit})
	require.NoError(t, err)
	_, err = svc.SaveInputs(context.Background(), created.ID, "student-1", models.RoleStudent, models.StudentInputs{
		"company_name": "Acme",
		"sector":       "retail",
	})
	require.NoError(t, err)

	resp, cost, err := svc.StartGeneration(context.Background(), created.ID, "student-1", models.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, 15, cost)
	assert.Equal(t, models.AssignmentGenerating, resp.Status)
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, 15, store.tokens["student-1"])
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, resp.JobID, queue.jobs[0].ID)
}

func TestAssignmentServiceStartGenerationIncompleteInputs(t *testing.T) {
	svc, store, queue, _, _ := newAssignmentServiceForTest()
	store.tokens["student-1"] = 30

	created, err := svc.Create(context.Background(), "student-1", dto.CreateAssignmentRequest{BriefID: "brief-1", TargetGrade: models.GradePass})
	require.NoError(t, err)

	_, _, err = svc.StartGeneration(context.Background(), created.ID, "student-1", models.RoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIncompleteInputs.Code, appErrors.FromError(err).Code)
	assert.Empty(t, queue.jobs)
	assert.Equal(t, models.AssignmentDraft, store.assignments[created.ID].Status)
}

func TestAssignmentServiceStartGenerationInsufficientTokens(t *testing.T) {
	svc, store, queue, _, _ := newAssignmentServiceForTest()
	store.tokens["student-1"] = 0

	created, err := svc.Create(context.Background(), "student-1", dto.CreateAssignmentRequest{BriefID: "brief-1", TargetGrade: models.GradePass})
	require.NoError(t, err)
	_, err = svc.SaveInputs(context.Background(), created.ID, "student-1", models.RoleStudent, models.StudentInputs{
		"company_name": "Acme",
		"sector":       "retail",
	})
	require.NoError(t, err)

	_, _, err = svc.StartGeneration(context.Background(), created.ID, "student-1", models.RoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInsufficientTokens.Code, appErrors.FromError(err).Code)
	// Assignment stays DRAFT and no job row was created.
	assert.Equal(t, models.AssignmentDraft, store.assignments[created.ID].Status)
	assert.Empty(t, store.jobs)
	assert.Empty(t, queue.jobs)
}

func TestAssignmentServiceStartGenerationTwiceConflicts(t *testing.T) {
	svc, store, _, _, _ := newAssignmentServiceForTest()
	store.tokens["student-1"] = 100

	created, err := svc.Create(context.Background(), "student-1", dto.CreateAssignmentRequest{BriefID: "brief-1", TargetGrade: models.GradePass})
	require.NoError(t, err)
	_, err = svc.SaveInputs(context.Background(), created.ID, "student-1", models.RoleStudent, models.StudentInputs{
		"company_name": "Acme",
		"sector":       "retail",
	})
	require.NoError(t, err)

	_, _, err = svc.StartGeneration(context.Background(), created.ID, "student-1", models.RoleStudent)
	require.NoError(t, err)
	_, _, err = svc.StartGeneration(context.Background(), created.ID, "student-1", models.RoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestAssignmentServiceSaveInputsLockedAfterGeneration(t *testing.T) {
	svc, store, _, _, _ := newAssignmentServiceForTest()
	store.tokens["student-1"] = 100

	created, err := svc.Create(context.Background(), "student-1", dto.CreateAssignmentRequest{BriefID: "brief-1", TargetGrade: models.GradePass})
	require.NoError(t, err)
	_, err = svc.SaveInputs(context.Background(), created.ID, "student-1", models.RoleStudent, models.StudentInputs{
		"company_name": "Acme",
		"sector":       "retail",
	})
	require.NoError(t, err)
	_, _, err = svc.StartGeneration(context.Background(), created.ID, "student-1", models.RoleStudent)
	require.NoError(t, err)

	_, err = svc.SaveInputs(context.Background(), created.ID, "student-1", models.RoleStudent, models.StudentInputs{"company_name": "Changed"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestAssignmentServiceForceComplete(t *testing.T) {
	svc, store, _, publisher, audit := newAssignmentServiceForTest()
	store.tokens["student-1"] = 100

	created, err := svc.Create(context.Background(), "student-1", dto.CreateAssignmentRequest{BriefID: "brief-1", TargetGrade: models.GradePass})
	require.NoError(t, err)
	_, err = svc.SaveInputs(context.Background(), created.ID, "student-1", models.RoleStudent, models.StudentInputs{
		"company_name": "Acme",
		"sector":       "retail",
	})
	require.NoError(t, err)
	start, _, err := svc.StartGeneration(context.Background(), created.ID, "student-1", models.RoleStudent)
	require.NoError(t, err)

	resp, err := svc.ForceComplete(context.Background(), created.ID, "admin-1", "stuck pipeline")
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentCompleted, resp.Status)
	require.NotNil(t, resp.Content)
	assert.Contains(t, *resp.Content, "Force-completed")

	require.NotEmpty(t, publisher.events)
	last := publisher.events[len(publisher.events)-1]
	assert.Equal(t, ws.EventComplete, last.Type)
	assert.Equal(t, start.JobID, last.JobID)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionForceComplete, audit.logs[0].Action)
}

func TestAssignmentServiceCancel(t *testing.T) {
	svc, store, _, publisher, _ := newAssignmentServiceForTest()
	store.tokens["student-1"] = 100

	created, err := svc.Create(context.Background(), "student-1", dto.CreateAssignmentRequest{BriefID: "brief-1", TargetGrade: models.GradePass})
	require.NoError(t, err)
	_, err = svc.SaveInputs(context.Background(), created.ID, "student-1", models.RoleStudent, models.StudentInputs{
		"company_name": "Acme",
		"sector":       "retail",
	})
	require.NoError(t, err)
	_, _, err = svc.StartGeneration(context.Background(), created.ID, "student-1", models.RoleStudent)
	require.NoError(t, err)

	resp, err := svc.Cancel(context.Background(), created.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentFailed, resp.Status)
	require.NotNil(t, resp.ErrorMessage)
	assert.Equal(t, "cancelled by admin", *resp.ErrorMessage)
	// Tokens are not refunded on cancel.
	assert.Equal(t, 90, store.tokens["student-1"])

	last := publisher.events[len(publisher.events)-1]
	assert.Equal(t, ws.EventError, last.Type)
	assert.True(t, last.Terminal())
}

func TestAssignmentServiceRegenerateFromFailed(t *testing.T) {
	svc, store, queue, _, _ := newAssignmentServiceForTest()
	store.tokens["student-1"] = 100

	created, err := svc.Create(context.Background(), "student-1", dto.CreateAssignmentRequest{BriefID: "brief-1", TargetGrade: models.GradePass})
	require.NoError(t, err)
	inputsBefore := models.StudentInputs{"company_name": "Acme", "sector": "retail"}
	_, err = svc.SaveInputs(context.Background(), created.ID, "student-1", models.RoleStudent, inputsBefore)
	require.NoError(t, err)
	start, _, err := svc.StartGeneration(context.Background(), created.ID, "student-1", models.RoleStudent)
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), created.ID, "admin-1")
	require.NoError(t, err)

	regen, err := svc.Regenerate(context.Background(), created.ID, "admin-1")
	require.NoError(t, err)
	assert.NotEqual(t, start.JobID, regen.JobID)
	assert.Equal(t, models.AssignmentGenerating, store.assignments[created.ID].Status)
	// Student inputs survive regeneration untouched, no extra debit.
	assert.Equal(t, inputsBefore, store.assignments[created.ID].StudentInputs)
	assert.Equal(t, 90, store.tokens["student-1"])
	assert.True(t, store.jobs[start.JobID].Superseded)
	require.Len(t, queue.jobs, 2)
}

func TestAssignmentServiceRegenerateRequiresTerminal(t *testing.T) {
	svc, _, _, _, _ := newAssignmentServiceForTest()
	created, err := svc.Create(context.Background(), "student-1", dto.CreateAssignmentRequest{BriefID: "brief-1", TargetGrade: models.GradePass})
	require.NoError(t, err)

	_, err = svc.Regenerate(context.Background(), created.ID, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestAssignmentServiceBulkDelete(t *testing.T) {
	svc, _, _, _, _ := newAssignmentServiceForTest()
	a, err := svc.Create(context.Background(), "student-1", dto.CreateAssignmentRequest{BriefID: "brief-1", TargetGrade: models.GradePass})
	require.NoError(t, err)
	b, err := svc.Create(context.Background(), "student-1", dto.CreateAssignmentRequest{BriefID: "brief-1", TargetGrade: models.GradePass})
	require.NoError(t, err)

	resp, err := svc.BulkDelete(context.Background(), []string{a.ID, b.ID, "missing"}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Requested)
	assert.Equal(t, 2, resp.Affected)
}
