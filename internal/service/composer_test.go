package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradeforge/gradeforge-api/internal/models"
)

func composerFixture(grade models.TargetGrade) (*models.Assignment, *models.GenerationJob) {
	return &models.Assignment{
			TargetGrade: grade,
			BriefSnapshot: models.BriefSnapshot{
				Title:    "Unit 5: Data Modelling",
				Scenario: "A regional retailer needs a new inventory system.",
				Level:    3,
				RequiredInputs: models.InputSchema{
					{ID: "company_name", Label: "Company name", Kind: models.FieldText, Required: true},
				},
			},
			StudentInputs: models.StudentInputs{"company_name": "Acme", "sector": "retail"},
		}, &models.GenerationJob{
			TargetWordCount:  2500,
			CurrentStage:     StageWriting,
			CurrentWordCount: 900,
		}
}

func TestCourseworkComposerRendersDocument(t *testing.T) {
	assignment, job := composerFixture(models.GradePass)

	doc, err := CourseworkComposer{}.Compose(context.Background(), assignment, job)
	require.NoError(t, err)
	assert.Contains(t, doc, "# Unit 5: Data Modelling")
	assert.Contains(t, doc, "## Scenario")
	assert.Contains(t, doc, "Company name: Acme")
	// Fields absent from the schema fall back to their raw id.
	assert.Contains(t, doc, "sector: retail")
	assert.Contains(t, doc, "Word target: 2500")
}

func TestCourseworkComposerSectionsByGrade(t *testing.T) {
	for grade, wantSections := range map[models.TargetGrade]int{
		models.GradePass:        3,
		models.GradeMerit:       4,
		models.GradeDistinction: 6,
	} {
		assert.Len(t, sectionsForGrade(grade), wantSections, "grade %s", grade)
	}

	assignment, job := composerFixture(models.GradeDistinction)
	doc, err := CourseworkComposer{}.Compose(context.Background(), assignment, job)
	require.NoError(t, err)
	assert.Contains(t, doc, "## Critical Evaluation")
	assert.Contains(t, doc, "## Recommendations")

	assignment, job = composerFixture(models.GradePass)
	doc, err = CourseworkComposer{}.Compose(context.Background(), assignment, job)
	require.NoError(t, err)
	assert.NotContains(t, doc, "Critical Evaluation")
}

func TestStitchAssemblerMarksPartialOutput(t *testing.T) {
	assignment, job := composerFixture(models.GradeMerit)

	out := StitchAssembler{}.Assemble(assignment, job)
	assert.Contains(t, out, "# Unit 5: Data Modelling")
	assert.Contains(t, out, "## Scenario")
	assert.Contains(t, out, `Force-completed at stage "writing", 900 of 2500 words generated`)
}

func TestDistinctionApprovalPolicy(t *testing.T) {
	policy := DistinctionApprovalPolicy{}
	assert.True(t, policy.RequiresApproval(&models.Assignment{TargetGrade: models.GradeDistinction}))
	assert.False(t, policy.RequiresApproval(&models.Assignment{TargetGrade: models.GradeMerit}))
}
