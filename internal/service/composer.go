package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gradeforge/gradeforge-api/internal/models"
)

// CourseworkComposer is the built-in deterministic content backend. It
// renders a structured BTEC-style document from the brief snapshot and the
// student inputs; production deployments swap in the real pipeline behind the
// Composer interface.
type CourseworkComposer struct{}

// Compose renders the full document.
func (CourseworkComposer) Compose(_ context.Context, assignment *models.Assignment, job *models.GenerationJob) (string, error) {
	var b strings.Builder
	snapshot := assignment.BriefSnapshot

	fmt.Fprintf(&b, "# %s\n\n", snapshot.Title)
	fmt.Fprintf(&b, "Level %d coursework, target grade %s.\n\n", snapshot.Level, assignment.TargetGrade)
	if snapshot.Scenario != "" {
		fmt.Fprintf(&b, "## Scenario\n\n%s\n\n", snapshot.Scenario)
	}

	if len(assignment.StudentInputs) > 0 {
		b.WriteString("## Project Details\n\n")
		keys := make([]string, 0, len(assignment.StudentInputs))
		for k := range assignment.StudentInputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", fieldLabel(snapshot.RequiredInputs, k), assignment.StudentInputs[k])
		}
		b.WriteString("\n")
	}

	for _, section := range sectionsForGrade(assignment.TargetGrade) {
		fmt.Fprintf(&b, "## %s\n\n", section)
		fmt.Fprintf(&b, "This section addresses %s in the context of %q at level %d.\n\n",
			strings.ToLower(section), snapshot.Title, snapshot.Level)
	}

	fmt.Fprintf(&b, "---\nWord target: %d\n", job.TargetWordCount)
	return b.String(), nil
}

// sectionsForGrade returns the document outline for a grade tier. Higher
// tiers add analysis and evaluation sections on top of the pass criteria.
func sectionsForGrade(grade models.TargetGrade) []string {
	switch grade {
	case models.GradeMerit:
		return []string{"Introduction", "Task Response", "Comparative Analysis", "Conclusion"}
	case models.GradeDistinction:
		return []string{"Introduction", "Task Response", "Comparative Analysis", "Critical Evaluation", "Recommendations", "Conclusion"}
	default:
		return []string{"Introduction", "Task Response", "Conclusion"}
	}
}

func fieldLabel(schema models.InputSchema, fieldID string) string {
	for _, def := range schema {
		if def.ID == fieldID && def.Label != "" {
			return def.Label
		}
	}
	return fieldID
}

// StitchAssembler is the default force-complete policy: it returns whatever
// the pipeline produced so far with an explicit incompleteness marker, rather
// than guessing at unfinished sections.
type StitchAssembler struct{}

// Assemble builds the partial document.
func (StitchAssembler) Assemble(assignment *models.Assignment, job *models.GenerationJob) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", assignment.BriefSnapshot.Title)
	if assignment.Content != nil && *assignment.Content != "" {
		b.WriteString(*assignment.Content)
		b.WriteString("\n\n")
	} else if assignment.BriefSnapshot.Scenario != "" {
		fmt.Fprintf(&b, "## Scenario\n\n%s\n\n", assignment.BriefSnapshot.Scenario)
	}
	fmt.Fprintf(&b, "---\n[Force-completed at stage %q, %d of %d words generated. Later sections may be missing.]\n",
		job.CurrentStage, job.CurrentWordCount, job.TargetWordCount)
	return b.String()
}

// DistinctionApprovalPolicy pauses distinction-tier jobs for a manual
// sign-off before assembly.
type DistinctionApprovalPolicy struct{}

// RequiresApproval implements ApprovalPolicy.
func (DistinctionApprovalPolicy) RequiresApproval(assignment *models.Assignment) bool {
	return assignment.TargetGrade == models.GradeDistinction
}
