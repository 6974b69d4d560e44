package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerationUnlocked(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name        string
		inputs      InputSchema
		completedAt *time.Time
		want        bool
	}{
		{name: "no schema", inputs: nil, completedAt: nil, want: true},
		{
			name:        "all fields optional",
			inputs:      InputSchema{{ID: "notes", Kind: FieldText}},
			completedAt: nil,
			want:        true,
		},
		{
			name:        "required field incomplete",
			inputs:      InputSchema{{ID: "company_name", Kind: FieldText, Required: true}},
			completedAt: nil,
			want:        false,
		},
		{
			name:        "required field complete",
			inputs:      InputSchema{{ID: "company_name", Kind: FieldText, Required: true}},
			completedAt: &now,
			want:        true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := &Assignment{
				BriefSnapshot:            BriefSnapshot{RequiredInputs: tc.inputs},
				StudentInputsCompletedAt: tc.completedAt,
			}
			assert.Equal(t, tc.want, a.GenerationUnlocked())
		})
	}
}
