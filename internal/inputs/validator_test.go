package inputs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradeforge/gradeforge-api/internal/models"
)

func twoFieldSchema() models.InputSchema {
	return models.InputSchema{
		{ID: "company", Kind: models.FieldText, Required: true, MinLength: 3, MaxLength: 50},
		{ID: "sector", Kind: models.FieldSelect, Required: true, Options: []string{"retail", "finance"}},
	}
}

func TestValidateAllRequiredSatisfied(t *testing.T) {
	result := Validate(twoFieldSchema(), models.StudentInputs{
		"company": "Acme Ltd",
		"sector":  "retail",
	})
	assert.True(t, result.Complete)
	assert.Empty(t, result.MissingFields)
}

func TestValidateMissingRequiredField(t *testing.T) {
	result := Validate(twoFieldSchema(), models.StudentInputs{"company": "Acme Ltd"})
	assert.False(t, result.Complete)
	assert.Equal(t, []string{"sector"}, result.MissingFields)
}

func TestValidateEmptyValuesCountAsMissing(t *testing.T) {
	result := Validate(twoFieldSchema(), models.StudentInputs{
		"company": "",
		"sector":  nil,
	})
	assert.False(t, result.Complete)
	assert.Len(t, result.MissingFields, 2)
}

func TestValidateTextLengthBounds(t *testing.T) {
	schema := models.InputSchema{
		{ID: "summary", Kind: models.FieldTextarea, Required: true, MinLength: 5, MaxLength: 10},
	}

	short := Validate(schema, models.StudentInputs{"summary": "abc"})
	require.False(t, short.Complete)
	assert.Equal(t, ReasonTooShort, short.Fields[0].Reason)

	long := Validate(schema, models.StudentInputs{"summary": "abcdefghijkl"})
	require.False(t, long.Complete)
	assert.Equal(t, ReasonTooLong, long.Fields[0].Reason)

	ok := Validate(schema, models.StudentInputs{"summary": "abcdef"})
	assert.True(t, ok.Complete)
}

func TestValidateNumberField(t *testing.T) {
	schema := models.InputSchema{{ID: "budget", Kind: models.FieldNumber, Required: true}}

	assert.True(t, Validate(schema, models.StudentInputs{"budget": 42.5}).Complete)
	assert.True(t, Validate(schema, models.StudentInputs{"budget": "42.5"}).Complete)

	bad := Validate(schema, models.StudentInputs{"budget": "not-a-number"})
	require.False(t, bad.Complete)
	assert.Equal(t, ReasonNotNumeric, bad.Fields[0].Reason)
}

func TestValidateSelectOutsideOptions(t *testing.T) {
	result := Validate(twoFieldSchema(), models.StudentInputs{
		"company": "Acme Ltd",
		"sector":  "aerospace",
	})
	assert.False(t, result.Complete)
	assert.Contains(t, result.MissingFields, "sector")
}

func TestValidateMultiselectSubset(t *testing.T) {
	schema := models.InputSchema{
		{ID: "topics", Kind: models.FieldMultiselect, Required: true, Options: []string{"a", "b", "c"}},
	}

	ok := Validate(schema, models.StudentInputs{"topics": []interface{}{"a", "c"}})
	assert.True(t, ok.Complete)

	bad := Validate(schema, models.StudentInputs{"topics": []interface{}{"a", "z"}})
	require.False(t, bad.Complete)
	assert.Equal(t, ReasonBadOption, bad.Fields[0].Reason)
}

func TestValidateBooleanFalseIsPresent(t *testing.T) {
	schema := models.InputSchema{{ID: "agree", Kind: models.FieldBoolean, Required: true}}
	result := Validate(schema, models.StudentInputs{"agree": false})
	assert.True(t, result.Complete)
}

func TestValidateOptionalInvalidNeverBlocksCompleteness(t *testing.T) {
	schema := models.InputSchema{
		{ID: "company", Kind: models.FieldText, Required: true, MinLength: 3},
		{ID: "notes", Kind: models.FieldText, Required: false, MaxLength: 5},
	}
	result := Validate(schema, models.StudentInputs{
		"company": "Acme Ltd",
		"notes":   "far too long for the limit",
	})
	assert.True(t, result.Complete)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "notes", result.Warnings[0].FieldID)
}

// Filling a previously-missing required field can only move completeness
// false to true, never the other way.
func TestValidateMonotoneCompleteness(t *testing.T) {
	schema := twoFieldSchema()
	partial := models.StudentInputs{"company": "Acme Ltd"}
	require.False(t, Validate(schema, partial).Complete)

	partial["sector"] = "finance"
	assert.True(t, Validate(schema, partial).Complete)
}

func TestValidateEmptySchemaIsComplete(t *testing.T) {
	result := Validate(models.InputSchema{}, models.StudentInputs{})
	assert.True(t, result.Complete)
}
