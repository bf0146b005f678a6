package grading_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geomark-lab/geomark-api/internal/grading"
	"github.com/geomark-lab/geomark-api/internal/models"
)

func testRubric(t *testing.T) models.Rubric {
	t.Helper()

	accuracy, err := models.NewElement("accuracy", []models.Criterion{
		{Score: 0, Description: "incorrect"},
		{Score: 5, Description: "mostly correct"},
		{Score: 10, Description: "fully correct"},
	})
	require.NoError(t, err)

	depth, err := models.NewElement("depth", []models.Criterion{
		{Score: 0, Description: "superficial"},
		{Score: 5, Description: "well developed"},
	})
	require.NoError(t, err)

	rubric, err := models.NewRubric("landforms", []models.Element{accuracy, depth})
	require.NoError(t, err)
	return rubric
}

func requireValidationKind(t *testing.T, err error, kind grading.ValidationErrorKind) {
	t.Helper()

	var vErr *grading.ValidationError
	require.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
	require.Equal(t, kind, vErr.Kind)
}

func TestValidate_AcceptsWellFormedResponse(t *testing.T) {
	validator := grading.NewResponseValidator(5)

	raw := `{
		"scores": {"accuracy": 8, "depth": 5},
		"reasoning": {"accuracy": "names all major landforms", "depth": "explains formation processes"},
		"feedback": "Strong answer, add examples from other continents."
	}`

	parsed, err := validator.Validate(raw, testRubric(t))
	require.NoError(t, err)
	require.Equal(t, 8, parsed.Scores["accuracy"])
	require.Equal(t, 5, parsed.Scores["depth"])
	require.Equal(t, "names all major landforms", parsed.Reasoning["accuracy"])
	require.Equal(t, "Strong answer, add examples from other continents.", parsed.Feedback)
}

func TestValidate_ExtractsJSONFromProse(t *testing.T) {
	validator := grading.NewResponseValidator(5)

	raw := "Here is the grading result:\n```json\n" +
		`{"scores": {"accuracy": 10, "depth": 0}, "reasoning": {"accuracy": "perfect coverage", "depth": "no elaboration given"}, "feedback": "Expand on the why, not just the what."}` +
		"\n```\nLet me know if you need anything else."

	parsed, err := validator.Validate(raw, testRubric(t))
	require.NoError(t, err)
	require.Equal(t, 10, parsed.Scores["accuracy"])
	require.Equal(t, 0, parsed.Scores["depth"])
}

func TestValidate_RejectsNonJSON(t *testing.T) {
	validator := grading.NewResponseValidator(5)

	_, err := validator.Validate("I cannot grade this answer.", testRubric(t))
	requireValidationKind(t, err, grading.ValidationNotParseable)
}

func TestValidate_RejectsBrokenJSON(t *testing.T) {
	validator := grading.NewResponseValidator(5)

	_, err := validator.Validate(`{"scores": {"accuracy": 8,}`, testRubric(t))
	requireValidationKind(t, err, grading.ValidationNotParseable)
}

func TestValidate_RejectsMissingElement(t *testing.T) {
	validator := grading.NewResponseValidator(5)

	raw := `{"scores": {"accuracy": 8}, "reasoning": {"accuracy": "good coverage of terms"}, "feedback": "Decent work overall here."}`
	_, err := validator.Validate(raw, testRubric(t))
	requireValidationKind(t, err, grading.ValidationMissingElement)
}

func TestValidate_RejectsScoreOutOfRange(t *testing.T) {
	validator := grading.NewResponseValidator(5)

	cases := []struct {
		name string
		raw  string
	}{
		{
			name: "above max",
			raw:  `{"scores": {"accuracy": 11, "depth": 5}, "reasoning": {"accuracy": "too generous", "depth": "fine reasoning"}, "feedback": "Good answer overall."}`,
		},
		{
			name: "negative",
			raw:  `{"scores": {"accuracy": -1, "depth": 5}, "reasoning": {"accuracy": "negative score", "depth": "fine reasoning"}, "feedback": "Good answer overall."}`,
		},
		{
			name: "fractional",
			raw:  `{"scores": {"accuracy": 7.5, "depth": 5}, "reasoning": {"accuracy": "half points", "depth": "fine reasoning"}, "feedback": "Good answer overall."}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := validator.Validate(tc.raw, testRubric(t))
			requireValidationKind(t, err, grading.ValidationScoreOutOfRange)
		})
	}
}

func TestValidate_RejectsNonNumericScore(t *testing.T) {
	validator := grading.NewResponseValidator(5)

	raw := `{"scores": {"accuracy": "eight", "depth": 5}, "reasoning": {"accuracy": "text score", "depth": "fine reasoning"}, "feedback": "Good answer overall."}`
	_, err := validator.Validate(raw, testRubric(t))
	requireValidationKind(t, err, grading.ValidationNotParseable)
}

func TestValidate_RejectsInsufficientFeedback(t *testing.T) {
	validator := grading.NewResponseValidator(10)

	t.Run("short reasoning", func(t *testing.T) {
		raw := `{"scores": {"accuracy": 8, "depth": 5}, "reasoning": {"accuracy": "ok", "depth": "well reasoned answer"}, "feedback": "Plenty of overall feedback here."}`
		_, err := validator.Validate(raw, testRubric(t))
		requireValidationKind(t, err, grading.ValidationInsufficientFeedback)
	})

	t.Run("short overall feedback", func(t *testing.T) {
		raw := `{"scores": {"accuracy": 8, "depth": 5}, "reasoning": {"accuracy": "thorough reasoning", "depth": "well reasoned answer"}, "feedback": "ok"}`
		_, err := validator.Validate(raw, testRubric(t))
		requireValidationKind(t, err, grading.ValidationInsufficientFeedback)
	})
}

func TestValidate_ZeroScoreIsValid(t *testing.T) {
	validator := grading.NewResponseValidator(5)

	raw := `{"scores": {"accuracy": 0, "depth": 0}, "reasoning": {"accuracy": "nothing correct", "depth": "no development"}, "feedback": "Revise the chapter and try again."}`
	parsed, err := validator.Validate(raw, testRubric(t))
	require.NoError(t, err)
	require.Equal(t, 0, parsed.Scores["accuracy"])
	require.Equal(t, 0, parsed.Scores["depth"])
}
