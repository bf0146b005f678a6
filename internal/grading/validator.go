package grading

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/geomark-lab/geomark-api/internal/models"
)

// ValidationErrorKind classifies why a model response was rejected.
type ValidationErrorKind string

const (
	ValidationNotParseable         ValidationErrorKind = "not_parseable"
	ValidationMissingElement       ValidationErrorKind = "missing_element"
	ValidationScoreOutOfRange      ValidationErrorKind = "score_out_of_range"
	ValidationInsufficientFeedback ValidationErrorKind = "insufficient_feedback"
)

// ValidationError reports a rejected model response. Validation failures are
// always retryable from the orchestrator's point of view.
type ValidationError struct {
	Kind   ValidationErrorKind
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("response validation failed (%s): %s", e.Kind, e.Detail)
}

// ParsedScores is the normalized payload extracted from an accepted response.
type ParsedScores struct {
	Scores    map[string]int
	Reasoning map[string]string
	Feedback  string
}

// ResponseValidator checks a raw model response against the rubric's required
// structure. It is a pure function of its inputs: no I/O, no side effects.
// It fails closed — partial or loosely-shaped payloads are rejected so the
// orchestrator can re-prompt instead of accepting bad data.
type ResponseValidator struct {
	minFeedbackLength int
}

// NewResponseValidator configures the minimum feedback length accepted per
// rubric element.
func NewResponseValidator(minFeedbackLength int) *ResponseValidator {
	if minFeedbackLength < 1 {
		minFeedbackLength = 1
	}
	return &ResponseValidator{minFeedbackLength: minFeedbackLength}
}

// Validate parses the raw response and checks it against the rubric: every
// element scored, every score numeric and within range, non-trivial feedback
// present. Returns the normalized scores only when all checks pass.
func (v *ResponseValidator) Validate(raw string, rubric models.Rubric) (ParsedScores, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return ParsedScores{}, err
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return ParsedScores{}, &ValidationError{Kind: ValidationNotParseable, Detail: fmt.Sprintf("invalid json: %v", err)}
	}

	schema, err := jsonschema.CompileString("grading_response.json", responseSchema)
	if err != nil {
		return ParsedScores{}, &ValidationError{Kind: ValidationNotParseable, Detail: fmt.Sprintf("schema compile: %v", err)}
	}

	if err := schema.Validate(decoded); err != nil {
		return ParsedScores{}, &ValidationError{Kind: ValidationNotParseable, Detail: fmt.Sprintf("schema violation: %v", err)}
	}

	root := decoded.(map[string]interface{})
	rawScores := root["scores"].(map[string]interface{})
	feedback := strings.TrimSpace(root["feedback"].(string))

	rawReasoning := map[string]interface{}{}
	if r, ok := root["reasoning"].(map[string]interface{}); ok {
		rawReasoning = r
	}

	parsed := ParsedScores{
		Scores:    make(map[string]int, len(rubric.Elements)),
		Reasoning: make(map[string]string, len(rubric.Elements)),
		Feedback:  feedback,
	}

	for _, element := range rubric.Elements {
		value, ok := rawScores[element.Name]
		if !ok {
			return ParsedScores{}, &ValidationError{Kind: ValidationMissingElement, Detail: fmt.Sprintf("no score for element %q", element.Name)}
		}

		number, ok := value.(float64)
		if !ok {
			return ParsedScores{}, &ValidationError{Kind: ValidationScoreOutOfRange, Detail: fmt.Sprintf("score for %q is not numeric", element.Name)}
		}
		if number != math.Trunc(number) {
			return ParsedScores{}, &ValidationError{Kind: ValidationScoreOutOfRange, Detail: fmt.Sprintf("score %.2f for %q is not a whole number", number, element.Name)}
		}

		score := int(number)
		if score < 0 || score > element.MaxScore {
			return ParsedScores{}, &ValidationError{Kind: ValidationScoreOutOfRange, Detail: fmt.Sprintf("score %d for %q outside [0, %d]", score, element.Name, element.MaxScore)}
		}

		reasoning := ""
		if r, ok := rawReasoning[element.Name].(string); ok {
			reasoning = strings.TrimSpace(r)
		}
		if len([]rune(reasoning)) < v.minFeedbackLength {
			return ParsedScores{}, &ValidationError{Kind: ValidationInsufficientFeedback, Detail: fmt.Sprintf("reasoning for %q shorter than %d characters", element.Name, v.minFeedbackLength)}
		}

		parsed.Scores[element.Name] = score
		parsed.Reasoning[element.Name] = reasoning
	}

	if len([]rune(feedback)) < v.minFeedbackLength {
		return ParsedScores{}, &ValidationError{Kind: ValidationInsufficientFeedback, Detail: fmt.Sprintf("overall feedback shorter than %d characters", v.minFeedbackLength)}
	}

	return parsed, nil
}

// extractJSON pulls the JSON object out of a response that may be wrapped in
// prose or markdown fences, taking everything between the first '{' and the
// last '}'.
func extractJSON(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return "", &ValidationError{Kind: ValidationNotParseable, Detail: "no JSON object found in response"}
	}
	return raw[start : end+1], nil
}

const responseSchema = `{
	"type": "object",
	"required": ["scores", "feedback"],
	"properties": {
		"scores": {
			"type": "object",
			"additionalProperties": {"type": "number"}
		},
		"reasoning": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		},
		"feedback": {"type": "string"}
	}
}`
