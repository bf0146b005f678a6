package grading

import (
	"fmt"
	"strings"

	"github.com/geomark-lab/geomark-api/internal/models"
)

// Per-passage cap keeps retrieved context from bloating the prompt.
const maxPassageRunes = 300

// PromptBuilder assembles grading prompts from rubric, answer and retrieved
// context. Pure: the same inputs always yield the same prompt.
type PromptBuilder struct{}

// NewPromptBuilder constructs a prompt builder.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildText assembles the prompt for a free-text answer.
func (b *PromptBuilder) BuildText(rubric models.Rubric, answer string, references []string) string {
	builder := strings.Builder{}
	builder.WriteString("You are an expert geography grader. Grade the student's written answer against the rubric below.\n")

	if len(references) > 0 {
		builder.WriteString("\nReference material for grading:\n")
		for i, ref := range references {
			builder.WriteString(fmt.Sprintf("Reference %d: %s\n", i+1, truncatePassage(ref)))
		}
	}

	b.writeRubric(&builder, rubric)

	builder.WriteString("\nStudent answer:\n")
	builder.WriteString(answer)
	builder.WriteString("\n")

	b.writeOutputContract(&builder, rubric)
	return builder.String()
}

// BuildImage assembles the prompt for an image-based (blank map) answer. The
// image itself travels alongside the prompt in the gateway request.
func (b *PromptBuilder) BuildImage(rubric models.Rubric) string {
	builder := strings.Builder{}
	builder.WriteString("You are an expert geography grader. Analyse the student's blank-map answer in the attached image and grade it against the rubric below.\n")

	b.writeRubric(&builder, rubric)

	b.writeOutputContract(&builder, rubric)
	return builder.String()
}

func (b *PromptBuilder) writeRubric(builder *strings.Builder, rubric models.Rubric) {
	builder.WriteString("\nEvaluation rubric:\n")
	for _, element := range rubric.Elements {
		builder.WriteString(fmt.Sprintf("\nElement: %s (max %d points)\n", element.Name, element.MaxScore))
		for _, criterion := range element.Criteria {
			builder.WriteString(fmt.Sprintf("  %d points: %s\n", criterion.Score, criterion.Description))
		}
	}
}

func (b *PromptBuilder) writeOutputContract(builder *strings.Builder, rubric models.Rubric) {
	names := rubric.ElementNames()
	scoreFields := make([]string, 0, len(names))
	reasoningFields := make([]string, 0, len(names))
	for _, name := range names {
		scoreFields = append(scoreFields, fmt.Sprintf("%q: <points>", name))
		reasoningFields = append(reasoningFields, fmt.Sprintf("%q: \"<justification>\"", name))
	}

	builder.WriteString(fmt.Sprintf(`
Respond with exactly this JSON structure:
{
  "scores": {%s},
  "reasoning": {%s},
  "feedback": "<improvement feedback for the student>"
}

Award only scores listed in the rubric for each element. Return JSON only.
`, strings.Join(scoreFields, ", "), strings.Join(reasoningFields, ", ")))
}

func truncatePassage(passage string) string {
	trimmed := strings.TrimSpace(passage)
	runes := []rune(trimmed)
	if len(runes) <= maxPassageRunes {
		return trimmed
	}
	return string(runes[:maxPassageRunes]) + "..."
}
