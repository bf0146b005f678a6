package models

import (
	"fmt"
	"time"
)

// ElementScore is the graded outcome for a single rubric element.
type ElementScore struct {
	ElementName string `json:"element_name"`
	Score       int    `json:"score"`
	MaxScore    int    `json:"max_score"`
	Feedback    string `json:"feedback"`
	Reasoning   string `json:"reasoning"`
}

// Percentage of the element's maximum that was awarded.
func (e ElementScore) Percentage() float64 {
	if e.MaxScore == 0 {
		return 0
	}
	return float64(e.Score) / float64(e.MaxScore) * 100
}

// GradingResult is the complete outcome for one student. Immutable after
// creation; either produced by successful validation or synthesized as a
// degraded error result when retries are exhausted.
type GradingResult struct {
	StudentName     string         `json:"student_name"`
	ClassNumber     string         `json:"class_number"`
	OriginalAnswer  string         `json:"original_answer,omitempty"`
	ElementScores   []ElementScore `json:"element_scores"`
	TotalScore      int            `json:"total_score"`
	TotalMaxScore   int            `json:"total_max_score"`
	OverallFeedback string         `json:"overall_feedback"`
	GradingDuration time.Duration  `json:"grading_duration"`
	CompletedAt     time.Time      `json:"completed_at"`
}

// NewGradingResult assembles a result and derives its totals from the
// element scores.
func NewGradingResult(student Student, scores []ElementScore, feedback string, duration time.Duration) (GradingResult, error) {
	for _, es := range scores {
		if es.Score < 0 || es.Score > es.MaxScore {
			return GradingResult{}, fmt.Errorf("score %d for %q outside [0, %d]", es.Score, es.ElementName, es.MaxScore)
		}
	}

	result := GradingResult{
		StudentName:     student.Name,
		ClassNumber:     student.ClassNumber,
		OriginalAnswer:  student.Answer,
		ElementScores:   scores,
		OverallFeedback: feedback,
		GradingDuration: duration,
		CompletedAt:     time.Now().UTC(),
	}
	for _, es := range scores {
		result.TotalScore += es.Score
		result.TotalMaxScore += es.MaxScore
	}
	return result, nil
}

// NewErrorResult synthesizes a degraded zero-score result so the batch can
// continue past a student whose retries were exhausted.
func NewErrorResult(student Student, rubric Rubric, diagnostic string, duration time.Duration) GradingResult {
	scores := make([]ElementScore, 0, len(rubric.Elements))
	for _, e := range rubric.Elements {
		scores = append(scores, ElementScore{
			ElementName: e.Name,
			Score:       0,
			MaxScore:    e.MaxScore,
			Feedback:    "no score could be awarded because grading failed",
		})
	}

	result, _ := NewGradingResult(student, scores, fmt.Sprintf("grading failed: %s", diagnostic), duration)
	return result
}
