package dto

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/geomark-lab/geomark-api/internal/models"
)

// CriterionRequest is one score/description pair of a rubric element.
type CriterionRequest struct {
	Score       int    `json:"score" validate:"min=0"`
	Description string `json:"description" validate:"required"`
}

// ElementRequest is one evaluation element of the rubric.
type ElementRequest struct {
	Name     string             `json:"name" validate:"required"`
	Criteria []CriterionRequest `json:"criteria" validate:"required,min=1,dive"`
}

// RubricRequest is the rubric a batch is graded against.
type RubricRequest struct {
	Name     string           `json:"name" validate:"required"`
	Elements []ElementRequest `json:"elements" validate:"required,min=1,dive"`
}

// StudentRequest is one student answer to grade.
type StudentRequest struct {
	Name        string `json:"name" validate:"required"`
	ClassNumber string `json:"class_number"`
	Answer      string `json:"answer"`
	AnswerKind  string `json:"answer_kind" validate:"omitempty,oneof=text image"`
	ImageBase64 string `json:"image_base64"`
	ImageMIME   string `json:"image_mime"`
}

// ReferenceRequest is one uploaded reference document, base64-encoded.
type ReferenceRequest struct {
	Name          string `json:"name" validate:"required"`
	ContentBase64 string `json:"content_base64" validate:"required"`
}

// StartBatchRequest starts one grading batch.
type StartBatchRequest struct {
	Students   []StudentRequest   `json:"students" validate:"required,min=1,dive"`
	Rubric     RubricRequest      `json:"rubric" validate:"required"`
	Provider   string             `json:"provider" validate:"omitempty,oneof=openai anthropic"`
	References []ReferenceRequest `json:"references" validate:"omitempty,dive"`
}

// StartBatchResponse returns the handle for a started batch.
type StartBatchResponse struct {
	BatchID string `json:"batch_id"`
}

// BatchSummaryResponse reports aggregate batch statistics plus per-student detail.
type BatchSummaryResponse struct {
	BatchID           string                   `json:"batch_id"`
	State             models.BatchState        `json:"state"`
	TotalStudents     int                      `json:"total_students"`
	CompletedStudents int                      `json:"completed_students"`
	FailedStudents    int                      `json:"failed_students"`
	SuccessRate       float64                  `json:"success_rate"`
	AverageDuration   string                   `json:"average_duration"`
	Students          []models.StudentSnapshot `json:"students"`
}

// ToStudents converts and validates the request's student list.
func (r StartBatchRequest) ToStudents() ([]models.Student, error) {
	students := make([]models.Student, 0, len(r.Students))
	for i, s := range r.Students {
		kind := models.AnswerKind(s.AnswerKind)
		if kind == "" {
			kind = models.AnswerKindText
		}

		student := models.Student{
			Name:        s.Name,
			ClassNumber: s.ClassNumber,
			Answer:      s.Answer,
			AnswerKind:  kind,
			ImageMIME:   s.ImageMIME,
		}

		if s.ImageBase64 != "" {
			data, err := base64.StdEncoding.DecodeString(s.ImageBase64)
			if err != nil {
				return nil, fmt.Errorf("student %d: invalid image payload: %w", i+1, err)
			}
			student.ImageData = data
		}

		if err := student.Validate(); err != nil {
			return nil, fmt.Errorf("student %d (%s): %w", i+1, s.Name, err)
		}
		students = append(students, student)
	}
	return students, nil
}

// ToRubric converts the request rubric into the domain model, deriving
// element maxima from their criteria.
func (r StartBatchRequest) ToRubric() (models.Rubric, error) {
	elements := make([]models.Element, 0, len(r.Rubric.Elements))
	for _, e := range r.Rubric.Elements {
		criteria := make([]models.Criterion, 0, len(e.Criteria))
		for _, c := range e.Criteria {
			criteria = append(criteria, models.Criterion{Score: c.Score, Description: c.Description})
		}

		element, err := models.NewElement(e.Name, criteria)
		if err != nil {
			return models.Rubric{}, fmt.Errorf("element %q: %w", e.Name, err)
		}
		elements = append(elements, element)
	}
	return models.NewRubric(r.Rubric.Name, elements)
}

// ToCorpus decodes the uploaded reference documents.
func (r StartBatchRequest) ToCorpus() ([]models.ReferenceDocument, error) {
	if len(r.References) == 0 {
		return nil, nil
	}

	corpus := make([]models.ReferenceDocument, 0, len(r.References))
	for _, ref := range r.References {
		data, err := base64.StdEncoding.DecodeString(ref.ContentBase64)
		if err != nil {
			return nil, fmt.Errorf("reference %q: invalid payload: %w", ref.Name, err)
		}
		corpus = append(corpus, models.ReferenceDocument{Name: ref.Name, Data: data})
	}
	return corpus, nil
}

// NewBatchSummaryResponse assembles the summary payload.
func NewBatchSummaryResponse(id string, progress models.BatchProgress, students []models.StudentSnapshot) BatchSummaryResponse {
	successRate := 0.0
	if progress.TotalStudents > 0 {
		successRate = float64(progress.CompletedStudents) / float64(progress.TotalStudents) * 100
	}

	return BatchSummaryResponse{
		BatchID:           id,
		State:             progress.State,
		TotalStudents:     progress.TotalStudents,
		CompletedStudents: progress.CompletedStudents,
		FailedStudents:    progress.FailedStudents,
		SuccessRate:       successRate,
		AverageDuration:   progress.AverageDuration.Round(time.Millisecond).String(),
		Students:          students,
	}
}
