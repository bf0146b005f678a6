package models

import (
	"errors"
	"strings"
)

var (
	ErrStudentNameEmpty   = errors.New("student name cannot be empty")
	ErrStudentAnswerEmpty = errors.New("student answer cannot be empty")
	ErrRubricNameEmpty    = errors.New("rubric name cannot be empty")
	ErrRubricNoElements   = errors.New("rubric has no evaluation elements")
	ErrCriterionInvalid   = errors.New("criterion score must be non-negative and description non-empty")
)

// Criterion maps one achievable score to its description.
type Criterion struct {
	Score       int
	Description string
}

// Element is a single evaluation element of a rubric. MaxScore always equals
// the highest criterion score declared for the element.
type Element struct {
	Name     string
	Criteria []Criterion
	MaxScore int
}

// NewElement builds an element and derives its max score from the criteria.
func NewElement(name string, criteria []Criterion) (Element, error) {
	if strings.TrimSpace(name) == "" {
		return Element{}, errors.New("element name cannot be empty")
	}
	for _, c := range criteria {
		if c.Score < 0 || strings.TrimSpace(c.Description) == "" {
			return Element{}, ErrCriterionInvalid
		}
	}

	e := Element{Name: name, Criteria: criteria}
	e.recalculate()
	return e, nil
}

func (e *Element) recalculate() {
	e.MaxScore = 0
	for _, c := range e.Criteria {
		if c.Score > e.MaxScore {
			e.MaxScore = c.Score
		}
	}
}

// Rubric is an ordered set of evaluation elements. Immutable for the
// duration of a batch.
type Rubric struct {
	Name     string
	Elements []Element
}

// NewRubric validates and assembles a rubric.
func NewRubric(name string, elements []Element) (Rubric, error) {
	if strings.TrimSpace(name) == "" {
		return Rubric{}, ErrRubricNameEmpty
	}
	if len(elements) == 0 {
		return Rubric{}, ErrRubricNoElements
	}
	return Rubric{Name: name, Elements: elements}, nil
}

// TotalMaxScore is the sum of element maxima.
func (r Rubric) TotalMaxScore() int {
	total := 0
	for _, e := range r.Elements {
		total += e.MaxScore
	}
	return total
}

// ElementNames returns the element names in rubric order.
func (r Rubric) ElementNames() []string {
	names := make([]string, 0, len(r.Elements))
	for _, e := range r.Elements {
		names = append(names, e.Name)
	}
	return names
}
