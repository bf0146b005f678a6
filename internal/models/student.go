package models

import "strings"

// AnswerKind distinguishes free-text answers from image-based ones.
type AnswerKind string

const (
	AnswerKindText  AnswerKind = "text"
	AnswerKindImage AnswerKind = "image"
)

// Student carries one ungraded answer for a batch. Immutable once loaded.
type Student struct {
	Name        string
	ClassNumber string
	Answer      string
	AnswerKind  AnswerKind
	ImageData   []byte
	ImageMIME   string
}

// HasImageAnswer reports whether the student submitted an image payload.
func (s Student) HasImageAnswer() bool {
	return s.AnswerKind == AnswerKindImage && len(s.ImageData) > 0
}

// Validate checks that the student record is gradable.
func (s Student) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrStudentNameEmpty
	}
	if s.AnswerKind == AnswerKindImage {
		if len(s.ImageData) == 0 {
			return ErrStudentAnswerEmpty
		}
		return nil
	}
	if strings.TrimSpace(s.Answer) == "" {
		return ErrStudentAnswerEmpty
	}
	return nil
}

// ReferenceDocument is one raw uploaded reference file, held unprocessed
// until a retrieval request needs it.
type ReferenceDocument struct {
	Name string
	Data []byte
}
