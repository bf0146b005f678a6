// Package extract turns raw uploaded reference documents into plain text for
// the retrieval pipeline. Binary formats (PDF, DOCX) are the concern of an
// external extraction collaborator and are rejected here with a typed error.
package extract

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/microcosm-cc/bluemonday"
)

// ErrUnsupportedFormat indicates the document's content type cannot be
// extracted by this implementation.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extractor converts a raw document blob into extracted text.
type Extractor interface {
	Extract(name string, data []byte) (string, error)
}

// TextExtractor handles plain-text, markdown and HTML uploads, sniffing the
// content type from the payload rather than trusting the file name.
type TextExtractor struct {
	sanitizer *bluemonday.Policy
}

// NewTextExtractor constructs an extractor with a strict HTML strip policy.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{sanitizer: bluemonday.StrictPolicy()}
}

// Extract returns the document's text content, or ErrUnsupportedFormat for
// content types this extractor cannot read.
func (e *TextExtractor) Extract(name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("document %q is empty", name)
	}

	detected := mimetype.Detect(data)
	switch {
	case detected.Is("text/html"):
		stripped := e.sanitizer.Sanitize(string(data))
		return strings.TrimSpace(html.UnescapeString(stripped)), nil
	case strings.HasPrefix(detected.String(), "text/"):
		return strings.TrimSpace(string(data)), nil
	default:
		return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, name, detected.String())
	}
}
