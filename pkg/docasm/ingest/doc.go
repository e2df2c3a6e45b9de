package ingest

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// DocumentKind tags every annotation produced by the assembler.
const DocumentKind = "document"

// Metadata keys set by the assembler.
const (
	MetaSentence = "sentence"
	MetaID       = "id"
)

// Annotation is a normalized document with its character span.
// Begin and End are inclusive offsets counted in Unicode code points.
// JVM producers count UTF-16 units instead, so for text holding
// characters outside the Basic Multilingual Plane (emoji, for one) their
// End is larger by one per such character.
type Annotation struct {
	Kind       string    `json:"annotatorType"`
	Begin      int       `json:"begin"`
	End        int       `json:"end"`
	Text       string    `json:"result"`
	Metadata   Metadata  `json:"metadata"`
	Embeddings []float32 `json:"embeddings"`
}

// NewDocument builds an annotation spanning all of text.
// It reports false when text is empty; such units produce no annotation.
func NewDocument(text string, meta Metadata) (Annotation, bool) {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return Annotation{}, false
	}
	return Annotation{
		Kind:       DocumentKind,
		Begin:      0,
		End:        n - 1,
		Text:       text,
		Metadata:   meta,
		Embeddings: []float32{},
	}, true
}

// Validate checks that the annotation covers its whole text.
func (a *Annotation) Validate() error {
	if a.Kind != DocumentKind {
		return fmt.Errorf("annotation kind %q, want %q", a.Kind, DocumentKind)
	}

	if a.Text == "" {
		return errors.New("annotation text is required")
	}

	if a.Begin != 0 {
		return fmt.Errorf("annotation begin %d, want 0", a.Begin)
	}

	if want := utf8.RuneCountInString(a.Text) - 1; a.End != want {
		return fmt.Errorf("annotation end %d, want %d", a.End, want)
	}

	return nil
}
