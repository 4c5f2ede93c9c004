package model

import (
	"encoding/json"
	"strings"
)

// Source identifies which stage produced a field's value.
type Source string

const (
	SourceNone   Source = "none"
	SourceLLM    Source = "llm"
	SourceText   Source = "text"
	SourceMerged Source = "merged"
	SourceManual Source = "manual"
)

// Rank orders sources by trust. Higher wins when deciding whether a later
// stage may overwrite a field.
func (s Source) Rank() int {
	switch s {
	case SourceManual:
		return 4
	case SourceText:
		return 3
	case SourceMerged:
		return 2
	case SourceLLM:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the closed set of sources.
func (s Source) Valid() bool {
	switch s {
	case SourceNone, SourceLLM, SourceText, SourceMerged, SourceManual:
		return true
	}
	return false
}

// UnmarshalJSON accepts the legacy "regex" spelling of SourceText.
func (s *Source) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if strings.EqualFold(raw, "regex") {
		*s = SourceText
		return nil
	}
	*s = Source(raw)
	return nil
}

// Field is a single extracted value with its confidence and provenance.
// A nil Value always carries zero confidence.
type Field[T any] struct {
	Value      *T      `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
	Note       string  `json:"note,omitempty"`
}

// NewField builds a field, clamping confidence to [0,1].
func NewField[T any](v T, confidence float64, src Source) Field[T] {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return Field[T]{Value: &v, Confidence: confidence, Source: src}
}

// Empty returns the null field.
func Empty[T any]() Field[T] {
	return Field[T]{Source: SourceNone}
}

// LLM wraps a model-inferred value. A nil pointer yields an empty llm field.
func LLM[T any](v *T, confidence float64) Field[T] {
	if v == nil {
		return Field[T]{Source: SourceLLM}
	}
	return NewField(*v, confidence, SourceLLM)
}

// Text wraps a value found literally in the document.
func Text[T any](v T, confidence float64) Field[T] {
	return NewField(v, confidence, SourceText)
}

// Manual wraps a human-entered value.
func Manual[T any](v T) Field[T] {
	return NewField(v, 1, SourceManual)
}

// Merged wraps a value combined from more than one source.
func Merged[T any](v T, confidence float64) Field[T] {
	return NewField(v, confidence, SourceMerged)
}

// Nulled returns an empty field carrying a note about why it was cleared.
func Nulled[T any](note string) Field[T] {
	return Field[T]{Source: SourceNone, Note: note}
}

// IsNull reports whether the field has no value.
func (f Field[T]) IsNull() bool {
	return f.Value == nil
}

// Get returns the value and whether it is set.
func (f Field[T]) Get() (T, bool) {
	if f.Value == nil {
		var zero T
		return zero, false
	}
	return *f.Value, true
}

// Or returns the value, or def when the field is null.
func (f Field[T]) Or(def T) T {
	if f.Value == nil {
		return def
	}
	return *f.Value
}

// Present reports whether the field was decoded from JSON at all. Optional
// fields absent from a stored payload have an empty source.
func (f Field[T]) Present() bool {
	return f.Source != ""
}

// Upgradable reports whether a text-sourced candidate may replace the field:
// only empty fields and model guesses are overwritten.
func (f Field[T]) Upgradable() bool {
	return f.Value == nil || f.Source == SourceLLM || f.Source == SourceNone || f.Source == ""
}

// CanUpgradeTo reports whether a candidate from src may replace the field.
// Empty fields accept anything; otherwise src must outrank the current
// source and the current source must be a model guess.
func (f Field[T]) CanUpgradeTo(src Source) bool {
	if f.Value == nil {
		return true
	}
	return f.Upgradable() && src.Rank() > f.Source.Rank()
}
