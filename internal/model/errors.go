package model

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a lookup for a document or fragment that does not
// exist. Deleting an absent document also returns it; callers treat it
// as benign.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// DimensionMismatchError reports a vector whose dimensionality does not
// match the index it was submitted to. It is never silently truncated
// or padded over.
type DimensionMismatchError struct {
	Modality Modality
	Want     int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s index expects dimension %d, got %d", e.Modality, e.Want, e.Got)
}

// EmbeddingError wraps a failure of an embedding provider.
type EmbeddingError struct {
	Modality Modality
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding %s content: %v", e.Modality, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// CascadeError reports a cascade delete that could not remove every
// trace of a document. Remaining lists the fragment ids whose registry
// rows survived; their index entries are already gone and will be
// filtered by the read-path existence check.
type CascadeError struct {
	DocumentID string
	Remaining  []string
	Err        error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("cascade delete of document %s left %d fragment rows: %v",
		e.DocumentID, len(e.Remaining), e.Err)
}

func (e *CascadeError) Unwrap() error {
	return e.Err
}
