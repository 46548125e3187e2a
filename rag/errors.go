package rag

import "errors"

var (
	// ErrValidationRejected marks content that is not AWS related. It is a
	// user-facing outcome, not a system fault.
	ErrValidationRejected = errors.New("content rejected")
	// ErrExtractionEmpty is returned when a PDF yields no usable text.
	ErrExtractionEmpty = errors.New("no text could be extracted from the PDF")
	// ErrInvalidPDF is returned when the upload cannot be parsed as a PDF.
	ErrInvalidPDF = errors.New("invalid pdf")
	// ErrEmbeddingUnavailable wraps failures of the hosted embedding model.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	// ErrGenerationUnavailable wraps failures of the hosted LLM.
	ErrGenerationUnavailable = errors.New("generation service unavailable")
	// ErrStoreUnavailable wraps persistence failures of the vector store.
	ErrStoreUnavailable = errors.New("vector store unavailable")
	// ErrDimensionMismatch is returned when a vector does not have the
	// dimension the store was created with.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// RejectionError carries the reason a document or query was refused.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string { return e.Reason }

func (e *RejectionError) Unwrap() error { return ErrValidationRejected }
