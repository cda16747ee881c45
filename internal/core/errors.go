package core

import "errors"

var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrExtraction           = errors.New("document extraction failed")
	ErrEmbeddingService     = errors.New("embedding service error")
	ErrCompletionService    = errors.New("completion service error")
	ErrNotFound             = errors.New("not found")
	ErrDimensionMismatch    = errors.New("embedding dimension mismatch")
	ErrInvalidTransition    = errors.New("invalid document status transition")
	ErrUnsupportedFile      = errors.New("only PDF files are supported")
)
