package core

import (
	"context"
)

// ExtractedText represents the result of text extraction.
type ExtractedText struct {
	Text      string
	PageCount int
}

// DocumentExtractor defines the interface for pulling plain text out of an uploaded file.
type DocumentExtractor interface {
	// ExtractText returns the trimmed full text and page count of a PDF.
	// Unreadable input fails with ErrExtraction; an empty Text is not an error.
	ExtractText(ctx context.Context, data []byte) (*ExtractedText, error)
}
