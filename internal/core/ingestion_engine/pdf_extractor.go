package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/markdave123-py/docchat/internal/core"
)

var _ core.DocumentExtractor = (*NativePDFExtractor)(nil)

// NativePDFExtractor reads PDFs in pure Go, page by page.
type NativePDFExtractor struct{}

func NewNativePDFExtractor() *NativePDFExtractor {
	return &NativePDFExtractor{}
}

// ExtractText joins the plain text of every page with newlines.
func (e *NativePDFExtractor) ExtractText(ctx context.Context, data []byte) (out *core.ExtractedText, err error) {
	// the parser panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: malformed pdf: %v", core.ErrExtraction, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %w", core.ErrExtraction, err)
	}

	var sb strings.Builder
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", core.ErrExtraction, i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	return &core.ExtractedText{Text: strings.TrimSpace(sb.String()), PageCount: pages}, nil
}
