package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"code.sajari.com/docconv"
	"github.com/sirupsen/logrus"

	"github.com/markdave123-py/docchat/internal/core"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv,
// which shells out to poppler's pdftotext and pdfinfo.
type DocconvExtractor struct{}

func NewDocconvExtractor() *DocconvExtractor {
	return &DocconvExtractor{}
}

// ExtractText converts the PDF and reads the page count from pdfinfo metadata.
func (e *DocconvExtractor) ExtractText(ctx context.Context, data []byte) (*core.ExtractedText, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, meta, err := docconv.ConvertPDF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: docconv: %w", core.ErrExtraction, err)
	}

	pages := 0
	if v, ok := meta["Pages"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			pages = n
		} else {
			logrus.WithField("pages", v).Warn("docconv: unparseable page count")
		}
	}

	return &core.ExtractedText{Text: strings.TrimSpace(body), PageCount: pages}, nil
}
