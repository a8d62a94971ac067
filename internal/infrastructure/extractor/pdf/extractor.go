package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	lpdf "github.com/ledongthuc/pdf"

	"github.com/avdeenko/docqa/internal/core/domain"
)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract emits one unit per page, 1-based. Pages that fail text extraction
// are skipped rather than failing the document: scanned pages without a text
// layer are common and the rest of the document is still useful.
func (e *Extractor) Extract(_ context.Context, data []byte) ([]domain.Unit, error) {
	reader, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	units := make([]domain.Unit, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pageNo := i
		units = append(units, domain.Unit{Text: text, Page: &pageNo})
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("pdf contains no extractable text")
	}
	return units, nil
}
