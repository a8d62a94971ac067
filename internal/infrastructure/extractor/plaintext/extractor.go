package plaintext

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/avdeenko/docqa/internal/core/domain"
)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract treats the payload as UTF-8 text. Plain text carries no page
// structure, so the single unit has no page.
func (e *Extractor) Extract(_ context.Context, data []byte) ([]domain.Unit, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("payload is not valid UTF-8 text")
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}
	return []domain.Unit{{Text: text}}, nil
}
