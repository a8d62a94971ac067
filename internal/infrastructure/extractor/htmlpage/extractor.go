package htmlpage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/avdeenko/docqa/internal/core/domain"
)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract collects the visible text of the page into a single unit. Script,
// style and head content is skipped.
func (e *Extractor) Extract(_ context.Context, data []byte) ([]domain.Unit, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var b strings.Builder
	collectText(root, &b)

	text := strings.TrimSpace(b.String())
	if text == "" {
		return nil, fmt.Errorf("page contains no visible text")
	}
	return []domain.Unit{{Text: text}}, nil
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "head":
			return
		}
	}
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			b.WriteString(t)
			b.WriteString("\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}
