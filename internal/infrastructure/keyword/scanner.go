package keyword

import (
	"context"
	"sort"
	"strings"

	"github.com/avdeenko/docqa/internal/core/domain"
)

const (
	defaultLimit = 20

	// earlyWindow is the prefix that earns the positional bonus. Course
	// documents front-load headings, so an early hit usually means the
	// passage is about the keyword rather than merely mentioning it.
	earlyWindow = 100
)

// PassageSource exposes the currently indexed passages. The scanner never
// keeps its own copy: lexical search is always a live pass over whatever the
// vector index holds.
type PassageSource interface {
	Passages() []domain.Passage
}

// Scanner is a linear keyword scan over indexed passages.
type Scanner struct {
	source PassageSource
}

func NewScanner(source PassageSource) *Scanner {
	return &Scanner{source: source}
}

// Search scores every passage containing at least one keyword. Each matched
// keyword is worth 0.5, plus 0.3 when it appears inside the early window.
func (s *Scanner) Search(_ context.Context, keywords []string, docID *int64, limit int) ([]domain.Candidate, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	if len(lowered) == 0 {
		return nil, nil
	}

	var out []domain.Candidate
	for _, p := range s.source.Passages() {
		if docID != nil && p.DocID != *docID {
			continue
		}
		score := scorePassage(strings.ToLower(p.Text), lowered)
		if score == 0 {
			continue
		}
		doc := p.DocID
		out = append(out, domain.Candidate{
			Text:           p.Text,
			Score:          score,
			Page:           p.Page,
			DocID:          &doc,
			KeywordMatches: true,
		})
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func scorePassage(lowerText string, keywords []string) float64 {
	var score float64
	for _, kw := range keywords {
		pos := strings.Index(lowerText, kw)
		if pos < 0 {
			continue
		}
		score += 0.5
		if pos < earlyWindow {
			score += 0.3
		}
	}
	return score
}
