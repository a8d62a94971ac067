package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/avdeenko/docqa/internal/core/domain"
	"github.com/avdeenko/docqa/internal/core/ports"
)

const (
	vectorTopK    = 100
	maxCandidates = 50

	// fingerprintLen is the prefix used to spot near-duplicate passages
	// across the semantic and lexical result sets.
	fingerprintLen = 150

	keywordOnlyBonus   = 0.5
	lexicalBoostWeight = 1.2
	termBoost          = 0.10
	phraseBoost        = 0.15
	keywordMatchBoost  = 1.5
	pageBoost          = 0.2
	digitBoost         = 0.3
)

// termExpansions widen a query keyword to its common document spellings. A
// hit on an expansion is weaker evidence than the keyword itself.
var termExpansions = map[string][]string{
	"cgpa":         {"gpa", "grade point average"},
	"grade":        {"marks", "score"},
	"grades":       {"marks", "scores"},
	"prerequisite": {"pre-requisite", "prereq"},
	"professor":    {"faculty", "instructor", "lecturer"},
	"fee":          {"fees", "tuition"},
	"syllabus":     {"curriculum", "course outline"},
}

// KeywordExtractor turns a free-form query into search keywords.
type KeywordExtractor func(query string) []string

// HybridRetriever merges dense and lexical retrieval for one query. Semantic
// candidates carry the ranking; keyword-only hits are appended so exact-term
// questions still surface passages the embedding missed.
type HybridRetriever struct {
	embedder ports.Embedder
	vectors  ports.VectorIndex
	keywords ports.KeywordIndex
	extract  KeywordExtractor
	rules    domain.RuleTable
	logger   *slog.Logger
}

func NewHybridRetriever(
	embedder ports.Embedder,
	vectors ports.VectorIndex,
	keywords ports.KeywordIndex,
	extract KeywordExtractor,
	rules domain.RuleTable,
	logger *slog.Logger,
) *HybridRetriever {
	return &HybridRetriever{
		embedder: embedder,
		vectors:  vectors,
		keywords: keywords,
		extract:  extract,
		rules:    rules,
		logger:   logger,
	}
}

// Retrieve returns at most 50 scored candidates, best first, plus the query
// classification that drove the boosts.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, docID *int64) ([]domain.Candidate, domain.QueryType, error) {
	queryType := r.rules.Classify(query)
	keywords := r.extract(query)

	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, queryType, fmt.Errorf("embed query: %w", err)
	}

	semantic, err := r.vectors.Search(ctx, queryVector, vectorTopK, docID)
	if err != nil {
		return nil, queryType, fmt.Errorf("vector search: %w", err)
	}

	lexical, err := r.keywords.Search(ctx, keywords, docID, 0)
	if err != nil {
		// Lexical search is an enrichment pass; losing it degrades
		// ranking, not availability.
		r.logger.Warn("keyword search failed", "error", err)
		lexical = nil
	}

	merged := r.merge(semantic, lexical, keywords)
	if len(merged) == 0 {
		// The answer path recovers from this kind with its context-free
		// tier instead of surfacing it.
		return nil, queryType, domain.WrapError(domain.ErrNoContext, "hybrid retrieve", errors.New("no passages matched"))
	}
	r.applyQueryTypeBoosts(merged, query, queryType)

	sort.SliceStable(merged, func(a, b int) bool { return merged[a].Score > merged[b].Score })
	if len(merged) > maxCandidates {
		merged = merged[:maxCandidates]
	}
	return merged, queryType, nil
}

// merge boosts semantic candidates by lexical evidence and appends
// keyword-only hits, deduplicating by text fingerprint with the first
// occurrence winning.
func (r *HybridRetriever) merge(semantic, lexical []domain.Candidate, keywords []string) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(semantic)+len(lexical))
	seen := make(map[string]struct{}, len(semantic)+len(lexical))

	for _, c := range semantic {
		fp := fingerprint(c.Text)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}

		if kwScore := lexicalScore(c.Text, keywords); kwScore > 0 {
			c.Score += kwScore * lexicalBoostWeight
			c.KeywordMatches = true
		}
		out = append(out, c)
	}

	for _, c := range lexical {
		fp := fingerprint(c.Text)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}

		c.Score += keywordOnlyBonus
		c.KeywordMatches = true
		out = append(out, c)
	}
	return out
}

// lexicalScore rewards exact keyword presence, repeated occurrences and
// expansion-term hits.
func lexicalScore(text string, keywords []string) float64 {
	lower := strings.ToLower(text)
	var score float64
	for _, kw := range keywords {
		if count := strings.Count(lower, kw); count > 0 {
			score += 2.0
			score += 0.5 * float64(count-1)
		}
		for _, expanded := range termExpansions[kw] {
			if strings.Contains(lower, expanded) {
				score += 1.0
			}
		}
	}
	return score
}

func (r *HybridRetriever) applyQueryTypeBoosts(candidates []domain.Candidate, query string, queryType domain.QueryType) {
	rule, hasRule := r.rules.BoostFor(queryType)
	numeric := queryType.Numeric()

	for i := range candidates {
		c := &candidates[i]
		lower := strings.ToLower(c.Text)

		if hasRule {
			for _, term := range rule.Terms {
				if strings.Contains(lower, term) {
					c.Score += termBoost
				}
			}
			for _, phrase := range rule.Phrases {
				if containsPhrase(lower, phrase) {
					c.Score += phraseBoost
				}
			}
		}
		if c.KeywordMatches {
			c.Score += keywordMatchBoost
		}
		if c.Page != nil {
			c.Score += pageBoost
		}
		if numeric && containsDigit(lower) {
			c.Score += digitBoost
		}
	}
}

// containsPhrase requires the phrase to be bounded by whitespace or text
// edges, so "art" does not match inside "party".
func containsPhrase(lower, phrase string) bool {
	start := 0
	for {
		pos := strings.Index(lower[start:], phrase)
		if pos < 0 {
			return false
		}
		pos += start
		end := pos + len(phrase)
		leftOK := pos == 0 || isBoundary(lower[pos-1])
		rightOK := end == len(lower) || isBoundary(lower[end])
		if leftOK && rightOK {
			return true
		}
		start = pos + 1
	}
}

func isBoundary(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '.' || b == ',' || b == ';' || b == ':'
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func fingerprint(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	if len(t) > fingerprintLen {
		t = t[:fingerprintLen]
	}
	return t
}
