package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/avdeenko/docqa/internal/core/domain"
	"github.com/avdeenko/docqa/internal/core/ports"
)

const (
	maxReferences      = 10
	referenceMaxBytes  = 400
	fallbackMaxBytes   = 500
	contextFingerprint = 200

	referenceScoreCutoff = 0.3

	// NoInformationAnswer is the terminal fallback when neither retrieval
	// nor generation produced anything usable.
	NoInformationAnswer = "No information found in the document to answer this question."
)

type AnswerQuestionUseCase struct {
	retriever *HybridRetriever
	embedder  ports.Embedder
	vectors   ports.VectorIndex
	generator ports.TextGenerator
	audit     ports.AuditLog
	logger    *slog.Logger

	// cursor remembers which generation provider answered last. It is the
	// only rotation state; the generator itself is stateless.
	cursor atomic.Int64
}

func NewAnswerQuestionUseCase(
	retriever *HybridRetriever,
	embedder ports.Embedder,
	vectors ports.VectorIndex,
	generator ports.TextGenerator,
	audit ports.AuditLog,
	logger *slog.Logger,
) *AnswerQuestionUseCase {
	return &AnswerQuestionUseCase{
		retriever: retriever,
		embedder:  embedder,
		vectors:   vectors,
		generator: generator,
		audit:     audit,
		logger:    logger,
	}
}

// Answer never returns an empty result for a well-formed question: retrieval
// and generation failures degrade through fallbacks instead of surfacing.
func (uc *AnswerQuestionUseCase) Answer(ctx context.Context, question string, docID *int64) (*domain.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer question", fmt.Errorf("empty question"))
	}

	candidates, queryType, err := uc.retriever.Retrieve(ctx, question, docID)
	switch {
	case err == nil:
	case domain.IsKind(err, domain.ErrNoContext):
		candidates = nil
	default:
		uc.logger.Warn("retrieval failed, continuing without candidates", "error", err)
		candidates = nil
	}

	var answer *domain.Answer
	if len(candidates) == 0 {
		answer = uc.answerWithoutContext(ctx, question, docID)
	} else {
		answer = uc.answerWithContext(ctx, question, queryType, candidates)
	}

	if docID != nil {
		if err := uc.audit.LogQuery(ctx, *docID, question, answer.Text); err != nil {
			uc.logger.Warn("audit log query failed", "error", err)
		}
	}
	return answer, nil
}

func (uc *AnswerQuestionUseCase) answerWithContext(ctx context.Context, question string, queryType domain.QueryType, candidates []domain.Candidate) *domain.Answer {
	contextText := buildContext(candidates, queryType.ContextSize())
	prompt := buildAnswerPrompt(question, contextText, queryType)

	text, err := uc.generate(ctx, prompt)
	if err != nil {
		uc.logger.Warn("generation failed, serving best passage", "error", err)
		best := candidates[0]
		return &domain.Answer{
			Text:       "Based on the document: " + truncateBytes(best.Text, fallbackMaxBytes),
			References: selectReferences(candidates),
		}
	}

	return &domain.Answer{
		Text:       text,
		References: selectReferences(candidates),
	}
}

// answerWithoutContext is the tier for an empty retrieval: the closest
// passage regardless of score becomes a hint and the question is answered
// context-free. Its reference carries no score because none was assigned.
func (uc *AnswerQuestionUseCase) answerWithoutContext(ctx context.Context, question string, docID *int64) *domain.Answer {
	var hint *domain.Candidate
	if queryVector, err := uc.embedder.EmbedQuery(ctx, question); err == nil {
		if best, err := uc.vectors.SearchBest(ctx, queryVector, 1, docID); err == nil && len(best) > 0 {
			hint = &best[0]
		}
	}

	prompt := buildHintPrompt(question, hint)
	text, err := uc.generate(ctx, prompt)
	if err != nil {
		uc.logger.Warn("context-free generation failed", "error", err)
		return &domain.Answer{Text: NoInformationAnswer, References: []domain.Reference{}}
	}

	references := []domain.Reference{}
	if hint != nil {
		references = append(references, domain.Reference{
			Text: truncateBytes(hint.Text, referenceMaxBytes),
			Page: hint.Page,
		})
	}
	return &domain.Answer{Text: text, References: references}
}

func (uc *AnswerQuestionUseCase) generate(ctx context.Context, prompt string) (string, error) {
	cursor := int(uc.cursor.Load())
	text, next, err := uc.generator.Generate(ctx, prompt, cursor)
	uc.cursor.Store(int64(next))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty generation result")
	}
	return text, nil
}

// buildContext renders up to n deduplicated passages, each tagged with its
// page when known.
func buildContext(candidates []domain.Candidate, n int) string {
	seen := make(map[string]struct{}, n)
	var parts []string
	for _, c := range candidates {
		fp := strings.ToLower(strings.TrimSpace(c.Text))
		if len(fp) > contextFingerprint {
			fp = fp[:contextFingerprint]
		}
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}

		if c.Page != nil {
			parts = append(parts, fmt.Sprintf("[Page %d] %s", *c.Page, c.Text))
		} else {
			parts = append(parts, c.Text)
		}
		if len(parts) == n {
			break
		}
	}
	return strings.Join(parts, "\n\n")
}

func buildAnswerPrompt(question, contextText string, queryType domain.QueryType) string {
	var extra string
	if queryType == domain.QueryList {
		extra = "\n- Enumerate every matching item found in the context, not just the first few."
	}
	return fmt.Sprintf(`Answer the question using only the context below.

Rules:
- Use nothing but the context; no outside knowledge.
- Reproduce numbers, names and dates exactly as written.
- If the context contains the answer, give it; do not refuse.%s

Context:
%s

Question: %s

Answer:`, extra, contextText, question)
}

func buildHintPrompt(question string, hint *domain.Candidate) string {
	if hint == nil {
		return fmt.Sprintf(`The document index returned nothing for this question. Answer briefly, and say so if the document likely does not cover it.

Question: %s

Answer:`, question)
	}
	return fmt.Sprintf(`The document index returned no confident match for this question. The closest passage is included as a hint; rely on it only if relevant.

Hint passage:
%s

Question: %s

Answer:`, truncateBytes(hint.Text, fallbackMaxBytes), question)
}

// selectReferences picks at most 10 supporting passages: one per distinct
// page first, then high scorers, then keyword matches.
func selectReferences(candidates []domain.Candidate) []domain.Reference {
	picked := make([]int, 0, maxReferences)
	used := make(map[int]struct{}, maxReferences)
	pages := make(map[int]struct{})

	for i, c := range candidates {
		if len(picked) == maxReferences {
			break
		}
		if c.Page == nil {
			continue
		}
		if _, dup := pages[*c.Page]; dup {
			continue
		}
		pages[*c.Page] = struct{}{}
		used[i] = struct{}{}
		picked = append(picked, i)
	}

	for _, pass := range []func(domain.Candidate) bool{
		func(c domain.Candidate) bool { return c.Score > referenceScoreCutoff },
		func(c domain.Candidate) bool { return c.KeywordMatches },
	} {
		for i, c := range candidates {
			if len(picked) == maxReferences {
				break
			}
			if _, dup := used[i]; dup {
				continue
			}
			if !pass(c) {
				continue
			}
			used[i] = struct{}{}
			picked = append(picked, i)
		}
	}

	out := make([]domain.Reference, 0, len(picked))
	for _, i := range picked {
		c := candidates[i]
		score := c.Score
		out = append(out, domain.Reference{
			Text:  truncateBytes(c.Text, referenceMaxBytes),
			Page:  c.Page,
			Score: &score,
		})
	}
	return out
}

// truncateBytes bounds s to n bytes without cutting a codepoint.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
