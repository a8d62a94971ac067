package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/avdeenko/docqa/internal/core/domain"
)

func newAnswerUC(vectors *vectorIndexFake, keywords *keywordIndexFake, generator *generatorFake, audit *auditFake) *AnswerQuestionUseCase {
	retriever := newRetriever(vectors, keywords)
	return NewAnswerQuestionUseCase(retriever, &embedderFake{}, vectors, generator, audit, testLogger())
}

func TestAnswerBuildsPageTaggedContext(t *testing.T) {
	page := 12
	vectors := &vectorIndexFake{results: []domain.Candidate{
		{Text: "tuition fees are 42000 per year", Score: 0.9, Page: &page},
		{Text: "an untagged passage", Score: 0.8},
	}}
	gen := &generatorFake{answer: "42000 per year"}

	got, err := newAnswerUC(vectors, &keywordIndexFake{}, gen, &auditFake{}).Answer(context.Background(), "what are the tuition fees?", nil)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if got.Text != "42000 per year" {
		t.Fatalf("unexpected answer %q", got.Text)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("expected one generation call, got %d", len(gen.prompts))
	}
	prompt := gen.prompts[0]
	if !strings.Contains(prompt, "[Page 12] tuition fees are 42000 per year") {
		t.Fatalf("page tag missing from context:\n%s", prompt)
	}
	if !strings.Contains(prompt, "an untagged passage") {
		t.Fatalf("untagged passage missing from context:\n%s", prompt)
	}
	if !strings.Contains(prompt, "what are the tuition fees?") {
		t.Fatalf("question missing from prompt")
	}
}

func TestAnswerContextSizeFollowsQueryType(t *testing.T) {
	var results []domain.Candidate
	for i := 0; i < 60; i++ {
		results = append(results, domain.Candidate{
			Text:  fmt.Sprintf("unique cgpa cutoff detail number %d repeated across the handbook body", i),
			Score: float64(100-i) / 100,
		})
	}
	vectors := &vectorIndexFake{results: results}
	gen := &generatorFake{answer: "ok"}

	_, err := newAnswerUC(vectors, &keywordIndexFake{}, gen, &auditFake{}).Answer(context.Background(), "what is the cgpa cutoff?", nil)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	// Retrieval caps at 50 and the cgpa context size is 50, so every
	// retrieved candidate lands in the prompt.
	count := strings.Count(gen.prompts[0], "unique cgpa cutoff detail number ")
	if count != 50 {
		t.Fatalf("expected 50 context passages for a cgpa query, got %d", count)
	}
}

func TestAnswerDedupsContextPassages(t *testing.T) {
	dup := "identical passage body used twice"
	vectors := &vectorIndexFake{results: []domain.Candidate{
		{Text: dup, Score: 0.9},
	}}
	keywords := &keywordIndexFake{results: []domain.Candidate{
		{Text: dup, Score: 0.4, KeywordMatches: true},
	}}
	gen := &generatorFake{answer: "ok"}

	_, err := newAnswerUC(vectors, keywords, gen, &auditFake{}).Answer(context.Background(), "identical passage", nil)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if n := strings.Count(gen.prompts[0], dup); n != 1 {
		t.Fatalf("duplicate passage should appear once in context, got %d", n)
	}
}

func TestAnswerReferencesPreferDistinctPages(t *testing.T) {
	p1, p2 := 1, 2
	vectors := &vectorIndexFake{results: []domain.Candidate{
		{Text: "page one best passage", Score: 0.9, Page: &p1},
		{Text: "page one runner-up", Score: 0.85, Page: &p1},
		{Text: "page two passage", Score: 0.8, Page: &p2},
	}}
	gen := &generatorFake{answer: "ok"}

	got, err := newAnswerUC(vectors, &keywordIndexFake{}, gen, &auditFake{}).Answer(context.Background(), "question", nil)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(got.References) != 3 {
		t.Fatalf("expected 3 references, got %d", len(got.References))
	}
	// Distinct pages come first; the same-page runner-up joins later via
	// the score pass.
	if got.References[0].Page == nil || *got.References[0].Page != 1 {
		t.Fatalf("first reference should be page 1")
	}
	if got.References[1].Page == nil || *got.References[1].Page != 2 {
		t.Fatalf("second reference should be page 2, got %+v", got.References[1])
	}
	for _, ref := range got.References {
		if ref.Score == nil {
			t.Fatalf("scored retrieval must produce scored references")
		}
		if len(ref.Text) > referenceMaxBytes {
			t.Fatalf("reference exceeds %d bytes", referenceMaxBytes)
		}
	}
}

func TestAnswerFallsBackToBestPassageWhenGenerationFails(t *testing.T) {
	vectors := &vectorIndexFake{results: []domain.Candidate{
		{Text: "the grading policy awards letter grades on a ten point scale", Score: 0.9},
	}}
	gen := &generatorFake{err: errors.New("all providers down")}

	got, err := newAnswerUC(vectors, &keywordIndexFake{}, gen, &auditFake{}).Answer(context.Background(), "grading policy?", nil)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !strings.HasPrefix(got.Text, "Based on the document: ") {
		t.Fatalf("expected extractive fallback, got %q", got.Text)
	}
	if !strings.Contains(got.Text, "grading policy") {
		t.Fatalf("fallback should carry the best passage, got %q", got.Text)
	}
}

func TestAnswerUsesSearchBestHintWhenRetrievalIsEmpty(t *testing.T) {
	hintPage := 9
	vectors := &vectorIndexFake{
		results: nil,
		best:    []domain.Candidate{{Text: "weakly related passage", Score: 0.004, Page: &hintPage}},
	}
	gen := &generatorFake{answer: "a tentative answer"}

	got, err := newAnswerUC(vectors, &keywordIndexFake{}, gen, &auditFake{}).Answer(context.Background(), "obscure question", nil)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if got.Text != "a tentative answer" {
		t.Fatalf("unexpected answer %q", got.Text)
	}
	if !strings.Contains(gen.prompts[0], "weakly related passage") {
		t.Fatalf("hint passage missing from prompt")
	}
	if len(got.References) != 1 {
		t.Fatalf("expected hint reference, got %d", len(got.References))
	}
	if got.References[0].Score != nil {
		t.Fatalf("hint reference must carry no score")
	}
}

func TestAnswerNoInformationWhenEverythingFails(t *testing.T) {
	vectors := &vectorIndexFake{}
	gen := &generatorFake{err: errors.New("down")}

	got, err := newAnswerUC(vectors, &keywordIndexFake{}, gen, &auditFake{}).Answer(context.Background(), "question", nil)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if got.Text != NoInformationAnswer {
		t.Fatalf("expected terminal fallback, got %q", got.Text)
	}
	if len(got.References) != 0 {
		t.Fatalf("terminal fallback carries no references")
	}
}

func TestAnswerRotatesGeneratorCursor(t *testing.T) {
	vectors := &vectorIndexFake{results: []domain.Candidate{{Text: "ctx passage", Score: 0.9}}}
	gen := &generatorFake{answer: "ok", nextCursor: 2}
	uc := newAnswerUC(vectors, &keywordIndexFake{}, gen, &auditFake{})

	if _, err := uc.Answer(context.Background(), "first question", nil); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if _, err := uc.Answer(context.Background(), "second question", nil); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if gen.cursors[0] != 0 || gen.cursors[1] != 2 {
		t.Fatalf("cursor should carry between calls, got %v", gen.cursors)
	}
}

func TestAnswerLogsQueryForScopedDocument(t *testing.T) {
	vectors := &vectorIndexFake{results: []domain.Candidate{{Text: "passage", Score: 0.9}}}
	audit := &auditFake{}
	docID := int64(5)

	_, err := newAnswerUC(vectors, &keywordIndexFake{}, &generatorFake{answer: "logged"}, audit).Answer(context.Background(), "question", &docID)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(audit.queries) != 1 || audit.queries[0].DocID != 5 || audit.queries[0].Answer != "logged" {
		t.Fatalf("unexpected audit queries %+v", audit.queries)
	}
}

func TestAnswerRejectsEmptyQuestion(t *testing.T) {
	uc := newAnswerUC(&vectorIndexFake{}, &keywordIndexFake{}, &generatorFake{answer: "x"}, &auditFake{})
	_, err := uc.Answer(context.Background(), "   ", nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
