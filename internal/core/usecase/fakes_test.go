package usecase

import (
	"bytes"
	"context"
	"io"
	"log/slog"

	"github.com/avdeenko/docqa/internal/core/domain"
	"github.com/avdeenko/docqa/internal/core/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type statusCall struct {
	id     int64
	status domain.DocumentStatus
	errMsg string
}

type docStoreFake struct {
	ids         map[string]int64
	next        int64
	statusCalls []statusCall
	passages    []domain.Passage
	storeErr    error
	statusErr   error
}

func newDocStoreFake() *docStoreFake {
	return &docStoreFake{ids: map[string]int64{}}
}

func (f *docStoreFake) Store(_ context.Context, url, _ string) (int64, error) {
	if f.storeErr != nil {
		return 0, f.storeErr
	}
	if id, ok := f.ids[url]; ok {
		return id, nil
	}
	f.next++
	f.ids[url] = f.next
	return f.next, nil
}

func (f *docStoreFake) Lookup(_ context.Context, url string) (*domain.Document, error) {
	id, ok := f.ids[url]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "lookup", io.EOF)
	}
	return &domain.Document{ID: id, URL: url}, nil
}

func (f *docStoreFake) UpdateStatus(_ context.Context, id int64, status domain.DocumentStatus, errMessage string) error {
	f.statusCalls = append(f.statusCalls, statusCall{id: id, status: status, errMsg: errMessage})
	return f.statusErr
}

func (f *docStoreFake) StorePassages(_ context.Context, passages []domain.Passage) error {
	f.passages = append(f.passages, passages...)
	return nil
}

type storageFake struct {
	saved map[string][]byte
	err   error
}

func newStorageFake() *storageFake {
	return &storageFake{saved: map[string][]byte{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.saved[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.saved[key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishDocumentRegistered(_ context.Context, url string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, url)
	return nil
}

func (f *queueFake) SubscribeDocumentRegistered(context.Context, func(context.Context, string) error) error {
	return nil
}

type sourceFake struct {
	units []domain.Unit
	err   error
}

func (f *sourceFake) Extract(context.Context, string) ([]domain.Unit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.units, nil
}

type chunkerFake struct{}

func (chunkerFake) Chunk(units []domain.Unit, _ int) []domain.Unit { return units }

type embedderFake struct {
	queryVector []float32
	queryErr    error
	batchErr    error
	// batchSize overrides the returned vector count when non-zero, to
	// simulate a misbehaving provider.
	batchSize int
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	n := len(texts)
	if f.batchSize != 0 {
		n = f.batchSize
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.queryVector == nil {
		return []float32{0}, nil
	}
	return f.queryVector, nil
}

type vectorIndexFake struct {
	results   []domain.Candidate
	best      []domain.Candidate
	searchErr error
	insertErr error

	inserted []domain.Passage
	vectors  [][]float32
}

func (f *vectorIndexFake) Insert(_ context.Context, passages []domain.Passage, vectors [][]float32) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, passages...)
	f.vectors = append(f.vectors, vectors...)
	return nil
}

func (f *vectorIndexFake) Search(context.Context, []float32, int, *int64) ([]domain.Candidate, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

func (f *vectorIndexFake) SearchBest(context.Context, []float32, int, *int64) ([]domain.Candidate, error) {
	return f.best, nil
}

func (f *vectorIndexFake) Size() int { return len(f.inserted) }

type keywordIndexFake struct {
	results []domain.Candidate
	err     error
}

func (f *keywordIndexFake) Search(context.Context, []string, *int64, int) ([]domain.Candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type generatorFake struct {
	answer     string
	err        error
	nextCursor int

	prompts []string
	cursors []int
}

func (f *generatorFake) Generate(_ context.Context, prompt string, cursor int) (string, int, error) {
	f.prompts = append(f.prompts, prompt)
	f.cursors = append(f.cursors, cursor)
	if f.err != nil {
		return "", cursor, f.err
	}
	return f.answer, f.nextCursor, nil
}

type auditFake struct {
	documents []ports.AuditDocument
	queries   []ports.AuditQuery
	err       error
}

func (f *auditFake) LogDocument(_ context.Context, url string, docID int64) error {
	if f.err != nil {
		return f.err
	}
	f.documents = append(f.documents, ports.AuditDocument{URL: url, DocID: docID})
	return nil
}

func (f *auditFake) LogQuery(_ context.Context, docID int64, question, answer string) error {
	if f.err != nil {
		return f.err
	}
	f.queries = append(f.queries, ports.AuditQuery{DocID: docID, Question: question, Answer: answer})
	return nil
}

func (f *auditFake) ListDocuments(context.Context) ([]ports.AuditDocument, error) {
	return f.documents, nil
}

func (f *auditFake) ListQueries(context.Context, *int64) ([]ports.AuditQuery, error) {
	return f.queries, nil
}

func (f *auditFake) Close() error { return nil }

func simpleKeywords(query string) []string {
	var out []string
	for _, w := range bytes.Fields([]byte(query)) {
		if len(w) > 2 {
			out = append(out, string(bytes.ToLower(w)))
		}
	}
	return out
}
