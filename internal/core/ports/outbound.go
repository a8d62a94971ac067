package ports

import (
	"context"
	"io"
	"time"

	"github.com/avdeenko/docqa/internal/core/domain"
)

// DocumentStore persists document rows and their passages. Store is
// idempotent on URL: the same URL always yields the same ID, with the
// filename replaced.
type DocumentStore interface {
	Store(ctx context.Context, url, filename string) (int64, error)
	Lookup(ctx context.Context, url string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id int64, status domain.DocumentStatus, errMessage string) error
	StorePassages(ctx context.Context, passages []domain.Passage) error
}

// ObjectStorage stores raw document bytes.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events keyed by document URL.
type MessageQueue interface {
	PublishDocumentRegistered(ctx context.Context, url string) error
	SubscribeDocumentRegistered(ctx context.Context, handler func(context.Context, string) error) error
}

// DocumentSource extracts ordered (text, page) units from a document
// reference. The reference is either a fetchable URL or an uploaded://
// storage token.
type DocumentSource interface {
	Extract(ctx context.Context, ref string) ([]domain.Unit, error)
}

// Chunker splits units into indexable pieces bounded by maxSize bytes.
type Chunker interface {
	Chunk(units []domain.Unit, maxSize int) []domain.Unit
}

// Embedder builds vectors for passages and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the dense retrieval index.
type VectorIndex interface {
	Insert(ctx context.Context, passages []domain.Passage, vectors [][]float32) error
	Search(ctx context.Context, queryVector []float32, topK int, docID *int64) ([]domain.Candidate, error)
	SearchBest(ctx context.Context, queryVector []float32, topK int, docID *int64) ([]domain.Candidate, error)
	Size() int
}

// KeywordIndex is the lexical scan over indexed passages.
type KeywordIndex interface {
	Search(ctx context.Context, keywords []string, docID *int64, limit int) ([]domain.Candidate, error)
}

// TextGenerator produces an answer from a prompt. The cursor selects the
// starting provider and the returned cursor should seed the next call, so
// consecutive failures rotate through the configured providers.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, cursor int) (string, int, error)
}

// AuditLog records ingestion and query activity for analytics.
type AuditLog interface {
	LogDocument(ctx context.Context, url string, docID int64) error
	LogQuery(ctx context.Context, docID int64, question, answer string) error
	ListDocuments(ctx context.Context) ([]AuditDocument, error)
	ListQueries(ctx context.Context, docID *int64) ([]AuditQuery, error)
	Close() error
}

// AuditDocument is one recorded document registration.
type AuditDocument struct {
	URL      string    `json:"url"`
	DocID    int64     `json:"doc_id"`
	LoggedAt time.Time `json:"logged_at"`
}

// AuditQuery is one recorded question/answer pair.
type AuditQuery struct {
	DocID    int64     `json:"doc_id"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	LoggedAt time.Time `json:"logged_at"`
}
