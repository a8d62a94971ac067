package ports

import (
	"context"
	"io"

	"github.com/avdeenko/docqa/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document registration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename string, body io.Reader) (*domain.Document, error)
	Register(ctx context.Context, url string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous extraction and
// indexing.
type DocumentProcessor interface {
	ProcessByURL(ctx context.Context, url string) (*domain.Document, error)
}

// QuestionAnswerer is the inbound contract for answering questions against an
// indexed document.
type QuestionAnswerer interface {
	Answer(ctx context.Context, question string, docID *int64) (*domain.Answer, error)
}
