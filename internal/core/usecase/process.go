package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/avdeenko/docqa/internal/core/domain"
	"github.com/avdeenko/docqa/internal/core/ports"
)

type ProcessDocumentUseCase struct {
	store    ports.DocumentStore
	source   ports.DocumentSource
	chunker  ports.Chunker
	embedder ports.Embedder
	index    ports.VectorIndex
	audit    ports.AuditLog

	maxChunkBytes int
	logger        *slog.Logger
}

func NewProcessDocumentUseCase(
	store ports.DocumentStore,
	source ports.DocumentSource,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
	audit ports.AuditLog,
	maxChunkBytes int,
	logger *slog.Logger,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		store:         store,
		source:        source,
		chunker:       chunker,
		embedder:      embedder,
		index:         index,
		audit:         audit,
		maxChunkBytes: maxChunkBytes,
		logger:        logger,
	}
}

// ProcessByURL runs the full extraction pipeline for one document. An
// embedding or indexing failure aborts the run and leaves the document
// failed; nothing partial reaches the index because inserts are one batch.
func (uc *ProcessDocumentUseCase) ProcessByURL(ctx context.Context, docURL string) (*domain.Document, error) {
	if err := validateDocumentURL(docURL); err != nil {
		return nil, err
	}

	docID, err := uc.store.Store(ctx, docURL, filenameFromURL(docURL))
	if err != nil {
		return nil, fmt.Errorf("store document row: %w", err)
	}

	if err := uc.store.UpdateStatus(ctx, docID, domain.StatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("set status=processing: %w", err)
	}

	passages, err := uc.pipeline(ctx, docURL, docID)
	if err != nil {
		if failErr := uc.store.UpdateStatus(ctx, docID, domain.StatusFailed, err.Error()); failErr != nil {
			return nil, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return nil, err
	}

	if err := uc.audit.LogDocument(ctx, docURL, docID); err != nil {
		uc.logger.Warn("audit log document failed", "url", docURL, "error", err)
	}

	if err := uc.store.UpdateStatus(ctx, docID, domain.StatusReady, ""); err != nil {
		return nil, fmt.Errorf("set status=ready: %w", err)
	}

	uc.logger.Info("document processed", "url", docURL, "doc_id", docID, "passages", len(passages))

	return &domain.Document{
		ID:       docID,
		URL:      docURL,
		Filename: filenameFromURL(docURL),
		Status:   domain.StatusReady,
	}, nil
}

func (uc *ProcessDocumentUseCase) pipeline(ctx context.Context, docURL string, docID int64) ([]domain.Passage, error) {
	units, err := uc.source.Extract(ctx, docURL)
	if err != nil {
		return nil, fmt.Errorf("extract document: %w", err)
	}

	chunks := uc.chunker.Chunk(units, uc.maxChunkBytes)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("document produced zero chunks"))
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}

	passages := make([]domain.Passage, len(chunks))
	for i, c := range chunks {
		passages[i] = domain.Passage{
			ID:    fmt.Sprintf("%d_%d", docID, i),
			Text:  c.Text,
			DocID: docID,
			Page:  c.Page,
		}
	}

	if err := uc.index.Insert(ctx, passages, vectors); err != nil {
		return nil, fmt.Errorf("insert into vector index: %w", err)
	}

	if err := uc.store.StorePassages(ctx, passages); err != nil {
		return nil, fmt.Errorf("store passages: %w", err)
	}

	return passages, nil
}
