package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/avdeenko/docqa/internal/core/domain"
	"github.com/avdeenko/docqa/internal/core/ports"
)

// UploadedScheme marks documents that live in object storage rather than on
// the network. The token doubles as the document URL so the store-by-url
// identity covers uploads too.
const UploadedScheme = "uploaded://"

type IngestDocumentUseCase struct {
	store   ports.DocumentStore
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestDocumentUseCase(
	store ports.DocumentStore,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		store:   store,
		storage: storage,
		queue:   queue,
	}
}

// Upload persists the body, registers a synthetic uploaded:// URL for it and
// queues extraction.
func (uc *IngestDocumentUseCase) Upload(ctx context.Context, filename string, body io.Reader) (*domain.Document, error) {
	storageKey := fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFilename(filename))

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	return uc.register(ctx, UploadedScheme+storageKey, filename)
}

// Register queues extraction for a remote document. The same URL always maps
// to the same document id.
func (uc *IngestDocumentUseCase) Register(ctx context.Context, rawURL string) (*domain.Document, error) {
	if err := validateDocumentURL(rawURL); err != nil {
		return nil, err
	}
	return uc.register(ctx, rawURL, filenameFromURL(rawURL))
}

// validateDocumentURL accepts http(s) URLs and uploaded:// storage tokens.
func validateDocumentURL(rawURL string) error {
	if strings.HasPrefix(rawURL, UploadedScheme) {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return domain.WrapError(domain.ErrInvalidInput, "register document", errors.New("url must be http(s) or uploaded://"))
	}
	return nil
}

func (uc *IngestDocumentUseCase) register(ctx context.Context, docURL, filename string) (*domain.Document, error) {
	id, err := uc.store.Store(ctx, docURL, filename)
	if err != nil {
		return nil, fmt.Errorf("store document row: %w", err)
	}

	if err := uc.queue.PublishDocumentRegistered(ctx, docURL); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	return &domain.Document{
		ID:       id,
		URL:      docURL,
		Filename: filename,
		Status:   domain.StatusUploaded,
	}, nil
}

func filenameFromURL(rawURL string) string {
	if key, ok := strings.CutPrefix(rawURL, UploadedScheme); ok {
		return key
	}
	if parsed, err := url.Parse(rawURL); err == nil {
		if base := path.Base(parsed.Path); base != "." && base != "/" {
			return base
		}
	}
	return "document"
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
