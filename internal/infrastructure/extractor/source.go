package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/avdeenko/docqa/internal/core/domain"
	"github.com/avdeenko/docqa/internal/core/ports"
	"github.com/avdeenko/docqa/internal/infrastructure/extractor/htmlpage"
	"github.com/avdeenko/docqa/internal/infrastructure/extractor/pdf"
	"github.com/avdeenko/docqa/internal/infrastructure/extractor/plaintext"
	"github.com/avdeenko/docqa/internal/infrastructure/extractor/xlsx"
)

// UploadedScheme marks references that live in object storage instead of on
// the network. The rest of the reference is the storage key.
const UploadedScheme = "uploaded://"

// maxDocumentBytes caps one fetched document.
const maxDocumentBytes = 64 << 20

type payloadExtractor interface {
	Extract(ctx context.Context, data []byte) ([]domain.Unit, error)
}

// Source resolves a document reference to bytes and dispatches to the
// format extractor picked by extension or content type.
type Source struct {
	storage ports.ObjectStorage
	client  *http.Client

	pdf   payloadExtractor
	xlsx  payloadExtractor
	html  payloadExtractor
	plain payloadExtractor
}

func NewSource(storage ports.ObjectStorage, client *http.Client) *Source {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Source{
		storage: storage,
		client:  client,
		pdf:     pdf.NewExtractor(),
		xlsx:    xlsx.NewExtractor(),
		html:    htmlpage.NewExtractor(),
		plain:   plaintext.NewExtractor(),
	}
}

func (s *Source) Extract(ctx context.Context, ref string) ([]domain.Unit, error) {
	data, name, contentType, err := s.fetch(ctx, ref)
	if err != nil {
		return nil, err
	}

	switch kindFor(name, contentType) {
	case "pdf":
		return s.wrap(ctx, ref, s.pdf, data)
	case "xlsx":
		return s.wrap(ctx, ref, s.xlsx, data)
	case "html":
		return s.wrap(ctx, ref, s.html, data)
	case "text":
		return s.wrap(ctx, ref, s.plain, data)
	default:
		// Unknown formats get one chance as plain text before being
		// rejected.
		units, err := s.plain.Extract(ctx, data)
		if err != nil {
			return nil, domain.WrapError(domain.ErrUnsupportedFormat, "extract "+ref, err)
		}
		return units, nil
	}
}

func (s *Source) wrap(ctx context.Context, ref string, e payloadExtractor, data []byte) ([]domain.Unit, error) {
	units, err := e.Extract(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", ref, err)
	}
	return units, nil
}

func (s *Source) fetch(ctx context.Context, ref string) (data []byte, name, contentType string, err error) {
	if key, ok := strings.CutPrefix(ref, UploadedScheme); ok {
		rc, err := s.storage.Open(ctx, key)
		if err != nil {
			return nil, "", "", domain.WrapError(domain.ErrDocumentNotFound, "open uploaded document", err)
		}
		defer rc.Close()
		data, err := readBounded(rc)
		if err != nil {
			return nil, "", "", fmt.Errorf("read uploaded document: %w", err)
		}
		return data, key, "", nil
	}

	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		return nil, "", "", domain.WrapError(domain.ErrInvalidInput, "fetch document", fmt.Errorf("unsupported reference %q", ref))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", "", domain.WrapError(domain.ErrInvalidInput, "fetch document", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", "", domain.WrapError(domain.ErrTemporary, "fetch document", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", "", domain.WrapError(domain.ErrTemporary, "fetch document", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	data, err = readBounded(resp.Body)
	if err != nil {
		return nil, "", "", domain.WrapError(domain.ErrTemporary, "fetch document", err)
	}
	urlPath := ref
	if u := req.URL; u != nil {
		urlPath = u.Path
	}
	return data, urlPath, resp.Header.Get("Content-Type"), nil
}

func readBounded(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxDocumentBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxDocumentBytes {
		return nil, errors.New("document exceeds size limit")
	}
	return data, nil
}

func kindFor(name, contentType string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return "pdf"
	case ".xlsx", ".xlsm":
		return "xlsx"
	case ".html", ".htm":
		return "html"
	case ".txt", ".md", ".csv", ".log":
		return "text"
	}
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "pdf"):
		return "pdf"
	case strings.Contains(ct, "spreadsheet"):
		return "xlsx"
	case strings.Contains(ct, "html"):
		return "html"
	case strings.HasPrefix(ct, "text/"):
		return "text"
	}
	return ""
}
