package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/avdeenko/docqa/internal/core/domain"
	"github.com/avdeenko/docqa/internal/core/ports"
)

// Server exposes the QA pipeline as MCP tools over stdio, so an
// assistant can register documents and ask questions about them
// without going through the HTTP API.
type Server struct {
	ingest    ports.DocumentIngestor
	processor ports.DocumentProcessor
	answerer  ports.QuestionAnswerer
	store     ports.DocumentStore
	audit     ports.AuditLog
	logger    *slog.Logger

	mcp *server.MCPServer
}

func NewServer(
	ingest ports.DocumentIngestor,
	processor ports.DocumentProcessor,
	answerer ports.QuestionAnswerer,
	store ports.DocumentStore,
	audit ports.AuditLog,
	logger *slog.Logger,
) *Server {
	s := &Server{
		ingest:    ingest,
		processor: processor,
		answerer:  answerer,
		store:     store,
		audit:     audit,
		logger:    logger,
	}

	s.mcp = server.NewMCPServer("docqa", "1.0.0", server.WithToolCapabilities(false))

	s.mcp.AddTool(mcp.NewTool("register_document",
		mcp.WithDescription("Register a document by URL and queue it for extraction into the search index."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL of the document to index")),
	), s.registerDocument)

	s.mcp.AddTool(mcp.NewTool("ask_document",
		mcp.WithDescription("Answer a question from the indexed documents. Pass document_url to scope the answer to one document; it is registered and processed on first sight."),
		mcp.WithString("question", mcp.Required(), mcp.Description("the question to answer")),
		mcp.WithString("document_url", mcp.Description("optional document URL to scope the answer to")),
	), s.askDocument)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List every document registered so far."),
	), s.listDocuments)

	return s
}

// ServeStdio blocks until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if existing, lookupErr := s.store.Lookup(ctx, url); lookupErr == nil && existing.Status == domain.StatusReady {
		return mcp.NewToolResultText(fmt.Sprintf("document %d (%s) is %s", existing.ID, existing.Filename, existing.Status)), nil
	}

	doc, err := s.ingest.Register(ctx, url)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("document %d (%s) is queued for extraction", doc.ID, doc.Filename)), nil
}

func (s *Server) askDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var scope *int64
	if url := req.GetString("document_url", ""); url != "" {
		doc, err := s.processDocument(ctx, url)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		scope = &doc.ID
	}

	answer, err := s.answerer.Answer(ctx, question, scope)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(renderAnswer(answer)), nil
}

func (s *Server) listDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	records, err := s.audit.ListDocuments(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}

// processDocument resolves a URL for ask_document, running the pipeline
// inline when the document is not ready yet. It never publishes an
// ingestion event, so asking about a ready document queues nothing.
func (s *Server) processDocument(ctx context.Context, url string) (*domain.Document, error) {
	existing, err := s.store.Lookup(ctx, url)
	if err == nil && existing.Status == domain.StatusReady {
		return existing, nil
	}
	return s.processor.ProcessByURL(ctx, url)
}

func renderAnswer(answer *domain.Answer) string {
	var b strings.Builder
	b.WriteString(answer.Text)
	if len(answer.References) > 0 {
		b.WriteString("\n\nReferences:")
		for _, ref := range answer.References {
			b.WriteString("\n- ")
			if ref.Page != nil {
				fmt.Fprintf(&b, "[Page %d] ", *ref.Page)
			}
			b.WriteString(ref.Text)
		}
	}
	return b.String()
}
