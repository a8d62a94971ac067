package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/avdeenko/docqa/internal/core/domain"
	"github.com/avdeenko/docqa/internal/core/ports"
)

// Router exposes the document QA pipeline over HTTP. Uploads and URL
// registrations are asynchronous; the queries endpoint processes
// not-yet-ready documents inline so a fresh document can be asked about
// in the same call that names it.
type Router struct {
	ingest    ports.DocumentIngestor
	processor ports.DocumentProcessor
	answerer  ports.QuestionAnswerer
	store     ports.DocumentStore
	audit     ports.AuditLog
	logger    *slog.Logger
}

func NewRouter(
	ingest ports.DocumentIngestor,
	processor ports.DocumentProcessor,
	answerer ports.QuestionAnswerer,
	store ports.DocumentStore,
	audit ports.AuditLog,
	logger *slog.Logger,
) *Router {
	return &Router{
		ingest:    ingest,
		processor: processor,
		answerer:  answerer,
		store:     store,
		audit:     audit,
		logger:    logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("POST /v1/queries", rt.handleQueries)
	mux.HandleFunc("GET /v1/analytics/documents", rt.listDocuments)
	mux.HandleFunc("GET /v1/analytics/queries", rt.listQueries)

	handler := newValidationMiddleware(rt.logger)(mux)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	doc, err := rt.ingest.Upload(r.Context(), fileHeader.Filename, file)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

type queriesRequest struct {
	Documents []string `json:"documents"`
	Questions []string `json:"questions"`
}

type queriesResponse struct {
	Answers []domain.Answer `json:"answers"`
}

func (rt *Router) handleQueries(w http.ResponseWriter, r *http.Request) {
	var req queriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Questions) == 0 {
		writeError(w, http.StatusBadRequest, "at least one question is required")
		return
	}
	for _, q := range req.Questions {
		if strings.TrimSpace(q) == "" {
			writeError(w, http.StatusBadRequest, "questions must not be blank")
			return
		}
	}

	docIDs := make([]int64, 0, len(req.Documents))
	for _, url := range req.Documents {
		id, err := rt.ensureProcessed(r, url)
		if err != nil {
			rt.writeDomainError(w, r, err)
			return
		}
		docIDs = append(docIDs, id)
	}

	// When the request names exactly one document the answers are scoped
	// to it; with several the whole index is searched.
	var scope *int64
	if len(docIDs) == 1 {
		scope = &docIDs[0]
	}

	answers := make([]domain.Answer, 0, len(req.Questions))
	for _, question := range req.Questions {
		answer, err := rt.answerer.Answer(r.Context(), question, scope)
		if err != nil {
			rt.writeDomainError(w, r, err)
			return
		}
		answers = append(answers, *answer)
	}

	writeJSON(w, http.StatusOK, queriesResponse{Answers: answers})
}

// ensureProcessed resolves a query document to its id. An already extracted
// document is reused as is; anything else runs the pipeline inline so the
// same call can answer about it. No ingestion event is published here, so a
// ready document named by repeated queries never re-enters the worker queue.
func (rt *Router) ensureProcessed(r *http.Request, url string) (int64, error) {
	existing, err := rt.store.Lookup(r.Context(), url)
	if err == nil && existing.Status == domain.StatusReady {
		return existing.ID, nil
	}

	processed, err := rt.processor.ProcessByURL(r.Context(), url)
	if err != nil {
		return 0, err
	}
	return processed.ID, nil
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	records, err := rt.audit.ListDocuments(r.Context())
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": records})
}

func (rt *Router) listQueries(w http.ResponseWriter, r *http.Request) {
	var docID *int64
	if raw := r.URL.Query().Get("doc_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "doc_id must be an integer")
			return
		}
		docID = &id
	}

	records, err := rt.audit.ListQueries(r.Context(), docID)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queries": records})
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
