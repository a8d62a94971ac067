package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeneratorSendsPrompt(t *testing.T) {
	var capturedPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		capturedPrompt, _ = payload["prompt"].(string)
		_, _ = w.Write([]byte(`{"response":"  the answer  "}`))
	}))
	defer server.Close()

	gen := NewGenerator(New(server.URL, "gen", "embed"))
	got, err := gen.GenerateFromPrompt(context.Background(), "question about grading?")
	if err != nil {
		t.Fatalf("GenerateFromPrompt() error = %v", err)
	}
	if got != "the answer" {
		t.Fatalf("unexpected answer %q", got)
	}
	if capturedPrompt != "question about grading?" {
		t.Fatalf("unexpected prompt: %s", capturedPrompt)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed"))
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}

	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected HTTPStatusError, got %T", err)
	}
	if !ClassifyError(err).Retryable {
		t.Fatalf("502 should classify as retryable")
	}
}

func TestEmbedQueryReturnsFirstVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed"))
	vec, err := embedder.EmbedQuery(context.Background(), "hello")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vec) != 2 {
		t.Fatalf("unexpected vector %v", vec)
	}
}
