package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/resilience"
)

func newTestModel(url string, dimension int) *EmbeddingModel {
	client := NewWithOptions(url, "nomic-embed-text", Options{
		Resilience: resilience.Config{
			Retry: resilience.RetryPolicy{
				MaxAttempts:    2,
				InitialBackoff: time.Millisecond,
				MaxBackoff:     time.Millisecond,
			},
			Breaker: resilience.BreakerPolicy{Disabled: true},
		},
	})
	return NewEmbeddingModel(client, dimension)
}

func TestEmbedSendsBatchAndReturnsVectorsInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var payload struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload.Model != "nomic-embed-text" {
			t.Fatalf("unexpected model %q", payload.Model)
		}
		out := make([][]float32, 0, len(payload.Input))
		for i := range payload.Input {
			out = append(out, []float32{float32(i), 1, 0})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
	}))
	defer server.Close()

	model := newTestModel(server.URL, 3)
	vectors, err := model.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 || vectors[1][0] != 1 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
	if model.ModelID() != "ollama/nomic-embed-text" {
		t.Fatalf("unexpected model id %q", model.ModelID())
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestModel(server.URL, 0).Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	kind, ok := domain.ProviderErrorKindOf(err)
	if !ok || kind != domain.ProviderUnavailable {
		t.Fatalf("expected unavailable provider error, got %v", err)
	}
}

func TestEmbedTagsQuotaAndRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestModel(server.URL, 0).Embed(context.Background(), []string{"hello"})
	kind, ok := domain.ProviderErrorKindOf(err)
	if !ok || kind != domain.ProviderQuota {
		t.Fatalf("expected quota provider error, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected quota error to be retried, got %d calls", calls.Load())
	}
}

func TestEmbedDoesNotRetryRejectedRequest(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestModel(server.URL, 0).Embed(context.Background(), []string{"hello"})
	var providerErr *domain.ProviderError
	if !errors.As(err, &providerErr) || providerErr.Kind != domain.ProviderRejected {
		t.Fatalf("expected rejected provider error, got %v", err)
	}
	if providerErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", providerErr.StatusCode)
	}
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected wrapped HTTPStatusError")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected single call, got %d", calls.Load())
	}
}

func TestEmbedRejectsDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2]]}`))
	}))
	defer server.Close()

	_, err := newTestModel(server.URL, 768).Embed(context.Background(), []string{"hello"})
	kind, ok := domain.ProviderErrorKindOf(err)
	if !ok || kind != domain.ProviderBadResponse {
		t.Fatalf("expected bad response, got %v", err)
	}
}

func TestEmbedRejectsShortResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2]]}`))
	}))
	defer server.Close()

	_, err := newTestModel(server.URL, 0).Embed(context.Background(), []string{"a", "b"})
	kind, ok := domain.ProviderErrorKindOf(err)
	if !ok || kind != domain.ProviderBadResponse {
		t.Fatalf("expected bad response for count mismatch, got %v", err)
	}
}

func TestEmbedPacingRespectsContext(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{1, 2}}})
	}))
	defer server.Close()

	client := NewWithOptions(server.URL, "nomic-embed-text", Options{RequestsPerSecond: 0.01, Burst: 1})
	model := NewEmbeddingModel(client, 2)

	if _, err := model.Embed(context.Background(), []string{"first"}); err != nil {
		t.Fatalf("first call should use the burst token: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := model.Embed(ctx, []string{"second"})
	var providerErr *domain.ProviderError
	if !errors.As(err, &providerErr) || providerErr.Kind != domain.ProviderTimeout {
		t.Fatalf("expected paced call to time out, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("paced call must not reach the server, calls=%d", calls.Load())
	}
}
