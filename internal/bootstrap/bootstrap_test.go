package bootstrap

import (
	"context"
	"strings"
	"testing"

	"github.com/kirillkom/hybrid-retrieval/internal/config"
	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

func localConfig() config.Config {
	cfg := config.Load()
	cfg.StoreBackend = config.BackendMemory
	cfg.VectorBackend = config.BackendMemory
	cfg.EmbeddingBackend = config.BackendHashing
	cfg.EmbeddingDimension = 128
	cfg.NATSEnabled = false
	cfg.RedisAddr = ""
	return cfg
}

func TestNewWiresLocalEngine(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, localConfig(), Observers{})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer app.Close()

	if app.Queue != nil {
		t.Fatal("queue should be nil when NATS is disabled")
	}

	text := strings.Repeat("Tidal energy converts the motion of the sea into electricity. ", 20)
	if _, err := app.Documents.Ingest(ctx, domain.NewIngestRequest("acme", "tides", text)); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	res, err := app.Retriever.Retrieve(ctx, "acme", "tidal electricity", 3)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if res.Empty || len(res.Items) == 0 || len(res.Degraded) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	if err := app.Documents.Enqueue(ctx, domain.DocumentEvent{TenantID: "acme", DocumentID: "x"}); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("enqueue without a queue should be temporary, got %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := localConfig()
	cfg.ChunkOverlap = cfg.ChunkSize
	if _, err := New(context.Background(), cfg, Observers{}); err == nil {
		t.Fatal("expected config validation error")
	}
}
