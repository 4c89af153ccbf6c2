package inmemory

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

func seed(t *testing.T, ix *Index, tenant, doc string, vectors ...[]float32) {
	t.Helper()
	chunks := make([]domain.DocumentChunk, 0, len(vectors))
	embs := make([]domain.EmbeddingVector, 0, len(vectors))
	for i, v := range vectors {
		chunks = append(chunks, domain.DocumentChunk{
			ID:         domain.ChunkID(doc, i),
			TenantID:   tenant,
			DocumentID: doc,
			ChunkIndex: i,
		})
		embs = append(embs, domain.EmbeddingVector{ModelID: "m", Vector: v})
	}
	if err := ix.Upsert(context.Background(), tenant, chunks, embs); err != nil {
		t.Fatalf("upsert: %v", err)
	}
}

func TestQueryRanksByCosineWithinNamespace(t *testing.T) {
	ix := New()
	seed(t, ix, "tenant-a", "doc", []float32{1, 0}, []float32{0.6, 0.8}, []float32{0, 1})
	seed(t, ix, "tenant-b", "other", []float32{1, 0})

	hits, err := ix.Query(context.Background(), "tenant-a", []float32{2, 0}, 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Chunk.ID != "doc:0" || hits[0].Score < 0.999 {
		t.Fatalf("unexpected top hit: %+v", hits[0])
	}
	if hits[1].Chunk.ID != "doc:1" {
		t.Fatalf("unexpected second hit: %+v", hits[1])
	}
	for _, h := range hits {
		if h.Chunk.TenantID != "tenant-a" {
			t.Fatalf("foreign chunk returned: %+v", h.Chunk)
		}
	}
}

func TestUpsertOverwritesSameChunkID(t *testing.T) {
	ix := New()
	seed(t, ix, "t", "doc", []float32{1, 0})
	seed(t, ix, "t", "doc", []float32{0, 1})
	if ix.Len("t") != 1 {
		t.Fatalf("expected overwrite, got %d points", ix.Len("t"))
	}
	hits, _ := ix.Query(context.Background(), "t", []float32{0, 1}, 1)
	if hits[0].Score < 0.999 {
		t.Fatalf("expected overwritten vector, got score %f", hits[0].Score)
	}
}

func TestPruneAndDeleteDocument(t *testing.T) {
	ix := New()
	seed(t, ix, "t", "doc", []float32{1, 0}, []float32{0, 1}, []float32{1, 1})
	seed(t, ix, "t", "keep", []float32{1, 0})

	if err := ix.PruneDocument(context.Background(), "t", "doc", []string{"doc:0"}); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if ix.Len("t") != 2 {
		t.Fatalf("expected 2 points after prune, got %d", ix.Len("t"))
	}
	if err := ix.DeleteDocument(context.Background(), "t", "doc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ix.Len("t") != 1 {
		t.Fatalf("expected only other document left, got %d", ix.Len("t"))
	}
}

func TestRejectsBlankNamespaceAndDimensionMismatch(t *testing.T) {
	ix := New()
	if _, err := ix.Query(context.Background(), "", []float32{1}, 1); !errors.Is(err, domain.ErrInvalidTenantContext) {
		t.Fatalf("expected invalid tenant context, got %v", err)
	}
	seed(t, ix, "t", "doc", []float32{1, 0})
	if _, err := ix.Query(context.Background(), "t", []float32{1, 0, 0}, 1); !errors.Is(err, domain.ErrVectorIndexUnavailable) {
		t.Fatalf("expected vector index unavailable for dimension mismatch, got %v", err)
	}
}
