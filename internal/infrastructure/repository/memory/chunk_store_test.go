package memory

import (
	"context"
	"testing"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

func TestChunkStoreReplaceListDelete(t *testing.T) {
	s := NewChunkStore()
	ctx := context.Background()

	put := func(tenant, doc string, n int) {
		chunks := make([]domain.DocumentChunk, 0, n)
		for i := 0; i < n; i++ {
			chunks = append(chunks, domain.DocumentChunk{ID: domain.ChunkID(doc, i), TenantID: tenant, DocumentID: doc, ChunkIndex: i})
		}
		if err := s.ReplaceDocumentChunks(ctx, tenant, doc, chunks); err != nil {
			t.Fatalf("replace %s/%s: %v", tenant, doc, err)
		}
	}
	put("a", "doc-2", 2)
	put("a", "doc-1", 3)
	put("b", "doc-1", 1)
	put("a", "doc-1", 1)

	chunks, err := s.ListTenantChunks(ctx, "a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chunks) != 3 || chunks[0].ID != "doc-1:0" || chunks[1].ID != "doc-2:0" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}

	doc, err := s.ListDocumentChunks(ctx, "a", "doc-2")
	if err != nil || len(doc) != 2 || doc[1].ID != "doc-2:1" {
		t.Fatalf("list document: %+v err=%v", doc, err)
	}
	if missing, _ := s.ListDocumentChunks(ctx, "a", "missing"); len(missing) != 0 {
		t.Fatalf("expected no chunks for missing document, got %+v", missing)
	}

	tenants, _ := s.ListTenants(ctx)
	if len(tenants) != 2 || tenants[0] != "a" || tenants[1] != "b" {
		t.Fatalf("unexpected tenants: %v", tenants)
	}

	n, err := s.DeleteDocumentChunks(ctx, "b", "doc-1")
	if err != nil || n != 1 {
		t.Fatalf("delete: n=%d err=%v", n, err)
	}
	tenants, _ = s.ListTenants(ctx)
	if len(tenants) != 1 {
		t.Fatalf("expected tenant b to disappear, got %v", tenants)
	}
	if n, _ := s.DeleteDocumentChunks(ctx, "a", "missing"); n != 0 {
		t.Fatalf("expected 0 rows for missing document, got %d", n)
	}
}

func TestChunkStoreRejectsForeignChunks(t *testing.T) {
	s := NewChunkStore()
	err := s.ReplaceDocumentChunks(context.Background(), "a", "doc", []domain.DocumentChunk{{TenantID: "b", DocumentID: "doc"}})
	if !domain.IsKind(err, domain.ErrInvalidTenantContext) {
		t.Fatalf("expected invalid tenant context, got %v", err)
	}
}
