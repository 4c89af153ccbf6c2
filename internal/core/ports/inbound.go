package ports

import (
	"context"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

// Retriever is the inbound contract for tenant-scoped hybrid search.
type Retriever interface {
	Retrieve(ctx context.Context, tenantID, query string, topK int) (*domain.RetrievalResult, error)
}

// DocumentIngestor is the inbound contract for indexing and removing documents.
type DocumentIngestor interface {
	Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error)
	DeleteDocument(ctx context.Context, tenantID, documentID string) error
}

// IndexMaintainer rebuilds derived indexes from persisted chunks.
type IndexMaintainer interface {
	RebuildLexical(ctx context.Context, tenantID string) error
	WarmUp(ctx context.Context) error
}

// DocumentEnqueuer hands a document event to the asynchronous worker path.
type DocumentEnqueuer interface {
	Enqueue(ctx context.Context, event domain.DocumentEvent) error
}
