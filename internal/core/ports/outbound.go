package ports

import (
	"context"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

// Chunker splits normalized text into overlapping fixed-size chunks.
type Chunker interface {
	Chunk(tenantID, documentID, text string, size, overlap int) ([]domain.DocumentChunk, error)
}

// EmbeddingModel is a raw embedding backend. It does no caching or input
// validation and returns one vector per input, in order.
type EmbeddingModel interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelID() string
}

// Embedder builds validated, cached vectors for chunks and query text.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error)
	EmbedQuery(ctx context.Context, text string) (domain.EmbeddingVector, error)
	ModelID() string
}

// VectorCache is an optional shared tier behind the in-process embedding cache.
type VectorCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vector []float32) error
}

// VectorIndex stores chunk vectors partitioned by tenant namespace.
type VectorIndex interface {
	Upsert(ctx context.Context, namespace string, chunks []domain.DocumentChunk, vectors []domain.EmbeddingVector) error
	Query(ctx context.Context, namespace string, vector []float32, topN int) ([]domain.ScoredChunk, error)
	DeleteDocument(ctx context.Context, namespace, documentID string) error
	// PruneDocument removes the document's points whose chunk IDs are not in keep.
	PruneDocument(ctx context.Context, namespace, documentID string, keep []string) error
}

// LexicalIndex holds one immutable BM25 snapshot per tenant. Rebuild runs
// load and the swap as one step per tenant; an empty load drops the tenant.
type LexicalIndex interface {
	Rebuild(ctx context.Context, tenantID string, load func(context.Context) ([]domain.DocumentChunk, error)) error
	Query(ctx context.Context, tenantID, queryText string, topN int) ([]domain.ScoredChunk, error)
}

// ChunkStore persists chunks so derived indexes can be rebuilt.
type ChunkStore interface {
	ReplaceDocumentChunks(ctx context.Context, tenantID, documentID string, chunks []domain.DocumentChunk) error
	ListTenantChunks(ctx context.Context, tenantID string) ([]domain.DocumentChunk, error)
	ListDocumentChunks(ctx context.Context, tenantID, documentID string) ([]domain.DocumentChunk, error)
	DeleteDocumentChunks(ctx context.Context, tenantID, documentID string) (int64, error)
	ListTenants(ctx context.Context) ([]string, error)
}

// MessageQueue publishes/consumes document events.
type MessageQueue interface {
	PublishDocumentEvent(ctx context.Context, event domain.DocumentEvent) error
	SubscribeDocumentEvents(ctx context.Context, handler func(context.Context, domain.DocumentEvent) error) error
}
