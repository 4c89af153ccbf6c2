package domain

import (
	"fmt"
	"time"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200

	// MinContentLength is the shortest trimmed text, in code points, that the
	// chunker and the embedding provider accept.
	MinContentLength = 50
)

// DocumentChunk is a contiguous slice of a normalized document. StartChar and
// EndChar are code-point offsets into the NFC-normalized source text.
type DocumentChunk struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
}

func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s:%d", documentID, index)
}

type EmbeddingVector struct {
	ModelID string    `json:"model_id"`
	Vector  []float32 `json:"vector"`
}

func (v EmbeddingVector) Dimension() int {
	return len(v.Vector)
}

// IngestRequest carries one document through chunking and indexing.
type IngestRequest struct {
	TenantID   string
	DocumentID string
	Text       string
	ChunkSize  int
	Overlap    int
}

func NewIngestRequest(tenantID, documentID, text string) IngestRequest {
	return IngestRequest{
		TenantID:   tenantID,
		DocumentID: documentID,
		Text:       text,
		ChunkSize:  DefaultChunkSize,
		Overlap:    DefaultChunkOverlap,
	}
}

type IngestResult struct {
	TenantID      string          `json:"tenant_id"`
	DocumentID    string          `json:"document_id"`
	Chunks        []DocumentChunk `json:"chunks"`
	EmbeddedCount int             `json:"embedded_count"`
	IngestedAt    time.Time       `json:"ingested_at"`
}

type DocumentEventType string

const (
	DocumentEventUpsert DocumentEventType = "upsert"
	DocumentEventDelete DocumentEventType = "delete"
)

// DocumentEvent is the queue message that drives asynchronous ingestion.
// Nil ChunkSize or Overlap falls back to the configured defaults.
type DocumentEvent struct {
	Type       DocumentEventType `json:"type"`
	TenantID   string            `json:"tenant_id"`
	DocumentID string            `json:"document_id"`
	Text       string            `json:"text,omitempty"`
	ChunkSize  *int              `json:"chunk_size,omitempty"`
	Overlap    *int              `json:"overlap,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at,omitzero"`
}

func (e DocumentEvent) IngestRequest(defaultSize, defaultOverlap int) IngestRequest {
	req := IngestRequest{
		TenantID:   e.TenantID,
		DocumentID: e.DocumentID,
		Text:       e.Text,
		ChunkSize:  defaultSize,
		Overlap:    defaultOverlap,
	}
	if e.ChunkSize != nil {
		req.ChunkSize = *e.ChunkSize
	}
	if e.Overlap != nil {
		req.Overlap = *e.Overlap
	}
	return req
}
