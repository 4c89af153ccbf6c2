package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/core/ports"
)

type IngestOptions struct {
	DefaultChunkSize int
	DefaultOverlap   int
	MinContentLength int
}

func (o IngestOptions) normalize() IngestOptions {
	if o.DefaultChunkSize <= 0 {
		o.DefaultChunkSize = domain.DefaultChunkSize
	}
	if o.DefaultOverlap < 0 || o.DefaultOverlap >= o.DefaultChunkSize {
		o.DefaultOverlap = domain.DefaultChunkOverlap
	}
	if o.MinContentLength <= 0 {
		o.MinContentLength = domain.MinContentLength
	}
	return o
}

// IngestUseCase owns the write path: chunk, embed, index vectors, persist
// chunks and refresh the tenant's lexical snapshot.
type IngestUseCase struct {
	chunker  ports.Chunker
	embedder ports.Embedder
	vectors  ports.VectorIndex
	store    ports.ChunkStore
	lexical  ports.LexicalIndex
	queue    ports.MessageQueue
	observer ports.RetrievalObserver
	opts     IngestOptions
}

func NewIngestUseCase(
	chunker ports.Chunker,
	embedder ports.Embedder,
	vectors ports.VectorIndex,
	store ports.ChunkStore,
	lexical ports.LexicalIndex,
	queue ports.MessageQueue,
	observer ports.RetrievalObserver,
	opts IngestOptions,
) *IngestUseCase {
	if observer == nil {
		observer = ports.NopObserver{}
	}
	return &IngestUseCase{
		chunker:  chunker,
		embedder: embedder,
		vectors:  vectors,
		store:    store,
		lexical:  lexical,
		queue:    queue,
		observer: observer,
		opts:     opts.normalize(),
	}
}

func (uc *IngestUseCase) Defaults() (chunkSize, overlap int) {
	return uc.opts.DefaultChunkSize, uc.opts.DefaultOverlap
}

// Ingest indexes one document synchronously. Re-ingesting a document
// replaces its chunks; a failed run may be retried with the same request.
func (uc *IngestUseCase) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	start := time.Now()
	result, err := uc.ingest(ctx, req)
	if err != nil {
		uc.observer.ObserveIngest("error", 0, time.Since(start))
		return nil, err
	}
	uc.observer.ObserveIngest("ok", len(result.Chunks), time.Since(start))
	slog.InfoContext(ctx, "document_ingested",
		"tenant_id", result.TenantID,
		"document_id", result.DocumentID,
		"chunks", len(result.Chunks),
		"embedded", result.EmbeddedCount,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return result, nil
}

func (uc *IngestUseCase) ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	tenantID, documentID, err := validateOwnership("ingest", req.TenantID, req.DocumentID)
	if err != nil {
		return nil, err
	}

	chunks, err := uc.chunk(tenantID, documentID, req)
	if err != nil {
		return nil, err
	}

	embeddable, vectors, err := uc.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}

	prior, err := uc.store.ListDocumentChunks(ctx, tenantID, documentID)
	if err != nil {
		return nil, fmt.Errorf("load previous chunks: %w", err)
	}

	if err := uc.upsertVectors(ctx, tenantID, embeddable, vectors); err != nil {
		return nil, err
	}
	if err := uc.persist(ctx, tenantID, documentID, chunks); err != nil {
		if rerr := uc.restoreVectors(ctx, tenantID, documentID, prior); rerr != nil {
			slog.ErrorContext(ctx, "ingest_rollback_failed",
				"tenant_id", tenantID,
				"document_id", documentID,
				"error", rerr,
			)
			return nil, errors.Join(err, fmt.Errorf("restore previous vectors: %w", rerr))
		}
		return nil, err
	}
	if err := uc.pruneVectors(ctx, tenantID, documentID, embeddable); err != nil {
		return nil, err
	}
	if err := uc.RebuildLexical(ctx, tenantID); err != nil {
		return nil, err
	}

	return &domain.IngestResult{
		TenantID:      tenantID,
		DocumentID:    documentID,
		Chunks:        chunks,
		EmbeddedCount: len(embeddable),
		IngestedAt:    time.Now().UTC(),
	}, nil
}

// Enqueue validates an event and hands it to the worker queue.
func (uc *IngestUseCase) Enqueue(ctx context.Context, event domain.DocumentEvent) error {
	if uc.queue == nil {
		return domain.WrapError(domain.ErrTemporary, "enqueue", errors.New("queue is not configured"))
	}
	tenantID, documentID, err := validateOwnership("enqueue", event.TenantID, event.DocumentID)
	if err != nil {
		return err
	}
	event.TenantID, event.DocumentID = tenantID, documentID
	if event.Type == "" {
		event.Type = domain.DocumentEventUpsert
	}
	if event.EnqueuedAt.IsZero() {
		event.EnqueuedAt = time.Now().UTC()
	}
	if err := uc.queue.PublishDocumentEvent(ctx, event); err != nil {
		return domain.WrapError(domain.ErrTemporary, "publish document event", err)
	}
	return nil
}

func validateOwnership(operation, tenantID, documentID string) (string, string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", "", domain.WrapError(domain.ErrInvalidTenantContext, operation, errors.New("tenant id is required"))
	}
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return "", "", domain.WrapError(domain.ErrInvalidInput, operation, errors.New("document id is required"))
	}
	return tenantID, documentID, nil
}
