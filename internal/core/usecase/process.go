package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

const rollbackTimeout = 30 * time.Second

// HandleEvent applies one queued document event.
func (uc *IngestUseCase) HandleEvent(ctx context.Context, event domain.DocumentEvent) error {
	switch event.Type {
	case domain.DocumentEventDelete:
		return uc.DeleteDocument(ctx, event.TenantID, event.DocumentID)
	case domain.DocumentEventUpsert, "":
		size, overlap := uc.Defaults()
		_, err := uc.Ingest(ctx, event.IngestRequest(size, overlap))
		return err
	default:
		return domain.WrapError(domain.ErrInvalidInput, "handle event", fmt.Errorf("unknown event type %q", event.Type))
	}
}

func (uc *IngestUseCase) chunk(tenantID, documentID string, req domain.IngestRequest) ([]domain.DocumentChunk, error) {
	chunks, err := uc.chunker.Chunk(tenantID, documentID, req.Text, req.ChunkSize, req.Overlap)
	if err != nil {
		return nil, fmt.Errorf("chunk document: %w", err)
	}
	return chunks, nil
}

// embed returns the chunks that carry enough text to embed, with their
// vectors. A short trailing chunk stays lexical-only.
func (uc *IngestUseCase) embed(ctx context.Context, chunks []domain.DocumentChunk) ([]domain.DocumentChunk, []domain.EmbeddingVector, error) {
	embeddable := make([]domain.DocumentChunk, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if utf8.RuneCountInString(strings.TrimSpace(c.Content)) < uc.opts.MinContentLength {
			slog.DebugContext(ctx, "chunk_not_embedded", "chunk_id", c.ID, "reason", "below minimum length")
			continue
		}
		embeddable = append(embeddable, c)
		texts = append(texts, c.Content)
	}
	if len(texts) == 0 {
		return embeddable, nil, nil
	}

	vectors, err := uc.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, nil, domain.WrapError(
			domain.ErrTemporary,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(texts)),
		)
	}
	return embeddable, vectors, nil
}

// upsertVectors writes the new points. Stale points of the previous version
// stay until prune runs after the chunks are persisted.
func (uc *IngestUseCase) upsertVectors(ctx context.Context, tenantID string, chunks []domain.DocumentChunk, vectors []domain.EmbeddingVector) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := uc.vectors.Upsert(ctx, tenantID, chunks, vectors); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	return nil
}

// pruneVectors drops every point of the document outside chunks, or all of
// them when chunks is empty.
func (uc *IngestUseCase) pruneVectors(ctx context.Context, tenantID, documentID string, chunks []domain.DocumentChunk) error {
	if len(chunks) == 0 {
		if err := uc.vectors.DeleteDocument(ctx, tenantID, documentID); err != nil {
			return fmt.Errorf("clear stale vectors: %w", err)
		}
		return nil
	}
	keep := make([]string, 0, len(chunks))
	for _, c := range chunks {
		keep = append(keep, c.ID)
	}
	if err := uc.vectors.PruneDocument(ctx, tenantID, documentID, keep); err != nil {
		return fmt.Errorf("prune stale vectors: %w", err)
	}
	return nil
}

func (uc *IngestUseCase) persist(ctx context.Context, tenantID, documentID string, chunks []domain.DocumentChunk) error {
	if err := uc.store.ReplaceDocumentChunks(ctx, tenantID, documentID, chunks); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}
	return nil
}

// restoreVectors puts the previously persisted version back into the vector
// index after the new chunks failed to persist. Prior vectors are usually
// served from the embedding cache.
func (uc *IngestUseCase) restoreVectors(ctx context.Context, tenantID, documentID string, prior []domain.DocumentChunk) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	embeddable, vectors, err := uc.embed(ctx, prior)
	if err != nil {
		return err
	}
	if err := uc.upsertVectors(ctx, tenantID, embeddable, vectors); err != nil {
		return err
	}
	return uc.pruneVectors(ctx, tenantID, documentID, embeddable)
}
