package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

// DeleteDocument removes a document from every index. It reports
// ErrDocumentNotFound when the tenant had no chunks for it.
func (uc *IngestUseCase) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	tenantID, documentID, err := validateOwnership("delete document", tenantID, documentID)
	if err != nil {
		return err
	}

	if err := uc.vectors.DeleteDocument(ctx, tenantID, documentID); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	removed, err := uc.store.DeleteDocumentChunks(ctx, tenantID, documentID)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := uc.RebuildLexical(ctx, tenantID); err != nil {
		return err
	}
	if removed == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", fmt.Errorf("tenant=%s id=%s", tenantID, documentID))
	}

	slog.InfoContext(ctx, "document_deleted", "tenant_id", tenantID, "document_id", documentID, "chunks", removed)
	return nil
}

// RebuildLexical reloads a tenant's chunks from the store and swaps in a new
// BM25 snapshot. Listing happens inside the index's per-tenant section so
// concurrent rebuilds cannot publish a stale listing over a newer one.
func (uc *IngestUseCase) RebuildLexical(ctx context.Context, tenantID string) error {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.WrapError(domain.ErrInvalidTenantContext, "rebuild lexical", errors.New("tenant id is required"))
	}
	err := uc.lexical.Rebuild(ctx, tenantID, func(ctx context.Context) ([]domain.DocumentChunk, error) {
		chunks, err := uc.store.ListTenantChunks(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("load tenant chunks: %w", err)
		}
		return chunks, nil
	})
	if err != nil {
		return fmt.Errorf("rebuild lexical index: %w", err)
	}
	return nil
}

// WarmUp builds lexical snapshots for every tenant with persisted chunks.
// A tenant that fails is logged and skipped.
func (uc *IngestUseCase) WarmUp(ctx context.Context) error {
	start := time.Now()
	tenants, err := uc.store.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}

	failed := 0
	for _, tenantID := range tenants {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := uc.RebuildLexical(ctx, tenantID); err != nil {
			failed++
			slog.WarnContext(ctx, "lexical_warmup_failed", "tenant_id", tenantID, "error", err)
		}
	}
	slog.InfoContext(ctx, "lexical_warmup_completed",
		"tenants", len(tenants),
		"failed", failed,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return nil
}
