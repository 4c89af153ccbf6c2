package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

// ChunkRepository is the durable chunk store every derived index is rebuilt
// from. All statements are scoped by tenant_id.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func requireTenant(operation, tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return domain.WrapError(domain.ErrInvalidTenantContext, operation, errors.New("tenant id is required"))
	}
	return nil
}

func (r *ChunkRepository) ReplaceDocumentChunks(ctx context.Context, tenantID, documentID string, chunks []domain.DocumentChunk) error {
	if err := requireTenant("replace chunks", tenantID); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace chunks tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
DELETE FROM document_chunks
WHERE tenant_id = $1 AND document_id = $2
`, tenantID, documentID); err != nil {
		return fmt.Errorf("delete previous chunks: %w", err)
	}

	now := time.Now().UTC()
	for _, c := range chunks {
		if c.TenantID != tenantID || c.DocumentID != documentID {
			return domain.WrapError(domain.ErrInvalidTenantContext, "replace chunks", fmt.Errorf("chunk %s does not belong to %s/%s", c.ID, tenantID, documentID))
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO document_chunks (
	tenant_id, document_id, chunk_index, content, start_char, end_char, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)
`, tenantID, documentID, c.ChunkIndex, c.Content, c.StartChar, c.EndChar, now); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace chunks tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) ListTenantChunks(ctx context.Context, tenantID string) ([]domain.DocumentChunk, error) {
	if err := requireTenant("list chunks", tenantID); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT document_id, chunk_index, content, start_char, end_char
FROM document_chunks
WHERE tenant_id = $1
ORDER BY document_id, chunk_index
`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	return scanChunks(rows, tenantID)
}

func (r *ChunkRepository) ListDocumentChunks(ctx context.Context, tenantID, documentID string) ([]domain.DocumentChunk, error) {
	if err := requireTenant("list document chunks", tenantID); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT document_id, chunk_index, content, start_char, end_char
FROM document_chunks
WHERE tenant_id = $1 AND document_id = $2
ORDER BY chunk_index
`, tenantID, documentID)
	if err != nil {
		return nil, fmt.Errorf("query document chunks: %w", err)
	}
	return scanChunks(rows, tenantID)
}

func scanChunks(rows *sql.Rows, tenantID string) ([]domain.DocumentChunk, error) {
	defer rows.Close()

	out := make([]domain.DocumentChunk, 0, 64)
	for rows.Next() {
		c := domain.DocumentChunk{TenantID: tenantID}
		if err := rows.Scan(&c.DocumentID, &c.ChunkIndex, &c.Content, &c.StartChar, &c.EndChar); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.ID = domain.ChunkID(c.DocumentID, c.ChunkIndex)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func (r *ChunkRepository) DeleteDocumentChunks(ctx context.Context, tenantID, documentID string) (int64, error) {
	if err := requireTenant("delete chunks", tenantID); err != nil {
		return 0, err
	}

	res, err := r.db.ExecContext(ctx, `
DELETE FROM document_chunks
WHERE tenant_id = $1 AND document_id = $2
`, tenantID, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete chunks rows affected: %w", err)
	}
	return affected, nil
}

func (r *ChunkRepository) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT tenant_id
FROM document_chunks
ORDER BY tenant_id
`)
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, tenantID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return out, nil
}
