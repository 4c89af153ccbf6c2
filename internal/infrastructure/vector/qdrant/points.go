package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

// pointNamespace seeds the deterministic point IDs, so re-ingesting a chunk
// overwrites its previous point.
var pointNamespace = uuid.MustParse("6f1c7c2e-5a0b-4c43-9d51-2f8e4b7d9a10")

func PointID(namespace, chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(namespace+"|"+chunkID)).String()
}

type pointPayload struct {
	TenantID   string `json:"tenant_id"`
	DocumentID string `json:"document_id"`
	ChunkID    string `json:"chunk_id"`
	ChunkIndex int    `json:"chunk_index"`
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
	Content    string `json:"content"`
	ModelID    string `json:"model_id"`
}

type point struct {
	ID      string       `json:"id"`
	Vector  []float32    `json:"vector"`
	Payload pointPayload `json:"payload"`
}

func tenantCondition(namespace string) map[string]any {
	return map[string]any{"key": "tenant_id", "match": map[string]any{"value": namespace}}
}

func documentCondition(documentID string) map[string]any {
	return map[string]any{"key": "document_id", "match": map[string]any{"value": documentID}}
}

func validNamespace(operation, namespace string) error {
	if strings.TrimSpace(namespace) == "" {
		return domain.WrapError(domain.ErrInvalidTenantContext, "qdrant "+operation, errors.New("namespace is required"))
	}
	return nil
}

func (c *Client) Upsert(ctx context.Context, namespace string, chunks []domain.DocumentChunk, vectors []domain.EmbeddingVector) error {
	if err := validNamespace("upsert", namespace); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", fmt.Errorf("chunks/vectors mismatch: %d != %d", len(chunks), len(vectors)))
	}

	if err := c.ensureCollection(ctx, vectors[0].Dimension()); err != nil {
		return unavailable("ensure collection", err)
	}

	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		if chunk.TenantID != namespace {
			return domain.WrapError(domain.ErrInvalidTenantContext, "qdrant upsert", fmt.Errorf("chunk %s belongs to another tenant", chunk.ID))
		}
		points = append(points, point{
			ID:     PointID(namespace, chunk.ID),
			Vector: vectors[i].Vector,
			Payload: pointPayload{
				TenantID:   namespace,
				DocumentID: chunk.DocumentID,
				ChunkID:    chunk.ID,
				ChunkIndex: chunk.ChunkIndex,
				StartChar:  chunk.StartChar,
				EndChar:    chunk.EndChar,
				Content:    chunk.Content,
				ModelID:    vectors[i].ModelID,
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	if err := c.do(ctx, "upsert", http.MethodPut, path, map[string]any{"points": points}, nil); err != nil {
		return unavailable("upsert", err)
	}
	return nil
}

// Query always filters on the tenant namespace. A collection that does not
// exist yet holds no points, so it yields an empty result.
func (c *Client) Query(ctx context.Context, namespace string, vector []float32, topN int) ([]domain.ScoredChunk, error) {
	if err := validNamespace("search", namespace); err != nil {
		return nil, err
	}
	if topN <= 0 {
		return []domain.ScoredChunk{}, nil
	}

	reqBody := map[string]any{
		"vector":       vector,
		"limit":        topN,
		"with_payload": true,
		"filter": map[string]any{
			"must": []map[string]any{tenantCondition(namespace)},
		},
	}

	var searchResp struct {
		Result []struct {
			Score   float64      `json:"score"`
			Payload pointPayload `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.do(ctx, "search", http.MethodPost, path, reqBody, &searchResp); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return []domain.ScoredChunk{}, nil
		}
		return nil, unavailable("search", err)
	}

	out := make([]domain.ScoredChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		p := r.Payload
		if p.TenantID != namespace {
			slog.Error("qdrant_foreign_point_dropped", "namespace", namespace, "chunk_id", p.ChunkID)
			continue
		}
		out = append(out, domain.ScoredChunk{
			Chunk: domain.DocumentChunk{
				ID:         p.ChunkID,
				TenantID:   p.TenantID,
				DocumentID: p.DocumentID,
				ChunkIndex: p.ChunkIndex,
				Content:    p.Content,
				StartChar:  p.StartChar,
				EndChar:    p.EndChar,
			},
			Score: r.Score,
		})
	}
	return out, nil
}

func (c *Client) DeleteDocument(ctx context.Context, namespace, documentID string) error {
	return c.PruneDocument(ctx, namespace, documentID, nil)
}

func (c *Client) PruneDocument(ctx context.Context, namespace, documentID string, keep []string) error {
	if err := validNamespace("delete", namespace); err != nil {
		return err
	}

	filter := map[string]any{
		"must": []map[string]any{tenantCondition(namespace), documentCondition(documentID)},
	}
	if len(keep) > 0 {
		ids := make([]string, 0, len(keep))
		for _, chunkID := range keep {
			ids = append(ids, PointID(namespace, chunkID))
		}
		filter["must_not"] = []map[string]any{{"has_id": ids}}
	}

	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	if err := c.do(ctx, "delete", http.MethodPost, path, map[string]any{"filter": filter}, nil, http.StatusNotFound); err != nil {
		return unavailable("delete", err)
	}
	return nil
}
