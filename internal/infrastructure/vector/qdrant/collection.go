package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// payloadIndexes are the keyword fields every delete and search filters on.
var payloadIndexes = []string{"tenant_id", "document_id"}

// EnsureCollection creates the collection and its tenant/document payload
// indexes ahead of the first upsert.
func (c *Client) EnsureCollection(ctx context.Context, vectorSize int) error {
	if vectorSize <= 0 {
		return fmt.Errorf("qdrant ensure collection: vector size must be positive, got %d", vectorSize)
	}
	if err := c.ensureCollection(ctx, vectorSize); err != nil {
		return unavailable("ensure collection", err)
	}
	return nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	path := fmt.Sprintf("/collections/%s", c.collection)
	// 409 means the collection already exists.
	if err := c.do(ctx, "ensure_collection", http.MethodPut, path, reqBody, nil, http.StatusConflict); err != nil {
		return err
	}

	for _, field := range payloadIndexes {
		indexBody := map[string]any{
			"field_name":   field,
			"field_schema": "keyword",
		}
		indexPath := fmt.Sprintf("/collections/%s/index?wait=true", c.collection)
		if err := c.do(ctx, "ensure_payload_index", http.MethodPut, indexPath, indexBody, nil, http.StatusConflict); err != nil {
			slog.Warn("qdrant_payload_index_failed", "collection", c.collection, "field", field, "error", err)
		}
	}

	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}
