// Package inmemory is an exact cosine-similarity vector index used for local
// runs and tests.
package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

type entry struct {
	chunk  domain.DocumentChunk
	vector []float32
}

type Index struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]entry
}

func New() *Index {
	return &Index{namespaces: make(map[string]map[string]entry)}
}

func checkNamespace(operation, namespace string) error {
	if strings.TrimSpace(namespace) == "" {
		return domain.WrapError(domain.ErrInvalidTenantContext, "inmemory "+operation, errors.New("namespace is required"))
	}
	return nil
}

func (ix *Index) Upsert(ctx context.Context, namespace string, chunks []domain.DocumentChunk, vectors []domain.EmbeddingVector) error {
	if err := checkNamespace("upsert", namespace); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(chunks) != len(vectors) {
		return domain.WrapError(domain.ErrInvalidInput, "inmemory upsert", fmt.Errorf("chunks/vectors mismatch: %d != %d", len(chunks), len(vectors)))
	}
	for _, c := range chunks {
		if c.TenantID != namespace {
			return domain.WrapError(domain.ErrInvalidTenantContext, "inmemory upsert", fmt.Errorf("chunk %s belongs to another tenant", c.ID))
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ns, ok := ix.namespaces[namespace]
	if !ok {
		ns = make(map[string]entry)
		ix.namespaces[namespace] = ns
	}
	for i, c := range chunks {
		ns[c.ID] = entry{chunk: c, vector: domain.Normalize(vectors[i].Vector)}
	}
	return nil
}

func (ix *Index) Query(ctx context.Context, namespace string, vector []float32, topN int) ([]domain.ScoredChunk, error) {
	if err := checkNamespace("query", namespace); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topN <= 0 {
		return []domain.ScoredChunk{}, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ns := ix.namespaces[namespace]
	out := make([]domain.ScoredChunk, 0, len(ns))
	for _, e := range ns {
		score, err := domain.Cosine(vector, e.vector)
		if err != nil {
			return nil, domain.WrapError(domain.ErrVectorIndexUnavailable, "inmemory query", err)
		}
		out = append(out, domain.ScoredChunk{Chunk: e.chunk, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

func (ix *Index) DeleteDocument(ctx context.Context, namespace, documentID string) error {
	return ix.PruneDocument(ctx, namespace, documentID, nil)
}

func (ix *Index) PruneDocument(ctx context.Context, namespace, documentID string, keep []string) error {
	if err := checkNamespace("delete", namespace); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ns := ix.namespaces[namespace]
	for id, e := range ns {
		if e.chunk.DocumentID != documentID {
			continue
		}
		if _, ok := keepSet[id]; ok {
			continue
		}
		delete(ns, id)
	}
	return nil
}

func (ix *Index) Len(namespace string) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.namespaces[namespace])
}
