// Package memory is a process-local chunk store for single-node runs and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

type ChunkStore struct {
	mu      sync.RWMutex
	tenants map[string]map[string][]domain.DocumentChunk
}

func NewChunkStore() *ChunkStore {
	return &ChunkStore{tenants: make(map[string]map[string][]domain.DocumentChunk)}
}

func requireTenant(operation, tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return domain.WrapError(domain.ErrInvalidTenantContext, operation, errors.New("tenant id is required"))
	}
	return nil
}

func (s *ChunkStore) ReplaceDocumentChunks(_ context.Context, tenantID, documentID string, chunks []domain.DocumentChunk) error {
	if err := requireTenant("replace chunks", tenantID); err != nil {
		return err
	}
	for _, c := range chunks {
		if c.TenantID != tenantID || c.DocumentID != documentID {
			return domain.WrapError(domain.ErrInvalidTenantContext, "replace chunks", errors.New("chunk ownership mismatch"))
		}
	}

	copied := append([]domain.DocumentChunk(nil), chunks...)
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, ok := s.tenants[tenantID]
	if !ok {
		docs = make(map[string][]domain.DocumentChunk)
		s.tenants[tenantID] = docs
	}
	docs[documentID] = copied
	return nil
}

func (s *ChunkStore) ListTenantChunks(_ context.Context, tenantID string) ([]domain.DocumentChunk, error) {
	if err := requireTenant("list chunks", tenantID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	docIDs := make([]string, 0, len(s.tenants[tenantID]))
	for id := range s.tenants[tenantID] {
		docIDs = append(docIDs, id)
	}
	sort.Strings(docIDs)

	out := make([]domain.DocumentChunk, 0)
	for _, id := range docIDs {
		out = append(out, s.tenants[tenantID][id]...)
	}
	return out, nil
}

func (s *ChunkStore) ListDocumentChunks(_ context.Context, tenantID, documentID string) ([]domain.DocumentChunk, error) {
	if err := requireTenant("list document chunks", tenantID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.DocumentChunk{}, s.tenants[tenantID][documentID]...), nil
}

func (s *ChunkStore) DeleteDocumentChunks(_ context.Context, tenantID, documentID string) (int64, error) {
	if err := requireTenant("delete chunks", tenantID); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.tenants[tenantID][documentID])
	delete(s.tenants[tenantID], documentID)
	if len(s.tenants[tenantID]) == 0 {
		delete(s.tenants, tenantID)
	}
	return int64(n), nil
}

func (s *ChunkStore) ListTenants(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tenants))
	for id := range s.tenants {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
