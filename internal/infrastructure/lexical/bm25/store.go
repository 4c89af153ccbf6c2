package bm25

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

// Store keeps one Index per tenant. Rebuilds for the same tenant are
// serialized and published with a pointer swap, so readers see either the
// previous snapshot or the new one.
type Store struct {
	params Params

	mu      sync.RWMutex
	indexes map[string]*Index

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewStore(params Params) *Store {
	return &Store{
		params:  params.normalize(),
		indexes: make(map[string]*Index),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Store) tenantLock(tenantID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[tenantID] = l
	}
	return l
}

// Rebuild loads a tenant's chunks and publishes a snapshot built from them.
// The tenant lock is held from load to swap, so a rebuild that started later
// always publishes after an earlier one and never from an older listing.
// An empty listing drops the tenant's snapshot.
func (s *Store) Rebuild(ctx context.Context, tenantID string, load func(context.Context) ([]domain.DocumentChunk, error)) error {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.WrapError(domain.ErrInvalidTenantContext, "bm25 rebuild", errors.New("tenant id is required"))
	}

	l := s.tenantLock(tenantID)
	l.Lock()
	defer l.Unlock()

	chunks, err := load(ctx)
	if err != nil {
		return err
	}

	var ix *Index
	if len(chunks) > 0 {
		ix = Build(tenantID, chunks, s.params)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ix == nil {
		delete(s.indexes, tenantID)
		return nil
	}
	s.indexes[tenantID] = ix
	return nil
}

// Snapshot returns the current index for tenantID, or nil if none was built.
func (s *Store) Snapshot(tenantID string) *Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexes[tenantID]
}

// Query returns an empty result for a tenant that has no index yet.
func (s *Store) Query(ctx context.Context, tenantID, queryText string, topN int) ([]domain.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, domain.WrapError(domain.ErrInvalidTenantContext, "bm25 query", errors.New("tenant id is required"))
	}
	ix := s.Snapshot(tenantID)
	if ix == nil {
		return []domain.ScoredChunk{}, nil
	}
	return ix.Query(queryText, topN), nil
}
