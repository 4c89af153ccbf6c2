package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/core/ports"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/chunking"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/embedding"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/lexical/bm25"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/repository/memory"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/vector/inmemory"
)

type lexicalFake struct {
	hits   []domain.ScoredChunk
	err    error
	panics bool
}

func (f *lexicalFake) Rebuild(context.Context, string, func(context.Context) ([]domain.DocumentChunk, error)) error {
	return nil
}

func (f *lexicalFake) Query(context.Context, string, string, int) ([]domain.ScoredChunk, error) {
	if f.panics {
		panic("index corrupted")
	}
	return f.hits, f.err
}

type vectorFake struct {
	mu        sync.Mutex
	hits      []domain.ScoredChunk
	err       error
	upsertErr error
	pruneErr  error
	deleted   []string
	pruned    [][]string
	upserted  []domain.DocumentChunk
	lastTopN  int
}

func (f *vectorFake) Upsert(_ context.Context, _ string, chunks []domain.DocumentChunk, _ []domain.EmbeddingVector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, chunks...)
	return nil
}

func (f *vectorFake) Query(_ context.Context, _ string, _ []float32, topN int) ([]domain.ScoredChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTopN = topN
	return f.hits, f.err
}

func (f *vectorFake) DeleteDocument(_ context.Context, _ string, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, documentID)
	return nil
}

func (f *vectorFake) PruneDocument(_ context.Context, _ string, _ string, keep []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pruneErr != nil {
		return f.pruneErr
	}
	f.pruned = append(f.pruned, append([]string(nil), keep...))
	return nil
}

type embedderFake struct {
	err   error
	delay time.Duration
	calls int
	mu    sync.Mutex
}

func (f *embedderFake) ModelID() string { return "fake/3" }

func (f *embedderFake) EmbedQuery(ctx context.Context, text string) (domain.EmbeddingVector, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.EmbeddingVector{}, ctx.Err()
		}
	}
	if f.err != nil {
		return domain.EmbeddingVector{}, f.err
	}
	return domain.EmbeddingVector{ModelID: f.ModelID(), Vector: []float32{1, 0, 0}}, nil
}

func (f *embedderFake) EmbedBatch(_ context.Context, texts []string) ([]domain.EmbeddingVector, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.EmbeddingVector, len(texts))
	for i := range texts {
		out[i] = domain.EmbeddingVector{ModelID: f.ModelID(), Vector: []float32{1, 0, 0}}
	}
	return out, nil
}

type observerFake struct {
	mu        sync.Mutex
	outcomes  []string
	channels  map[string]string
	ingestOut []string
}

func (o *observerFake) ObserveRetrieval(outcome string, _ int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *observerFake) ObserveChannel(channel, outcome string, _ int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.channels == nil {
		o.channels = make(map[string]string)
	}
	o.channels[channel] = outcome
}

func (o *observerFake) ObserveIngest(outcome string, _ int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ingestOut = append(o.ingestOut, outcome)
}

type queueFake struct {
	events []domain.DocumentEvent
	err    error
}

func (q *queueFake) PublishDocumentEvent(_ context.Context, event domain.DocumentEvent) error {
	if q.err != nil {
		return q.err
	}
	q.events = append(q.events, event)
	return nil
}

func (q *queueFake) SubscribeDocumentEvents(context.Context, func(context.Context, domain.DocumentEvent) error) error {
	return nil
}

func chunk(tenantID, documentID string, index int, content string) domain.DocumentChunk {
	return domain.DocumentChunk{
		ID:         domain.ChunkID(documentID, index),
		TenantID:   tenantID,
		DocumentID: documentID,
		ChunkIndex: index,
		Content:    content,
		EndChar:    len([]rune(content)),
	}
}

func scored(c domain.DocumentChunk, score float64) domain.ScoredChunk {
	return domain.ScoredChunk{Chunk: c, Score: score}
}

// engine wires the real in-process components behind both use cases.
type engine struct {
	ingest   *IngestUseCase
	retrieve *RetrieveUseCase
	embedder *embedding.Provider
	store    *memory.ChunkStore
	vectors  *inmemory.Index
	lexical  *bm25.Store
	observer *observerFake
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	cache, err := embedding.NewCache(128)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	embedder := embedding.NewProvider(embedding.NewHashingModel(64), cache, embedding.Options{})
	e := &engine{
		embedder: embedder,
		store:    memory.NewChunkStore(),
		vectors:  inmemory.New(),
		lexical:  bm25.NewStore(bm25.DefaultParams()),
		observer: &observerFake{},
	}
	e.ingest = e.ingestWith(e.store)
	e.retrieve = NewRetrieveUseCase(embedder, e.vectors, e.lexical, e.observer, DefaultRetrieveOptions())
	return e
}

// ingestWith builds an ingest use case over the engine's indexes and the
// given chunk store, usually a wrapper around e.store.
func (e *engine) ingestWith(store ports.ChunkStore) *IngestUseCase {
	return NewIngestUseCase(chunking.NewSplitter(0), e.embedder, e.vectors, store, e.lexical, nil, e.observer, IngestOptions{})
}

// hookedStore wraps the memory store with an injectable replace failure and
// a one-shot pause after the first tenant listing.
type hookedStore struct {
	*memory.ChunkStore

	mu         sync.Mutex
	replaceErr error
	listed     chan struct{}
	release    chan struct{}
	once       sync.Once
}

func (s *hookedStore) failReplace(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceErr = err
}

func (s *hookedStore) ReplaceDocumentChunks(ctx context.Context, tenantID, documentID string, chunks []domain.DocumentChunk) error {
	s.mu.Lock()
	err := s.replaceErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.ChunkStore.ReplaceDocumentChunks(ctx, tenantID, documentID, chunks)
}

func (s *hookedStore) ListTenantChunks(ctx context.Context, tenantID string) ([]domain.DocumentChunk, error) {
	out, err := s.ChunkStore.ListTenantChunks(ctx, tenantID)
	if s.listed != nil {
		s.once.Do(func() {
			close(s.listed)
			<-s.release
		})
	}
	return out, err
}

func repeatSentence(sentence string, n int) string {
	return strings.TrimSpace(strings.Repeat(sentence+" ", n))
}
