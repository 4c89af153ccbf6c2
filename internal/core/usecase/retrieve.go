package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/core/ports"
)

const (
	channelLexical  = "lexical"
	channelSemantic = "semantic"
)

type RetrieveOptions struct {
	DefaultTopK      int
	MaxTopK          int
	LexicalTimeout   time.Duration
	EmbeddingTimeout time.Duration
	VectorTimeout    time.Duration
	Weights          HybridWeights
}

func DefaultRetrieveOptions() RetrieveOptions {
	return RetrieveOptions{
		DefaultTopK:      domain.DefaultTopK,
		MaxTopK:          domain.MaxTopK,
		LexicalTimeout:   2 * time.Second,
		EmbeddingTimeout: 10 * time.Second,
		VectorTimeout:    5 * time.Second,
		Weights:          DefaultHybridWeights(),
	}
}

func (o RetrieveOptions) normalize() RetrieveOptions {
	def := DefaultRetrieveOptions()
	if o.DefaultTopK <= 0 {
		o.DefaultTopK = def.DefaultTopK
	}
	if o.MaxTopK <= 0 {
		o.MaxTopK = def.MaxTopK
	}
	if o.LexicalTimeout <= 0 {
		o.LexicalTimeout = def.LexicalTimeout
	}
	if o.EmbeddingTimeout <= 0 {
		o.EmbeddingTimeout = def.EmbeddingTimeout
	}
	if o.VectorTimeout <= 0 {
		o.VectorTimeout = def.VectorTimeout
	}
	o.Weights = o.Weights.normalize()
	return o
}

// RetrieveUseCase runs the lexical and semantic channels for one tenant in
// parallel and fuses their hits. A single failed channel degrades the result
// instead of failing it.
type RetrieveUseCase struct {
	embedder ports.Embedder
	vectors  ports.VectorIndex
	lexical  ports.LexicalIndex
	observer ports.RetrievalObserver
	opts     RetrieveOptions
}

func NewRetrieveUseCase(
	embedder ports.Embedder,
	vectors ports.VectorIndex,
	lexical ports.LexicalIndex,
	observer ports.RetrievalObserver,
	opts RetrieveOptions,
) *RetrieveUseCase {
	if observer == nil {
		observer = ports.NopObserver{}
	}
	return &RetrieveUseCase{
		embedder: embedder,
		vectors:  vectors,
		lexical:  lexical,
		observer: observer,
		opts:     opts.normalize(),
	}
}

type channelResult struct {
	hits []domain.ScoredChunk
	err  error
}

func (uc *RetrieveUseCase) Retrieve(ctx context.Context, tenantID, query string, topK int) (*domain.RetrievalResult, error) {
	start := time.Now()

	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, domain.WrapError(domain.ErrInvalidTenantContext, "retrieve", errors.New("tenant id is required"))
	}
	query = cleanQuery(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("query is required"))
	}
	if topK <= 0 {
		topK = uc.opts.DefaultTopK
	}
	if topK > uc.opts.MaxTopK {
		topK = uc.opts.MaxTopK
	}
	pool := candidatePoolSize(topK)

	var lexical, semantic channelResult
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		lexical = uc.runChannel(ctx, channelLexical, func() ([]domain.ScoredChunk, error) {
			return uc.queryLexical(ctx, tenantID, query, pool)
		})
	}()
	go func() {
		defer wg.Done()
		semantic = uc.runChannel(ctx, channelSemantic, func() ([]domain.ScoredChunk, error) {
			return uc.querySemantic(ctx, tenantID, query, pool)
		})
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		uc.observer.ObserveRetrieval("canceled", 0, time.Since(start))
		return nil, err
	}

	if lexical.err != nil && semantic.err != nil {
		uc.observer.ObserveRetrieval("unavailable", 0, time.Since(start))
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "retrieve", errors.Join(lexical.err, semantic.err))
	}

	result := &domain.RetrievalResult{
		TenantID: tenantID,
		Query:    query,
		Items:    []domain.RetrievedPassage{},
	}
	if lexical.err != nil {
		result.Degraded = append(result.Degraded, channelLexical)
	}
	if semantic.err != nil {
		result.Degraded = append(result.Degraded, channelSemantic)
	}

	ranked := rankHybrid(
		ownedBy(tenantID, channelLexical, lexical.hits),
		ownedBy(tenantID, channelSemantic, semantic.hits),
		topK,
		uc.opts.Weights,
	)
	for _, c := range ranked {
		result.Items = append(result.Items, toPassage(c))
	}
	if len(result.Items) == 0 {
		result.Empty = true
		result.Message = domain.NoRelevantContentMessage
	}

	outcome := "ok"
	switch {
	case len(result.Degraded) > 0:
		outcome = "degraded"
	case result.Empty:
		outcome = "empty"
	}
	uc.observer.ObserveRetrieval(outcome, len(result.Items), time.Since(start))
	slog.DebugContext(ctx, "retrieval_completed",
		"tenant_id", tenantID,
		"top_k", topK,
		"lexical_hits", len(lexical.hits),
		"semantic_hits", len(semantic.hits),
		"results", len(result.Items),
		"degraded", result.Degraded,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return result, nil
}

// runChannel times one channel and turns a panic into a channel failure.
func (uc *RetrieveUseCase) runChannel(ctx context.Context, name string, fn func() ([]domain.ScoredChunk, error)) (res channelResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = channelResult{err: fmt.Errorf("%s channel panic: %v", name, r)}
		}
		outcome := "ok"
		if res.err != nil {
			outcome = "error"
			if ctx.Err() == nil {
				slog.WarnContext(ctx, "retrieval_channel_failed", "channel", name, "error", res.err)
			}
		}
		uc.observer.ObserveChannel(name, outcome, len(res.hits), time.Since(start))
	}()

	hits, err := fn()
	return channelResult{hits: hits, err: err}
}

func (uc *RetrieveUseCase) queryLexical(ctx context.Context, tenantID, query string, pool int) ([]domain.ScoredChunk, error) {
	lexCtx, cancel := context.WithTimeout(ctx, uc.opts.LexicalTimeout)
	defer cancel()

	hits, err := uc.lexical.Query(lexCtx, tenantID, query, pool)
	if err != nil {
		if domain.IsKind(err, domain.ErrLexicalIndexUnavailable) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrLexicalIndexUnavailable, "lexical query", err)
	}
	return hits, nil
}

func (uc *RetrieveUseCase) querySemantic(ctx context.Context, tenantID, query string, pool int) ([]domain.ScoredChunk, error) {
	embedCtx, cancelEmbed := context.WithTimeout(ctx, uc.opts.EmbeddingTimeout)
	vector, err := uc.embedder.EmbedQuery(embedCtx, query)
	cancelEmbed()
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	vecCtx, cancelVec := context.WithTimeout(ctx, uc.opts.VectorTimeout)
	defer cancelVec()
	hits, err := uc.vectors.Query(vecCtx, tenantID, vector.Vector, pool)
	if err != nil {
		if domain.IsKind(err, domain.ErrVectorIndexUnavailable) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrVectorIndexUnavailable, "vector query", err)
	}
	return hits, nil
}

// ownedBy drops any hit whose chunk belongs to another tenant.
func ownedBy(tenantID, channel string, hits []domain.ScoredChunk) []domain.ScoredChunk {
	out := hits[:0:0]
	for _, h := range hits {
		if h.Chunk.TenantID != tenantID {
			slog.Error("retrieval_foreign_chunk_dropped", "channel", channel, "tenant_id", tenantID, "chunk_id", h.Chunk.ID)
			continue
		}
		out = append(out, h)
	}
	return out
}

// cleanQuery collapses internal whitespace runs and trims the ends.
func cleanQuery(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
