package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/core/ports"
)

type Options struct {
	BatchSize        int
	Concurrency      int
	MinContentLength int
	// CallTimeout bounds one model call. Calls are detached from the
	// requesting context so a caller that gives up does not fail the other
	// requests waiting on the same computation.
	CallTimeout time.Duration
	Shared      ports.VectorCache
	Logger      *slog.Logger
}

func (o Options) normalize() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 32
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 2
	}
	if o.MinContentLength <= 0 {
		o.MinContentLength = domain.MinContentLength
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Provider validates input, serves vectors from the cache tiers and makes
// sure each missing content hash is computed by exactly one model call at a
// time, across concurrent queries and batches.
type Provider struct {
	model   ports.EmbeddingModel
	cache   *Cache
	flights *flightTable
	// shared collapses concurrent lookups of one key in the shared tier.
	shared singleflight.Group
	opts   Options
}

func NewProvider(model ports.EmbeddingModel, cache *Cache, opts Options) *Provider {
	return &Provider{
		model:   model,
		cache:   cache,
		flights: newFlightTable(cache),
		opts:    opts.normalize(),
	}
}

func (p *Provider) ModelID() string {
	return p.model.ModelID()
}

func (p *Provider) Cache() *Cache {
	return p.cache
}

// EmbedQuery only rejects blank text; short queries are normal.
func (p *Provider) EmbedQuery(ctx context.Context, text string) (domain.EmbeddingVector, error) {
	if strings.TrimSpace(text) == "" {
		return domain.EmbeddingVector{}, &domain.EmbeddingError{Reason: domain.EmbeddingEmptyInput, Index: 0}
	}

	modelID := p.model.ModelID()
	key := CacheKey(modelID, text)
	if vec, ok := p.lookup(ctx, key); ok {
		return domain.EmbeddingVector{ModelID: modelID, Vector: vec}, nil
	}

	computed, err := p.computeMissing(ctx, []string{key}, map[string]string{key: text})
	if err != nil {
		return domain.EmbeddingVector{}, err
	}
	return domain.EmbeddingVector{ModelID: modelID, Vector: copyVector(computed[key])}, nil
}

// EmbedBatch returns one vector per input, in order, or an error and no
// vectors at all.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error) {
	if len(texts) == 0 {
		return []domain.EmbeddingVector{}, nil
	}
	for i, text := range texts {
		if err := p.validate(text, i); err != nil {
			return nil, err
		}
	}

	modelID := p.model.ModelID()
	vectors := make([][]float32, len(texts))
	pending := make(map[string][]int)
	textByKey := make(map[string]string)
	missing := make([]string, 0, len(texts))
	for i, text := range texts {
		key := CacheKey(modelID, text)
		if vec, ok := p.lookup(ctx, key); ok {
			vectors[i] = vec
			continue
		}
		if _, seen := pending[key]; !seen {
			missing = append(missing, key)
			textByKey[key] = text
		}
		pending[key] = append(pending[key], i)
	}

	if len(missing) > 0 {
		computed, err := p.computeMissing(ctx, missing, textByKey)
		if err != nil {
			return nil, err
		}
		for key, idxs := range pending {
			vec := computed[key]
			for _, idx := range idxs {
				vectors[idx] = vec
			}
		}
	}

	dim := len(vectors[0])
	out := make([]domain.EmbeddingVector, len(texts))
	for i, vec := range vectors {
		if len(vec) == 0 || len(vec) != dim {
			return nil, &domain.EmbeddingError{
				Reason: domain.EmbeddingBatchFailure,
				Index:  i,
				Err:    fmt.Errorf("inconsistent dimension %d, expected %d", len(vec), dim),
			}
		}
		out[i] = domain.EmbeddingVector{ModelID: modelID, Vector: copyVector(vec)}
	}
	return out, nil
}

// computeMissing claims a flight for every key nobody is computing yet,
// embeds the claimed keys in the background and waits for all flights the
// call depends on, including the ones led by other callers.
func (p *Provider) computeMissing(ctx context.Context, keys []string, textByKey map[string]string) (map[string][]float32, error) {
	claim := p.flights.claim(keys)
	if len(claim.owned) > 0 {
		go p.lead(context.WithoutCancel(ctx), claim.owned, textByKey)
	}

	computed := claim.cached
	for key, fl := range claim.waiting {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-fl.done:
		}
		if fl.err != nil {
			return nil, modelError(fl.err)
		}
		computed[key] = fl.vec
	}
	return computed, nil
}

// lead embeds the owned flights in model-sized batches. Every flight is
// resolved, successful batches stay cached even when a sibling batch fails.
func (p *Provider) lead(ctx context.Context, owned map[string]*flight, textByKey map[string]string) {
	keys := make([]string, 0, len(owned))
	for key := range owned {
		keys = append(keys, key)
	}

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for start := 0; start < len(keys); start += p.opts.BatchSize {
		batchKeys := keys[start:min(start+p.opts.BatchSize, len(keys))]
		g.Go(func() error {
			batch := make([]string, len(batchKeys))
			for j, key := range batchKeys {
				batch[j] = textByKey[key]
			}
			vectors, err := p.embed(ctx, batch)
			for j, key := range batchKeys {
				if err != nil {
					p.flights.resolve(key, owned[key], nil, err)
					continue
				}
				p.store(ctx, key, vectors[j])
				p.flights.resolve(key, owned[key], vectors[j], nil)
			}
			return err
		})
	}
	// failures reach callers through their flights
	_ = g.Wait()
}

func (p *Provider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()

	start := time.Now()
	vectors, err := p.model.Embed(callCtx, texts)
	if err != nil {
		p.opts.Logger.Warn("embedding_call_failed",
			"model", p.model.ModelID(),
			"batch_size", len(texts),
			"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
			"error", err,
		)
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, &domain.EmbeddingError{
			Reason: domain.EmbeddingBatchFailure,
			Index:  -1,
			Err:    fmt.Errorf("model returned %d vectors for %d inputs", len(vectors), len(texts)),
		}
	}
	p.opts.Logger.Debug("embedding_call",
		"model", p.model.ModelID(),
		"batch_size", len(texts),
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return vectors, nil
}

func (p *Provider) validate(text string, index int) error {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < p.opts.MinContentLength {
		return &domain.EmbeddingError{Reason: domain.EmbeddingEmptyInput, Index: index}
	}
	return nil
}

func (p *Provider) lookup(ctx context.Context, key string) ([]float32, bool) {
	if vec, ok := p.cache.Get(key); ok {
		return vec, true
	}
	if p.opts.Shared == nil {
		return nil, false
	}
	res, err, _ := p.shared.Do(key, func() (any, error) {
		vec, ok, err := p.opts.Shared.Get(ctx, key)
		if err != nil || !ok {
			return nil, err
		}
		p.cache.Set(key, vec)
		return vec, nil
	})
	if err != nil {
		p.opts.Logger.Warn("embedding_shared_cache_get_failed", "error", err)
		return nil, false
	}
	vec, _ := res.([]float32)
	if vec == nil {
		return nil, false
	}
	return copyVector(vec), true
}

func (p *Provider) store(ctx context.Context, key string, vec []float32) {
	p.cache.Set(key, vec)
	if p.opts.Shared == nil {
		return
	}
	if err := p.opts.Shared.Set(ctx, key, vec); err != nil {
		p.opts.Logger.Warn("embedding_shared_cache_set_failed", "error", err)
	}
}

func modelError(err error) error {
	var embedErr *domain.EmbeddingError
	if errors.As(err, &embedErr) {
		return err
	}
	reason := domain.EmbeddingModelUnavailable
	if kind, ok := domain.ProviderErrorKindOf(err); ok && kind == domain.ProviderBadResponse {
		reason = domain.EmbeddingBatchFailure
	}
	return &domain.EmbeddingError{Reason: reason, Index: -1, Err: err}
}
