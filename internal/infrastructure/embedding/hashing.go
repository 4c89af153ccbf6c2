package embedding

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/lexical"
)

const (
	DefaultHashingDimension = 384
	hashingSaturationK      = 1.2
)

// HashingModel is a deterministic feature-hashing embedder for local runs
// and tests. Token counts are folded into a fixed number of buckets, damped
// with a BM25-style saturation, and L2-normalized.
type HashingModel struct {
	dimension int
}

func NewHashingModel(dimension int) *HashingModel {
	if dimension <= 0 {
		dimension = DefaultHashingDimension
	}
	return &HashingModel{dimension: dimension}
}

func (m *HashingModel) ModelID() string {
	return fmt.Sprintf("hashing/%d", m.dimension)
}

func (m *HashingModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, m.embedOne(text))
	}
	return out, nil
}

func (m *HashingModel) embedOne(text string) []float32 {
	tf := make(map[uint32]float64, 64)
	for _, tok := range lexical.Tokenize(text) {
		tf[hashToken(tok)%uint32(m.dimension)]++
	}
	vec := make([]float32, m.dimension)
	for bucket, n := range tf {
		vec[bucket] = float32((n * (hashingSaturationK + 1)) / (n + hashingSaturationK))
	}
	return domain.Normalize(vec)
}

func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return h.Sum32()
}
