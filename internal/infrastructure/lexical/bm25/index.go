// Package bm25 implements a per-tenant Okapi BM25 index over document chunks.
package bm25

import (
	"math"
	"sort"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/lexical"
)

type Params struct {
	K1 float64
	B  float64
}

func DefaultParams() Params {
	return Params{K1: 1.5, B: 0.75}
}

func (p Params) normalize() Params {
	def := DefaultParams()
	if p.K1 <= 0 {
		p.K1 = def.K1
	}
	if p.B < 0 || p.B > 1 {
		p.B = def.B
	}
	return p
}

type posting struct {
	doc int
	tf  int
}

// Index is an immutable BM25 snapshot for one tenant. It is safe for
// concurrent reads once built.
type Index struct {
	tenantID  string
	params    Params
	chunks    []domain.DocumentChunk
	docLen    []int
	avgDocLen float64
	postings  map[string][]posting
}

// Build indexes chunks in (document_id, chunk_index) order so ties resolve the
// same way regardless of input order. Chunks owned by another tenant are
// skipped.
func Build(tenantID string, chunks []domain.DocumentChunk, params Params) *Index {
	owned := make([]domain.DocumentChunk, 0, len(chunks))
	for _, c := range chunks {
		if c.TenantID == tenantID {
			owned = append(owned, c)
		}
	}
	sort.SliceStable(owned, func(i, j int) bool {
		if owned[i].DocumentID != owned[j].DocumentID {
			return owned[i].DocumentID < owned[j].DocumentID
		}
		return owned[i].ChunkIndex < owned[j].ChunkIndex
	})

	ix := &Index{
		tenantID: tenantID,
		params:   params.normalize(),
		chunks:   owned,
		docLen:   make([]int, len(owned)),
		postings: make(map[string][]posting, len(owned)*16),
	}

	total := 0
	for i, c := range owned {
		tokens := lexical.Tokenize(c.Content)
		ix.docLen[i] = len(tokens)
		total += len(tokens)

		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for term, n := range tf {
			ix.postings[term] = append(ix.postings[term], posting{doc: i, tf: n})
		}
	}
	if len(owned) > 0 {
		ix.avgDocLen = float64(total) / float64(len(owned))
	}
	return ix
}

func (ix *Index) TenantID() string { return ix.tenantID }

func (ix *Index) Len() int { return len(ix.chunks) }

// idf is the non-negative Okapi variant ln(1 + (N - df + 0.5) / (df + 0.5)).
func (ix *Index) idf(df int) float64 {
	n := float64(len(ix.chunks))
	return math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
}

// Query scores every chunk sharing at least one term with queryText and
// returns the best topN. Repeated query terms contribute once per occurrence.
func (ix *Index) Query(queryText string, topN int) []domain.ScoredChunk {
	if topN <= 0 || len(ix.chunks) == 0 {
		return nil
	}
	terms := lexical.Tokenize(queryText)
	if len(terms) == 0 {
		return nil
	}

	k1, b := ix.params.K1, ix.params.B
	scores := make(map[int]float64)
	for _, term := range terms {
		list := ix.postings[term]
		if len(list) == 0 {
			continue
		}
		idf := ix.idf(len(list))
		for _, p := range list {
			tf := float64(p.tf)
			lenNorm := 1.0
			if ix.avgDocLen > 0 {
				lenNorm = 1 - b + b*float64(ix.docLen[p.doc])/ix.avgDocLen
			}
			scores[p.doc] += idf * (tf * (k1 + 1)) / (tf + k1*lenNorm)
		}
	}

	out := make([]domain.ScoredChunk, 0, len(scores))
	for doc, score := range scores {
		out = append(out, domain.ScoredChunk{Chunk: ix.chunks[doc], Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		a, c := out[i].Chunk, out[j].Chunk
		if a.ChunkIndex != c.ChunkIndex {
			return a.ChunkIndex < c.ChunkIndex
		}
		if a.DocumentID != c.DocumentID {
			return a.DocumentID < c.DocumentID
		}
		return a.ID < c.ID
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}
