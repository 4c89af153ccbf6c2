package usecase

import (
	"math"
	"sort"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

type HybridWeights struct {
	Lexical  float64
	Semantic float64
}

func DefaultHybridWeights() HybridWeights {
	return HybridWeights{Lexical: 0.5, Semantic: 0.5}
}

// normalize keeps combined scores inside [0,1]: negative weights fall back to
// the defaults and the pair is rescaled to sum to one.
func (w HybridWeights) normalize() HybridWeights {
	if w.Lexical < 0 || w.Semantic < 0 || w.Lexical+w.Semantic == 0 {
		return DefaultHybridWeights()
	}
	sum := w.Lexical + w.Semantic
	return HybridWeights{Lexical: w.Lexical / sum, Semantic: w.Semantic / sum}
}

// candidatePoolSize is how many hits each channel contributes before fusion.
func candidatePoolSize(topK int) int {
	if n := 4 * topK; n > domain.MinCandidatePool {
		return n
	}
	return domain.MinCandidatePool
}

// mergeCandidates unions both channels by chunk ID. The lexical copy of a
// chunk wins when both carry one, since it comes from the persisted store.
func mergeCandidates(lexical, semantic []domain.ScoredChunk) []domain.RetrievalCandidate {
	index := make(map[string]int, len(lexical)+len(semantic))
	out := make([]domain.RetrievalCandidate, 0, len(lexical)+len(semantic))

	for _, hit := range lexical {
		score := hit.Score
		if i, ok := index[hit.Chunk.ID]; ok {
			if *out[i].LexicalScore < score {
				out[i].LexicalScore = &score
			}
			continue
		}
		index[hit.Chunk.ID] = len(out)
		out = append(out, domain.RetrievalCandidate{Chunk: hit.Chunk, LexicalScore: &score})
	}
	for _, hit := range semantic {
		score := hit.Score
		if i, ok := index[hit.Chunk.ID]; ok {
			if out[i].SemanticScore == nil || *out[i].SemanticScore < score {
				out[i].SemanticScore = &score
			}
			continue
		}
		index[hit.Chunk.ID] = len(out)
		out = append(out, domain.RetrievalCandidate{Chunk: hit.Chunk, SemanticScore: &score})
	}
	return out
}

// lexicalNormalizer min-max scales raw BM25 scores over the candidates that
// have one. When every lexical score is equal, each maps to 1.
func lexicalNormalizer(candidates []domain.RetrievalCandidate) func(float64) float64 {
	minScore, maxScore := math.Inf(1), math.Inf(-1)
	for _, c := range candidates {
		if c.LexicalScore == nil {
			continue
		}
		minScore = math.Min(minScore, *c.LexicalScore)
		maxScore = math.Max(maxScore, *c.LexicalScore)
	}
	spread := maxScore - minScore
	return func(score float64) float64 {
		if spread <= 0 {
			return 1
		}
		return (score - minScore) / spread
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// rankHybrid fuses both channels into at most topK passages ordered by
// combined score, then chunk index, document ID and chunk ID.
func rankHybrid(lexical, semantic []domain.ScoredChunk, topK int, weights HybridWeights) []domain.RetrievalCandidate {
	candidates := mergeCandidates(lexical, semantic)
	if len(candidates) == 0 {
		return candidates
	}
	weights = weights.normalize()
	normLexical := lexicalNormalizer(candidates)

	for i := range candidates {
		c := &candidates[i]
		var lex, sem float64
		if c.LexicalScore != nil {
			lex = normLexical(*c.LexicalScore)
		}
		if c.SemanticScore != nil {
			sem = clamp01(*c.SemanticScore)
		}
		c.CombinedScore = clamp01(weights.Lexical*lex + weights.Semantic*sem)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.CombinedScore != b.CombinedScore {
			return a.CombinedScore > b.CombinedScore
		}
		if a.Chunk.ChunkIndex != b.Chunk.ChunkIndex {
			return a.Chunk.ChunkIndex < b.Chunk.ChunkIndex
		}
		if a.Chunk.DocumentID != b.Chunk.DocumentID {
			return a.Chunk.DocumentID < b.Chunk.DocumentID
		}
		return a.Chunk.ID < b.Chunk.ID
	})

	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}

func toPassage(c domain.RetrievalCandidate) domain.RetrievedPassage {
	return domain.RetrievedPassage{
		ChunkID:       c.Chunk.ID,
		DocumentID:    c.Chunk.DocumentID,
		ChunkIndex:    c.Chunk.ChunkIndex,
		Content:       c.Chunk.Content,
		SourceExcerpt: excerpt(c.Chunk.Content, domain.ExcerptLength),
		StartChar:     c.Chunk.StartChar,
		EndChar:       c.Chunk.EndChar,
		CombinedScore: c.CombinedScore,
		LexicalScore:  c.LexicalScore,
		SemanticScore: c.SemanticScore,
	}
}

func excerpt(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "..."
}
