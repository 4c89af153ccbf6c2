package usecase

import (
	"strings"
	"testing"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

func TestCandidatePoolSize(t *testing.T) {
	for topK, want := range map[int]int{1: 20, 5: 20, 6: 24, 50: 200} {
		if got := candidatePoolSize(topK); got != want {
			t.Fatalf("candidatePoolSize(%d) = %d, want %d", topK, got, want)
		}
	}
}

func TestHybridWeightsNormalize(t *testing.T) {
	if w := (HybridWeights{Lexical: 3, Semantic: 1}).normalize(); w.Lexical != 0.75 || w.Semantic != 0.25 {
		t.Fatalf("unexpected weights: %+v", w)
	}
	for _, w := range []HybridWeights{{}, {Lexical: -1, Semantic: 2}} {
		if got := w.normalize(); got != DefaultHybridWeights() {
			t.Fatalf("%+v should fall back to defaults, got %+v", w, got)
		}
	}
}

func TestRankHybridEqualLexicalScoresMapToOne(t *testing.T) {
	lexical := []domain.ScoredChunk{
		scored(chunk("t", "d", 0, "a"), 2.2),
		scored(chunk("t", "d", 1, "b"), 2.2),
	}
	ranked := rankHybrid(lexical, nil, 5, DefaultHybridWeights())
	if len(ranked) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(ranked))
	}
	for _, c := range ranked {
		if c.CombinedScore != 0.5 {
			t.Fatalf("expected 0.5 for a degenerate lexical set, got %f", c.CombinedScore)
		}
	}

	single := rankHybrid(lexical[:1], nil, 5, HybridWeights{Lexical: 1})
	if single[0].CombinedScore != 1 {
		t.Fatalf("single lexical hit should normalize to 1, got %f", single[0].CombinedScore)
	}
}

func TestRankHybridTieBreaks(t *testing.T) {
	semantic := []domain.ScoredChunk{
		scored(chunk("t", "b", 1, "x"), 0.5),
		scored(chunk("t", "b", 0, "x"), 0.5),
		scored(chunk("t", "a", 1, "x"), 0.5),
		scored(chunk("t", "a", 0, "x"), 0.5),
	}
	ranked := rankHybrid(nil, semantic, 10, DefaultHybridWeights())
	want := []string{"a:0", "b:0", "a:1", "b:1"}
	for i, c := range ranked {
		if c.Chunk.ID != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, c.Chunk.ID, want[i])
		}
	}
}

func TestRankHybridMergesAndClamps(t *testing.T) {
	shared := chunk("t", "d", 0, "shared")
	lexical := []domain.ScoredChunk{scored(shared, 5), scored(chunk("t", "d", 1, "lex"), 1)}
	semantic := []domain.ScoredChunk{scored(shared, 1.3), scored(chunk("t", "d", 2, "sem"), -0.4)}

	ranked := rankHybrid(lexical, semantic, 10, DefaultHybridWeights())
	if len(ranked) != 3 {
		t.Fatalf("expected 3 merged candidates, got %d", len(ranked))
	}
	if ranked[0].Chunk.ID != shared.ID || ranked[0].CombinedScore != 1 {
		t.Fatalf("shared chunk should score 1, got %+v", ranked[0])
	}
	for _, c := range ranked {
		if c.CombinedScore < 0 || c.CombinedScore > 1 {
			t.Fatalf("combined score out of range: %f", c.CombinedScore)
		}
	}
}

func TestRankHybridTruncatesToTopK(t *testing.T) {
	var lexical []domain.ScoredChunk
	for i := 0; i < 30; i++ {
		lexical = append(lexical, scored(chunk("t", "d", i, "c"), float64(i)))
	}
	ranked := rankHybrid(lexical, nil, 3, DefaultHybridWeights())
	if len(ranked) != 3 || ranked[0].Chunk.ChunkIndex != 29 {
		t.Fatalf("unexpected top candidates: %+v", ranked)
	}
	if got := rankHybrid(nil, nil, 3, DefaultHybridWeights()); len(got) != 0 {
		t.Fatalf("expected no candidates, got %d", len(got))
	}
}

func TestExcerpt(t *testing.T) {
	short := "short passage"
	if got := excerpt(short, 300); got != short {
		t.Fatalf("short content changed: %q", got)
	}
	long := strings.Repeat("ж", 301)
	got := excerpt(long, 300)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != 303 {
		t.Fatalf("unexpected excerpt length %d", len([]rune(got)))
	}
}
