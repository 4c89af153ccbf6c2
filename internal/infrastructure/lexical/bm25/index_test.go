package bm25

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

func chunk(tenant, doc string, idx int, content string) domain.DocumentChunk {
	return domain.DocumentChunk{
		ID:         domain.ChunkID(doc, idx),
		TenantID:   tenant,
		DocumentID: doc,
		ChunkIndex: idx,
		Content:    content,
	}
}

func fixed(chunks []domain.DocumentChunk) func(context.Context) ([]domain.DocumentChunk, error) {
	return func(context.Context) ([]domain.DocumentChunk, error) { return chunks, nil }
}

func TestQueryMatchesClosedFormScore(t *testing.T) {
	ix := Build("t", []domain.DocumentChunk{chunk("t", "d", 0, "cat dog")}, DefaultParams())

	got := ix.Query("cat", 5)
	if len(got) != 1 {
		t.Fatalf("expected one hit, got %d", len(got))
	}
	want := math.Log(4.0 / 3.0)
	if math.Abs(got[0].Score-want) > 1e-9 {
		t.Fatalf("score = %f, want %f", got[0].Score, want)
	}
}

func TestQueryRanksByTermFrequencyAndRarity(t *testing.T) {
	ix := Build("t", []domain.DocumentChunk{
		chunk("t", "a", 0, "the cat sat on the mat with another cat"),
		chunk("t", "b", 0, "the dog sat on the log"),
		chunk("t", "c", 0, "a cat and a dog met on the road"),
	}, DefaultParams())

	got := ix.Query("cat", 10)
	if len(got) != 2 {
		t.Fatalf("expected two hits, got %d", len(got))
	}
	if got[0].Chunk.DocumentID != "a" {
		t.Fatalf("expected doc a first, got %s", got[0].Chunk.DocumentID)
	}
	for _, hit := range got {
		if hit.Score <= 0 {
			t.Fatalf("expected positive score, got %f", hit.Score)
		}
	}
}

func TestIDFNeverNegativeForCommonTerms(t *testing.T) {
	ix := Build("t", []domain.DocumentChunk{
		chunk("t", "a", 0, "common alpha"),
		chunk("t", "b", 0, "common beta"),
		chunk("t", "c", 0, "common gamma"),
	}, DefaultParams())

	got := ix.Query("common", 10)
	if len(got) != 3 {
		t.Fatalf("expected three hits, got %d", len(got))
	}
	for _, hit := range got {
		if hit.Score <= 0 {
			t.Fatalf("term present in every chunk must still score positive, got %f", hit.Score)
		}
	}
}

func TestScoreIncreasesWithTermFrequency(t *testing.T) {
	base := []domain.DocumentChunk{
		chunk("t", "a", 0, "solar panel filler filler filler"),
		chunk("t", "b", 0, "wind turbine energy output report"),
	}
	more := []domain.DocumentChunk{
		chunk("t", "a", 0, "solar panel solar filler filler"),
		chunk("t", "b", 0, "wind turbine energy output report"),
	}

	before := Build("t", base, DefaultParams()).Query("solar", 1)
	after := Build("t", more, DefaultParams()).Query("solar", 1)
	if len(before) != 1 || len(after) != 1 {
		t.Fatalf("expected hits in both corpora")
	}
	if after[0].Score <= before[0].Score {
		t.Fatalf("expected score to increase with tf: before=%f after=%f", before[0].Score, after[0].Score)
	}
}

func TestQueryTieBreaksByChunkIndexThenDocument(t *testing.T) {
	ix := Build("t", []domain.DocumentChunk{
		chunk("t", "b", 1, "identical words here"),
		chunk("t", "a", 1, "identical words here"),
		chunk("t", "b", 0, "identical words here"),
	}, DefaultParams())

	got := ix.Query("identical", 10)
	order := make([]string, 0, len(got))
	for _, hit := range got {
		order = append(order, hit.Chunk.ID)
	}
	want := []string{"b:0", "a:1", "b:1"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestQueryReturnsEmptyForUnknownTermsAndEmptyIndex(t *testing.T) {
	ix := Build("t", []domain.DocumentChunk{chunk("t", "a", 0, "alpha beta")}, DefaultParams())
	if got := ix.Query("zeta", 5); len(got) != 0 {
		t.Fatalf("expected no hits, got %v", got)
	}
	if got := ix.Query("!!!", 5); len(got) != 0 {
		t.Fatalf("expected no hits for noise query, got %v", got)
	}
	empty := Build("t", nil, DefaultParams())
	if got := empty.Query("alpha", 5); len(got) != 0 {
		t.Fatalf("expected no hits on empty index, got %v", got)
	}
}

func TestBuildSkipsForeignTenantChunks(t *testing.T) {
	ix := Build("tenant-a", []domain.DocumentChunk{
		chunk("tenant-a", "a", 0, "shared keyword"),
		chunk("tenant-b", "b", 0, "shared keyword"),
	}, DefaultParams())

	if ix.Len() != 1 {
		t.Fatalf("expected one owned chunk, got %d", ix.Len())
	}
	for _, hit := range ix.Query("keyword", 10) {
		if hit.Chunk.TenantID != "tenant-a" {
			t.Fatalf("foreign chunk leaked: %+v", hit.Chunk)
		}
	}
}

func TestStoreIsolatesTenants(t *testing.T) {
	s := NewStore(DefaultParams())
	if err := s.Rebuild(context.Background(), "tenant-a", fixed([]domain.DocumentChunk{chunk("tenant-a", "a", 0, "quarterly revenue")})); err != nil {
		t.Fatalf("rebuild a: %v", err)
	}
	if err := s.Rebuild(context.Background(), "tenant-b", fixed([]domain.DocumentChunk{chunk("tenant-b", "b", 0, "quarterly revenue")})); err != nil {
		t.Fatalf("rebuild b: %v", err)
	}

	got, err := s.Query(context.Background(), "tenant-a", "revenue", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].Chunk.TenantID != "tenant-a" {
		t.Fatalf("unexpected hits: %+v", got)
	}

	none, err := s.Query(context.Background(), "tenant-c", "revenue", 10)
	if err != nil {
		t.Fatalf("query unknown tenant: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected empty result for tenant without index")
	}

	if err := s.Rebuild(context.Background(), "tenant-a", fixed(nil)); err != nil {
		t.Fatalf("rebuild empty: %v", err)
	}
	if s.Snapshot("tenant-a") != nil {
		t.Fatalf("expected tenant-a index to be dropped")
	}
}

func TestStoreRejectsBlankTenant(t *testing.T) {
	s := NewStore(DefaultParams())
	_, err := s.Query(context.Background(), "  ", "x", 5)
	if !errors.Is(err, domain.ErrInvalidTenantContext) {
		t.Fatalf("expected invalid tenant context, got %v", err)
	}
	if err := s.Rebuild(context.Background(), "", fixed(nil)); !errors.Is(err, domain.ErrInvalidTenantContext) {
		t.Fatalf("expected invalid tenant context on rebuild, got %v", err)
	}
}

func TestStoreReadersSeeWholeSnapshotsDuringRebuild(t *testing.T) {
	s := NewStore(DefaultParams())
	corpus := func(n int) []domain.DocumentChunk {
		out := make([]domain.DocumentChunk, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, chunk("t", fmt.Sprintf("doc-%d", n), i, "needle haystack"))
		}
		return out
	}
	if err := s.Rebuild(context.Background(), "t", fixed(corpus(10))); err != nil {
		t.Fatalf("initial rebuild: %v", err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan error, 1)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				hits, err := s.Query(context.Background(), "t", "needle", 100)
				if err != nil {
					select {
					case errs <- err:
					default:
					}
					return
				}
				docs := map[string]bool{}
				for _, h := range hits {
					docs[h.Chunk.DocumentID] = true
				}
				if len(docs) != 1 || (len(hits) != 10 && len(hits) != 20) {
					select {
					case errs <- fmt.Errorf("torn snapshot: %d hits across %d documents", len(hits), len(docs)):
					default:
					}
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		n := 10
		if i%2 == 0 {
			n = 20
		}
		if err := s.Rebuild(context.Background(), "t", fixed(corpus(n))); err != nil {
			t.Fatalf("rebuild: %v", err)
		}
	}
	close(stop)
	wg.Wait()

	select {
	case err := <-errs:
		t.Fatal(err)
	default:
	}
}

func TestStoreRebuildLoadsInsideTenantSection(t *testing.T) {
	s := NewStore(DefaultParams())
	ctx := context.Background()
	slowLoading := make(chan struct{})
	release := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- s.Rebuild(ctx, "t", func(context.Context) ([]domain.DocumentChunk, error) {
			close(slowLoading)
			<-release
			return []domain.DocumentChunk{chunk("t", "a", 0, "stale listing")}, nil
		})
	}()
	<-slowLoading

	second := make(chan error, 1)
	go func() {
		second <- s.Rebuild(ctx, "t", fixed([]domain.DocumentChunk{
			chunk("t", "a", 0, "stale listing"),
			chunk("t", "c", 0, "fresh listing"),
		}))
	}()
	select {
	case err := <-second:
		t.Fatalf("second rebuild finished while the first was still loading: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("second rebuild: %v", err)
	}

	hits, err := s.Query(ctx, "t", "fresh", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.DocumentID != "c" {
		t.Fatalf("later rebuild must win, got %+v", hits)
	}
}

func TestStoreRebuildKeepsSnapshotWhenLoadFails(t *testing.T) {
	s := NewStore(DefaultParams())
	ctx := context.Background()
	if err := s.Rebuild(ctx, "t", fixed([]domain.DocumentChunk{chunk("t", "a", 0, "kept")})); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	errLoad := errors.New("store down")
	err := s.Rebuild(ctx, "t", func(context.Context) ([]domain.DocumentChunk, error) { return nil, errLoad })
	if !errors.Is(err, errLoad) {
		t.Fatalf("expected load error, got %v", err)
	}
	if s.Snapshot("t") == nil {
		t.Fatal("failed load must keep the previous snapshot")
	}
}
