package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/ayxsth/cloudymate/rag"
)

func chunk(source string, index int, content string, emb ...float64) rag.Chunk {
	return rag.Chunk{
		ID:        rag.ChunkID(source, index),
		Source:    source,
		Index:     index,
		Content:   content,
		Embedding: emb,
	}
}

func newTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	dir := t.TempDir()
	s := NewSQLiteStore(dir, "test-model")
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func TestSQLiteStoreIsLazy(t *testing.T) {
	dir := t.TempDir() + "/store"
	s := NewSQLiteStore(dir, "")
	defer s.Close()

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected no directory before first use, stat err = %v", err)
	}
	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected empty store, got %d", n)
	}
	if _, err := os.Stat(s.Path()); err != nil {
		t.Fatalf("expected database file after first use: %v", err)
	}
}

func TestSQLiteStoreSelfSimilarity(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	err := s.Upsert(ctx,
		chunk("a.pdf", 0, "lambda", 1, 0, 0),
		chunk("a.pdf", 1, "s3", 0, 1, 0),
		chunk("b.pdf", 0, "ec2", 0, 0, 1),
	)
	if err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	results, err := s.Query(ctx, []float64{0, 1, 0}, 1)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	got := results[0]
	if got.Chunk.Content != "s3" || got.Chunk.Source != "a.pdf" || got.Chunk.Index != 1 {
		t.Fatalf("unexpected top result: %+v", got.Chunk)
	}
	if got.Score < 0.999 {
		t.Fatalf("expected score ~1, got %f", got.Score)
	}
	if len(got.Chunk.Embedding) != 3 || got.Chunk.Embedding[1] != 1 {
		t.Fatalf("embedding not round-tripped: %v", got.Chunk.Embedding)
	}
}

func TestSQLiteStoreQueryBoundsAndOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if err := s.Upsert(ctx,
		chunk("a.pdf", 0, "first", 1, 0),
		chunk("a.pdf", 1, "second", 1, 0),
		chunk("a.pdf", 2, "third", 0, 1),
	); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	results, err := s.Query(ctx, []float64{1, 0}, 10)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected all 3 results, got %d", len(results))
	}
	// equal scores keep insertion order
	if results[0].Chunk.Content != "first" || results[1].Chunk.Content != "second" {
		t.Fatalf("unexpected order: %s, %s", results[0].Chunk.Content, results[1].Chunk.Content)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Fatalf("results not sorted at %d", i)
		}
	}

	results, err = s.Query(ctx, []float64{1, 0}, 0)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results for k=0, got %d", len(results))
	}
}

func TestSQLiteStoreOverwriteKeepsPosition(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if err := s.Upsert(ctx, chunk("a.pdf", 0, "old", 1, 0), chunk("a.pdf", 1, "other", 1, 0)); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if err := s.Upsert(ctx, chunk("a.pdf", 0, "new", 1, 0)); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 chunks after overwrite, got %d", n)
	}
	results, err := s.Query(ctx, []float64{1, 0}, 2)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if results[0].Chunk.Content != "new" {
		t.Fatalf("expected overwritten chunk first, got %q", results[0].Chunk.Content)
	}
}

func TestSQLiteStoreDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if err := s.Upsert(ctx, chunk("a.pdf", 0, "x", 1, 0, 0)); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	err := s.Upsert(ctx, chunk("a.pdf", 1, "y", 1, 0))
	if !errors.Is(err, rag.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	n, _ := s.Count(ctx)
	if n != 1 {
		t.Fatalf("expected rejected write to leave 1 chunk, got %d", n)
	}
}

func TestSQLiteStoreQueryDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if err := s.Upsert(ctx, chunk("a.pdf", 0, "x", 1, 0, 0)); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	_, err := s.Query(ctx, []float64{1, 0}, 4)
	if !errors.Is(err, rag.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSQLiteStoreConcurrentUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if err := s.Upsert(ctx, chunk("seed.pdf", 0, "seed", 1, 0)); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	const writers, perWriter = 16, 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			source := fmt.Sprintf("doc-%d.pdf", w)
			for i := 0; i < perWriter; i++ {
				if err := s.Upsert(ctx, chunk(source, i, "content", 1, float64(i))); err != nil {
					errs <- fmt.Errorf("writer %d upsert %d: %w", w, i, err)
					return
				}
				if _, err := s.Query(ctx, []float64{1, 0}, 3); err != nil {
					errs <- fmt.Errorf("writer %d query %d: %w", w, i, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent access failed: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if want := writers*perWriter + 1; n != want {
		t.Fatalf("expected %d chunks, got %d", want, n)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	s, dir := newTestStore(t)

	if err := s.Upsert(ctx, chunk("guide.pdf", 0, "Lambda runs code", 0.6, 0.8)); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	reopened := NewSQLiteStore(dir, "test-model")
	defer reopened.Close()
	results, err := reopened.Query(ctx, []float64{0.6, 0.8}, 4)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.Content != "Lambda runs code" {
		t.Fatalf("expected persisted chunk, got %+v", results)
	}
}

func TestSQLiteStoreReset(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if err := s.Upsert(ctx, chunk("a.pdf", 0, "x", 1, 0, 0)); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected empty store after reset, got %d", n)
	}
	// the dimension is forgotten too
	if err := s.Upsert(ctx, chunk("a.pdf", 0, "x", 1, 0)); err != nil {
		t.Fatalf("Upsert after reset returned error: %v", err)
	}
}

func TestVectorEncoding(t *testing.T) {
	in := []float64{0, -1.5, 3.25, 1e-9}
	out := decodeVector(encodeVector(in))
	if len(out) != len(in) {
		t.Fatalf("expected %d values, got %d", len(in), len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("value %d: expected %v, got %v", i, in[i], out[i])
		}
	}
}
