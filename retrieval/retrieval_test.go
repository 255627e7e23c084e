//go:build cgo

package retrieval

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prlgl/prlgl/llm"
	"github.com/prlgl/prlgl/store"
)

// fakeEmbedder returns fixed vectors keyed by input text.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 0, 0, 1}
		}
	}
	return out, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"), 4)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedChunks(t *testing.T, s *store.Store, contents []string, vectors [][]float32) []int64 {
	t.Helper()
	ctx := context.Background()

	docID, err := s.UpsertDocument(ctx, store.Document{
		Path: "/tmp/lease.pdf", Filename: "lease.pdf", Format: "pdf",
		ContentHash: "abc", ParseMethod: "native", Status: "indexed",
	})
	if err != nil {
		t.Fatalf("upserting document: %v", err)
	}

	chunks := make([]store.Chunk, len(contents))
	for i, c := range contents {
		chunks[i] = store.Chunk{DocumentID: docID, Content: c, PositionInDoc: i}
	}
	ids, err := s.InsertChunks(ctx, chunks)
	if err != nil {
		t.Fatalf("inserting chunks: %v", err)
	}
	for i, id := range ids {
		if err := s.InsertEmbedding(ctx, id, vectors[i]); err != nil {
			t.Fatalf("inserting embedding: %v", err)
		}
	}
	return ids
}

func TestSearchRanksBySimilarity(t *testing.T) {
	s := newTestStore(t)
	seedChunks(t, s,
		[]string{"rent is due monthly", "deposit held in escrow", "termination notice period"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0.9, 0.1, 0, 0}},
	)

	e := New(s, &fakeEmbedder{vectors: map[string][]float32{
		"when is rent due": {1, 0, 0, 0},
	}}, Config{TopK: 2})

	results, trace, err := e.Search(context.Background(), "when is rent due", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (TopK default)", len(results))
	}
	if results[0].Content != "rent is due monthly" {
		t.Errorf("top result = %q", results[0].Content)
	}
	if trace.IndexSize != 3 {
		t.Errorf("trace index size = %d, want 3", trace.IndexSize)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	s := newTestStore(t)
	e := New(s, &fakeEmbedder{}, Config{})

	results, trace, err := e.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("search on empty index: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results from empty index", len(results))
	}
	if trace.IndexSize != 0 {
		t.Errorf("trace index size = %d", trace.IndexSize)
	}
}

func TestSearchIdempotent(t *testing.T) {
	s := newTestStore(t)
	seedChunks(t, s,
		[]string{"alpha clause", "beta clause", "gamma clause"},
		[][]float32{{1, 0, 0, 0}, {1, 0, 0, 0}, {1, 0, 0, 0}},
	)
	e := New(s, &fakeEmbedder{vectors: map[string][]float32{"q": {1, 0, 0, 0}}}, Config{})

	first, _, err := e.Search(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, _, err := e.Search(context.Background(), "q", 3)
		if err != nil {
			t.Fatalf("repeat search: %v", err)
		}
		for j := range again {
			if again[j].ChunkID != first[j].ChunkID {
				t.Fatalf("ordering changed at position %d on run %d", j, i)
			}
		}
	}
}

func TestSearchEmbedderError(t *testing.T) {
	s := newTestStore(t)
	seedChunks(t, s, []string{"clause"}, [][]float32{{1, 0, 0, 0}})
	e := New(s, &fakeEmbedder{err: errors.New("boom")}, Config{})

	_, _, err := e.Search(context.Background(), "q", 1)
	if !errors.Is(err, ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

func TestContextJoinsChunks(t *testing.T) {
	s := newTestStore(t)
	seedChunks(t, s,
		[]string{"first clause text", "second clause text"},
		[][]float32{{1, 0, 0, 0}, {0.9, 0.1, 0, 0}},
	)
	e := New(s, &fakeEmbedder{vectors: map[string][]float32{"q": {1, 0, 0, 0}}}, Config{})

	blob, err := e.Context(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	lines := strings.Split(blob, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), blob)
	}
	if lines[0] != "first clause text" {
		t.Errorf("first line = %q", lines[0])
	}
}

func TestContextEmptyIndex(t *testing.T) {
	s := newTestStore(t)
	e := New(s, &fakeEmbedder{}, Config{})

	blob, err := e.Context(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("context on empty index: %v", err)
	}
	if blob != "" {
		t.Errorf("got %q, want empty string", blob)
	}
}

func TestJoinResults(t *testing.T) {
	if got := JoinResults(nil); got != "" {
		t.Errorf("JoinResults(nil) = %q", got)
	}
	got := JoinResults([]store.RetrievalResult{
		{Content: "  a  "}, {Content: "b"},
	})
	if got != "a\nb" {
		t.Errorf("got %q, want %q", got, "a\nb")
	}
}
