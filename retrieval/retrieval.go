package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prlgl/prlgl/llm"
	"github.com/prlgl/prlgl/store"
)

// ErrEmbedding is returned when the query text cannot be embedded.
var ErrEmbedding = errors.New("retrieval: embedding query failed")

// Config holds retrieval engine configuration.
type Config struct {
	// TopK is the number of nearest chunks retrieved per query.
	TopK int
}

// Trace records the breakdown of a single retrieval operation.
type Trace struct {
	QueryChars   int     `json:"query_chars"`
	IndexSize    int     `json:"index_size"`
	Results      int     `json:"results"`
	MaxRequested int     `json:"max_requested"`
	TopScore     float64 `json:"top_score,omitempty"`
	ElapsedMs    int64   `json:"elapsed_ms"`
}

// Engine performs vector retrieval over a session's indexed agreement.
// Searches are read-only against the session store, so concurrent
// queries need no coordination.
type Engine struct {
	store    *store.Store
	embedder llm.Provider
	cfg      Config
}

// New creates a retrieval engine over the given session store.
func New(s *store.Store, embedder llm.Provider, cfg Config) *Engine {
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	return &Engine{store: s, embedder: embedder, cfg: cfg}
}

// Search embeds the query and returns the top-k nearest chunks in
// descending similarity order. An empty index yields zero results, not
// an error.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]store.RetrievalResult, *Trace, error) {
	if k <= 0 {
		k = e.cfg.TopK
	}
	start := time.Now()
	trace := &Trace{QueryChars: len(query), MaxRequested: k}

	if n, err := e.store.CountEmbeddings(ctx); err == nil {
		trace.IndexSize = n
		if n == 0 {
			trace.ElapsedMs = time.Since(start).Milliseconds()
			return nil, trace, nil
		}
	}

	embeddings, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, trace, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(embeddings) == 0 {
		return nil, trace, fmt.Errorf("%w: provider returned no vectors", ErrEmbedding)
	}

	results, err := e.store.VectorSearch(ctx, embeddings[0], k)
	if err != nil {
		return nil, trace, fmt.Errorf("vector search: %w", err)
	}

	trace.Results = len(results)
	if len(results) > 0 {
		trace.TopScore = results[0].Score
	}
	trace.ElapsedMs = time.Since(start).Milliseconds()

	slog.Debug("retrieval: search complete",
		"results", trace.Results,
		"index_size", trace.IndexSize,
		"elapsed_ms", trace.ElapsedMs)

	return results, trace, nil
}

// Context embeds the query, retrieves the top-k nearest chunks and
// concatenates their contents into a single context block for prompt
// assembly. An empty index yields an empty string.
func (e *Engine) Context(ctx context.Context, query string, k int) (string, error) {
	results, _, err := e.Search(ctx, query, k)
	if err != nil {
		return "", err
	}
	return JoinResults(results), nil
}

// JoinResults concatenates retrieved chunk contents with newlines,
// preserving the similarity ordering.
func JoinResults(results []store.RetrievalResult) string {
	if len(results) == 0 {
		return ""
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = strings.TrimSpace(r.Content)
	}
	return strings.Join(parts, "\n")
}
