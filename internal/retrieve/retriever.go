// Package retrieve turns a natural-language query into ranked chunk
// results. The search itself is a fixed pipeline: embed the query,
// oversample the nearest-neighbor search, then run the candidate list
// through an ordered chain of filter policies.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	liberrors "github.com/librarian-ai/librarian/internal/errors"
	"github.com/librarian-ai/librarian/internal/store"
)

// ErrNoResults is returned when the index is empty or every candidate
// was filtered out and no fallback applied. A query embedding failure is
// never reported as ErrNoResults.
var ErrNoResults = errors.New("no results found")

// Embedder is the query-side embedding dependency.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the slice of the vector store the retriever needs.
type Searcher interface {
	Search(query []float32, k int) ([]store.SearchResult, error)
	Len() int
}

// Result is one ranked retrieval hit.
type Result struct {
	Text        string   `json:"text"`
	SourceFile  string   `json:"source_file"`
	SourceTitle string   `json:"source_title,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	// Score is 1/(1+distance) rounded to three decimals.
	Score float64 `json:"score"`
}

// Options tunes the filter chain. Zero values fall back to the defaults
// from the configuration layer.
type Options struct {
	// TopK is the number of results kept after oversampling.
	TopK int
	// ScoreThreshold drops candidates scoring below it. Zero selects the
	// default; a negative value disables the floor entirely.
	ScoreThreshold float64
	// SmartTopN and SmartThreshold enable the high-confidence cut: when
	// the best SmartTopN candidates all score at or above SmartThreshold,
	// only those are kept.
	SmartTopN      int
	SmartThreshold float64
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = 10
	}
	if o.ScoreThreshold == 0 {
		o.ScoreThreshold = 0.2
	}
	if o.SmartTopN <= 0 {
		o.SmartTopN = 5
	}
	if o.SmartThreshold <= 0 {
		o.SmartThreshold = 0.4
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Retriever runs queries against a vector store.
type Retriever struct {
	embedder Embedder
	searcher Searcher
	opts     Options
	policies []filterPolicy
}

// filterPolicy is one named step of the candidate filter chain. Steps
// run in registration order and each receives the previous step's
// output.
type filterPolicy struct {
	name  string
	apply func(req request, in []store.SearchResult) []store.SearchResult
}

// request carries per-query filter inputs through the policy chain.
type request struct {
	categories []string
}

// NewRetriever wires the fixed filter chain: category intersection,
// then the high-confidence cut, then the score floor with its best-3
// fallback.
func NewRetriever(embedder Embedder, searcher Searcher, opts Options) *Retriever {
	r := &Retriever{
		embedder: embedder,
		searcher: searcher,
		opts:     opts.withDefaults(),
	}
	r.policies = []filterPolicy{
		{name: "category", apply: r.categoryFilter},
		{name: "smart_top_n", apply: r.smartTopN},
		{name: "score_threshold", apply: r.scoreThreshold},
	}
	return r
}

// Retrieve embeds the query and returns up to TopK ranked results.
// categories, when non-empty, restricts results to chunks tagged with at
// least one of them (case-insensitive). An embedding failure is returned
// as a hard error; an empty outcome is ErrNoResults.
func (r *Retriever) Retrieve(ctx context.Context, query string, categories []string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, liberrors.New(liberrors.ErrCodeQueryEmpty, "query is empty", nil).
			WithSuggestion("Provide a non-empty query string")
	}
	if r.searcher.Len() == 0 {
		return nil, ErrNoResults
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Oversample the graph search, then carry only the best TopK into
	// the filter chain.
	candidates, err := r.searcher.Search(vec, r.opts.TopK*2)
	if err != nil {
		return nil, liberrors.New(liberrors.ErrCodeSearchFailed, "vector search failed", err)
	}
	if len(candidates) == 0 {
		return nil, ErrNoResults
	}
	if len(candidates) > r.opts.TopK {
		candidates = candidates[:r.opts.TopK]
	}

	req := request{categories: normalizeCategories(categories)}
	for _, p := range r.policies {
		before := len(candidates)
		candidates = p.apply(req, candidates)
		if len(candidates) != before {
			r.opts.Logger.Debug("filter applied",
				slog.String("policy", p.name),
				slog.Int("before", before),
				slog.Int("after", len(candidates)))
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoResults
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, Result{
			Text:        c.Meta.Text,
			SourceFile:  c.Meta.SourceFile,
			SourceTitle: c.Meta.SourceTitle,
			Categories:  c.Meta.Categories,
			Score:       roundScore(c.Score),
		})
	}
	return results, nil
}

// categoryFilter keeps candidates tagged with at least one requested
// category. When the intersection would empty the list the filter is
// discarded and the full list passes through, so a bad tag degrades to
// an untagged query instead of zero results.
func (r *Retriever) categoryFilter(req request, in []store.SearchResult) []store.SearchResult {
	if len(req.categories) == 0 {
		return in
	}
	var kept []store.SearchResult
	for _, c := range in {
		if hasAnyCategory(c.Meta.Categories, req.categories) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		r.opts.Logger.Debug("category filter matched nothing, ignoring it",
			slog.Any("categories", req.categories))
		return in
	}
	return kept
}

// smartTopN keeps only the best SmartTopN candidates when all of them
// clear SmartThreshold. The candidate list arrives ordered best-first.
func (r *Retriever) smartTopN(_ request, in []store.SearchResult) []store.SearchResult {
	n := r.opts.SmartTopN
	if len(in) < n {
		return in
	}
	for i := 0; i < n; i++ {
		if in[i].Score < r.opts.SmartThreshold {
			return in
		}
	}
	return in[:n]
}

// scoreThreshold drops candidates below the score floor. If that would
// discard everything, the best three survive so a weak-but-nonempty
// match set still answers the query. Outside that fallback, raising the
// floor never grows the result count; crossing the best score trips the
// fallback and can return more results than a lower floor did.
func (r *Retriever) scoreThreshold(_ request, in []store.SearchResult) []store.SearchResult {
	var kept []store.SearchResult
	for _, c := range in {
		if c.Score >= r.opts.ScoreThreshold {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 && len(in) > 0 {
		fallback := 3
		if len(in) < fallback {
			fallback = len(in)
		}
		return in[:fallback]
	}
	return kept
}

func normalizeCategories(categories []string) []string {
	var out []string
	for _, c := range categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func hasAnyCategory(have, want []string) bool {
	for _, h := range have {
		h = strings.ToLower(h)
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func roundScore(s float64) float64 {
	return math.Round(s*1000) / 1000
}
