package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	liberrors "github.com/librarian-ai/librarian/internal/errors"
	"github.com/librarian-ai/librarian/internal/store"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vec, f.err
}

// fakeSearcher returns a canned candidate list, ordered best-first as
// the real store does.
type fakeSearcher struct {
	results []store.SearchResult
	err     error
	lastK   int
}

func (f *fakeSearcher) Search(_ []float32, k int) ([]store.SearchResult, error) {
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > k {
		return f.results[:k], nil
	}
	return f.results, nil
}

func (f *fakeSearcher) Len() int { return len(f.results) }

func candidate(score float64, text string, categories ...string) store.SearchResult {
	return store.SearchResult{
		Score: score,
		Meta:  store.ChunkMetadata{Text: text, SourceFile: "/docs/" + text + ".txt", Categories: categories},
	}
}

func newTestRetriever(s Searcher, opts Options) *Retriever {
	return NewRetriever(&fakeEmbedder{vec: []float32{1, 0}}, s, opts)
}

func TestRetrieveOrdersByScore(t *testing.T) {
	// Given candidates ordered best-first
	searcher := &fakeSearcher{results: []store.SearchResult{
		candidate(0.9, "first"),
		candidate(0.7, "second"),
		candidate(0.5, "third"),
	}}
	r := newTestRetriever(searcher, Options{})

	// When retrieving
	results, err := r.Retrieve(context.Background(), "question", nil)

	// Then the order and rounded scores are preserved
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].Text)
	assert.Equal(t, 0.9, results[0].Score)
	assert.True(t, results[0].Score >= results[1].Score)
	assert.True(t, results[1].Score >= results[2].Score)
}

func TestRetrieveOversamples(t *testing.T) {
	searcher := &fakeSearcher{results: []store.SearchResult{candidate(0.9, "a")}}
	r := newTestRetriever(searcher, Options{TopK: 7})

	_, err := r.Retrieve(context.Background(), "q", nil)

	require.NoError(t, err)
	assert.Equal(t, 14, searcher.lastK)
}

func TestRetrieveCapsAtTopK(t *testing.T) {
	var results []store.SearchResult
	for i := 0; i < 8; i++ {
		results = append(results, candidate(0.9-float64(i)*0.01, "doc"))
	}
	r := newTestRetriever(&fakeSearcher{results: results}, Options{TopK: 3, SmartTopN: 100})

	out, err := r.Retrieve(context.Background(), "q", nil)

	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestRetrieveEmptyQuery(t *testing.T) {
	r := newTestRetriever(&fakeSearcher{results: []store.SearchResult{candidate(0.9, "a")}}, Options{})

	_, err := r.Retrieve(context.Background(), "   ", nil)

	assert.Equal(t, liberrors.ErrCodeQueryEmpty, liberrors.GetCode(err))
}

func TestRetrieveEmptyIndex(t *testing.T) {
	r := newTestRetriever(&fakeSearcher{}, Options{})

	_, err := r.Retrieve(context.Background(), "q", nil)

	assert.ErrorIs(t, err, ErrNoResults)
}

func TestRetrieveEmbedFailureIsHardError(t *testing.T) {
	// Given an embedder that fails
	embedder := &fakeEmbedder{err: errors.New("provider down")}
	searcher := &fakeSearcher{results: []store.SearchResult{candidate(0.9, "a")}}
	r := NewRetriever(embedder, searcher, Options{})

	// When retrieving
	_, err := r.Retrieve(context.Background(), "q", nil)

	// Then the failure surfaces and is not disguised as no-results
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoResults)
	assert.ErrorContains(t, err, "provider down")
}

func TestRetrieveSearchFailure(t *testing.T) {
	searcher := &fakeSearcher{results: []store.SearchResult{candidate(0.9, "a")}, err: errors.New("graph broken")}
	r := newTestRetriever(searcher, Options{})

	_, err := r.Retrieve(context.Background(), "q", nil)

	assert.Equal(t, liberrors.ErrCodeSearchFailed, liberrors.GetCode(err))
}

func TestCategoryFilterIntersects(t *testing.T) {
	searcher := &fakeSearcher{results: []store.SearchResult{
		candidate(0.9, "a", "science"),
		candidate(0.8, "b", "history"),
		candidate(0.7, "c", "science", "reference"),
	}}
	r := newTestRetriever(searcher, Options{})

	results, err := r.Retrieve(context.Background(), "q", []string{"Science"})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Text)
	assert.Equal(t, "c", results[1].Text)
}

func TestCategoryFilterDiscardedWhenNothingMatches(t *testing.T) {
	// Given no candidate carries the requested tag
	searcher := &fakeSearcher{results: []store.SearchResult{
		candidate(0.9, "a", "science"),
		candidate(0.8, "b", "history"),
	}}
	r := newTestRetriever(searcher, Options{})

	// When retrieving with an unmatched category
	results, err := r.Retrieve(context.Background(), "q", []string{"fiction"})

	// Then the filter is dropped rather than returning nothing
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSmartTopNCutsWhenAllConfident(t *testing.T) {
	// Given five high-confidence candidates followed by weaker ones
	searcher := &fakeSearcher{results: []store.SearchResult{
		candidate(0.9, "a"), candidate(0.8, "b"), candidate(0.7, "c"),
		candidate(0.6, "d"), candidate(0.5, "e"),
		candidate(0.3, "f"), candidate(0.25, "g"),
	}}
	r := newTestRetriever(searcher, Options{})

	results, err := r.Retrieve(context.Background(), "q", nil)

	require.NoError(t, err)
	assert.Len(t, results, 5)
	assert.Equal(t, "e", results[4].Text)
}

func TestSmartTopNSkippedWhenAnyWeak(t *testing.T) {
	searcher := &fakeSearcher{results: []store.SearchResult{
		candidate(0.9, "a"), candidate(0.8, "b"), candidate(0.7, "c"),
		candidate(0.6, "d"), candidate(0.35, "e"),
		candidate(0.3, "f"),
	}}
	r := newTestRetriever(searcher, Options{})

	results, err := r.Retrieve(context.Background(), "q", nil)

	require.NoError(t, err)
	assert.Len(t, results, 6)
}

func TestScoreThresholdDropsWeakCandidates(t *testing.T) {
	searcher := &fakeSearcher{results: []store.SearchResult{
		candidate(0.9, "a"), candidate(0.3, "b"), candidate(0.1, "c"), candidate(0.05, "d"),
	}}
	r := newTestRetriever(searcher, Options{})

	results, err := r.Retrieve(context.Background(), "q", nil)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[1].Text)
}

func TestScoreThresholdFallbackKeepsBestThree(t *testing.T) {
	// Given every candidate falls below the floor
	searcher := &fakeSearcher{results: []store.SearchResult{
		candidate(0.15, "a"), candidate(0.12, "b"), candidate(0.1, "c"), candidate(0.05, "d"),
	}}
	r := newTestRetriever(searcher, Options{})

	results, err := r.Retrieve(context.Background(), "q", nil)

	// Then the best three survive instead of an empty answer
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Text)
	assert.Equal(t, "c", results[2].Text)
}

func TestScoreThresholdNegativeDisablesFloor(t *testing.T) {
	// Given candidates that would fail the default floor
	searcher := &fakeSearcher{results: []store.SearchResult{
		candidate(0.9, "a"), candidate(0.15, "b"), candidate(0.05, "c"),
	}}
	r := newTestRetriever(searcher, Options{ScoreThreshold: -1})

	results, err := r.Retrieve(context.Background(), "q", nil)

	// Then everything survives, in order
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "c", results[2].Text)
}

func TestScoreThresholdMonotonicOutsideFallback(t *testing.T) {
	// Given a candidate set where every floor below the best score keeps
	// at least one candidate, so the weak-match fallback never engages
	results := []store.SearchResult{
		candidate(0.8, "a"), candidate(0.6, "b"), candidate(0.4, "c"), candidate(0.3, "d"),
	}

	// Then raising the floor never increases the result count
	prev := len(results)
	for _, floor := range []float64{0.1, 0.3, 0.5, 0.7} {
		r := newTestRetriever(&fakeSearcher{results: results},
			Options{ScoreThreshold: floor, SmartTopN: 100})
		out, err := r.Retrieve(context.Background(), "q", nil)
		require.NoError(t, err)
		require.NotEmpty(t, out)
		assert.LessOrEqual(t, len(out), prev, "floor %.1f", floor)
		prev = len(out)
	}
}

func TestScoreThresholdFallbackCanGrowResultCount(t *testing.T) {
	// The best-three fallback trades count monotonicity for a nonempty
	// answer: a floor above every score hands back three weak results
	// where a lower floor kept a single strong one.
	results := []store.SearchResult{
		candidate(0.5, "a"), candidate(0.1, "b"), candidate(0.1, "c"), candidate(0.1, "d"),
	}

	low := newTestRetriever(&fakeSearcher{results: results},
		Options{ScoreThreshold: 0.2, SmartTopN: 100})
	out, err := low.Retrieve(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Len(t, out, 1)

	high := newTestRetriever(&fakeSearcher{results: results},
		Options{ScoreThreshold: 0.6, SmartTopN: 100})
	out, err = high.Retrieve(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestScoresRoundedToThreeDecimals(t *testing.T) {
	searcher := &fakeSearcher{results: []store.SearchResult{candidate(0.87654, "a")}}
	r := newTestRetriever(searcher, Options{})

	results, err := r.Retrieve(context.Background(), "q", nil)

	require.NoError(t, err)
	assert.Equal(t, 0.877, results[0].Score)
}
