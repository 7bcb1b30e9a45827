package store

import (
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	liberrors "github.com/librarian-ai/librarian/internal/errors"
)

func testCollection(t *testing.T) *Collection {
	t.Helper()
	return NewCollection(Config{
		Dir:    t.TempDir(),
		Logger: slog.Default(),
	})
}

// vec builds a small deterministic vector.
func vec(seed float32) []float32 {
	return []float32{seed, seed + 1, seed + 2, seed + 3}
}

// addTestFile indexes n chunks for path with predictable vectors.
func addTestFile(t *testing.T, c *Collection, path string, n int) (first, last int) {
	t.Helper()

	vectors := make([][]float32, n)
	metas := make([]ChunkMetadata, n)
	for i := 0; i < n; i++ {
		vectors[i] = vec(float32(len(path)*10 + i))
		metas[i] = ChunkMetadata{
			Text:          fmt.Sprintf("%s chunk %d", path, i),
			SourceTitle:   path,
			ChunkSequence: i,
		}
	}

	first, last, err := c.AddFile(path, FileInfo{ContentHash: "hash-" + path, FileSize: int64(n * 100), FileType: ".txt"}, vectors, metas)
	require.NoError(t, err)
	return first, last
}

func TestAddFile_AssignsContiguousPositions(t *testing.T) {
	c := testCollection(t)
	defer c.Close()

	first, last := addTestFile(t, c, "/books/a.txt", 3)
	assert.Equal(t, 0, first)
	assert.Equal(t, 2, last)

	first, last = addTestFile(t, c, "/books/b.txt", 2)
	assert.Equal(t, 3, first)
	assert.Equal(t, 4, last)

	assert.Equal(t, 5, c.Len())
	require.NoError(t, c.VerifyInvariants())

	entry, ok := c.Entry("/books/b.txt")
	require.True(t, ok)
	assert.Equal(t, 2, entry.ChunkCount)
	assert.Equal(t, 3, entry.FirstChunk)
	assert.Equal(t, 4, entry.LastChunk)
	assert.Equal(t, "hash-/books/b.txt", entry.ContentHash)
}

func TestAddFile_RejectsMismatchedLengths(t *testing.T) {
	c := testCollection(t)
	defer c.Close()

	_, _, err := c.AddFile("/books/a.txt", FileInfo{}, [][]float32{vec(1)}, []ChunkMetadata{{}, {}})
	require.Error(t, err)
	assert.True(t, liberrors.IsFatal(err))
}

func TestAddFile_RejectsDimensionMismatch(t *testing.T) {
	c := testCollection(t)
	defer c.Close()

	addTestFile(t, c, "/books/a.txt", 1)

	_, _, err := c.AddFile("/books/b.txt", FileInfo{},
		[][]float32{{1, 2}}, []ChunkMetadata{{Text: "short vector"}})
	require.Error(t, err)
	var dimErr ErrDimensionMismatch
	assert.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 4, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)
}

func TestAddFile_RejectsAlreadyIndexedFile(t *testing.T) {
	c := testCollection(t)
	defer c.Close()

	addTestFile(t, c, "/books/a.txt", 2)

	_, _, err := c.AddFile("/books/a.txt", FileInfo{},
		[][]float32{vec(9)}, []ChunkMetadata{{Text: "dup"}})
	assert.Error(t, err)
}

func TestRemoveFiles_RenumbersSurvivors(t *testing.T) {
	// Given files A (3 chunks) and B (2 chunks) indexed in order
	c := testCollection(t)
	defer c.Close()
	addTestFile(t, c, "/books/a.txt", 3)
	addTestFile(t, c, "/books/b.txt", 2)

	// When removing A
	removed, err := c.RemoveFiles("/books/a.txt")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	// Then the count drops to 2 and B is renumbered to [0, 1]
	assert.Equal(t, 2, c.Len())
	entry, ok := c.Entry("/books/b.txt")
	require.True(t, ok)
	assert.Equal(t, 0, entry.FirstChunk)
	assert.Equal(t, 1, entry.LastChunk)

	// And a metadata lookup at position 0 returns a B chunk
	meta, ok := c.MetadataAt(0)
	require.True(t, ok)
	assert.Equal(t, "/books/b.txt", meta.SourceFile)
	assert.Equal(t, 0, meta.ChunkSequence)

	_, ok = c.Entry("/books/a.txt")
	assert.False(t, ok)
	require.NoError(t, c.VerifyInvariants())
}

func TestRemoveFiles_RoundTrip(t *testing.T) {
	// Given an indexed file
	c := testCollection(t)
	defer c.Close()
	addTestFile(t, c, "/books/a.txt", 4)
	require.Equal(t, 4, c.Len())

	// When removing it
	removed, err := c.RemoveFiles("/books/a.txt")
	require.NoError(t, err)
	assert.Equal(t, 4, removed)

	// Then the collection is back to empty
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Files())

	// And removing it again is a no-op
	removed, err = c.RemoveFiles("/books/a.txt")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestRemoveFiles_BatchesMultiplePaths(t *testing.T) {
	c := testCollection(t)
	defer c.Close()
	addTestFile(t, c, "/books/a.txt", 2)
	addTestFile(t, c, "/books/b.txt", 3)
	addTestFile(t, c, "/books/c.txt", 1)

	removed, err := c.RemoveFiles("/books/a.txt", "/books/c.txt", "/books/never-indexed.txt")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	entry, ok := c.Entry("/books/b.txt")
	require.True(t, ok)
	assert.Equal(t, 0, entry.FirstChunk)
	assert.Equal(t, 2, entry.LastChunk)
	require.NoError(t, c.VerifyInvariants())
}

func TestInvariants_HoldAcrossMutationSequence(t *testing.T) {
	c := testCollection(t)
	defer c.Close()

	addTestFile(t, c, "/books/a.txt", 3)
	addTestFile(t, c, "/books/b.txt", 2)
	require.NoError(t, c.VerifyInvariants())

	_, err := c.RemoveFiles("/books/a.txt")
	require.NoError(t, err)
	require.NoError(t, c.VerifyInvariants())

	addTestFile(t, c, "/books/a.txt", 5)
	require.NoError(t, c.VerifyInvariants())

	_, err = c.RemoveFiles("/books/b.txt")
	require.NoError(t, err)
	require.NoError(t, c.VerifyInvariants())

	// Positions still partition [0, N-1]
	assert.Equal(t, 5, c.Len())
	entry, _ := c.Entry("/books/a.txt")
	assert.Equal(t, 0, entry.FirstChunk)
	assert.Equal(t, 4, entry.LastChunk)
}

func TestSearch_ReturnsNearestWithScores(t *testing.T) {
	c := testCollection(t)
	defer c.Close()

	_, _, err := c.AddFile("/books/a.txt", FileInfo{ContentHash: "h"},
		[][]float32{{0, 0, 0, 0}, {10, 10, 10, 10}},
		[]ChunkMetadata{{Text: "near origin"}, {Text: "far away"}})
	require.NoError(t, err)

	results, err := c.Search([]float32{0.1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Nearest first, scores in (0, 1] and decreasing with distance
	assert.Equal(t, "near origin", results[0].Meta.Text)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.LessOrEqual(t, results[0].Score, 1.0)
	assert.Greater(t, results[1].Score, 0.0)
}

func TestSearch_EmptyCollection(t *testing.T) {
	c := testCollection(t)
	defer c.Close()

	results, err := c.Search(vec(1), 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_QueryDimensionMismatch(t *testing.T) {
	c := testCollection(t)
	defer c.Close()
	addTestFile(t, c, "/books/a.txt", 1)

	_, err := c.Search([]float32{1, 2}, 3)
	var dimErr ErrDimensionMismatch
	assert.ErrorAs(t, err, &dimErr)
}

func TestClosedCollection_RejectsOperations(t *testing.T) {
	c := testCollection(t)
	require.NoError(t, c.Close())

	_, _, err := c.AddFile("/x", FileInfo{}, [][]float32{vec(1)}, []ChunkMetadata{{}})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.RemoveFiles("/x")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Search(vec(1), 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Save(), ErrClosed)

	// Closing twice is fine
	assert.NoError(t, c.Close())
}

func TestAllMetadata_PositionOrder(t *testing.T) {
	c := testCollection(t)
	defer c.Close()
	addTestFile(t, c, "/books/a.txt", 2)
	addTestFile(t, c, "/books/b.txt", 1)

	metas := c.AllMetadata()
	require.Len(t, metas, 3)
	assert.Equal(t, "/books/a.txt", metas[0].SourceFile)
	assert.Equal(t, 1, metas[1].ChunkSequence)
	assert.Equal(t, "/books/b.txt", metas[2].SourceFile)
}

func TestCollectionStats(t *testing.T) {
	c := testCollection(t)
	defer c.Close()
	addTestFile(t, c, "/books/a.txt", 2)

	stats := c.CollectionStats()
	assert.Equal(t, 2, stats.Vectors)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 4, stats.Dimensions)
}
