package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, dimension int) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "vectors.db"), dimension)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertThenSearchTopKFindsNearestNeighbor(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "a.go:function:foo", []float32{1, 0, 0, 0}))
	require.NoError(t, s.Upsert(ctx, "a.go:function:bar", []float32{0, 1, 0, 0}))
	require.NoError(t, s.Upsert(ctx, "a.go:function:baz", []float32{0.9, 0.1, 0, 0}))

	results, err := s.SearchTopK(ctx, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a.go:function:foo", results[0].EntityID)
}

func TestUpsertRejectsDimensionMismatch(t *testing.T) {
	s := newTestStore(t, 4)
	err := s.Upsert(context.Background(), "a.go:function:foo", []float32{1, 2})
	assert.Error(t, err)
}

func TestDeleteRemovesEmbedding(t *testing.T) {
	s := newTestStore(t, 3)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, "a.go:function:foo", []float32{1, 2, 3}))
	require.NoError(t, s.Delete(ctx, "a.go:function:foo"))

	results, err := s.SearchTopK(ctx, []float32{1, 2, 3}, 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a.go:function:foo", r.EntityID)
	}
}

func TestSearchTopKZeroReturnsEmpty(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, "a.go:function:foo", []float32{1, 0, 0, 0}))

	results, err := s.SearchTopK(ctx, []float32{1, 0, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchTopKLargerThanStoreReturnsAllEntries(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, "a.go:function:foo", []float32{1, 0, 0, 0}))
	require.NoError(t, s.Upsert(ctx, "a.go:function:bar", []float32{0, 1, 0, 0}))

	results, err := s.SearchTopK(ctx, []float32{1, 0, 0, 0}, 100)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestReopenWithDifferentDimensionRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.db")

	first, err := Open(path, 4)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	_, err = Open(path, 8)
	require.Error(t, err)

	second, err := Open(path, 4)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestCosineSimilarityRanksIdenticalVectorHighest(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-6)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
}

func TestSerializeDeserializeRoundTrips(t *testing.T) {
	original := []float32{1.5, -2.25, 0, 3.125}
	got := deserializeFloat32(serializeFloat32(original))
	require.Len(t, got, len(original))
	for i := range original {
		assert.InDelta(t, original[i], got[i], 1e-6)
	}
}
