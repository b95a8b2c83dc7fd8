package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegraph-rag/engine/internal/types"
)

func result(path string) types.ParseResult {
	return types.ParseResult{FilePath: path}
}

func TestGetMissThenHit(t *testing.T) {
	l := New(1024, nil)

	_, ok := l.Get("a.go:h1")
	assert.False(t, ok)

	l.Put("a.go:h1", result("a.go"), 100)
	entry, ok := l.Get("a.go:h1")
	require.True(t, ok)
	assert.Equal(t, "a.go", entry.Result.FilePath)

	stats := l.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-9)
}

func TestEvictionIsOldestFirst(t *testing.T) {
	l := New(250, nil)
	l.Put("a:1", result("a"), 100)
	l.Put("b:1", result("b"), 100)

	// Touch a so b becomes the eviction candidate.
	_, ok := l.Get("a:1")
	require.True(t, ok)

	l.Put("c:1", result("c"), 100)

	_, ok = l.Get("b:1")
	assert.False(t, ok, "least recently used entry should have been evicted")
	_, ok = l.Get("a:1")
	assert.True(t, ok)
	_, ok = l.Get("c:1")
	assert.True(t, ok)
	assert.Equal(t, int64(1), l.Stats().Evictions)
}

func TestPutReplaceAdjustsSize(t *testing.T) {
	l := New(1024, nil)
	l.Put("a:1", result("a"), 600)
	l.Put("a:1", result("a"), 100)

	stats := l.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(100), stats.Bytes)
}

func TestOversizedEntryEvictsEverything(t *testing.T) {
	l := New(200, nil)
	l.Put("a:1", result("a"), 50)
	l.Put("big:1", result("big"), 500)

	// The oversized entry cannot fit either; the cache drains to empty.
	assert.Equal(t, 0, l.Stats().Entries)
	assert.Equal(t, int64(0), l.Stats().Bytes)
}

func TestDeletePrefix(t *testing.T) {
	l := New(1024, nil)
	l.Put(Key("x.go", "h1"), result("x.go"), 10)
	l.Put(Key("x.go", "error"), result("x.go"), 10)
	l.Put(Key("y.go", "h1"), result("y.go"), 10)

	removed := l.DeletePrefix("x.go:")
	assert.Equal(t, 2, removed)

	_, ok := l.Get(Key("y.go", "h1"))
	assert.True(t, ok)
	assert.Equal(t, 1, l.Stats().Entries)
}

func TestExportRestoreKeepsOrder(t *testing.T) {
	l := New(1024, nil)
	l.Put("a:1", result("a"), 10)
	l.Put("b:1", result("b"), 10)
	l.Put("c:1", result("c"), 10)

	exported := l.Export()
	require.Len(t, exported, 3)
	assert.Equal(t, "c:1", exported[0].Key, "export is most-recently-used first")

	fresh := New(1024, nil)
	fresh.Restore(exported)
	assert.Equal(t, exported, fresh.Export())
}

func TestClear(t *testing.T) {
	l := New(1024, nil)
	l.Put("a:1", result("a"), 10)
	l.Clear()
	assert.Equal(t, 0, l.Stats().Entries)
	assert.Equal(t, int64(0), l.Stats().Bytes)
	_, ok := l.Get("a:1")
	assert.False(t, ok)
}
