package semantic

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegraph-rag/engine/internal/types"
	"github.com/codegraph-rag/engine/internal/vectorstore"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(32)
	a := e.Embed("foo bar")
	b := e.Embed("foo bar")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestHashEmbedderUnitNorm(t *testing.T) {
	e := NewHashEmbedder(16)
	vec := e.Embed("User.Save")
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 0.01)
}

func TestReconcileDetectsAddedModifiedRemoved(t *testing.T) {
	prev := []types.Entity{
		{ID: "a.go:function:Foo", Name: "Foo", Type: types.EntityFunction, FilePath: "a.go"},
		{ID: "a.go:function:Bar", Name: "Bar", Type: types.EntityFunction, FilePath: "a.go"},
	}
	curr := []types.Entity{
		{ID: "a.go:function:Foo", Name: "Foo", Type: types.EntityFunction, FilePath: "a.go", Modifiers: []string{"exported"}},
		{ID: "a.go:function:Baz", Name: "Baz", Type: types.EntityFunction, FilePath: "a.go"},
	}

	added, modified, removed := Reconcile(prev, curr)
	require.Len(t, added, 1)
	assert.Equal(t, "a.go:function:Baz", added[0].ID)
	require.Len(t, modified, 1)
	assert.Equal(t, "a.go:function:Foo", modified[0].ID)
	require.Len(t, removed, 1)
	assert.Equal(t, "a.go:function:Bar", removed[0])
}

func TestSyncFileUpsertsAndDeletesVectors(t *testing.T) {
	dir := t.TempDir()
	store, err := vectorstore.Open(filepath.Join(dir, "vectors.db"), 16)
	require.NoError(t, err)
	defer store.Close()

	ix := New(NewHashEmbedder(16), store, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	ix.Start(ctx, 2)

	prev := []types.Entity{{ID: "a.go:function:Bar", Name: "Bar", FilePath: "a.go"}}
	curr := []types.Entity{{ID: "a.go:function:Baz", Name: "Baz", FilePath: "a.go"}}
	ix.SyncFile(context.Background(), prev, curr)

	require.Eventually(t, func() bool {
		results, err := store.SearchTopK(context.Background(), NewHashEmbedder(16).Embed(EntityText(curr[0])), 1)
		return err == nil && len(results) == 1 && results[0].EntityID == "a.go:function:Baz"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	ix.Wait()
}
