package query

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegraph-rag/engine/internal/graphstore"
	"github.com/codegraph-rag/engine/internal/semantic"
	"github.com/codegraph-rag/engine/internal/types"
	"github.com/codegraph-rag/engine/internal/vectorstore"
)

func newTestEngine(t *testing.T) (*Engine, *graphstore.Store, *vectorstore.Store) {
	t.Helper()
	dir := t.TempDir()
	graph, err := graphstore.Open(filepath.Join(dir, "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { graph.Close() })

	vectors, err := vectorstore.Open(filepath.Join(dir, "vectors.db"), 16)
	require.NoError(t, err)
	t.Cleanup(func() { vectors.Close() })

	embedder := semantic.NewHashEmbedder(16)
	return New(graph, vectors, embedder), graph, vectors
}

func seedSample(t *testing.T, graph *graphstore.Store, path string) {
	t.Helper()
	record := types.FileRecord{FilePath: path, ContentHash: "abc", Language: "go"}
	entities := []types.Entity{
		{ID: path + ":function:main", Name: "main", Type: types.EntityFunction, FilePath: path, Language: "go",
			Location: types.Location{Start: types.Point{Line: 1}, End: types.Point{Line: 5}}},
		{ID: path + ":function:helper", Name: "helper", Type: types.EntityFunction, FilePath: path, Language: "go",
			Location: types.Location{Start: types.Point{Line: 7}, End: types.Point{Line: 9}}},
	}
	rels := []types.Relationship{
		{From: path + ":function:main", To: path + ":function:helper", Type: types.RelCalls},
	}
	require.NoError(t, graph.CommitFile(context.Background(), record, entities, rels, nil))
}

func TestResolveEntityRanksExactAboveFuzzy(t *testing.T) {
	e, graph, _ := newTestEngine(t)
	seedSample(t, graph, "main.go")

	ranked, err := e.ResolveEntity(context.Background(), "main", "")
	require.NoError(t, err)
	require.NotEmpty(t, ranked)
	assert.Equal(t, "main", ranked[0].Value.Name)
	assert.Greater(t, ranked[0].Score, 50.0)
}

func TestResolveEntityPathHintBreaksTies(t *testing.T) {
	e, graph, _ := newTestEngine(t)
	seedSample(t, graph, "pkg/a/main.go")
	seedSample(t, graph, "pkg/b/main.go")

	ranked, err := e.ResolveEntity(context.Background(), "main", "pkg/a/main.go")
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "pkg/a/main.go", ranked[0].Value.FilePath)
}

func TestListFileEntities(t *testing.T) {
	e, graph, _ := newTestEngine(t)
	seedSample(t, graph, "main.go")

	entities, err := e.ListFileEntities(context.Background(), "main.go")
	require.NoError(t, err)
	assert.Len(t, entities, 2)
}

func TestImpactFollowsReverseCallEdge(t *testing.T) {
	e, graph, _ := newTestEngine(t)
	seedSample(t, graph, "main.go")

	result, err := e.Impact(context.Background(), "main.go:function:helper", 2)
	require.NoError(t, err)
	require.Len(t, result.Reachable, 1)
	assert.Equal(t, "main", result.Reachable[0].Name)
}

func TestHotspotsFanIn(t *testing.T) {
	e, graph, _ := newTestEngine(t)
	seedSample(t, graph, "main.go")

	top, err := e.Hotspots(context.Background(), MetricFanIn, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "helper", top[0].Name)
}

func TestGetSourceSnippetReadsFileWithContext(t *testing.T) {
	e, graph, _ := newTestEngine(t)
	dir := t.TempDir()
	filePath := filepath.Join(dir, "main.go")
	content := "package main\n\nfunc main() {\n\tprintln(\"hi\")\n}\n\nfunc helper() {}\n"
	require.NoError(t, os.WriteFile(filePath, []byte(content), 0o644))

	record := types.FileRecord{FilePath: filePath, ContentHash: "abc", Language: "go"}
	entities := []types.Entity{
		{ID: filePath + ":function:main", Name: "main", Type: types.EntityFunction, FilePath: filePath, Language: "go",
			Location: types.Location{Start: types.Point{Line: 3}, End: types.Point{Line: 5}}},
	}
	require.NoError(t, graph.CommitFile(context.Background(), record, entities, nil, nil))

	snippet, err := e.GetSourceSnippet(context.Background(), filePath+":function:main", 1, 0)
	require.NoError(t, err)
	assert.Contains(t, snippet.Text, "func main")
	assert.False(t, snippet.Truncated)
}

func TestGetSourceSnippetUnknownEntityInvalidArgument(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.GetSourceSnippet(context.Background(), "nope", 0, 0)
	require.Error(t, err)
}

func TestSemanticSearchFindsUpsertedEntity(t *testing.T) {
	e, graph, vectors := newTestEngine(t)
	seedSample(t, graph, "main.go")

	embedder := semantic.NewHashEmbedder(16)
	vec := embedder.Embed(semantic.EntityText(types.Entity{Name: "main", Type: types.EntityFunction, FilePath: "main.go"}))
	require.NoError(t, vectors.Upsert(context.Background(), "main.go:function:main", vec))

	result, err := e.SemanticSearch(context.Background(), "main", 5, 10, "")
	require.NoError(t, err)
	require.NotEmpty(t, result.Results)
	assert.Equal(t, "main", result.Results[0].Entity.Name)
}

func TestFindEntitiesByNamePaginatesWithCursor(t *testing.T) {
	e, graph, _ := newTestEngine(t)
	seedSample(t, graph, "main.go")

	page1, next, err := e.FindEntitiesByName(context.Background(), "^(main|helper)$", 1, "")
	require.NoError(t, err)
	require.Len(t, page1, 1)
	require.NotEmpty(t, next)

	page2, next2, err := e.FindEntitiesByName(context.Background(), "^(main|helper)$", 1, next)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Empty(t, next2)
	assert.NotEqual(t, page1[0].ID, page2[0].ID)
}

func TestFindEntitiesByNameMalformedCursorRejected(t *testing.T) {
	e, graph, _ := newTestEngine(t)
	seedSample(t, graph, "main.go")

	_, _, err := e.FindEntitiesByName(context.Background(), "^(main|helper)$", 1, "not-a-real-cursor")
	require.Error(t, err)
}
