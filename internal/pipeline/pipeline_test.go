package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegraph-rag/engine/internal/config"
	"github.com/codegraph-rag/engine/internal/graphstore"
	"github.com/codegraph-rag/engine/internal/grammar"
	"github.com/codegraph-rag/engine/internal/incrparser"
	"github.com/codegraph-rag/engine/internal/semantic"
	"github.com/codegraph-rag/engine/internal/vectorstore"
)

func newTestPipeline(t *testing.T) (*Pipeline, string) {
	t.Helper()
	dir := t.TempDir()

	graph, err := graphstore.Open(filepath.Join(dir, "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { graph.Close() })

	vectors, err := vectorstore.Open(filepath.Join(dir, "vectors.db"), 16)
	require.NoError(t, err)
	t.Cleanup(func() { vectors.Close() })

	registry := grammar.NewRegistry()
	parser := incrparser.New(registry, 0, nil)

	indexer := semantic.New(semantic.NewHashEmbedder(16), vectors, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	indexer.Start(ctx, 1)
	t.Cleanup(func() { cancel(); indexer.Wait() })

	cfg := config.Default()
	p := New(cfg, parser, graph, indexer, nil, nil, filepath.Join(dir, "sessions"))

	repoDir := filepath.Join(dir, "repo")
	require.NoError(t, os.MkdirAll(repoDir, 0o755))
	return p, repoDir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIndexCommitsEntitiesAndRelationships(t *testing.T) {
	p, repo := newTestPipeline(t)
	writeFile(t, repo, "a.js", "function foo(){ bar(); }\nfunction bar(){}")

	result, err := p.Index(context.Background(), repo, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesIndexed)
	assert.GreaterOrEqual(t, result.Entities, 2)
}

func TestBatchIndexResumesAcrossCalls(t *testing.T) {
	p, repo := newTestPipeline(t)
	writeFile(t, repo, "a.js", "function foo(){}")
	writeFile(t, repo, "b.js", "function bar(){}")
	writeFile(t, repo, "c.js", "function baz(){}")

	first, err := p.BatchIndex(context.Background(), repo, Options{MaxFilesPerBatch: 2}, "")
	require.NoError(t, err)
	assert.False(t, first.Done)
	assert.Equal(t, 2, first.Processed)
	assert.Equal(t, 1, first.Remaining)

	second, err := p.BatchIndex(context.Background(), repo, Options{MaxFilesPerBatch: 2}, first.SessionID)
	require.NoError(t, err)
	assert.True(t, second.Done)
	assert.Equal(t, 100, second.Percent)
}

func TestCleanIndexResetsPriorEntities(t *testing.T) {
	p, repo := newTestPipeline(t)
	writeFile(t, repo, "a.js", "function foo(){}")
	_, err := p.Index(context.Background(), repo, Options{})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(repo, "a.js")))
	writeFile(t, repo, "b.js", "function bar(){}")

	result, err := p.CleanIndex(context.Background(), repo, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesIndexed)

	entities, err := p.graph.GetEntitiesByFile(context.Background(), filepath.Join(repo, "a.js"))
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestResetGraphClearsEverything(t *testing.T) {
	p, repo := newTestPipeline(t)
	writeFile(t, repo, "a.js", "function foo(){}")
	_, err := p.Index(context.Background(), repo, Options{})
	require.NoError(t, err)

	require.NoError(t, p.ResetGraph(context.Background()))

	stats, err := p.graph.GetGraphStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalEntities)
}
