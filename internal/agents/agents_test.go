package agents

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/codegraph-rag/engine/internal/bus"
	"github.com/codegraph-rag/engine/internal/config"
	"github.com/codegraph-rag/engine/internal/grammar"
	"github.com/codegraph-rag/engine/internal/graphstore"
	"github.com/codegraph-rag/engine/internal/incrparser"
	"github.com/codegraph-rag/engine/internal/pipeline"
	"github.com/codegraph-rag/engine/internal/query"
	"github.com/codegraph-rag/engine/internal/scheduler"
	"github.com/codegraph-rag/engine/internal/semantic"
	"github.com/codegraph-rag/engine/internal/vectorstore"
)

func newTestConductor(t *testing.T) (*Conductor, string) {
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

	embedder := semantic.NewHashEmbedder(16)
	indexer := semantic.New(embedder, vectors, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	indexer.Start(ctx, 1)
	t.Cleanup(func() { cancel(); indexer.Wait() })

	cfg := config.Default()
	b := bus.New(16)
	p := pipeline.New(cfg, parser, graph, indexer, b, nil, filepath.Join(dir, "sessions"))
	qe := query.New(graph, vectors, embedder)
	sched := scheduler.New(scheduler.Config{}, nil)

	conductor := New(sched, b, p, qe, nil, Config{Backlog: 4})

	repoDir := filepath.Join(dir, "repo")
	require.NoError(t, os.MkdirAll(repoDir, 0o755))
	return conductor, repoDir
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestConductorIndexAndQueryRoundTrip(t *testing.T) {
	conductor, repo := newTestConductor(t)
	require.NoError(t, os.WriteFile(filepath.Join(repo, "a.js"), []byte("function foo(){ bar(); }\nfunction bar(){}"), 0o644))

	result, err := conductor.Index(context.Background(), repo, pipeline.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesIndexed)

	ranked, err := conductor.ResolveEntity(context.Background(), "foo", "")
	require.NoError(t, err)
	require.NotEmpty(t, ranked)
	assert.Equal(t, "foo", ranked[0].Value.Name)
}

func TestConductorHeartbeatMarksAllAgents(t *testing.T) {
	conductor, _ := newTestConductor(t)
	conductor.Heartbeat()

	for _, name := range []string{AgentParser, AgentIndexer, AgentQuery, AgentSemantic, AgentOrchestrator} {
		assert.False(t, conductor.scheduler.IsStale(name, 1))
	}
}

func TestConductorRunHeartbeatsStopsOnCancel(t *testing.T) {
	conductor, _ := newTestConductor(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		conductor.RunHeartbeats(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunHeartbeats did not stop after cancellation")
	}
}

func TestConductorBusStatsReflectsSubscribers(t *testing.T) {
	conductor, _ := newTestConductor(t)
	sub := conductor.bus.Subscribe(bus.TopicQueryIssued, func(bus.Event) {})
	defer sub.Unsubscribe()

	stats := conductor.BusStats()
	assert.Equal(t, 1, stats.Subscribers[bus.TopicQueryIssued])
}

func TestConductorQueryPrefersStructuralMatch(t *testing.T) {
	conductor, repo := newTestConductor(t)
	require.NoError(t, os.WriteFile(filepath.Join(repo, "a.js"), []byte("function foo(){}"), 0o644))
	_, err := conductor.Index(context.Background(), repo, pipeline.Options{})
	require.NoError(t, err)

	result, err := conductor.Query(context.Background(), "foo", "", 5, 10, "")
	require.NoError(t, err)
	require.NotEmpty(t, result.Structural)
}

func TestConductorGetGraphReturnsIndexedEntities(t *testing.T) {
	conductor, repo := newTestConductor(t)
	require.NoError(t, os.WriteFile(filepath.Join(repo, "a.js"), []byte("function foo(){ bar(); }\nfunction bar(){}"), 0o644))
	_, err := conductor.Index(context.Background(), repo, pipeline.Options{})
	require.NoError(t, err)

	view, err := conductor.GetGraph(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, view.Entities, 2)
}

func TestConductorGetMetricsCombinesGraphAndCacheStats(t *testing.T) {
	conductor, repo := newTestConductor(t)
	require.NoError(t, os.WriteFile(filepath.Join(repo, "a.js"), []byte("function foo(){}"), 0o644))
	_, err := conductor.Index(context.Background(), repo, pipeline.Options{})
	require.NoError(t, err)

	metrics, err := conductor.GetMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.Graph.TotalEntities)
}

func TestConductorSuggestRefactoringEmptyForUnindexedFile(t *testing.T) {
	conductor, _ := newTestConductor(t)
	dir, err := os.MkdirTemp("", "suggest")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	suggestions, err := conductor.SuggestRefactoring(context.Background(), filepath.Join(dir, "missing.go"))
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}
