package graphstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegraph-rag/engine/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleFile(path string) (types.FileRecord, []types.Entity, []types.Relationship) {
	record := types.FileRecord{FilePath: path, ContentHash: "abc123", Language: "go", LastParsedAt: time.Now(), ParseTimeMs: 1.5}
	entities := []types.Entity{
		{ID: path + ":function:main", Name: "main", Type: types.EntityFunction, FilePath: path, Language: "go"},
		{ID: path + ":function:helper", Name: "helper", Type: types.EntityFunction, FilePath: path, Language: "go"},
	}
	relationships := []types.Relationship{
		{From: path + ":function:main", To: path + ":function:helper", Type: types.RelCalls},
	}
	return record, entities, relationships
}

func TestCommitFileThenGetEntitiesByFile(t *testing.T) {
	s := newTestStore(t)
	record, entities, rels := sampleFile("main.go")

	require.NoError(t, s.CommitFile(context.Background(), record, entities, rels, nil))

	got, err := s.GetEntitiesByFile(context.Background(), "main.go")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCommitFileReplacesPreviousRecords(t *testing.T) {
	s := newTestStore(t)
	record, entities, rels := sampleFile("main.go")
	require.NoError(t, s.CommitFile(context.Background(), record, entities, rels, nil))

	// Re-commit with only one entity; the old "helper" entity must be gone.
	record2 := record
	onlyMain := entities[:1]
	require.NoError(t, s.CommitFile(context.Background(), record2, onlyMain, nil, nil))

	got, err := s.GetEntitiesByFile(context.Background(), "main.go")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "main", got[0].Name)
}

func TestFindEntitiesByNamePaginates(t *testing.T) {
	s := newTestStore(t)
	record, entities, rels := sampleFile("main.go")
	require.NoError(t, s.CommitFile(context.Background(), record, entities, rels, nil))

	matches, total, err := s.FindEntitiesByName(context.Background(), "^(main|helper)$", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, matches, 1)
}

func TestGetRelationshipsBFS(t *testing.T) {
	s := newTestStore(t)
	record, entities, rels := sampleFile("main.go")
	require.NoError(t, s.CommitFile(context.Background(), record, entities, rels, nil))

	edges, err := s.GetRelationships(context.Background(), "main.go:function:main", DirOut, nil, 2)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, 1, edges[0].Depth)
	assert.Equal(t, "main.go:function:helper", edges[0].To)
}

func TestGetGraphStats(t *testing.T) {
	s := newTestStore(t)
	record, entities, rels := sampleFile("main.go")
	require.NoError(t, s.CommitFile(context.Background(), record, entities, rels, nil))

	stats, err := s.GetGraphStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEntities)
	assert.Equal(t, 1, stats.TotalRelationships)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 2, stats.ByType[string(types.EntityFunction)])
}

func TestDeleteFileRemovesEverything(t *testing.T) {
	s := newTestStore(t)
	record, entities, rels := sampleFile("main.go")
	require.NoError(t, s.CommitFile(context.Background(), record, entities, rels, nil))

	require.NoError(t, s.DeleteFile(context.Background(), "main.go"))

	got, err := s.GetEntitiesByFile(context.Background(), "main.go")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResetAll(t *testing.T) {
	s := newTestStore(t)
	record, entities, rels := sampleFile("main.go")
	require.NoError(t, s.CommitFile(context.Background(), record, entities, rels, nil))

	require.NoError(t, s.ResetAll(context.Background()))

	stats, err := s.GetGraphStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalEntities)
}
