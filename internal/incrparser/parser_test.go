package incrparser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegraph-rag/engine/internal/grammar"
	"github.com/codegraph-rag/engine/internal/types"
)

func newTestParser() *Parser {
	return New(grammar.NewRegistry(), 0, nil)
}

func TestParseFileCachesSecondCall(t *testing.T) {
	p := newTestParser()
	src := []byte("function foo(){ bar(); }\nfunction bar(){}")

	first, err := p.ParseFile(context.Background(), "a.js", src, ParseOptions{})
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Len(t, first.Entities, 2)

	second, err := p.ParseFile(context.Background(), "a.js", src, ParseOptions{})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Entities, second.Entities)
}

func TestParseFileUnsupportedExtension(t *testing.T) {
	p := newTestParser()
	result, err := p.ParseFile(context.Background(), "binary.exe", []byte{0x00, 0x01}, ParseOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Entities)
	require.Len(t, result.Errors, 1)
}

func TestParseBatchZeroFiles(t *testing.T) {
	p := newTestParser()
	br := p.ParseBatch(context.Background(), nil, ParseOptions{})
	assert.Equal(t, 0, br.Stats.Total)
	assert.Equal(t, 0, br.Stats.Succeeded)
	assert.Equal(t, 0, br.Stats.Failed)
}

func TestParseBatchMultipleFiles(t *testing.T) {
	p := newTestParser()
	dir := t.TempDir()

	goFiles := []string{}
	for i, content := range []string{
		"package p\nfunc A(){}",
		"package p\nfunc B(){}",
		"package p\nfunc C(){}",
	} {
		path := filepath.Join(dir, "f"+string(rune('0'+i))+".go")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		goFiles = append(goFiles, path)
	}

	br := p.ParseBatch(context.Background(), goFiles, ParseOptions{BatchSize: 2})
	assert.Equal(t, 3, br.Stats.Total)
	assert.Equal(t, 3, br.Stats.Succeeded)
	assert.Equal(t, 0, br.Stats.Failed)
	assert.Len(t, br.Results, 3)
}

func TestProcessIncrementalDeletedEvictsCache(t *testing.T) {
	p := newTestParser()
	src := []byte("package p\nfunc A(){}")
	_, err := p.ParseFile(context.Background(), "x.go", src, ParseOptions{})
	require.NoError(t, err)

	results := p.ProcessIncremental(context.Background(), []types.FileChange{
		{FilePath: "x.go", ChangeType: types.ChangeDeleted},
	}, ParseOptions{})
	assert.Empty(t, results)

	stats := p.CacheStats()
	assert.Equal(t, 0, stats.Entries)
}

func TestParseFileMissingFileCachesErrorSentinel(t *testing.T) {
	p := newTestParser()
	missing := filepath.Join(t.TempDir(), "missing.go")

	first, err := p.ParseFile(context.Background(), missing, nil, ParseOptions{})
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	require.Len(t, first.Errors, 1)

	second, err := p.ParseFile(context.Background(), missing, nil, ParseOptions{})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
}

func TestWarmRestartRoundTrip(t *testing.T) {
	p := newTestParser()
	src := []byte("package p\nfunc A(){}")
	_, err := p.ParseFile(context.Background(), "x.go", src, ParseOptions{})
	require.NoError(t, err)

	data, err := p.ExportCache()
	require.NoError(t, err)

	fresh := newTestParser()
	require.NoError(t, fresh.WarmRestart(data))

	result, err := fresh.ParseFile(context.Background(), "x.go", src, ParseOptions{})
	require.NoError(t, err)
	assert.True(t, result.FromCache)
}
