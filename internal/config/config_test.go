package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, 50, cfg.Indexing.MaxFilesPerBatch)
	assert.Equal(t, 8, cfg.Scheduler.IOWorkers)
	assert.Contains(t, cfg.Indexing.Exclude, ".git/**")
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, filepath.Join(home, ".code-graph-rag"), ExpandPath("~/.code-graph-rag"))
	assert.Equal(t, "/abs/path", ExpandPath("/abs/path"))
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadKDLOverridesAndWarnsOnUnknown(t *testing.T) {
	dir := t.TempDir()
	kdl := `
database {
    path "~/.custom-graph"
}
embedding {
    dimension 512
}
indexing {
    maxFilesPerBatch 25
    exclude "vendor/**" "*.generated.go"
}
scheduler {
    cpuWorkers 2
    ioWorkers 16
}
logging {
    directory "/var/log/codegraph"
    mirrorTmp true
}
unknownSection {
    foo "bar"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(kdl), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.Embedding.Dimension)
	assert.Equal(t, 25, cfg.Indexing.MaxFilesPerBatch)
	assert.Contains(t, cfg.Indexing.Exclude, "vendor/**")
	assert.Contains(t, cfg.Indexing.Exclude, "*.generated.go")
	assert.Equal(t, 2, cfg.Scheduler.CPUWorkers)
	assert.Equal(t, 16, cfg.Scheduler.IOWorkers)
	assert.True(t, cfg.Logging.MirrorTmp)
	assert.NotEmpty(t, cfg.Warnings)
}

func TestMergedExcludesDeduplicates(t *testing.T) {
	cfg := Default()
	cfg.Indexing.Exclude = append(cfg.Indexing.Exclude, "vendor/**")
	merged := cfg.MergedExcludes([]string{"vendor/**", "extra/**"})

	counts := map[string]int{}
	for _, p := range merged {
		counts[p]++
	}
	assert.Equal(t, 1, counts["vendor/**"])
	assert.Equal(t, 1, counts["extra/**"])
	assert.Equal(t, 1, counts[".git/**"])
}
