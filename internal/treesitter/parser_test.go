package treesitter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegraph-rag/engine/internal/errs"
	"github.com/codegraph-rag/engine/internal/grammar"
	"github.com/codegraph-rag/engine/internal/types"
)

func TestParseProducesTree(t *testing.T) {
	p := New(grammar.NewRegistry())
	out, err := p.Parse(context.Background(), "main.go", []byte("package main\nfunc main() {}\n"))
	require.NoError(t, err)
	defer out.Tree.Close()

	root := out.Tree.RootNode()
	assert.Equal(t, "source_file", root.Kind())
	assert.False(t, root.HasError())
	assert.Greater(t, out.ParseTimeMs, 0.0)
}

func TestParseUnknownExtension(t *testing.T) {
	p := New(grammar.NewRegistry())
	_, err := p.Parse(context.Background(), "data.bin", []byte{0x00})
	require.Error(t, err)

	var eerr *errs.EngineError
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, errs.KindUnsupportedLanguage, eerr.Kind)
}

func TestParseIncrementalReusesOldTree(t *testing.T) {
	p := New(grammar.NewRegistry())
	oldSrc := []byte("package p\nfunc a() {}\n")
	out, err := p.Parse(context.Background(), "p.go", oldSrc)
	require.NoError(t, err)
	defer out.Tree.Close()

	// Rename a -> ab: one byte inserted at offset 16, on the second line
	// (points use the engine's 1-based line convention).
	newSrc := []byte("package p\nfunc ab() {}\n")
	edits := []types.Edit{{
		StartByte:   16,
		OldEndByte:  16,
		NewEndByte:  17,
		StartPoint:  types.Point{Line: 2, Column: 6},
		OldEndPoint: types.Point{Line: 2, Column: 6},
		NewEndPoint: types.Point{Line: 2, Column: 7},
	}}

	incr, err := p.ParseIncremental(context.Background(), "p.go", newSrc, edits, out.Tree)
	require.NoError(t, err)
	defer incr.Tree.Close()
	assert.False(t, incr.Tree.RootNode().HasError())
	assert.Contains(t, string(newSrc[15:17]), "ab")
}

func TestParseIncrementalWithoutOldTreeFallsBackToFull(t *testing.T) {
	p := New(grammar.NewRegistry())
	out, err := p.ParseIncremental(context.Background(), "p.go", []byte("package p\n"), nil, nil)
	require.NoError(t, err)
	defer out.Tree.Close()
	assert.Equal(t, "source_file", out.Tree.RootNode().Kind())
}

func TestParseCancelledContext(t *testing.T) {
	p := New(grammar.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled context may race the parse goroutine on tiny inputs; both
	// outcomes are valid, but an error must carry the Cancelled kind.
	out, err := p.Parse(ctx, "p.go", []byte("package p\n"))
	if err != nil {
		var eerr *errs.EngineError
		require.ErrorAs(t, err, &eerr)
		assert.Equal(t, errs.KindCancelled, eerr.Kind)
		return
	}
	out.Tree.Close()
}

func TestToLocationOneBasesLines(t *testing.T) {
	p := New(grammar.NewRegistry())
	out, err := p.Parse(context.Background(), "l.go", []byte("package p\nfunc f() {}\n"))
	require.NoError(t, err)
	defer out.Tree.Close()

	root := out.Tree.RootNode()
	loc := ToLocation(root.StartPosition(), root.EndPosition(), root.StartByte(), root.EndByte())
	assert.Equal(t, 1, loc.Start.Line)
	assert.Equal(t, 0, loc.Start.Column)
	assert.Equal(t, 0, loc.Start.Index)
}
