// Package treesitter wraps github.com/tree-sitter/go-tree-sitter to produce
// a concrete syntax tree for a (path, text) pair, supporting both full and
// incremental reparse. Each call enforces the per-file parse
// deadline; a miss yields no tree and a typed ParseTimeout error
// instead of blocking the caller indefinitely.
package treesitter

import (
	"context"
	"time"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codegraph-rag/engine/internal/errs"
	"github.com/codegraph-rag/engine/internal/grammar"
	"github.com/codegraph-rag/engine/internal/types"
)

// DefaultParseDeadline bounds a single file's parse.
const DefaultParseDeadline = 5 * time.Second

// ParseOutput is the result of a (possibly incremental) parse.
type ParseOutput struct {
	Tree        *tree_sitter.Tree
	ParseTimeMs float64
}

// Parser parses source text into tree-sitter CSTs. It holds no
// tree_sitter.Parser of its own: every call creates and closes a fresh
// one, so a single Parser may be shared across goroutines.
type Parser struct {
	registry *grammar.Registry
	deadline time.Duration
}

// New creates a Parser bound to a Grammar Registry.
func New(registry *grammar.Registry) *Parser {
	return &Parser{registry: registry, deadline: DefaultParseDeadline}
}

// WithDeadline overrides the per-file parse deadline (tests use a shorter
// one to exercise the ParseTimeout path deterministically).
func (p *Parser) WithDeadline(d time.Duration) *Parser {
	p.deadline = d
	return p
}

// Parse produces a full CST for path/text.
func (p *Parser) Parse(ctx context.Context, path string, text []byte) (*ParseOutput, error) {
	return p.parse(ctx, path, text, nil)
}

// ParseIncremental reparses text against oldTree after applying edits,
// letting tree-sitter reuse unaffected subtrees.
func (p *Parser) ParseIncremental(ctx context.Context, path string, text []byte, edits []types.Edit, oldTree *tree_sitter.Tree) (*ParseOutput, error) {
	if oldTree == nil || len(edits) == 0 {
		return p.parse(ctx, path, text, nil)
	}
	for _, e := range edits {
		oldTree.Edit(&tree_sitter.InputEdit{
			StartByte:      uint(e.StartByte),
			OldEndByte:     uint(e.OldEndByte),
			NewEndByte:     uint(e.NewEndByte),
			StartPosition:  toTSPoint(e.StartPoint),
			OldEndPosition: toTSPoint(e.OldEndPoint),
			NewEndPosition: toTSPoint(e.NewEndPoint),
		})
	}
	return p.parse(ctx, path, text, oldTree)
}

func (p *Parser) parse(ctx context.Context, path string, text []byte, oldTree *tree_sitter.Tree) (*ParseOutput, error) {
	handle, err := p.registry.GrammarFor(path)
	if err != nil {
		return nil, err
	}

	parser := tree_sitter.NewParser()
	if err := parser.SetLanguage(handle.TSLanguage); err != nil {
		parser.Close()
		return nil, errs.New(errs.KindIOError, "setLanguage", err).WithPath(path)
	}

	deadline := p.deadline
	if deadline <= 0 {
		deadline = DefaultParseDeadline
	}

	// The goroutine owns the parser for the whole cgo call; the buffered
	// channel lets it finish and clean up even after the caller gives up.
	done := make(chan *tree_sitter.Tree, 1)
	start := time.Now()

	buf := make([]byte, len(text))
	copy(buf, text)

	go func() {
		tree := parser.Parse(buf, oldTree)
		parser.Close()
		done <- tree
	}()

	reap := func() {
		go func() {
			if tree := <-done; tree != nil {
				tree.Close()
			}
		}()
	}

	select {
	case tree := <-done:
		elapsed := time.Since(start)
		if tree == nil {
			return nil, errs.New(errs.KindParseError, "parse", nil).WithPath(path)
		}
		return &ParseOutput{Tree: tree, ParseTimeMs: float64(elapsed.Microseconds()) / 1000.0}, nil
	case <-time.After(deadline):
		reap()
		return nil, errs.ParseTimeout(path, deadline)
	case <-ctx.Done():
		reap()
		return nil, errs.Cancelled("parse")
	}
}

// toTSPoint converts the engine's 1-based-line Point into tree-sitter's
// 0-based row convention.
func toTSPoint(p types.Point) tree_sitter.Point {
	row := p.Line - 1
	if row < 0 {
		row = 0
	}
	return tree_sitter.Point{Row: uint(row), Column: uint(p.Column)}
}

// ToLocation converts a tree-sitter node span into the engine's Location
// shape (1-based lines, 0-based columns and byte indices).
func ToLocation(start, end tree_sitter.Point, startByte, endByte uint) types.Location {
	return types.Location{
		Start: types.Point{Line: int(start.Row) + 1, Column: int(start.Column), Index: int(startByte)},
		End:   types.Point{Line: int(end.Row) + 1, Column: int(end.Column), Index: int(endByte)},
	}
}
