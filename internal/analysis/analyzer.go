// Package analysis walks a tree-sitter CST and emits Entity/Relationship
// records. One Analyzer exists per language; all share the
// same contract and circuit breakers (max recursion depth 50, a 5s
// per-file wall-clock budget, and C++-only template/complexity caps).
// Analyzers never let a panic or an unbounded walk escape their boundary:
// on a tripped breaker they return whatever entities/relationships were
// collected so far, plus a CircuitBreaker error.
package analysis

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codegraph-rag/engine/internal/grammar"
	"github.com/codegraph-rag/engine/internal/telemetry"
	"github.com/codegraph-rag/engine/internal/treesitter"
	"github.com/codegraph-rag/engine/internal/types"
)

// MaxRecursionDepth is the shared analyzer recursion guard.
const MaxRecursionDepth = 50

// DefaultAnalyzeTimeout is the shared analyzer wall-clock guard.
const DefaultAnalyzeTimeout = 5 * time.Second

// Analyzer walks a CST for one (path, tree, content) triple and emits the
// entities and relationships it finds.
type Analyzer interface {
	// Language reports the grammar.Language this analyzer handles.
	Language() grammar.Language
	// Analyze returns partial results plus a CircuitBreaker/ParseError on
	// abort; it never panics out of this boundary.
	Analyze(ctx *Context, tree *tree_sitter.Tree, content []byte, path string) Output
}

// Output is the result of one Analyze call.
type Output struct {
	Entities      []types.Entity
	Relationships []types.Relationship
	Errors        []types.ParseError
}

// Context carries the shared circuit-breaker state and scratch buffers for
// a single Analyze call. A fresh Context is created per file.
type Context struct {
	Log       *telemetry.Logger
	deadline  time.Time
	maxDepth  int
	depth     int
	tripped   string
	// spans records byte ranges of already-emitted function/method
	// entities so calls can be attributed to their innermost container.
	spans []span
}

type span struct {
	start, end uint
	entityID   string
}

// NewContext starts the clock for the per-file analyze budget.
func NewContext(log *telemetry.Logger, timeout time.Duration) *Context {
	if timeout <= 0 {
		timeout = DefaultAnalyzeTimeout
	}
	if log == nil {
		log = telemetry.Default()
	}
	return &Context{Log: log, deadline: time.Now().Add(timeout), maxDepth: MaxRecursionDepth}
}

// Enter increments recursion depth; callers must call Exit on every path,
// including early returns, typically via `defer ctx.Exit()` paired with a
// guard check. Returns false once the breaker has tripped.
func (c *Context) Enter() bool {
	if c.tripped != "" {
		return false
	}
	c.depth++
	if c.depth > c.maxDepth {
		c.tripped = fmt.Sprintf("recursion depth exceeded %d", c.maxDepth)
		c.depth--
		return false
	}
	if time.Now().After(c.deadline) {
		c.tripped = "analyzer timeout exceeded"
		c.depth--
		return false
	}
	return true
}

// Exit decrements recursion depth; always call after a successful Enter.
func (c *Context) Exit() {
	if c.depth > 0 {
		c.depth--
	}
}

// Tripped reports whether a circuit breaker fired during this Analyze call.
func (c *Context) Tripped() (string, bool) {
	return c.tripped, c.tripped != ""
}

// RecordSpan registers a function/method entity's byte range so later call
// expressions can be attributed to it.
func (c *Context) RecordSpan(start, end uint, entityID string) {
	c.spans = append(c.spans, span{start: start, end: end, entityID: entityID})
}

// EnclosingEntity returns the innermost recorded span containing byte,
// or "" if none contains it (e.g. a call at module scope).
func (c *Context) EnclosingEntity(byte uint) string {
	best := ""
	bestWidth := ^uint(0)
	for _, s := range c.spans {
		if byte >= s.start && byte < s.end {
			width := s.end - s.start
			if width < bestWidth {
				bestWidth = width
				best = s.entityID
			}
		}
	}
	return best
}

// breakerErrors converts a tripped Context into the ParseError slice an
// Analyze call should append to its Output.
func breakerErrors(ctx *Context, path string) []types.ParseError {
	reason, tripped := ctx.Tripped()
	if !tripped {
		return nil
	}
	return []types.ParseError{{FilePath: path, Message: fmt.Sprintf("circuit breaker: %s", reason)}}
}

// finish is a small helper every analyzer calls on return: it logs the
// circuit breaker (if any) and stabilizes output ordering.
func finish(ctx *Context, path, lang string, out Output) Output {
	if reason, tripped := ctx.Tripped(); tripped {
		ctx.Log.CircuitBreakerEvent(path, lang, reason)
		out.Errors = append(out.Errors, breakerErrors(ctx, path)...)
	}
	sort.SliceStable(out.Entities, func(i, j int) bool {
		return out.Entities[i].Location.Start.Line < out.Entities[j].Location.Start.Line
	})
	dedupeRelationships(&out.Relationships)
	return out
}

// dedupeRelationships collapses duplicate (from,to,type) triples within a
// single analyzer's output.
func dedupeRelationships(rels *[]types.Relationship) {
	seen := make(map[string]bool, len(*rels))
	out := (*rels)[:0]
	for _, r := range *rels {
		k := r.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	*rels = out
}

// moduleID builds the file-level module entity id, qualified by the file's
// basename without its extension.
func moduleID(path string) string {
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != "" {
		base = base[:len(base)-len(ext)]
	}
	return path + ":module:" + base
}

// nodeText slices content by a node's byte range.
func nodeText(n *tree_sitter.Node, content []byte) string {
	if n == nil {
		return ""
	}
	return string(content[n.StartByte():n.EndByte()])
}

// location converts a node's span into the engine's Location shape.
func location(n *tree_sitter.Node) types.Location {
	return treesitter.ToLocation(n.StartPosition(), n.EndPosition(), n.StartByte(), n.EndByte())
}

// newParseErr builds a types.ParseError attached to a node's start point.
func newParseErr(path string, n *tree_sitter.Node, msg string) types.ParseError {
	if n == nil {
		return types.ParseError{FilePath: path, Message: msg}
	}
	loc := location(n)
	return types.ParseError{FilePath: path, Message: msg, Location: &loc.Start}
}
