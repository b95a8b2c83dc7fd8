package analysis

import (
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// compiledQuery pairs a tree-sitter query with its capture name table so
// callers don't re-resolve indices per match.
type compiledQuery struct {
	query *tree_sitter.Query
	names []string
}

// mustCompile builds a compiledQuery, returning nil on failure. The
// tree-sitter Go binding can hand back a typed-nil error even on success,
// so every caller in this codebase checks query != nil rather than err.
func mustCompile(lang *tree_sitter.Language, src string) *compiledQuery {
	q, _ := tree_sitter.NewQuery(lang, src)
	if q == nil {
		return nil
	}
	return &compiledQuery{query: q, names: q.CaptureNames()}
}

// lazyQuery defers grammar construction and query compilation until the
// first file of that language is actually analyzed, matching the Grammar
// Registry's "load at most once, only if needed" contract instead of
// paying for every grammar at process start.
type lazyQuery struct {
	once  sync.Once
	cq    *compiledQuery
	build func() *compiledQuery
}

func newLazyQuery(build func() *compiledQuery) *lazyQuery {
	return &lazyQuery{build: build}
}

func (l *lazyQuery) get() *compiledQuery {
	l.once.Do(func() { l.cq = l.build() })
	return l.cq
}

func (l *lazyQuery) walk(ctx *Context, root *tree_sitter.Node, content []byte, fn func(match)) {
	l.get().walk(ctx, root, content, fn)
}

// match is one query match reduced to a name->node map plus the captures
// in their original order (for rules that need every capture, not just the
// last one per name).
type match struct {
	byName map[string]*tree_sitter.Node
	all    []capture
}

type capture struct {
	name string
	node *tree_sitter.Node
}

func (m match) node(name string) *tree_sitter.Node {
	return m.byName[name]
}

// walk runs cq over root and invokes fn once per match. It returns early if
// ctx's circuit breaker trips mid-walk.
func (cq *compiledQuery) walk(ctx *Context, root *tree_sitter.Node, content []byte, fn func(match)) {
	if cq == nil || root == nil {
		return
	}
	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()

	matches := qc.Matches(cq.query, root, content)
	for {
		if !ctx.Enter() {
			return
		}
		m := matches.Next()
		ctx.Exit()
		if m == nil {
			return
		}
		byName := make(map[string]*tree_sitter.Node, len(m.Captures))
		all := make([]capture, 0, len(m.Captures))
		for _, c := range m.Captures {
			node := c.Node
			name := cq.names[c.Index]
			byName[name] = &node
			all = append(all, capture{name: name, node: &node})
		}
		fn(match{byName: byName, all: all})
	}
}
