package analysis

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codegraph-rag/engine/internal/types"
)

// callKinds maps a call-expression-like CST node kind to the field name
// that holds the callee, per language. A generic walk over these kinds lets
// every analyzer emit "calls" relationships without a bespoke grammar-aware
// call resolver; edges may point at symbols with no entity row, so the
// target need not resolve to a known Entity.
var callKinds = map[string]string{
	"call_expression":       "function",
	"call":                  "function",
	"method_invocation":     "name",
	"invocation_expression": "",
}

// scanCalls walks every node under root looking for call-expression-like
// kinds and emits a "calls" relationship from the innermost entity span
// recorded in ctx to a best-effort callee name. Unresolved callees still
// get a relationship whose To is "<path>:function:<name>"; the graph
// tolerates edges into symbols it has no entity row for.
func scanCalls(ctx *Context, root *tree_sitter.Node, content []byte, path string, out *[]types.Relationship) {
	if root == nil {
		return
	}
	var walk func(n *tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		if n == nil || !ctx.Enter() {
			return
		}
		defer ctx.Exit()

		if field, ok := callKinds[n.Kind()]; ok {
			callee := calleeName(n, field, content)
			if callee != "" {
				from := ctx.EnclosingEntity(n.StartByte())
				if from != "" {
					*out = append(*out, types.Relationship{
						From: from,
						To:   path + ":function:" + callee,
						Type: types.RelCalls,
					})
				}
			}
		}

		count := n.ChildCount()
		for i := uint(0); i < count; i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
}

// calleeName extracts a best-effort short name for the callee of a call
// node. It prefers the named field tree-sitter assigns (when the grammar
// exposes one), then falls back to the first identifier-like child.
func calleeName(n *tree_sitter.Node, field string, content []byte) string {
	var callee *tree_sitter.Node
	if field != "" {
		callee = n.ChildByFieldName(field)
	}
	if callee == nil {
		count := n.ChildCount()
		for i := uint(0); i < count; i++ {
			child := n.Child(i)
			if child == nil {
				continue
			}
			switch child.Kind() {
			case "identifier", "field_identifier", "property_identifier",
				"member_expression", "field_expression", "selector_expression",
				"scoped_identifier", "attribute":
				callee = child
			}
			if callee != nil {
				break
			}
		}
	}
	if callee == nil {
		return ""
	}
	text := nodeText(callee, content)
	// Reduce a dotted/qualified expression like "obj.method" to its final
	// segment so the synthesized id matches the plain function/method name
	// convention other analyzers use.
	if idx := lastSeparator(text); idx >= 0 {
		text = text[idx+1:]
	}
	return text
}

func lastSeparator(s string) int {
	idx := -1
	for i, r := range s {
		if r == '.' || r == ':' {
			idx = i
		}
	}
	return idx
}
