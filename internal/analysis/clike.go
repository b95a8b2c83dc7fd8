package analysis

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"

	"github.com/codegraph-rag/engine/internal/grammar"
	"github.com/codegraph-rag/engine/internal/types"
)

// clikeQueryStr is shared by the C and C++ analyzers (one query serves
// both .c and .cpp extensions) plus a base_class_clause capture for
// inherits edges. Friend declarations are not captured, so no friend_of
// edges are emitted.
const clikeQueryStr = `
    (function_definition declarator: (function_declarator declarator: (identifier) @function.name)) @function
    (function_definition declarator: (function_declarator declarator: (field_identifier) @method.name)) @method
    (class_specifier name: (type_identifier) @class.name (base_class_clause (type_identifier) @class.super)) @class
    (class_specifier name: (type_identifier) @class.name) @class
    (struct_specifier name: (type_identifier) @struct.name) @struct
    (enum_specifier name: (type_identifier) @enum.name) @enum
    (preproc_include path: (_) @import.path) @import
    (using_declaration) @import
`

var clikeQuery = newLazyQuery(func() *compiledQuery {
	return mustCompile(tree_sitter.NewLanguage(tree_sitter_cpp.Language()), clikeQueryStr)
})

// maxTemplateDepth and maxComplexityScore implement the C++-specific
// circuit breaker: template-heavy translation units can blow up
// tree-sitter's node count, so this analyzer tracks a weighted complexity
// score (template depth, nested classes, inheritance, operator overloads)
// and bails once either threshold is crossed.
const (
	maxTemplateDepth   = 10
	maxComplexityScore = 100
)

// clikeComplexity accumulates the weighted score across one file's walk.
type clikeComplexity struct {
	nestedClasses    int
	inheritanceDepth int
	operatorCount    int
	templateDepth    int
}

func (c *clikeComplexity) score() int {
	return c.templateDepth*10 + c.nestedClasses*5 + c.inheritanceDepth*3 + c.operatorCount*2
}

func (c *clikeComplexity) exceeded() bool {
	return c.templateDepth > maxTemplateDepth || c.score() > maxComplexityScore
}

// templateDepthOf counts enclosing template_declaration ancestors, the C++
// analog of nested generic instantiation depth.
func templateDepthOf(n *tree_sitter.Node) int {
	depth := 0
	for cur := n.Parent(); cur != nil; cur = cur.Parent() {
		if cur.Kind() == "template_declaration" {
			depth++
		}
	}
	return depth
}

// enclosingClikeTypeName walks up from n to the nearest class_specifier or
// struct_specifier, returning its name so methods can be qualified
// Class::method the way C++ itself spells member access.
func enclosingClikeTypeName(n *tree_sitter.Node, content []byte) string {
	cur := n.Parent()
	for depth := 0; cur != nil && depth < MaxRecursionDepth; depth++ {
		switch cur.Kind() {
		case "class_specifier", "struct_specifier":
			nameNode := cur.ChildByFieldName("name")
			return nodeText(nameNode, content)
		}
		cur = cur.Parent()
	}
	return ""
}

type clikeAnalyzer struct {
	lang grammar.Language
}

func (a clikeAnalyzer) Language() grammar.Language { return a.lang }

func (a clikeAnalyzer) Analyze(ctx *Context, tree *tree_sitter.Tree, content []byte, path string) Output {
	out := Output{}
	root := tree.RootNode()
	lang := string(a.lang)

	var complexity clikeComplexity

	clikeQuery.walk(ctx, root, content, func(m match) {
		if complexity.exceeded() {
			if ctx.tripped == "" {
				ctx.tripped = "C++ complexity cap exceeded"
			}
			return
		}
		switch {
		case m.node("function") != nil && m.node("function.name") != nil:
			n := m.node("function")
			name := nodeText(m.node("function.name"), content)
			if len(name) > len("operator") && name[:len("operator")] == "operator" {
				complexity.operatorCount++
			}
			id := path + ":function:" + name
			out.Entities = append(out.Entities, types.Entity{
				ID: id, Name: name, Type: types.EntityFunction, FilePath: path,
				Location: location(n), Language: lang,
				Metadata: withComplexity(nil, n),
			})
			ctx.RecordSpan(n.StartByte(), n.EndByte(), id)

		case m.node("method") != nil && m.node("method.name") != nil:
			n := m.node("method")
			name := nodeText(m.node("method.name"), content)
			if len(name) > len("operator") && name[:len("operator")] == "operator" {
				complexity.operatorCount++
			}
			if d := templateDepthOf(n); d > complexity.templateDepth {
				complexity.templateDepth = d
			}
			owner := enclosingClikeTypeName(n, content)
			id := qualifyIDSep(path, "method", owner, name, "::")
			out.Entities = append(out.Entities, types.Entity{
				ID: id, Name: name, Type: types.EntityMethod, FilePath: path,
				Location: location(n), Language: lang,
				Metadata: withComplexity(nil, n),
			})
			ctx.RecordSpan(n.StartByte(), n.EndByte(), id)
			if owner != "" {
				out.Relationships = append(out.Relationships, types.Relationship{
					From: id, To: path + ":class:" + owner, Type: types.RelMemberOf,
				})
			}

		case m.node("class") != nil && m.node("class.name") != nil:
			n := m.node("class")
			name := nodeText(m.node("class.name"), content)
			id := path + ":class:" + name
			complexity.nestedClasses++
			if d := templateDepthOf(n); d > complexity.templateDepth {
				complexity.templateDepth = d
			}
			out.Entities = append(out.Entities, types.Entity{
				ID: id, Name: name, Type: types.EntityClass, FilePath: path,
				Location: location(n), Language: lang,
			})
			if sup := m.node("class.super"); sup != nil {
				complexity.inheritanceDepth++
				out.Relationships = append(out.Relationships, types.Relationship{
					From: id, To: path + ":class:" + nodeText(sup, content), Type: types.RelInherits,
				})
			}

		case m.node("struct") != nil && m.node("struct.name") != nil:
			n := m.node("struct")
			name := nodeText(m.node("struct.name"), content)
			complexity.nestedClasses++
			if d := templateDepthOf(n); d > complexity.templateDepth {
				complexity.templateDepth = d
			}
			out.Entities = append(out.Entities, types.Entity{
				ID: path + ":class:" + name, Name: name, Type: types.EntityClass,
				FilePath: path, Location: location(n), Language: lang,
			})

		case m.node("enum") != nil && m.node("enum.name") != nil:
			n := m.node("enum")
			name := nodeText(m.node("enum.name"), content)
			out.Entities = append(out.Entities, types.Entity{
				ID: path + ":enum:" + name, Name: name, Type: types.EntityEnum,
				FilePath: path, Location: location(n), Language: lang,
			})

		case m.node("import") != nil:
			target := nodeText(m.node("import"), content)
			if p := m.node("import.path"); p != nil {
				target = trimQuotes(nodeText(p, content))
			}
			out.Relationships = append(out.Relationships, types.Relationship{
				From: moduleID(path), To: target, Type: types.RelImports,
			})
		}
	})

	scanCalls(ctx, root, content, path, &out.Relationships)

	return finish(ctx, path, lang, out)
}
