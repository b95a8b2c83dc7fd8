package analysis

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/codegraph-rag/engine/internal/grammar"
	"github.com/codegraph-rag/engine/internal/types"
)

// pythonQueryStr captures module-level declarations plus a
// superclasses capture (class bases) and a decorated_definition capture so
// "decorates" relationships can be emitted.
const pythonQueryStr = `
    (class_definition
        body: (block
            (function_definition name: (identifier) @method.name))) @method
    (function_definition name: (identifier) @function.name) @function
    (class_definition name: (identifier) @class.name superclasses: (argument_list (identifier) @class.super)) @class
    (class_definition name: (identifier) @class.name) @class
    (decorated_definition
        (decorator (identifier) @decorator.name)
        definition: (function_definition name: (identifier) @decorated.name)) @decorated
    (import_statement) @import
    (import_from_statement) @import
`

var pythonQuery = newLazyQuery(func() *compiledQuery {
	return mustCompile(tree_sitter.NewLanguage(tree_sitter_python.Language()), pythonQueryStr)
})

type pythonAnalyzer struct{}

func (pythonAnalyzer) Language() grammar.Language { return grammar.LangPython }

func (a pythonAnalyzer) Analyze(ctx *Context, tree *tree_sitter.Tree, content []byte, path string) Output {
	out := Output{}
	root := tree.RootNode()
	lang := string(grammar.LangPython)

	pythonQuery.walk(ctx, root, content, func(m match) {
		switch {
		case m.node("method") != nil && m.node("method.name") != nil:
			// The @method capture is the enclosing class_definition; the
			// method itself is the function_definition owning the name.
			n := m.node("method.name").Parent()
			name := nodeText(m.node("method.name"), content)
			owner := enclosingPyClassName(n, content)
			id := path + ":method:" + owner + "." + name
			if owner == "" {
				id = path + ":method:" + name
			}
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

		case m.node("function") != nil && m.node("function.name") != nil:
			n := m.node("function")
			// Skip functions the method pattern already claimed (this one
			// matches every function_definition, nested or not).
			if enclosingPyClassName(n, content) != "" {
				return
			}
			name := nodeText(m.node("function.name"), content)
			id := path + ":function:" + name
			out.Entities = append(out.Entities, types.Entity{
				ID: id, Name: name, Type: types.EntityFunction, FilePath: path,
				Location: location(n), Language: lang,
				Metadata: withComplexity(nil, n),
			})
			ctx.RecordSpan(n.StartByte(), n.EndByte(), id)

		case m.node("class") != nil && m.node("class.name") != nil:
			n := m.node("class")
			name := nodeText(m.node("class.name"), content)
			id := path + ":class:" + name
			out.Entities = append(out.Entities, types.Entity{
				ID: id, Name: name, Type: types.EntityClass, FilePath: path,
				Location: location(n), Language: lang,
			})
			if sup := m.node("class.super"); sup != nil {
				out.Relationships = append(out.Relationships, types.Relationship{
					From: id, To: path + ":class:" + nodeText(sup, content), Type: types.RelInherits,
				})
			}

		case m.node("decorated") != nil && m.node("decorated.name") != nil:
			decoratorName := nodeText(m.node("decorator.name"), content)
			targetName := nodeText(m.node("decorated.name"), content)
			out.Relationships = append(out.Relationships, types.Relationship{
				From: path + ":function:" + decoratorName,
				To:   path + ":function:" + targetName,
				Type: types.RelDecorates,
			})

		case m.node("import") != nil:
			out.Relationships = append(out.Relationships, types.Relationship{
				From: moduleID(path),
				To:   nodeText(m.node("import"), content),
				Type: types.RelImports,
			})
		}
	})

	scanCalls(ctx, root, content, path, &out.Relationships)

	return finish(ctx, path, lang, out)
}

func enclosingPyClassName(n *tree_sitter.Node, content []byte) string {
	cur := n.Parent()
	for depth := 0; cur != nil && depth < MaxRecursionDepth; depth++ {
		if cur.Kind() == "class_definition" {
			nameNode := cur.ChildByFieldName("name")
			return nodeText(nameNode, content)
		}
		cur = cur.Parent()
	}
	return ""
}
