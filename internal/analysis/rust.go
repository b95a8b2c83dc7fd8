package analysis

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"

	"github.com/codegraph-rag/engine/internal/grammar"
	"github.com/codegraph-rag/engine/internal/types"
)

// rustQueryStr captures items at module scope. impl_item methods are
// qualified by the impl's own type capture so "member_of" can be derived
// without a second walk.
const rustQueryStr = `
    (impl_item
        type: (type_identifier) @impl.type
        body: (declaration_list
            (function_item name: (identifier) @method.name))) @method
    (trait_item
        name: (type_identifier) @trait.name
        body: (declaration_list
            (function_item name: (identifier) @method.name))) @method
    (function_item name: (identifier) @function.name) @function
    (struct_item name: (type_identifier) @struct.name) @struct
    (enum_item name: (type_identifier) @enum.name) @enum
    (trait_item name: (type_identifier) @interface.name) @interface
    (type_item name: (type_identifier) @type.name) @type
    (use_declaration argument: (_) @import.path) @import
    (mod_item name: (identifier) @module.name) @module
`

var rustQuery = newLazyQuery(func() *compiledQuery {
	return mustCompile(tree_sitter.NewLanguage(tree_sitter_rust.Language()), rustQueryStr)
})

type rustAnalyzer struct{}

func (rustAnalyzer) Language() grammar.Language { return grammar.LangRust }

func (a rustAnalyzer) Analyze(ctx *Context, tree *tree_sitter.Tree, content []byte, path string) Output {
	out := Output{}
	root := tree.RootNode()
	lang := string(grammar.LangRust)

	rustQuery.walk(ctx, root, content, func(m match) {
		switch {
		case m.node("method") != nil && m.node("method.name") != nil:
			n := m.node("method")
			name := nodeText(m.node("method.name"), content)
			owner := ""
			if t := m.node("impl.type"); t != nil {
				owner = nodeText(t, content)
			} else if t := m.node("trait.name"); t != nil {
				owner = nodeText(t, content)
			}
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

		case m.node("function") != nil && m.node("function.name") != nil:
			n := m.node("function")
			// The bare function_item pattern also matches impl/trait
			// methods, which the method pattern above already claimed.
			if insideRustImpl(n) {
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

		case m.node("struct") != nil && m.node("struct.name") != nil:
			n := m.node("struct")
			name := nodeText(m.node("struct.name"), content)
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

		case m.node("interface") != nil && m.node("interface.name") != nil:
			n := m.node("interface")
			name := nodeText(m.node("interface.name"), content)
			out.Entities = append(out.Entities, types.Entity{
				ID: path + ":interface:" + name, Name: name, Type: types.EntityInterface,
				FilePath: path, Location: location(n), Language: lang,
			})

		case m.node("type") != nil && m.node("type.name") != nil:
			n := m.node("type")
			name := nodeText(m.node("type.name"), content)
			out.Entities = append(out.Entities, types.Entity{
				ID: path + ":typedef:" + name, Name: name, Type: types.EntityTypedef,
				FilePath: path, Location: location(n), Language: lang,
			})

		case m.node("module") != nil && m.node("module.name") != nil:
			n := m.node("module")
			name := nodeText(m.node("module.name"), content)
			out.Entities = append(out.Entities, types.Entity{
				ID: path + ":module:" + name, Name: name, Type: types.EntityModule,
				FilePath: path, Location: location(n), Language: lang,
			})

		case m.node("import") != nil:
			target := nodeText(m.node("import"), content)
			if p := m.node("import.path"); p != nil {
				target = nodeText(p, content)
			}
			out.Relationships = append(out.Relationships, types.Relationship{
				From: moduleID(path), To: target, Type: types.RelImports,
			})
		}
	})

	scanCalls(ctx, root, content, path, &out.Relationships)

	return finish(ctx, path, lang, out)
}

func insideRustImpl(n *tree_sitter.Node) bool {
	for cur := n.Parent(); cur != nil; cur = cur.Parent() {
		switch cur.Kind() {
		case "impl_item", "trait_item":
			return true
		}
	}
	return false
}
