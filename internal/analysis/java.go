package analysis

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"

	"github.com/codegraph-rag/engine/internal/grammar"
	"github.com/codegraph-rag/engine/internal/types"
)

// javaQueryStr captures type and member declarations, with a superclass
// and interfaces capture so inherits/implements edges can be emitted.
const javaQueryStr = `
    (method_declaration name: (identifier) @method.name) @method
    (constructor_declaration name: (identifier) @constructor.name) @constructor
    (class_declaration name: (identifier) @class.name superclass: (superclass (type_identifier) @class.super)) @class
    (class_declaration name: (identifier) @class.name interfaces: (super_interfaces (type_list (type_identifier) @class.implements))) @class
    (class_declaration name: (identifier) @class.name) @class
    (interface_declaration name: (identifier) @interface.name) @interface
    (enum_declaration name: (identifier) @enum.name) @enum
    (field_declaration declarator: (variable_declarator name: (identifier) @field.name)) @field
    (import_declaration) @import
`

var javaQuery = newLazyQuery(func() *compiledQuery {
	return mustCompile(tree_sitter.NewLanguage(tree_sitter_java.Language()), javaQueryStr)
})

type javaAnalyzer struct{}

func (javaAnalyzer) Language() grammar.Language { return grammar.LangJava }

func (a javaAnalyzer) Analyze(ctx *Context, tree *tree_sitter.Tree, content []byte, path string) Output {
	out := Output{}
	root := tree.RootNode()
	lang := string(grammar.LangJava)

	javaQuery.walk(ctx, root, content, func(m match) {
		switch {
		case m.node("method") != nil && m.node("method.name") != nil:
			n := m.node("method")
			name := nodeText(m.node("method.name"), content)
			owner := enclosingJavaTypeName(n, content)
			id := qualifyID(path, "method", owner, name)
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

		case m.node("constructor") != nil && m.node("constructor.name") != nil:
			n := m.node("constructor")
			name := nodeText(m.node("constructor.name"), content)
			id := path + ":method:" + name + ".<init>"
			out.Entities = append(out.Entities, types.Entity{
				ID: id, Name: name, Type: types.EntityMethod, FilePath: path,
				Location: location(n), Language: lang,
				Metadata: withComplexity(map[string]string{"constructor": "true"}, n),
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
			if impl := m.node("class.implements"); impl != nil {
				out.Relationships = append(out.Relationships, types.Relationship{
					From: id, To: path + ":interface:" + nodeText(impl, content), Type: types.RelImplements,
				})
			}

		case m.node("interface") != nil && m.node("interface.name") != nil:
			n := m.node("interface")
			name := nodeText(m.node("interface.name"), content)
			out.Entities = append(out.Entities, types.Entity{
				ID: path + ":interface:" + name, Name: name, Type: types.EntityInterface,
				FilePath: path, Location: location(n), Language: lang,
			})

		case m.node("enum") != nil && m.node("enum.name") != nil:
			n := m.node("enum")
			name := nodeText(m.node("enum.name"), content)
			out.Entities = append(out.Entities, types.Entity{
				ID: path + ":enum:" + name, Name: name, Type: types.EntityEnum,
				FilePath: path, Location: location(n), Language: lang,
			})

		case m.node("field") != nil && m.node("field.name") != nil:
			n := m.node("field")
			name := nodeText(m.node("field.name"), content)
			owner := enclosingJavaTypeName(n, content)
			out.Entities = append(out.Entities, types.Entity{
				ID: qualifyID(path, "property", owner, name), Name: name, Type: types.EntityProperty,
				FilePath: path, Location: location(n), Language: lang,
			})

		case m.node("import") != nil:
			out.Relationships = append(out.Relationships, types.Relationship{
				From: moduleID(path), To: nodeText(m.node("import"), content), Type: types.RelImports,
			})
		}
	})

	scanCalls(ctx, root, content, path, &out.Relationships)

	return finish(ctx, path, lang, out)
}

func enclosingJavaTypeName(n *tree_sitter.Node, content []byte) string {
	cur := n.Parent()
	for depth := 0; cur != nil && depth < MaxRecursionDepth; depth++ {
		switch cur.Kind() {
		case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
			nameNode := cur.ChildByFieldName("name")
			return nodeText(nameNode, content)
		}
		cur = cur.Parent()
	}
	return ""
}

// qualifyID builds a dotted-owner entity id, the qualifier Java and C#
// members use (Owner.member).
func qualifyID(path, kind, owner, name string) string {
	return qualifyIDSep(path, kind, owner, name, ".")
}

// qualifyIDSep builds an entity id qualifying name by owner with sep, for
// languages whose own syntax uses a different path-qualification token (Rust
// and C++ both write Owner::member).
func qualifyIDSep(path, kind, owner, name, sep string) string {
	if owner == "" {
		return path + ":" + kind + ":" + name
	}
	return path + ":" + kind + ":" + owner + sep + name
}
