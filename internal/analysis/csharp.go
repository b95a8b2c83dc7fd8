package analysis

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"

	"github.com/codegraph-rag/engine/internal/grammar"
	"github.com/codegraph-rag/engine/internal/types"
)

// csharpQueryStr captures methods, types, fields and using directives.
const csharpQueryStr = `
    (method_declaration name: (identifier) @method.name) @method
    (constructor_declaration name: (identifier) @constructor.name) @constructor
    (class_declaration name: (identifier) @class.name (base_list (identifier) @class.base)) @class
    (class_declaration name: (identifier) @class.name) @class
    (interface_declaration name: (identifier) @interface.name) @interface
    (struct_declaration name: (identifier) @struct.name) @struct
    (enum_declaration name: (identifier) @enum.name) @enum
    (property_declaration name: (identifier) @property.name) @property
    (field_declaration
        (variable_declaration
            (variable_declarator (identifier) @field.name))) @field
    (using_directive (qualified_name) @using.name) @using
    (using_directive (identifier) @using.name) @using
`

var csharpQuery = newLazyQuery(func() *compiledQuery {
	return mustCompile(tree_sitter.NewLanguage(tree_sitter_csharp.Language()), csharpQueryStr)
})

type csharpAnalyzer struct{}

func (csharpAnalyzer) Language() grammar.Language { return grammar.LangCSharp }

func (a csharpAnalyzer) Analyze(ctx *Context, tree *tree_sitter.Tree, content []byte, path string) Output {
	out := Output{}
	root := tree.RootNode()
	lang := string(grammar.LangCSharp)

	csharpQuery.walk(ctx, root, content, func(m match) {
		switch {
		case m.node("method") != nil && m.node("method.name") != nil:
			n := m.node("method")
			name := nodeText(m.node("method.name"), content)
			owner := enclosingCSharpTypeName(n, content)
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
			if base := m.node("class.base"); base != nil {
				out.Relationships = append(out.Relationships, types.Relationship{
					From: id, To: path + ":class:" + nodeText(base, content), Type: types.RelInherits,
				})
			}

		case m.node("interface") != nil && m.node("interface.name") != nil:
			n := m.node("interface")
			name := nodeText(m.node("interface.name"), content)
			out.Entities = append(out.Entities, types.Entity{
				ID: path + ":interface:" + name, Name: name, Type: types.EntityInterface,
				FilePath: path, Location: location(n), Language: lang,
			})

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

		case m.node("property") != nil && m.node("property.name") != nil:
			n := m.node("property")
			name := nodeText(m.node("property.name"), content)
			owner := enclosingCSharpTypeName(n, content)
			out.Entities = append(out.Entities, types.Entity{
				ID: qualifyID(path, "property", owner, name), Name: name, Type: types.EntityProperty,
				FilePath: path, Location: location(n), Language: lang,
			})

		case m.node("field") != nil && m.node("field.name") != nil:
			n := m.node("field")
			name := nodeText(m.node("field.name"), content)
			owner := enclosingCSharpTypeName(n, content)
			out.Entities = append(out.Entities, types.Entity{
				ID: qualifyID(path, "property", owner, name), Name: name, Type: types.EntityProperty,
				FilePath: path, Location: location(n), Language: lang,
			})

		case m.node("using") != nil && m.node("using.name") != nil:
			out.Relationships = append(out.Relationships, types.Relationship{
				From: moduleID(path), To: nodeText(m.node("using.name"), content), Type: types.RelImports,
			})
		}
	})

	scanCalls(ctx, root, content, path, &out.Relationships)

	return finish(ctx, path, lang, out)
}

func enclosingCSharpTypeName(n *tree_sitter.Node, content []byte) string {
	cur := n.Parent()
	for depth := 0; cur != nil && depth < MaxRecursionDepth; depth++ {
		switch cur.Kind() {
		case "class_declaration", "struct_declaration", "interface_declaration", "record_declaration":
			nameNode := cur.ChildByFieldName("name")
			return nodeText(nameNode, content)
		}
		cur = cur.Parent()
	}
	return ""
}
