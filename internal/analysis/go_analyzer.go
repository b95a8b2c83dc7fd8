package analysis

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"

	"github.com/codegraph-rag/engine/internal/grammar"
	"github.com/codegraph-rag/engine/internal/types"
)

// goQueryStr captures every Go declaration form, including a
// struct/interface type_spec capture so embeds can be derived from a
// struct's field list (implements edges are not derived), plus
// package/const/var captures so every Go declaration kind is emitted.
const goQueryStr = `
    (package_clause (package_identifier) @package.name) @package
    (function_declaration name: (identifier) @function.name) @function
    (method_declaration
        receiver: (parameter_list) @method.receiver
        name: (field_identifier) @method.name) @method
    (type_declaration
        (type_spec name: (type_identifier) @type.name type: (_) @type.kind)) @type
    (const_declaration (const_spec name: (identifier) @const.name)) @const
    (var_declaration (var_spec name: (identifier) @var.name)) @var
    (import_spec path: (interpreted_string_literal) @import.path) @import
`

var goQuery = newLazyQuery(func() *compiledQuery {
	return mustCompile(tree_sitter.NewLanguage(tree_sitter_go.Language()), goQueryStr)
})

type goAnalyzer struct{}

func (goAnalyzer) Language() grammar.Language { return grammar.LangGo }

func (a goAnalyzer) Analyze(ctx *Context, tree *tree_sitter.Tree, content []byte, path string) Output {
	out := Output{}
	root := tree.RootNode()

	var packageID string
	goQuery.walk(ctx, root, content, func(m match) {
		switch {
		case m.node("package") != nil && m.node("package.name") != nil:
			if packageID != "" {
				return
			}
			n := m.node("package")
			name := nodeText(m.node("package.name"), content)
			id := path + ":package:" + name
			packageID = id
			out.Entities = append(out.Entities, types.Entity{
				ID: id, Name: name, Type: types.EntityModule, FilePath: path,
				Location: location(n), Language: string(grammar.LangGo),
			})

		case m.node("function") != nil && m.node("function.name") != nil:
			n := m.node("function")
			name := nodeText(m.node("function.name"), content)
			id := path + ":function:" + name
			loc := location(n)
			out.Entities = append(out.Entities, types.Entity{
				ID: id, Name: name, Type: types.EntityFunction, FilePath: path,
				Location: loc, Language: string(grammar.LangGo),
				Metadata: withComplexity(nil, n),
			})
			ctx.RecordSpan(n.StartByte(), n.EndByte(), id)

		case m.node("method") != nil && m.node("method.name") != nil:
			n := m.node("method")
			name := nodeText(m.node("method.name"), content)
			receiverType := goReceiverType(m.node("method.receiver"), content)
			qualified := name
			if receiverType != "" {
				qualified = receiverType + ":" + name
			}
			id := path + ":method:" + qualified
			loc := location(n)
			out.Entities = append(out.Entities, types.Entity{
				ID: id, Name: name, Type: types.EntityMethod, FilePath: path,
				Location: loc, Language: string(grammar.LangGo),
				Metadata: withComplexity(map[string]string{"receiver": receiverType}, n),
			})
			ctx.RecordSpan(n.StartByte(), n.EndByte(), id)
			if receiverType != "" {
				out.Relationships = append(out.Relationships, types.Relationship{
					From: id, To: path + ":type:" + receiverType, Type: types.RelMemberOf,
				})
			}

		case m.node("type") != nil && m.node("type.name") != nil:
			n := m.node("type")
			name := nodeText(m.node("type.name"), content)
			kindNode := m.node("type.kind")
			entType := types.EntityTypedef
			if kindNode != nil {
				switch kindNode.Kind() {
				case "struct_type":
					entType = types.EntityClass
				case "interface_type":
					entType = types.EntityInterface
				}
			}
			id := path + ":type:" + name
			out.Entities = append(out.Entities, types.Entity{
				ID: id, Name: name, Type: entType, FilePath: path,
				Location: location(n), Language: string(grammar.LangGo),
			})
			if entType == types.EntityClass {
				emitGoEmbeds(kindNode, content, path, id, &out.Relationships)
			}

		case m.node("const") != nil:
			n := m.node("const")
			for _, c := range m.all {
				if c.name != "const.name" {
					continue
				}
				name := nodeText(c.node, content)
				id := path + ":const:" + name
				out.Entities = append(out.Entities, types.Entity{
					ID: id, Name: name, Type: types.EntityConstant, FilePath: path,
					Location: location(n), Language: string(grammar.LangGo),
				})
			}

		case m.node("var") != nil:
			n := m.node("var")
			for _, c := range m.all {
				if c.name != "var.name" {
					continue
				}
				name := nodeText(c.node, content)
				id := path + ":var:" + name
				out.Entities = append(out.Entities, types.Entity{
					ID: id, Name: name, Type: types.EntityVariable, FilePath: path,
					Location: location(n), Language: string(grammar.LangGo),
				})
			}

		case m.node("import") != nil && m.node("import.path") != nil:
			raw := nodeText(m.node("import.path"), content)
			from := packageID
			if from == "" {
				from = moduleID(path)
			}
			out.Relationships = append(out.Relationships, types.Relationship{
				From: from,
				To:   trimQuotes(raw),
				Type: types.RelImports,
			})
		}
	})

	scanCalls(ctx, root, content, path, &out.Relationships)

	return finish(ctx, path, string(grammar.LangGo), out)
}

func goReceiverType(n *tree_sitter.Node, content []byte) string {
	if n == nil {
		return ""
	}
	text := nodeText(n, content)
	// parameter_list text looks like "(r *Repo)"; take the last token and
	// strip any leading pointer sigil.
	start := -1
	for i := len(text) - 1; i >= 0; i-- {
		if text[i] == ' ' || text[i] == '*' || text[i] == '(' {
			start = i + 1
			break
		}
	}
	if start < 0 || start >= len(text) {
		return ""
	}
	out := text[start:]
	for len(out) > 0 && (out[len(out)-1] == ')' || out[len(out)-1] == ' ') {
		out = out[:len(out)-1]
	}
	return out
}

// emitGoEmbeds scans a struct_type's field_declaration_list for anonymous
// fields (embeds): a field_declaration with a type_identifier child but no
// field_identifier child is an embedded struct, not a named field.
func emitGoEmbeds(structNode *tree_sitter.Node, content []byte, path, ownerID string, rels *[]types.Relationship) {
	if structNode == nil {
		return
	}
	for i := uint(0); i < structNode.ChildCount(); i++ {
		list := structNode.Child(i)
		if list == nil || list.Kind() != "field_declaration_list" {
			continue
		}
		for j := uint(0); j < list.ChildCount(); j++ {
			fieldDecl := list.Child(j)
			if fieldDecl == nil || fieldDecl.Kind() != "field_declaration" {
				continue
			}

			hasFieldName := false
			var embeddedType *tree_sitter.Node
			for k := uint(0); k < fieldDecl.ChildCount(); k++ {
				child := fieldDecl.Child(k)
				if child == nil {
					continue
				}
				switch child.Kind() {
				case "field_identifier":
					hasFieldName = true
				case "type_identifier":
					embeddedType = child
				}
			}
			if !hasFieldName && embeddedType != nil {
				embedded := nodeText(embeddedType, content)
				*rels = append(*rels, types.Relationship{
					From: ownerID, To: path + ":type:" + embedded, Type: types.RelEmbeds,
				})
			}
		}
	}
}

func trimQuotes(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '`') {
		return s[1 : len(s)-1]
	}
	return s
}
