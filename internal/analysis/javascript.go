package analysis

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/codegraph-rag/engine/internal/grammar"
	"github.com/codegraph-rag/engine/internal/types"
)

type jsDialect int

const (
	dialectJS jsDialect = iota
	dialectTS
)

// jsQueryStr captures class/function/variable declarations and a
// class_heritage capture on class_declaration so "inherits" can be derived.
const jsQueryStr = `
    (function_declaration name: (identifier) @function.name) @function
    (generator_function_declaration name: (identifier) @function.name) @function
    (variable_declarator
        name: (identifier) @function.name
        value: [(arrow_function) (function_expression) (generator_function)]) @function
    (method_definition name: (property_identifier) @method.name) @method
    (class_declaration name: (identifier) @class.name) @class
    (class_declaration name: (identifier) @class.name (class_heritage (identifier) @class.super)) @class
    (import_statement source: (string) @import.source) @import
`

// tsQueryStr adds interface/type-alias/enum declarations, plus the same
// class_heritage/extends capture and an implements_clause capture.
const tsQueryStr = `
    (function_declaration name: (identifier) @function.name) @function
    (generator_function_declaration name: (identifier) @function.name) @function
    (method_definition name: (property_identifier) @method.name) @method
    (function_expression name: (identifier) @function.name) @function
    (class_declaration name: (type_identifier) @class.name) @class
    (class_declaration name: (type_identifier) @class.name (class_heritage (extends_clause value: (identifier) @class.super))) @class
    (class_declaration name: (type_identifier) @class.name (class_heritage (implements_clause (type_identifier) @class.implements))) @class
    (interface_declaration name: (type_identifier) @interface.name) @interface
    (type_alias_declaration name: (type_identifier) @type.name) @type
    (enum_declaration name: (identifier) @enum.name) @enum
    (import_statement source: (string) @import.source) @import
`

var jsQuery = newLazyQuery(func() *compiledQuery {
	return mustCompile(tree_sitter.NewLanguage(tree_sitter_javascript.Language()), jsQueryStr)
})
var tsQuery = newLazyQuery(func() *compiledQuery {
	return mustCompile(tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()), tsQueryStr)
})

type jsAnalyzer struct {
	dialect jsDialect
}

func (a jsAnalyzer) Language() grammar.Language {
	if a.dialect == dialectTS {
		return grammar.LangTS
	}
	return grammar.LangJS
}

func (a jsAnalyzer) Analyze(ctx *Context, tree *tree_sitter.Tree, content []byte, path string) Output {
	out := Output{}
	root := tree.RootNode()
	lang := string(a.Language())

	q := jsQuery
	if a.dialect == dialectTS {
		q = tsQuery
	}

	q.walk(ctx, root, content, func(m match) {
		switch {
		case m.node("function") != nil && m.node("function.name") != nil:
			n := m.node("function")
			name := nodeText(m.node("function.name"), content)
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
			owner := enclosingClassName(n, content)
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

		case m.node("type") != nil && m.node("type.name") != nil:
			n := m.node("type")
			name := nodeText(m.node("type.name"), content)
			out.Entities = append(out.Entities, types.Entity{
				ID: path + ":typedef:" + name, Name: name, Type: types.EntityTypedef,
				FilePath: path, Location: location(n), Language: lang,
			})

		case m.node("enum") != nil && m.node("enum.name") != nil:
			n := m.node("enum")
			name := nodeText(m.node("enum.name"), content)
			out.Entities = append(out.Entities, types.Entity{
				ID: path + ":enum:" + name, Name: name, Type: types.EntityEnum,
				FilePath: path, Location: location(n), Language: lang,
			})

		case m.node("import") != nil && m.node("import.source") != nil:
			out.Relationships = append(out.Relationships, types.Relationship{
				From: moduleID(path),
				To:   trimQuotes(nodeText(m.node("import.source"), content)),
				Type: types.RelImports,
			})
		}
	})

	scanCalls(ctx, root, content, path, &out.Relationships)

	return finish(ctx, path, lang, out)
}

// enclosingClassName walks parents looking for the nearest class_declaration
// to qualify a method's owning class.
func enclosingClassName(n *tree_sitter.Node, content []byte) string {
	cur := n.Parent()
	for depth := 0; cur != nil && depth < MaxRecursionDepth; depth++ {
		if cur.Kind() == "class_declaration" {
			nameNode := cur.ChildByFieldName("name")
			return nodeText(nameNode, content)
		}
		cur = cur.Parent()
	}
	return ""
}
