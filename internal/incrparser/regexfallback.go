package incrparser

import (
	"regexp"

	"github.com/codegraph-rag/engine/internal/analysis"
	"github.com/codegraph-rag/engine/internal/grammar"
	"github.com/codegraph-rag/engine/internal/types"
)

// regexFallback is a last-resort extractor: when a JS/TS analyzer
// produces zero entities and no errors (e.g. a grammar edge case, or a
// fixture with exotic syntax), this
// guarantees non-empty output on a degenerate input via a minimal
// class/function/interface/type-alias scan, entirely independent of the
// tree-sitter CST.
var (
	reClass     = regexp.MustCompile(`\bclass\s+([A-Za-z_$][\w$]*)`)
	reFunction  = regexp.MustCompile(`\bfunction\s*\*?\s*([A-Za-z_$][\w$]*)\s*\(`)
	reInterface = regexp.MustCompile(`\binterface\s+([A-Za-z_$][\w$]*)`)
	reTypeAlias = regexp.MustCompile(`\btype\s+([A-Za-z_$][\w$]*)\s*=`)
)

func regexFallback(content []byte, path string) analysis.Output {
	src := string(content)
	var out analysis.Output

	add := func(kind types.EntityType, name string) {
		out.Entities = append(out.Entities, types.Entity{
			ID:       path + ":" + string(kind) + ":" + name,
			Name:     name,
			Type:     kind,
			FilePath: path,
			Language: string(grammar.LangJS),
			Metadata: map[string]string{"source": "regexFallback"},
		})
	}

	for _, m := range reClass.FindAllStringSubmatch(src, -1) {
		add(types.EntityClass, m[1])
	}
	for _, m := range reFunction.FindAllStringSubmatch(src, -1) {
		add(types.EntityFunction, m[1])
	}
	for _, m := range reInterface.FindAllStringSubmatch(src, -1) {
		add(types.EntityInterface, m[1])
	}
	for _, m := range reTypeAlias.FindAllStringSubmatch(src, -1) {
		add(types.EntityTypedef, m[1])
	}
	return out
}
