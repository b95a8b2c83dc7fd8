// Package grammar maps a file path to the language it should be parsed as,
// lazily loading each tree-sitter grammar at most once per process.
// Markdown and VBA have no tree-sitter bindings available in the
// ecosystem this engine draws on; their "grammar" is simply a language tag
// consumed by a line-oriented analyzer instead of a CST (see
// internal/analysis/markdown.go and vba.go).
package grammar

import (
	"path/filepath"
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/codegraph-rag/engine/internal/errs"
)

// Language is the Grammar Registry's authoritative language tag.
type Language string

const (
	LangJS         Language = "js"
	LangTS         Language = "ts"
	LangPython     Language = "py"
	LangC          Language = "c"
	LangCpp        Language = "cpp"
	LangRust       Language = "rust"
	LangGo         Language = "go"
	LangJava       Language = "java"
	LangCSharp     Language = "csharp"
	LangVBA        Language = "vba"
	LangMarkdown   Language = "markdown"
)

// hasCST reports whether Language has a tree-sitter grammar behind it.
var hasCST = map[Language]bool{
	LangJS: true, LangTS: true, LangPython: true, LangC: true, LangCpp: true,
	LangRust: true, LangGo: true, LangJava: true, LangCSharp: true,
}

// extensionMap is the authoritative file-extension to language mapping.
var extensionMap = map[string]Language{
	".js": LangJS, ".mjs": LangJS, ".cjs": LangJS, ".jsx": LangJS,
	".ts": LangTS, ".tsx": LangTS,
	".py": LangPython, ".pyi": LangPython, ".pyw": LangPython,
	".c": LangC, ".h": LangC,
	".cpp": LangCpp, ".cxx": LangCpp, ".cc": LangCpp, ".hpp": LangCpp, ".hh": LangCpp,
	".rs": LangRust,
	".go": LangGo,
	".java": LangJava,
	".cs": LangCSharp,
	".bas": LangVBA, ".vba": LangVBA, ".cls": LangVBA, ".frm": LangVBA,
	".md": LangMarkdown, ".mdx": LangMarkdown,
}

// GrammarHandle wraps a ready-to-use tree-sitter language and its engine
// Language tag; it holds no parser instance. Handles are read-only after
// load and freely shared across goroutines.
type GrammarHandle struct {
	Language   Language
	TSLanguage *tree_sitter.Language
}

// Registry lazily constructs and caches one GrammarHandle per Language.
type Registry struct {
	mu      sync.RWMutex
	loaded  map[Language]*GrammarHandle
	loaders map[Language]func() *tree_sitter.Language
}

// NewRegistry builds a Registry with the built-in loader table. Nothing is
// loaded until the first GrammarFor call for each language.
func NewRegistry() *Registry {
	r := &Registry{
		loaded: make(map[Language]*GrammarHandle),
		loaders: map[Language]func() *tree_sitter.Language{
			LangJS:     func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_javascript.Language()) },
			LangTS:     func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()) },
			LangPython: func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_python.Language()) },
			LangGo:     func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_go.Language()) },
			LangCpp:    func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_cpp.Language()) },
			LangC:      func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_cpp.Language()) },
			LangRust:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_rust.Language()) },
			LangJava:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_java.Language()) },
			LangCSharp: func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_csharp.Language()) },
		},
	}
	return r
}

// LanguageForPath resolves a file path to a Language by extension, pure and
// requiring no I/O.
func LanguageForPath(path string) (Language, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := extensionMap[ext]
	return lang, ok
}

// HasCST reports whether lang is backed by a tree-sitter grammar.
func HasCST(lang Language) bool {
	return hasCST[lang]
}

// GrammarFor resolves path to its GrammarHandle, loading the grammar on
// first use. Languages without a tree-sitter binding (Markdown, VBA)
// return an UnsupportedLanguage error so callers fall back to their
// line-oriented analyzer.
func (r *Registry) GrammarFor(path string) (*GrammarHandle, error) {
	lang, ok := LanguageForPath(path)
	if !ok {
		return nil, errs.UnsupportedLanguage(path)
	}
	if !hasCST[lang] {
		return nil, errs.UnsupportedLanguage(path).WithRetryable(false)
	}

	r.mu.RLock()
	if h, ok := r.loaded[lang]; ok {
		r.mu.RUnlock()
		return h, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.loaded[lang]; ok {
		return h, nil
	}
	loader, ok := r.loaders[lang]
	if !ok {
		return nil, errs.UnsupportedLanguage(path)
	}
	handle := &GrammarHandle{Language: lang, TSLanguage: loader()}
	r.loaded[lang] = handle
	return handle, nil
}

// LoadedLanguages returns the set of languages loaded so far, useful for
// diagnostics and get_metrics()-style introspection.
func (r *Registry) LoadedLanguages() []Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Language, 0, len(r.loaded))
	for l := range r.loaded {
		out = append(out, l)
	}
	return out
}
