package analysis

import "github.com/codegraph-rag/engine/internal/grammar"

// registry maps a grammar.Language to the Analyzer that handles it. Built
// once at package init; only Register changes it afterward.
var registry = map[grammar.Language]Analyzer{
	grammar.LangGo:       &goAnalyzer{},
	grammar.LangJS:       &jsAnalyzer{dialect: dialectJS},
	grammar.LangTS:       &jsAnalyzer{dialect: dialectTS},
	grammar.LangPython:   &pythonAnalyzer{},
	grammar.LangC:        &clikeAnalyzer{lang: grammar.LangC},
	grammar.LangCpp:      &clikeAnalyzer{lang: grammar.LangCpp},
	grammar.LangJava:     &javaAnalyzer{},
	grammar.LangCSharp:   &csharpAnalyzer{},
	grammar.LangRust:     &rustAnalyzer{},
	grammar.LangMarkdown: &markdownAnalyzer{},
	grammar.LangVBA:      &vbaAnalyzer{},
}

// Register installs an Analyzer for a language, overwriting any built-in
// mapping. Exposed so tests can plug in fakes.
func Register(lang grammar.Language, a Analyzer) {
	registry[lang] = a
}

// For returns the Analyzer for lang, if one is registered.
func For(lang grammar.Language) (Analyzer, bool) {
	a, ok := registry[lang]
	return a, ok
}
