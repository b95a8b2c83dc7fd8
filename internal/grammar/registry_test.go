package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanguageForPath(t *testing.T) {
	cases := map[string]Language{
		"a.js": LangJS, "a.mjs": LangJS, "a.cjs": LangJS, "a.jsx": LangJS,
		"a.ts": LangTS, "a.tsx": LangTS,
		"a.py": LangPython, "a.pyi": LangPython, "a.pyw": LangPython,
		"a.c": LangC, "a.h": LangC,
		"a.cpp": LangCpp, "a.cxx": LangCpp, "a.cc": LangCpp, "a.hpp": LangCpp, "a.hh": LangCpp,
		"a.rs": LangRust,
		"a.go": LangGo,
		"a.java": LangJava,
		"a.cs": LangCSharp,
		"a.bas": LangVBA, "a.vba": LangVBA, "a.cls": LangVBA, "a.frm": LangVBA,
		"a.md": LangMarkdown, "a.mdx": LangMarkdown,
	}
	for path, want := range cases {
		got, ok := LanguageForPath(path)
		require.True(t, ok, path)
		assert.Equal(t, want, got, path)
	}
}

func TestLanguageForPathUnsupported(t *testing.T) {
	_, ok := LanguageForPath("a.xyz")
	assert.False(t, ok)
}

func TestGrammarForGoLazyLoadsOnce(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.LoadedLanguages())

	h1, err := r.GrammarFor("main.go")
	require.NoError(t, err)
	require.NotNil(t, h1.TSLanguage)

	h2, err := r.GrammarFor("other.go")
	require.NoError(t, err)
	assert.Same(t, h1, h2)
	assert.Len(t, r.LoadedLanguages(), 1)
}

func TestGrammarForMarkdownUnsupported(t *testing.T) {
	r := NewRegistry()
	_, err := r.GrammarFor("readme.md")
	require.Error(t, err)
}
