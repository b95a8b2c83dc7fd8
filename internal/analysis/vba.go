package analysis

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codegraph-rag/engine/internal/grammar"
	"github.com/codegraph-rag/engine/internal/types"
)

// vbaAnalyzer has no tree-sitter grammar available in the ecosystem this
// engine draws on (see internal/grammar/registry.go), so it recognizes
// Sub/Function/Property boundaries with line-anchored regexes instead of a
// CST walk. Module-level Dim/Declare statements are not extracted. Same
// stdlib exception as markdownAnalyzer: no corpus library covers this.
type vbaAnalyzer struct{}

func (vbaAnalyzer) Language() grammar.Language { return grammar.LangVBA }

func (a vbaAnalyzer) Analyze(_ *Context, _ *tree_sitter.Tree, content []byte, path string) Output {
	return a.AnalyzeText(content, path)
}

var (
	vbaProcStart = regexp.MustCompile(`(?i)^\s*(Public|Private|Friend)?\s*(Static)?\s*(Sub|Function|Property\s+(Get|Let|Set))\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	vbaProcEnd   = regexp.MustCompile(`(?i)^\s*End\s+(Sub|Function|Property)\s*$`)
	vbaCall      = regexp.MustCompile(`(?i)\b(Call\s+)?([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	// Subs are usually invoked without parentheses: a line holding a bare
	// identifier (optionally Call-prefixed) is a call statement.
	vbaBareCall = regexp.MustCompile(`(?i)^\s*(Call\s+)?([A-Za-z_][A-Za-z0-9_]*)\s*$`)
	vbaModule    = regexp.MustCompile(`(?i)^\s*(Attribute\s+VB_Name\s*=\s*"([^"]+)")`)
)

// vbaKeywords are statement keywords the call regexes would otherwise
// mistake for procedure names.
var vbaKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "do": true, "loop": true,
	"next": true, "wend": true, "else": true, "end": true, "exit": true,
	"dim": true, "set": true, "let": true, "return": true, "select": true,
}

func (vbaAnalyzer) AnalyzeText(content []byte, path string) Output {
	out := Output{}
	modID := moduleID(path)
	out.Entities = append(out.Entities, types.Entity{
		ID: modID, Name: path, Type: types.EntityModule, FilePath: path,
		Language: string(grammar.LangVBA),
	})

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var currentID string
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if m := vbaModule.FindStringSubmatch(line); m != nil {
			out.Entities[0].Name = m[2]
			continue
		}

		if m := vbaProcStart.FindStringSubmatch(line); m != nil {
			name := m[5]
			currentID = path + ":function:" + name
			out.Entities = append(out.Entities, types.Entity{
				ID: currentID, Name: name, Type: types.EntityFunction, FilePath: path,
				Location: types.Location{Start: types.Point{Line: lineNo}, End: types.Point{Line: lineNo}},
				Language: string(grammar.LangVBA),
			})
			continue
		}

		if vbaProcEnd.MatchString(line) && currentID != "" {
			idx := len(out.Entities) - 1
			out.Entities[idx].Location.End = types.Point{Line: lineNo}
			currentID = ""
			continue
		}

		if currentID == "" {
			continue
		}
		matches := vbaCall.FindAllStringSubmatch(line, -1)
		if m := vbaBareCall.FindStringSubmatch(line); m != nil {
			matches = append(matches, m)
		}
		for _, m := range matches {
			callee := m[2]
			if vbaKeywords[strings.ToLower(callee)] {
				continue
			}
			out.Relationships = append(out.Relationships, types.Relationship{
				From: currentID, To: path + ":function:" + callee, Type: types.RelCalls,
			})
		}
	}

	return out
}
