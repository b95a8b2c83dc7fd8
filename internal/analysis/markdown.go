package analysis

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codegraph-rag/engine/internal/grammar"
	"github.com/codegraph-rag/engine/internal/types"
)

// markdownAnalyzer has no tree-sitter grammar behind it (see
// internal/grammar/registry.go); it scans ATX/setext headings line by line
// instead, emitting a document entity and one heading entity per section.
// The document "contains" every heading, and a nested heading also gets a
// "contains" edge from its nearest shallower heading. A bufio scan covers
// everything heading extraction needs here.
type markdownAnalyzer struct{}

func (markdownAnalyzer) Language() grammar.Language { return grammar.LangMarkdown }

// Analyze ignores tree, since Markdown never reaches the CST path (the
// Grammar Registry has no handle for it); callers invoke
// AnalyzeText directly for non-CST languages.
func (a markdownAnalyzer) Analyze(_ *Context, _ *tree_sitter.Tree, content []byte, path string) Output {
	return a.AnalyzeText(content, path)
}

type headingStackEntry struct {
	level int
	id    string
}

func (markdownAnalyzer) AnalyzeText(content []byte, path string) Output {
	out := Output{
		Entities: []types.Entity{{
			ID: path + ":document", Name: path, Type: types.EntityDocument,
			FilePath: path, Language: string(grammar.LangMarkdown),
		}},
	}

	var stack []headingStackEntry
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	var prevLine string
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		level, title, ok := parseATXHeading(trimmed)
		if !ok {
			level, title, ok = parseSetextHeading(prevLine, trimmed)
		}
		prevLine = trimmed

		if !ok || title == "" {
			continue
		}

		for len(stack) > 0 && stack[len(stack)-1].level >= level {
			stack = stack[:len(stack)-1]
		}

		id := path + ":heading:" + title
		out.Entities = append(out.Entities, types.Entity{
			ID: id, Name: title, Type: types.EntityHeading, FilePath: path,
			Location: types.Location{Start: types.Point{Line: lineNo}, End: types.Point{Line: lineNo}},
			Language: string(grammar.LangMarkdown),
			Metadata: map[string]string{"level": strconv.Itoa(level)},
		})
		// The document directly contains every heading; a nested heading
		// additionally hangs off its nearest shallower one.
		out.Relationships = append(out.Relationships, types.Relationship{
			From: path + ":document", To: id, Type: types.RelContains,
		})
		if len(stack) > 0 {
			out.Relationships = append(out.Relationships, types.Relationship{
				From: stack[len(stack)-1].id, To: id, Type: types.RelContains,
			})
		}
		stack = append(stack, headingStackEntry{level: level, id: id})
	}

	return out
}

func parseATXHeading(line string) (level int, title string, ok bool) {
	i := 0
	for i < len(line) && line[i] == '#' {
		i++
	}
	if i == 0 || i > 6 || i >= len(line) || line[i] != ' ' {
		return 0, "", false
	}
	return i, strings.TrimSpace(line[i:]), true
}

func parseSetextHeading(titleLine, underline string) (level int, title string, ok bool) {
	if titleLine == "" || underline == "" {
		return 0, "", false
	}
	switch {
	case isAllRune(underline, '='):
		return 1, titleLine, true
	case isAllRune(underline, '-') && len(underline) > 0:
		return 2, titleLine, true
	}
	return 0, "", false
}

func isAllRune(s string, r rune) bool {
	for _, c := range s {
		if c != r {
			return false
		}
	}
	return true
}
