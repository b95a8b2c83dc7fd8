package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegraph-rag/engine/internal/grammar"
	"github.com/codegraph-rag/engine/internal/treesitter"
	"github.com/codegraph-rag/engine/internal/types"
)

func parseAndAnalyze(t *testing.T, path string, src string, a Analyzer) Output {
	t.Helper()
	reg := grammar.NewRegistry()
	p := treesitter.New(reg)
	out, err := p.Parse(context.Background(), path, []byte(src))
	require.NoError(t, err)
	ctx := NewContext(nil, 0)
	return a.Analyze(ctx, out.Tree, []byte(src), path)
}

func findEntity(entities []types.Entity, name string, typ types.EntityType) (types.Entity, bool) {
	for _, e := range entities {
		if e.Name == name && e.Type == typ {
			return e, true
		}
	}
	return types.Entity{}, false
}

func TestGoAnalyzerExtractsFunctionsMethodsAndEmbeds(t *testing.T) {
	src := `package main

type Base struct {
	Name string
}

type Repo struct {
	Base
	conn string
}

func (r *Repo) Save() error {
	return helper()
}

func helper() error {
	return nil
}
`
	out := parseAndAnalyze(t, "repo.go", src, goAnalyzer{})

	_, ok := findEntity(out.Entities, "Save", types.EntityMethod)
	assert.True(t, ok)
	_, ok = findEntity(out.Entities, "helper", types.EntityFunction)
	assert.True(t, ok)
	repo, ok := findEntity(out.Entities, "Repo", types.EntityClass)
	assert.True(t, ok)
	assert.NotEmpty(t, repo.ID)

	foundEmbeds := false
	foundCalls := false
	for _, r := range out.Relationships {
		if r.Type == types.RelEmbeds && r.To == "repo.go:type:Base" {
			foundEmbeds = true
		}
		if r.Type == types.RelCalls && r.To == "repo.go:function:helper" {
			foundCalls = true
		}
	}
	assert.True(t, foundEmbeds, "expected embeds relationship from Repo to Base")
	assert.True(t, foundCalls, "expected calls relationship from Save to helper")
}

func TestJSAnalyzerExtractsClassesAndInheritance(t *testing.T) {
	src := `
class Animal {
	speak() {
		return noise();
	}
}
class Dog extends Animal {
	bark() {}
}
function noise() {
	return "woof";
}
`
	out := parseAndAnalyze(t, "animals.js", src, jsAnalyzer{dialect: dialectJS})

	_, ok := findEntity(out.Entities, "Dog", types.EntityClass)
	assert.True(t, ok)
	foundInherits := false
	for _, r := range out.Relationships {
		if r.Type == types.RelInherits && r.To == "animals.js:class:Animal" {
			foundInherits = true
		}
	}
	assert.True(t, foundInherits)
}

func TestPythonAnalyzerExtractsMethodsAndDecorators(t *testing.T) {
	src := `
class Greeter:
    def hello(self):
        return shout()

def shout():
    return "hi"

@staticmethod
def util():
    pass
`
	out := parseAndAnalyze(t, "greet.py", src, pythonAnalyzer{})

	hello, ok := findEntity(out.Entities, "hello", types.EntityMethod)
	assert.True(t, ok)
	assert.Contains(t, hello.ID, "Greeter.hello")

	_, ok = findEntity(out.Entities, "shout", types.EntityFunction)
	assert.True(t, ok)
}

func TestCircuitBreakerTripsOnRecursionDepth(t *testing.T) {
	ctx := NewContext(nil, 0)
	for i := 0; i < MaxRecursionDepth; i++ {
		require.True(t, ctx.Enter())
	}
	assert.False(t, ctx.Enter())
	reason, tripped := ctx.Tripped()
	assert.True(t, tripped)
	assert.Contains(t, reason, "recursion depth")
}

func TestMarkdownAnalyzerBuildsHeadingTree(t *testing.T) {
	src := `# Title

Some text.

## Section One

content

## Section Two
`
	a := markdownAnalyzer{}
	out := a.AnalyzeText([]byte(src), "doc.md")

	_, ok := findEntity(out.Entities, "Title", types.EntityHeading)
	assert.True(t, ok)
	_, ok = findEntity(out.Entities, "Section One", types.EntityHeading)
	assert.True(t, ok)

	var docContains, nestedContains bool
	for _, r := range out.Relationships {
		if r.Type != types.RelContains || r.To != "doc.md:heading:Section One" {
			continue
		}
		switch r.From {
		case "doc.md:document":
			docContains = true
		case "doc.md:heading:Title":
			nestedContains = true
		}
	}
	assert.True(t, docContains, "document should directly contain every heading")
	assert.True(t, nestedContains, "nested heading should also hang off its parent heading")
}

func TestVBAAnalyzerExtractsSubsAndCalls(t *testing.T) {
	src := `Attribute VB_Name = "Module1"
Public Sub DoWork()
    Helper
End Sub

Private Sub Helper()
End Sub
`
	a := vbaAnalyzer{}
	out := a.AnalyzeText([]byte(src), "macro.bas")

	_, ok := findEntity(out.Entities, "DoWork", types.EntityFunction)
	assert.True(t, ok)

	foundCall := false
	for _, r := range out.Relationships {
		if r.Type == types.RelCalls && r.To == "macro.bas:function:Helper" {
			foundCall = true
		}
	}
	assert.True(t, foundCall)
}

func TestDispatchResolvesRegisteredAnalyzers(t *testing.T) {
	for _, lang := range []grammar.Language{grammar.LangGo, grammar.LangJS, grammar.LangTS, grammar.LangPython,
		grammar.LangC, grammar.LangCpp, grammar.LangJava, grammar.LangCSharp, grammar.LangRust,
		grammar.LangMarkdown, grammar.LangVBA} {
		a, ok := For(lang)
		require.True(t, ok, string(lang))
		assert.Equal(t, lang, a.Language())
	}
}

func TestTSAnalyzerExtractsInterfacesAndTypeAliases(t *testing.T) {
	src := `
interface Shape {
	area(): number;
}
type Alias = Shape;
enum Color { Red, Green }
class Circle implements Shape {
	area() { return 3.14; }
}
`
	out := parseAndAnalyze(t, "shapes.ts", src, jsAnalyzer{dialect: dialectTS})

	_, ok := findEntity(out.Entities, "Shape", types.EntityInterface)
	assert.True(t, ok)
	_, ok = findEntity(out.Entities, "Alias", types.EntityTypedef)
	assert.True(t, ok)
	_, ok = findEntity(out.Entities, "Color", types.EntityEnum)
	assert.True(t, ok)
	_, ok = findEntity(out.Entities, "Circle", types.EntityClass)
	assert.True(t, ok)
}

func TestJavaAnalyzerQualifiesMethodsByClass(t *testing.T) {
	src := `
public class Account {
	private int balance;

	public void deposit(int amount) {
		this.balance += amount;
	}
}
`
	out := parseAndAnalyze(t, "Account.java", src, javaAnalyzer{})

	deposit, ok := findEntity(out.Entities, "deposit", types.EntityMethod)
	require.True(t, ok)
	assert.Equal(t, "Account.java:method:Account.deposit", deposit.ID)

	foundMember := false
	for _, r := range out.Relationships {
		if r.Type == types.RelMemberOf && r.From == deposit.ID {
			foundMember = true
		}
	}
	assert.True(t, foundMember)
}

func TestRustAnalyzerQualifiesImplMethods(t *testing.T) {
	src := `
struct Point { x: i32, y: i32 }

impl Point {
    fn norm(&self) -> i32 {
        self.x + self.y
    }
}

fn free() {}
`
	out := parseAndAnalyze(t, "point.rs", src, rustAnalyzer{})

	norm, ok := findEntity(out.Entities, "norm", types.EntityMethod)
	require.True(t, ok)
	assert.Equal(t, "point.rs:method:Point::norm", norm.ID)

	_, ok = findEntity(out.Entities, "free", types.EntityFunction)
	assert.True(t, ok)
	_, ok = findEntity(out.Entities, "Point", types.EntityClass)
	assert.True(t, ok)
}

func TestCppAnalyzerQualifiesInlineMethods(t *testing.T) {
	src := `
class Widget {
public:
	int size() { return 42; }
};

int standalone() { return 0; }
`
	out := parseAndAnalyze(t, "widget.cpp", src, clikeAnalyzer{lang: grammar.LangCpp})

	size, ok := findEntity(out.Entities, "size", types.EntityMethod)
	require.True(t, ok)
	assert.Equal(t, "widget.cpp:method:Widget::size", size.ID)

	_, ok = findEntity(out.Entities, "standalone", types.EntityFunction)
	assert.True(t, ok)
}

func TestAnalyzersRecordCyclomaticComplexity(t *testing.T) {
	src := `package p

func branchy(n int) int {
	if n > 0 {
		for i := 0; i < n; i++ {
			n--
		}
	}
	return n
}
`
	out := parseAndAnalyze(t, "branchy.go", src, goAnalyzer{})

	fn, ok := findEntity(out.Entities, "branchy", types.EntityFunction)
	require.True(t, ok)
	// base 1 + if + for
	assert.Equal(t, "3", fn.MetaOr("complexity", ""))
}

func TestMarkdownAnalyzerParsesSetextHeadings(t *testing.T) {
	src := "Title\n=====\n\nSection\n-------\n"
	a := markdownAnalyzer{}
	out := a.AnalyzeText([]byte(src), "doc.md")

	title, ok := findEntity(out.Entities, "Title", types.EntityHeading)
	require.True(t, ok)
	assert.Equal(t, "1", title.MetaOr("level", ""))
	section, ok := findEntity(out.Entities, "Section", types.EntityHeading)
	require.True(t, ok)
	assert.Equal(t, "2", section.MetaOr("level", ""))
}
