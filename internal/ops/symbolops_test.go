package ops

import (
	"context"
	"strings"
	"testing"

	"codescope/internal/errors"
	"codescope/internal/index"
	"codescope/internal/symbols"
)

// fakeScope marks every occurrence of "// " to end-of-line as non-code, a
// stand-in for the tree-sitter classifier.
type fakeScope struct{}

func (fakeScope) NonCodeRanges(_ context.Context, _ string, source []byte) [][2]int {
	var ranges [][2]int
	text := string(source)
	for i := 0; i+3 <= len(text); i++ {
		if text[i:i+3] == "// " {
			end := strings.IndexByte(text[i:], '\n')
			if end < 0 {
				end = len(text) - i
			}
			ranges = append(ranges, [2]int{i, i + end})
			i += end
		}
	}
	return ranges
}

func declSymbol(file, name string, kind symbols.Kind, start, end int) symbols.Symbol {
	return symbols.Symbol{
		Name:      name,
		Kind:      kind,
		File:      file,
		StartLine: start,
		EndLine:   end,
		Language:  index.LanguageFromPath(file),
		Signature: "func " + name + "()",
	}
}

func TestImplementationMatchesPeek(t *testing.T) {
	root := t.TempDir()
	tree := index.NewFileTree()
	source := "package a\n\nfunc foo() int {\n\tx := 1\n\treturn x\n}\n\nfunc tail() {}\n"
	seedFile(t, root, tree, "a.go", source)

	table := symbols.NewTable()
	table.ReplaceFile("a.go", []symbols.Symbol{declSymbol("a.go", "foo", symbols.KindFunction, 2, 6)})

	impl, err := Implementation(root, tree, table, "foo", "a.go")
	if err != nil {
		t.Fatalf("Implementation: %v", err)
	}
	want := "func foo() int {\n\tx := 1\n\treturn x\n}"
	if impl.Content != want {
		t.Errorf("content = %q, want %q", impl.Content, want)
	}

	// Invariant: implementation equals peek's lines modulo the number prefix.
	peeked, err := Peek(root, tree, "a.go", 2, 6)
	if err != nil {
		t.Fatal(err)
	}
	var stripped []string
	for _, line := range strings.Split(peeked.Content, "\n") {
		_, text, ok := strings.Cut(line, "│ ")
		if !ok {
			t.Fatalf("peek line missing prefix: %q", line)
		}
		stripped = append(stripped, text)
	}
	if got := strings.Join(stripped, "\n"); got != impl.Content {
		t.Errorf("implementation diverges from peek:\n%q\nvs\n%q", impl.Content, got)
	}
}

func TestImplementationNotFound(t *testing.T) {
	_, err := Implementation(t.TempDir(), index.NewFileTree(), symbols.NewTable(), "nope", "a.go")
	if errors.CodeOf(err) != errors.NotFound {
		t.Errorf("code = %v, want NOT_FOUND", errors.CodeOf(err))
	}
}

func TestCallersExcludesDeclarationAndComments(t *testing.T) {
	root := t.TempDir()
	tree := index.NewFileTree()
	seedFile(t, root, tree, "a.go", "package a\n\nfunc foo() {}\n")
	seedFile(t, root, tree, "b.go", "package a\n\n// foo is called below\nfunc bar() {\n\tfoo()\n}\n")
	seedFile(t, root, tree, "notes.md", "foo appears here too\n")

	table := symbols.NewTable()
	table.ReplaceFile("a.go", []symbols.Symbol{declSymbol("a.go", "foo", symbols.KindFunction, 2, 3)})

	callers, err := Callers(context.Background(), root, tree, table, fakeScope{}, "foo", "a.go", 0, 1<<20)
	if err != nil {
		t.Fatalf("Callers: %v", err)
	}

	if len(callers) != 1 {
		t.Fatalf("callers = %+v, want exactly the b.go call site", callers)
	}
	if callers[0].File != "b.go" || callers[0].Line != 5 {
		t.Errorf("caller = %+v, want b.go:5", callers[0])
	}
	if callers[0].Text != "foo()" {
		t.Errorf("text = %q, want trimmed call line", callers[0].Text)
	}
}

func TestCallersWithoutScopeClassifierKeepsRawMatches(t *testing.T) {
	root := t.TempDir()
	tree := index.NewFileTree()
	seedFile(t, root, tree, "a.go", "package a\n\nfunc foo() {}\n")
	seedFile(t, root, tree, "b.go", "package a\n\n// foo in a comment\nfunc bar() { foo() }\n")

	table := symbols.NewTable()
	table.ReplaceFile("a.go", []symbols.Symbol{declSymbol("a.go", "foo", symbols.KindFunction, 2, 3)})

	callers, err := Callers(context.Background(), root, tree, table, nil, "foo", "a.go", 0, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	// Best-effort mode: the comment match is included, the declaration
	// line still is not.
	if len(callers) != 2 {
		t.Errorf("callers = %+v, want 2 raw matches", callers)
	}
	for _, c := range callers {
		if c.File == "a.go" {
			t.Errorf("declaration site reported as caller: %+v", c)
		}
	}
}

func TestCallersWordBoundary(t *testing.T) {
	root := t.TempDir()
	tree := index.NewFileTree()
	seedFile(t, root, tree, "a.go", "package a\n\nfunc foo() {}\n")
	seedFile(t, root, tree, "b.go", "package a\n\nfunc bar() { foodie(); foo() }\n")

	table := symbols.NewTable()
	table.ReplaceFile("a.go", []symbols.Symbol{declSymbol("a.go", "foo", symbols.KindFunction, 2, 3)})

	callers, err := Callers(context.Background(), root, tree, table, nil, "foo", "a.go", 0, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	if len(callers) != 1 {
		t.Errorf("callers = %+v; foodie must not match foo", callers)
	}
}

func TestCallersLimit(t *testing.T) {
	root := t.TempDir()
	tree := index.NewFileTree()
	seedFile(t, root, tree, "a.go", "package a\n\nfunc foo() {}\n")
	seedFile(t, root, tree, "b.go", "package a\n\nfunc b1() { foo() }\nfunc b2() { foo() }\nfunc b3() { foo() }\n")

	table := symbols.NewTable()
	table.ReplaceFile("a.go", []symbols.Symbol{declSymbol("a.go", "foo", symbols.KindFunction, 2, 3)})

	callers, err := Callers(context.Background(), root, tree, table, nil, "foo", "a.go", 2, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	if len(callers) != 2 {
		t.Errorf("limit not honoured: %d callers", len(callers))
	}
}

func TestTestsResolution(t *testing.T) {
	root := t.TempDir()
	tree := index.NewFileTree()
	seedFile(t, root, tree, "calc.go", "package calc\n\nfunc Add(a, b int) int { return a + b }\n")
	seedFile(t, root, tree, "calc_test.go",
		"package calc\n\nfunc TestAdd(t *testing.T) {\n\tif Add(1, 2) != 3 {\n\t\tt.Fail()\n\t}\n\tAdd(0, 0)\n}\n\nfunc TestOther(t *testing.T) {}\n")
	seedFile(t, root, tree, "main.go", "package calc\n\nfunc use() { Add(1, 1) }\n")

	table := symbols.NewTable()
	table.ReplaceFile("calc.go", []symbols.Symbol{declSymbol("calc.go", "Add", symbols.KindFunction, 2, 3)})
	table.ReplaceFile("calc_test.go", []symbols.Symbol{
		declSymbol("calc_test.go", "TestAdd", symbols.KindFunction, 2, 8),
		declSymbol("calc_test.go", "TestOther", symbols.KindFunction, 9, 10),
	})

	tests, err := Tests(context.Background(), root, tree, table, "Add", "calc.go", 0, 1<<20)
	if err != nil {
		t.Fatalf("Tests: %v", err)
	}

	// TestAdd references Add twice but must be reported once; TestOther
	// and the non-test main.go reference must not appear.
	if len(tests) != 1 {
		t.Fatalf("tests = %+v, want exactly TestAdd", tests)
	}
	got := tests[0]
	if got.Name != "TestAdd" || got.File != "calc_test.go" || got.Line != 3 {
		t.Errorf("test = %+v, want TestAdd at calc_test.go:3", got)
	}
}

func TestTestsHonoursFileMark(t *testing.T) {
	root := t.TempDir()
	tree := index.NewFileTree()
	seedFile(t, root, tree, "lib.py", "def target():\n    pass\n")
	seedFile(t, root, tree, "check.py", "def check_target():\n    target()\n")
	tree.Update("check.py", func(e *index.FileEntry) { e.AddMark(index.MarkTest) })

	table := symbols.NewTable()
	table.ReplaceFile("lib.py", []symbols.Symbol{declSymbol("lib.py", "target", symbols.KindFunction, 0, 2)})
	table.ReplaceFile("check.py", []symbols.Symbol{declSymbol("check.py", "check_target", symbols.KindFunction, 0, 2)})

	tests, err := Tests(context.Background(), root, tree, table, "target", "lib.py", 0, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	if len(tests) != 1 || tests[0].Name != "check_target" {
		t.Errorf("tests = %+v, want check_target via the test mark", tests)
	}
}

func TestIsTestFile(t *testing.T) {
	tests := []struct {
		path string
		lang index.Language
		want bool
	}{
		{"pkg/calc_test.go", index.LangGo, true},
		{"pkg/calc.go", index.LangGo, false},
		{"test_calc.py", index.LangPython, true},
		{"calc_test.py", index.LangPython, true},
		{"calc.py", index.LangPython, false},
		{"src/app.test.ts", index.LangTypeScript, true},
		{"src/app.spec.ts", index.LangTypeScript, true},
		{"src/__tests__/app.ts", index.LangTypeScript, true},
		{"src/app.ts", index.LangTypeScript, false},
		{"tests/anything.rs", index.LangRust, true},
		{"src/lib.rs", index.LangRust, false},
	}
	for _, tt := range tests {
		if got := isTestFile(tt.path, tt.lang); got != tt.want {
			t.Errorf("isTestFile(%q, %q) = %v, want %v", tt.path, tt.lang, got, tt.want)
		}
	}
}

func TestDefineSymbolDiscipline(t *testing.T) {
	table := symbols.NewTable()
	table.ReplaceFile("a.go", []symbols.Symbol{declSymbol("a.go", "foo", symbols.KindFunction, 0, 1)})

	if err := DefineSymbol(table, "foo", "a.go", "adds numbers"); err != nil {
		t.Fatalf("define: %v", err)
	}
	if err := DefineSymbol(table, "foo", "a.go", "other"); errors.CodeOf(err) != errors.AlreadyDefined {
		t.Errorf("second define code = %v, want ALREADY_DEFINED", errors.CodeOf(err))
	}
	if err := RedefineSymbol(table, "foo", "a.go", "replacement"); err != nil {
		t.Errorf("redefine: %v", err)
	}
	sym, _ := table.Get("a.go", "foo")
	if sym.Definition != "replacement" {
		t.Errorf("definition = %q", sym.Definition)
	}
}
