package symbols

import (
	stderrors "errors"
	"sync"
	"testing"

	"codescope/internal/errors"
	"codescope/internal/index"
)

func sym(file, name string, kind Kind, line int) Symbol {
	return Symbol{
		Name:      name,
		Kind:      kind,
		File:      file,
		StartLine: line,
		EndLine:   line + 5,
		Language:  index.LanguageFromPath(file),
		Signature: "sig " + name,
	}
}

// checkConsistent verifies the tri-index invariant: every primary entry is
// reachable from both secondary indices, and every secondary member
// resolves to a live primary entry.
func checkConsistent(t *testing.T, table *Table) {
	t.Helper()
	table.mu.RLock()
	defer table.mu.RUnlock()

	for key, s := range table.symbols {
		if key != Key(s.File, s.Name) {
			t.Errorf("primary key %q does not match symbol (%q, %q)", key, s.File, s.Name)
		}
		if _, ok := table.byName[s.Name][key]; !ok {
			t.Errorf("by-name[%q] missing key %q", s.Name, key)
		}
		if _, ok := table.byFile[s.File][s.Name]; !ok {
			t.Errorf("by-file[%q] missing name %q", s.File, s.Name)
		}
	}
	for name, keys := range table.byName {
		for key := range keys {
			s, ok := table.symbols[key]
			if !ok {
				t.Errorf("by-name[%q] key %q has no primary entry", name, key)
			} else if s.Name != name {
				t.Errorf("by-name[%q] key %q resolves to name %q", name, key, s.Name)
			}
		}
	}
	for file, names := range table.byFile {
		for name := range names {
			if _, ok := table.symbols[Key(file, name)]; !ok {
				t.Errorf("by-file[%q] name %q has no primary entry", file, name)
			}
		}
	}
}

func TestReplaceFileAndRemoveFile(t *testing.T) {
	table := NewTable()
	table.ReplaceFile("a.go", []Symbol{
		sym("a.go", "Foo", KindFunction, 0),
		sym("a.go", "Bar", KindFunction, 10),
	})
	table.ReplaceFile("b.go", []Symbol{sym("b.go", "Foo", KindFunction, 3)})
	checkConsistent(t, table)

	if table.Len() != 3 {
		t.Fatalf("Len = %d, want 3", table.Len())
	}

	// Re-index a.go: Foo renamed to Baz.
	table.ReplaceFile("a.go", []Symbol{sym("a.go", "Baz", KindFunction, 0)})
	checkConsistent(t, table)

	if _, ok := table.Get("a.go", "Foo"); ok {
		t.Error("old symbol survived re-index")
	}
	if _, ok := table.Get("a.go", "Baz"); !ok {
		t.Error("new symbol missing after re-index")
	}
	// b.go's Foo must be untouched.
	if _, ok := table.Get("b.go", "Foo"); !ok {
		t.Error("re-index of a.go disturbed b.go")
	}

	table.RemoveFile("b.go")
	checkConsistent(t, table)
	if table.Len() != 1 {
		t.Errorf("Len = %d after removal, want 1", table.Len())
	}
	if _, ok := table.Get("b.go", "Foo"); ok {
		t.Error("symbol survived RemoveFile")
	}
}

func TestReplaceFilePreservesDefinitions(t *testing.T) {
	table := NewTable()
	table.ReplaceFile("a.go", []Symbol{sym("a.go", "Foo", KindFunction, 0)})
	if err := table.SetDefinition("a.go", "Foo", "does the thing", false); err != nil {
		t.Fatal(err)
	}

	table.ReplaceFile("a.go", []Symbol{
		sym("a.go", "Foo", KindFunction, 2),
		sym("a.go", "New", KindFunction, 20),
	})

	got, _ := table.Get("a.go", "Foo")
	if got.Definition != "does the thing" {
		t.Errorf("definition lost on re-index: %q", got.Definition)
	}
	if got.StartLine != 2 {
		t.Errorf("line range not refreshed: %d", got.StartLine)
	}
}

func TestSetDefinition(t *testing.T) {
	table := NewTable()
	table.ReplaceFile("a.go", []Symbol{sym("a.go", "Foo", KindFunction, 0)})

	if err := table.SetDefinition("a.go", "Foo", "first", false); err != nil {
		t.Fatalf("define: %v", err)
	}
	err := table.SetDefinition("a.go", "Foo", "second", false)
	if errors.CodeOf(err) != errors.AlreadyDefined {
		t.Errorf("second define: code = %v, want ALREADY_DEFINED", errors.CodeOf(err))
	}
	if err := table.SetDefinition("a.go", "Foo", "second", true); err != nil {
		t.Errorf("redefine: %v", err)
	}
	got, _ := table.Get("a.go", "Foo")
	if got.Definition != "second" {
		t.Errorf("definition = %q, want second", got.Definition)
	}

	err = table.SetDefinition("a.go", "Missing", "x", false)
	if errors.CodeOf(err) != errors.NotFound {
		t.Errorf("missing symbol: code = %v, want NOT_FOUND", errors.CodeOf(err))
	}
	var opErr *errors.Error
	if !stderrors.As(err, &opErr) {
		t.Error("error should be an *errors.Error")
	}
}

func TestListOrderingAndFilters(t *testing.T) {
	table := NewTable()
	table.ReplaceFile("b.go", []Symbol{
		sym("b.go", "Zed", KindFunction, 8),
		sym("b.go", "Box", KindStruct, 1),
	})
	table.ReplaceFile("a.go", []Symbol{
		sym("a.go", "Alpha", KindFunction, 5),
		sym("a.go", "Gamma", KindFunction, 1),
	})

	all := table.List("", "", 0)
	wantOrder := []string{"Gamma", "Alpha", "Zed", "Box"} // functions (file, line) then structs
	if len(all) != 4 {
		t.Fatalf("len = %d, want 4", len(all))
	}
	for i, name := range wantOrder {
		if all[i].Name != name {
			t.Errorf("all[%d] = %q, want %q", i, all[i].Name, name)
		}
	}

	funcs := table.List(KindFunction, "", 0)
	if len(funcs) != 3 {
		t.Errorf("kind filter: len = %d, want 3", len(funcs))
	}

	inB := table.List("", "b.go", 0)
	if len(inB) != 2 {
		t.Errorf("file filter: len = %d, want 2", len(inB))
	}

	limited := table.List("", "", 2)
	if len(limited) != 2 {
		t.Errorf("limit: len = %d, want 2", len(limited))
	}
}

func TestSearchBuckets(t *testing.T) {
	table := NewTable()
	table.ReplaceFile("a.go", []Symbol{
		sym("a.go", "parse", KindFunction, 0),
		sym("a.go", "parseFile", KindFunction, 10),
		sym("a.go", "reparse", KindFunction, 20),
		sym("a.go", "unrelated", KindFunction, 30),
	})

	results := table.Search("parse", 0)
	if len(results) != 3 {
		t.Fatalf("len = %d, want 3", len(results))
	}
	if results[0].Name != "parse" {
		t.Errorf("exact match not first: %q", results[0].Name)
	}
	if results[1].Name != "parseFile" {
		t.Errorf("prefix match not second: %q", results[1].Name)
	}
	if results[2].Name != "reparse" {
		t.Errorf("substring match not third: %q", results[2].Name)
	}
}

func TestSearchCaseSensitive(t *testing.T) {
	table := NewTable()
	table.ReplaceFile("a.go", []Symbol{sym("a.go", "Parse", KindFunction, 0)})

	if got := table.Search("parse", 0); len(got) != 0 {
		t.Errorf("lowercase query matched %d symbols, search must be case-sensitive", len(got))
	}
	if got := table.Search("Parse", 0); len(got) != 1 {
		t.Errorf("exact-case query matched %d symbols, want 1", len(got))
	}
}

func TestSearchLimit(t *testing.T) {
	table := NewTable()
	var syms []Symbol
	for i := 0; i < 10; i++ {
		syms = append(syms, sym("a.go", "handler"+string(rune('A'+i)), KindFunction, i))
	}
	table.ReplaceFile("a.go", syms)

	if got := table.Search("handler", 4); len(got) != 4 {
		t.Errorf("limit: len = %d, want 4", len(got))
	}
}

// TestConcurrentReindexAndRead drives spec invariant 7: across concurrent
// reads and re-indexes of one file, a reader never observes a symbol twice
// nor one under a removed name in an inconsistent pairing.
func TestConcurrentReindexAndRead(t *testing.T) {
	table := NewTable()
	table.ReplaceFile("f.go", []Symbol{sym("f.go", "old", KindFunction, 0)})

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			table.ReplaceFile("f.go", []Symbol{sym("f.go", "old", KindFunction, i)})
			table.ReplaceFile("f.go", []Symbol{sym("f.go", "new", KindFunction, i)})
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				listed := table.ListByFile("f.go")
				if len(listed) > 1 {
					t.Errorf("reader observed %d symbols for single-symbol file", len(listed))
					return
				}
				for _, s := range listed {
					if _, ok := table.Get("f.go", s.Name); !ok {
						// The file was re-indexed between the two reads;
						// each individual read must still be internally
						// consistent, which ListByFile guarantees.
						continue
					}
				}
			}
		}()
	}

	wg.Wait()
	checkConsistent(t, table)
}
