package symbols

import (
	"hash/fnv"
	"sort"
	"strings"
	"sync"

	"codescope/internal/errors"
)

const guardStripes = 64

// Table is the tri-index symbol store. Readers take the shared lock and
// always observe a symbol either fully present or fully absent; re-indexing
// one file is atomic from their perspective. Writers to the same file are
// serialised by a striped per-file guard so two re-indexes of one file
// cannot interleave, while re-indexes of different files proceed in
// parallel.
type Table struct {
	mu      sync.RWMutex
	symbols map[string]Symbol              // primary: file::name
	byName  map[string]map[string]struct{} // name -> primary keys
	byFile  map[string]map[string]struct{} // file -> names

	guards [guardStripes]sync.Mutex
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		symbols: make(map[string]Symbol),
		byName:  make(map[string]map[string]struct{}),
		byFile:  make(map[string]map[string]struct{}),
	}
}

func (t *Table) fileGuard(file string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(file))
	return &t.guards[h.Sum32()%guardStripes]
}

// insertLocked assumes t.mu is held for writing.
func (t *Table) insertLocked(sym Symbol) {
	key := Key(sym.File, sym.Name)
	if names, ok := t.byName[sym.Name]; ok {
		names[key] = struct{}{}
	} else {
		t.byName[sym.Name] = map[string]struct{}{key: {}}
	}
	if names, ok := t.byFile[sym.File]; ok {
		names[sym.Name] = struct{}{}
	} else {
		t.byFile[sym.File] = map[string]struct{}{sym.Name: {}}
	}
	t.symbols[key] = sym
}

// removeFileLocked assumes t.mu is held for writing.
func (t *Table) removeFileLocked(file string) {
	names, ok := t.byFile[file]
	if !ok {
		return
	}
	for name := range names {
		key := Key(file, name)
		delete(t.symbols, key)
		if keys, ok := t.byName[name]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(t.byName, name)
			}
		}
	}
	delete(t.byFile, file)
}

// ReplaceFile atomically swaps every symbol keyed under file for the given
// set, preserving agent-set definitions for symbols that survive by
// (file, name) identity.
func (t *Table) ReplaceFile(file string, syms []Symbol) {
	guard := t.fileGuard(file)
	guard.Lock()
	defer guard.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	old := make(map[string]string) // name -> definition
	if names, ok := t.byFile[file]; ok {
		for name := range names {
			if sym, ok := t.symbols[Key(file, name)]; ok && sym.Definition != "" {
				old[name] = sym.Definition
			}
		}
	}

	t.removeFileLocked(file)
	for _, sym := range syms {
		if def, ok := old[sym.Name]; ok && sym.Definition == "" {
			sym.Definition = def
		}
		t.insertLocked(sym)
	}
}

// RemoveFile drops every symbol for a file from all three indices.
func (t *Table) RemoveFile(file string) {
	guard := t.fileGuard(file)
	guard.Lock()
	defer guard.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeFileLocked(file)
}

// Get returns the symbol for (file, name).
func (t *Table) Get(file, name string) (Symbol, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sym, ok := t.symbols[Key(file, name)]
	return sym, ok
}

// SetDefinition attaches a definition to (file, name). When overwrite is
// false, a present definition is an ALREADY_DEFINED error.
func (t *Table) SetDefinition(file, name, definition string, overwrite bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := Key(file, name)
	sym, ok := t.symbols[key]
	if !ok {
		return errors.New(errors.NotFound, "symbol %q not found in %q", name, file)
	}
	if sym.Definition != "" && !overwrite {
		return errors.New(errors.AlreadyDefined, "symbol %q in %q already has a definition; use redefine", name, file)
	}
	sym.Definition = definition
	t.symbols[key] = sym
	return nil
}

// Len returns the number of symbols in the primary index.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.symbols)
}

// All returns a snapshot of every symbol.
func (t *Table) All() []Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Symbol, 0, len(t.symbols))
	for _, sym := range t.symbols {
		out = append(out, sym)
	}
	return out
}

// ListByFile returns a snapshot of the symbols in one file.
func (t *Table) ListByFile(file string) []Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names, ok := t.byFile[file]
	if !ok {
		return nil
	}
	out := make([]Symbol, 0, len(names))
	for name := range names {
		if sym, ok := t.symbols[Key(file, name)]; ok {
			out = append(out, sym)
		}
	}
	return out
}

// List enumerates symbols, optionally filtered by kind and file, ordered by
// (kind, file, start line) and truncated to limit.
func (t *Table) List(kind Kind, file string, limit int) []Symbol {
	var results []Symbol
	if file != "" {
		results = t.ListByFile(file)
	} else {
		results = t.All()
	}
	if kind != "" {
		filtered := results[:0]
		for _, sym := range results {
			if sym.Kind == kind {
				filtered = append(filtered, sym)
			}
		}
		results = filtered
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Kind != results[j].Kind {
			return results[i].Kind < results[j].Kind
		}
		if results[i].File != results[j].File {
			return results[i].File < results[j].File
		}
		return results[i].StartLine < results[j].StartLine
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Search returns symbols whose name contains query, case-sensitive.
// Exact-name matches order first, then prefix matches, then substring
// matches; (file, start line) within each bucket.
func (t *Table) Search(query string, limit int) []Symbol {
	t.mu.RLock()
	var exact, prefix, substr []Symbol
	for name, keys := range t.byName {
		var bucket *[]Symbol
		switch {
		case name == query:
			bucket = &exact
		case strings.HasPrefix(name, query):
			bucket = &prefix
		case strings.Contains(name, query):
			bucket = &substr
		default:
			continue
		}
		for key := range keys {
			if sym, ok := t.symbols[key]; ok {
				*bucket = append(*bucket, sym)
			}
		}
	}
	t.mu.RUnlock()

	order := func(bucket []Symbol) {
		sort.Slice(bucket, func(i, j int) bool {
			if bucket[i].File != bucket[j].File {
				return bucket[i].File < bucket[j].File
			}
			return bucket[i].StartLine < bucket[j].StartLine
		})
	}
	order(exact)
	order(prefix)
	order(substr)

	results := append(append(exact, prefix...), substr...)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
