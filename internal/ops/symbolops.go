package ops

import (
	"context"
	"os"
	"regexp"
	"strings"

	"codescope/internal/errors"
	"codescope/internal/index"
	"codescope/internal/paths"
	"codescope/internal/symbols"
)

// ScopeClassifier yields byte ranges of comments and string literals so
// caller resolution can skip matches outside executable code. A nil slice
// means "no classification available"; matches are then taken as-is.
type ScopeClassifier interface {
	NonCodeRanges(ctx context.Context, relPath string, source []byte) [][2]int
}

// Implementation returns the source text for a symbol's line range, read
// fresh from disk so a concurrent edit yields the current slice.
type ImplementationResult struct {
	Symbol  symbols.Symbol `json:"symbol"`
	Content string         `json:"content"`
}

// Implementation fails with NOT_FOUND when (file, name) is absent.
func Implementation(root string, tree *index.FileTree, table *symbols.Table, name, file string) (*ImplementationResult, error) {
	sym, ok := table.Get(file, name)
	if !ok {
		return nil, errors.New(errors.NotFound, "symbol %q not found in %q", name, file)
	}
	content, err := RawLines(root, tree, file, sym.StartLine, sym.EndLine)
	if err != nil {
		return nil, err
	}
	return &ImplementationResult{Symbol: sym, Content: content}, nil
}

// CallerInfo is one name-matched occurrence of a symbol.
type CallerInfo struct {
	File string `json:"file"`
	Line int    `json:"line"` // 1-indexed
	Text string `json:"text"`
}

// Callers locates occurrences of the symbol's identifier across all
// parseable files, excluding the declaration's own line range and, when the
// scope classifier is available, matches inside comments and strings. This
// is name-matched textual resolution, not call-graph analysis. Results
// order by (file, line) and honour limit.
func Callers(ctx context.Context, root string, tree *index.FileTree, table *symbols.Table, scope ScopeClassifier, name, file string, limit int, maxFileSize int64) ([]CallerInfo, error) {
	sym, ok := table.Get(file, name)
	if !ok {
		return nil, errors.New(errors.NotFound, "symbol %q not found in %q", name, file)
	}

	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(sym.Identifier()) + `\b`)
	if err != nil {
		return nil, errors.Wrap(errors.Internal, err, "identifier pattern")
	}

	callers := []CallerInfo{}
	for _, entry := range tree.Entries() {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		if !entry.Language.Parseable() || entry.Size > maxFileSize {
			continue
		}

		data, err := os.ReadFile(paths.Join(root, entry.RelPath))
		if err != nil {
			continue
		}
		var excluded [][2]int
		if scope != nil {
			excluded = scope.NonCodeRanges(ctx, entry.RelPath, data)
		}

		offset := 0
		for i, line := range splitLines(data) {
			lineStart := offset
			offset += len(line) + 1

			loc := re.FindStringIndex(line)
			if loc == nil {
				continue
			}
			// The declaration itself is not a caller.
			if entry.RelPath == sym.File && i >= sym.StartLine && i < sym.EndLine {
				continue
			}
			if len(excluded) > 0 && symbols.InRanges(lineStart+loc[0], excluded) {
				continue
			}

			callers = append(callers, CallerInfo{
				File: entry.RelPath,
				Line: i + 1,
				Text: strings.TrimSpace(line),
			})
			if limit > 0 && len(callers) >= limit {
				return callers, nil
			}
		}
	}
	return callers, nil
}

// TestInfo identifies one test function that references a symbol.
type TestInfo struct {
	Name      string `json:"name"`
	File      string `json:"file"`
	Line      int    `json:"line"` // 1-indexed declaration line
	Signature string `json:"signature"`
}

// isTestFile applies the per-language filename heuristics plus the generic
// tests-directory convention.
func isTestFile(relPath string, lang index.Language) bool {
	if strings.HasPrefix(relPath, "tests/") || strings.Contains(relPath, "/tests/") {
		return true
	}
	base := relPath
	if i := strings.LastIndexByte(relPath, '/'); i >= 0 {
		base = relPath[i+1:]
	}
	switch lang {
	case index.LangGo:
		return strings.HasSuffix(base, "_test.go")
	case index.LangPython:
		return strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py")
	case index.LangTypeScript, index.LangJavaScript:
		return strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") ||
			strings.Contains(relPath, "__tests__")
	}
	return false
}

// Tests finds test functions whose body references the symbol's identifier.
// The search is restricted to files marked test or matching the test-file
// patterns; each match resolves to its enclosing function via the symbol
// table and is de-duplicated by that function's identity.
func Tests(ctx context.Context, root string, tree *index.FileTree, table *symbols.Table, name, file string, limit int, maxFileSize int64) ([]TestInfo, error) {
	sym, ok := table.Get(file, name)
	if !ok {
		return nil, errors.New(errors.NotFound, "symbol %q not found in %q", name, file)
	}

	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(sym.Identifier()) + `\b`)
	if err != nil {
		return nil, errors.Wrap(errors.Internal, err, "identifier pattern")
	}

	seen := make(map[string]struct{})
	tests := []TestInfo{}
	for _, entry := range tree.Entries() {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		if entry.Size > maxFileSize {
			continue
		}
		if !entry.HasMark(index.MarkTest) && !isTestFile(entry.RelPath, entry.Language) {
			continue
		}

		data, err := os.ReadFile(paths.Join(root, entry.RelPath))
		if err != nil {
			continue
		}

		fileSyms := table.ListByFile(entry.RelPath)
		for i, line := range splitLines(data) {
			if !re.MatchString(line) {
				continue
			}

			// Climb to the enclosing function or method declaration.
			var enclosing *symbols.Symbol
			for j := range fileSyms {
				s := &fileSyms[j]
				if !s.Kind.Callable() || i < s.StartLine || i >= s.EndLine {
					continue
				}
				if enclosing == nil || s.StartLine > enclosing.StartLine {
					enclosing = s
				}
			}
			if enclosing == nil {
				continue
			}
			if enclosing.File == sym.File && enclosing.Name == sym.Name {
				continue
			}

			key := symbols.Key(enclosing.File, enclosing.Name)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			tests = append(tests, TestInfo{
				Name:      enclosing.Name,
				File:      enclosing.File,
				Line:      enclosing.StartLine + 1,
				Signature: enclosing.Signature,
			})
			if limit > 0 && len(tests) >= limit {
				return tests, nil
			}
		}
	}
	return tests, nil
}

// DefineSymbol attaches a definition to (file, name); a present definition
// is an ALREADY_DEFINED error.
func DefineSymbol(table *symbols.Table, name, file, definition string) error {
	return table.SetDefinition(file, name, definition, false)
}

// RedefineSymbol unconditionally overwrites a symbol's definition.
func RedefineSymbol(table *symbols.Table, name, file, definition string) error {
	return table.SetDefinition(file, name, definition, true)
}
