//go:build cgo

package symbols

import (
	"context"
	"os"

	sitter "github.com/smacker/go-tree-sitter"

	"codescope/internal/errors"
	"codescope/internal/index"
	"codescope/internal/paths"
)

// Variables re-parses the file containing the named function and returns
// the identifiers declared within the declaration (parameters, including a
// Go receiver, and locals), in source order, deduplicated.
// The declaration is re-located in the current file contents so a
// concurrent edit cannot misalign the byte window.
func (e *Extractor) Variables(ctx context.Context, root string, table *Table, name, file string) ([]string, error) {
	sym, ok := table.Get(file, name)
	if !ok {
		return nil, errors.New(errors.NotFound, "symbol %q not found in %q", name, file)
	}
	if !sym.Kind.Callable() {
		return nil, errors.New(errors.BadArgument, "symbol %q in %q is a %s, not a function or method", name, file, sym.Kind)
	}

	lang := index.LanguageFromPath(file)
	cfg := configFor(lang, file)
	if cfg == nil {
		return nil, errors.New(errors.BadArgument, "language of %q does not support variable listing", file)
	}

	source, err := os.ReadFile(paths.Join(root, file))
	if err != nil {
		return nil, errors.Wrap(errors.IO, err, "reading %q", file)
	}

	fresh, err := e.extractSource(ctx, file, source, lang, cfg)
	if err != nil {
		return nil, errors.Wrap(errors.Internal, err, "re-parsing %q", file)
	}
	start, end := sym.StartByte, sym.EndByte
	for _, fs := range fresh {
		if fs.Name == sym.Name && fs.Kind.Callable() {
			start, end = fs.StartByte, fs.EndByte
			break
		}
	}

	query, err := cfg.variablesQuery()
	if err != nil {
		return nil, errors.Wrap(errors.Internal, err, "variables query for %q", file)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(cfg.lang)
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, errors.Wrap(errors.Internal, err, "parsing %q", file)
	}
	defer tree.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, tree.RootNode())

	type decl struct {
		offset int
		name   string
	}
	var decls []decl
	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, source)
		for _, c := range match.Captures {
			if query.CaptureNameForId(c.Index) != "var.name" {
				continue
			}
			offset := int(c.Node.StartByte())
			if offset < start || offset >= end {
				continue
			}
			decls = append(decls, decl{offset: offset, name: c.Node.Content(source)})
		}
	}

	// Captures arrive in query-pattern order, not document order.
	for i := 1; i < len(decls); i++ {
		for j := i; j > 0 && decls[j].offset < decls[j-1].offset; j-- {
			decls[j], decls[j-1] = decls[j-1], decls[j]
		}
	}

	seen := make(map[string]struct{}, len(decls))
	var names []string
	for _, d := range decls {
		if _, dup := seen[d.name]; dup {
			continue
		}
		seen[d.name] = struct{}{}
		names = append(names, d.name)
	}
	return names, nil
}
