//go:build cgo

package symbols

import (
	"context"
	"embed"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"golang.org/x/sync/errgroup"

	"codescope/internal/index"
	"codescope/internal/logging"
	"codescope/internal/paths"
)

//go:embed queries
var queryFS embed.FS

// languageConfig binds a tree-sitter grammar to its query files. Queries are
// compiled lazily and shared; parsers are created per call (a sitter.Parser
// is not safe for concurrent use).
type languageConfig struct {
	name string
	lang *sitter.Language

	symbolsOnce sync.Once
	symbolsQ    *sitter.Query
	symbolsErr  error

	variablesOnce sync.Once
	variablesQ    *sitter.Query
	variablesErr  error

	scopeOnce sync.Once
	scopeQ    *sitter.Query
	scopeErr  error
}

func (c *languageConfig) compile(file string) (*sitter.Query, error) {
	data, err := queryFS.ReadFile("queries/" + file)
	if err != nil {
		return nil, fmt.Errorf("reading query %s: %w", file, err)
	}
	q, err := sitter.NewQuery(data, c.lang)
	if err != nil {
		return nil, fmt.Errorf("compiling query %s: %w", file, err)
	}
	return q, nil
}

func (c *languageConfig) symbolsQuery() (*sitter.Query, error) {
	c.symbolsOnce.Do(func() {
		c.symbolsQ, c.symbolsErr = c.compile(c.name + ".scm")
	})
	return c.symbolsQ, c.symbolsErr
}

func (c *languageConfig) variablesQuery() (*sitter.Query, error) {
	c.variablesOnce.Do(func() {
		c.variablesQ, c.variablesErr = c.compile(c.name + "_variables.scm")
	})
	return c.variablesQ, c.variablesErr
}

func (c *languageConfig) scopeQuery() (*sitter.Query, error) {
	c.scopeOnce.Do(func() {
		c.scopeQ, c.scopeErr = c.compile(c.name + "_scope.scm")
	})
	return c.scopeQ, c.scopeErr
}

var (
	goConfig   = &languageConfig{name: "go", lang: golang.GetLanguage()}
	rustConfig = &languageConfig{name: "rust", lang: rust.GetLanguage()}
	pyConfig   = &languageConfig{name: "python", lang: python.GetLanguage()}
	jsConfig   = &languageConfig{name: "javascript", lang: javascript.GetLanguage()}
	tsConfig   = &languageConfig{name: "typescript", lang: typescript.GetLanguage()}
	// .tsx needs the tsx grammar; it shares the typescript query files.
	tsxConfig = &languageConfig{name: "typescript", lang: tsx.GetLanguage()}
)

// configFor picks the grammar for a file. relPath disambiguates .tsx, which
// parses with the tsx grammar.
func configFor(lang index.Language, relPath string) *languageConfig {
	switch lang {
	case index.LangGo:
		return goConfig
	case index.LangRust:
		return rustConfig
	case index.LangPython:
		return pyConfig
	case index.LangJavaScript:
		return jsConfig
	case index.LangTypeScript:
		if strings.HasSuffix(strings.ToLower(relPath), ".tsx") {
			return tsxConfig
		}
		return tsConfig
	}
	return nil
}

var captureKinds = map[string]Kind{
	"function":  KindFunction,
	"method":    KindMethod,
	"class":     KindClass,
	"struct":    KindStruct,
	"enum":      KindEnum,
	"trait":     KindTrait,
	"interface": KindInterface,
	"const":     KindConstant,
	"static":    KindConstant,
	"var":       KindVariable,
	"type":      KindType,
	"mod":       KindModule,
}

// kindPriority resolves two captures landing on the same declaration node:
// a function_item inside an impl block is both @function.def and
// @method.def, and a struct type_declaration also matches the generic type
// pattern. The more specific kind wins.
var kindPriority = map[Kind]int{
	KindMethod:   3,
	KindFunction: 1,
	KindType:     1,
}

func priority(k Kind) int {
	if p, ok := kindPriority[k]; ok {
		return p
	}
	return 2
}

// Available reports whether tree-sitter extraction was compiled in.
func Available() bool { return true }

// Extractor extracts symbols from source files using tree-sitter.
type Extractor struct {
	logger      *logging.Logger
	maxFileSize int64
	sigBudget   int
}

// NewExtractor creates an extractor. Files larger than maxFileSize yield no
// symbols; signatures are truncated at sigBudget bytes.
func NewExtractor(logger *logging.Logger, maxFileSize int64, sigBudget int) *Extractor {
	return &Extractor{logger: logger, maxFileSize: maxFileSize, sigBudget: sigBudget}
}

// ExtractFile reads root/relPath and extracts its symbols. Unsupported
// languages, oversize files, and unparsable files all yield a nil slice
// without an error; only I/O and query failures are returned.
func (e *Extractor) ExtractFile(ctx context.Context, root, relPath string) ([]Symbol, error) {
	lang := index.LanguageFromPath(relPath)
	cfg := configFor(lang, relPath)
	if cfg == nil {
		return nil, nil
	}

	source, err := os.ReadFile(paths.Join(root, relPath))
	if err != nil {
		return nil, err
	}
	if int64(len(source)) > e.maxFileSize {
		return nil, nil
	}

	return e.extractSource(ctx, relPath, source, lang, cfg)
}

func (e *Extractor) extractSource(ctx context.Context, relPath string, source []byte, lang index.Language, cfg *languageConfig) ([]Symbol, error) {
	query, err := cfg.symbolsQuery()
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	parser.SetLanguage(cfg.lang)
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		e.logger.Warn("parse failed", map[string]interface{}{
			"file": relPath, "error": err.Error(),
		})
		return nil, nil
	}
	defer tree.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, tree.RootNode())

	type slot struct {
		idx  int
		kind Kind
	}
	seen := make(map[[2]uint32]slot) // declaration node identity -> emitted symbol
	var syms []Symbol

	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, source)

		var name string
		var kind Kind
		var defNode *sitter.Node
		var parent string

		for _, c := range match.Captures {
			capName := query.CaptureNameForId(c.Index)
			if capName == "impl.type" {
				parent = c.Node.Content(source)
				continue
			}
			if prefix, okSuffix := strings.CutSuffix(capName, ".name"); okSuffix {
				if k, known := captureKinds[prefix]; known {
					name = c.Node.Content(source)
					kind = k
				}
				continue
			}
			if strings.HasSuffix(capName, ".def") {
				defNode = c.Node
			}
		}

		if name == "" || kind == "" || defNode == nil {
			continue
		}

		if kind == KindMethod && parent == "" {
			parent = methodParent(defNode, source, lang)
		}
		if kind == KindFunction {
			if cls := enclosingClass(defNode, source, lang); cls != "" {
				kind = KindMethod
				parent = cls
			}
		}

		key := [2]uint32{defNode.StartByte(), defNode.EndByte()}
		if prev, dup := seen[key]; dup {
			if priority(kind) <= priority(prev.kind) {
				continue
			}
			syms[prev.idx] = e.buildSymbol(name, kind, relPath, lang, parent, defNode, source)
			seen[key] = slot{idx: prev.idx, kind: kind}
			continue
		}

		syms = append(syms, e.buildSymbol(name, kind, relPath, lang, parent, defNode, source))
		seen[key] = slot{idx: len(syms) - 1, kind: kind}
	}

	return qualifyCollisions(syms), nil
}

func (e *Extractor) buildSymbol(name string, kind Kind, relPath string, lang index.Language, parent string, node *sitter.Node, source []byte) Symbol {
	return Symbol{
		Name:      name,
		Kind:      kind,
		File:      relPath,
		StartLine: int(node.StartPoint().Row),
		EndLine:   int(node.EndPoint().Row) + 1,
		StartByte: int(node.StartByte()),
		EndByte:   int(node.EndByte()),
		Language:  lang,
		Signature: firstNonBlankLine(node.Content(source), e.sigBudget),
		Parent:    parent,
	}
}

// qualifyCollisions disambiguates same-name declarations within one file by
// prefixing the parent identifier. The same keys are then seen by listing,
// implementation lookup, and annotation operations alike.
func qualifyCollisions(syms []Symbol) []Symbol {
	counts := make(map[string]int, len(syms))
	for _, s := range syms {
		counts[s.Name]++
	}
	for i := range syms {
		if counts[syms[i].Name] > 1 && syms[i].Parent != "" {
			syms[i].Name = syms[i].Parent + "." + syms[i].Name
		}
	}
	return syms
}

func firstNonBlankLine(text string, budget int) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(trimmed) == "" {
			continue
		}
		if budget > 0 && len(trimmed) > budget {
			return trimmed[:budget]
		}
		return trimmed
	}
	return ""
}

// functionBarriers are node types that end an ancestor climb: a declaration
// nested inside another function is not a method of an outer class.
var functionBarriers = map[string]struct{}{
	"function_definition":  {},
	"function_declaration": {},
	"function_item":        {},
	"method_definition":    {},
	"arrow_function":       {},
}

// enclosingClass climbs from a function declaration to the class that
// contains it, if any. Used for languages whose query captures functions and
// classes independently (Python).
func enclosingClass(node *sitter.Node, source []byte, lang index.Language) string {
	if lang != index.LangPython {
		return ""
	}
	for p := node.Parent(); p != nil; p = p.Parent() {
		if _, barrier := functionBarriers[p.Type()]; barrier {
			return ""
		}
		if p.Type() == "class_definition" {
			if nameNode := p.ChildByFieldName("name"); nameNode != nil {
				return nameNode.Content(source)
			}
			return ""
		}
	}
	return ""
}

// methodParent resolves a method's container: the Go receiver type, the
// enclosing TS/JS class, or the impl type when the query did not supply it.
func methodParent(node *sitter.Node, source []byte, lang index.Language) string {
	switch lang {
	case index.LangGo:
		return goReceiverType(node, source)
	case index.LangTypeScript, index.LangJavaScript:
		for p := node.Parent(); p != nil; p = p.Parent() {
			if p.Type() == "class_declaration" {
				if nameNode := p.ChildByFieldName("name"); nameNode != nil {
					return nameNode.Content(source)
				}
				return ""
			}
		}
	case index.LangRust:
		for p := node.Parent(); p != nil; p = p.Parent() {
			if p.Type() == "impl_item" {
				for i := 0; i < int(p.ChildCount()); i++ {
					if c := p.Child(i); c != nil && c.Type() == "type_identifier" {
						return c.Content(source)
					}
				}
				return ""
			}
		}
	}
	return ""
}

// goReceiverType extracts the receiver type name from a method_declaration,
// unwrapping a pointer receiver.
func goReceiverType(node *sitter.Node, source []byte) string {
	recv := node.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	for i := 0; i < int(recv.ChildCount()); i++ {
		param := recv.Child(i)
		if param == nil || param.Type() != "parameter_declaration" {
			continue
		}
		for j := 0; j < int(param.ChildCount()); j++ {
			child := param.Child(j)
			if child == nil {
				continue
			}
			switch child.Type() {
			case "type_identifier":
				return child.Content(source)
			case "pointer_type", "generic_type":
				for k := 0; k < int(child.ChildCount()); k++ {
					if inner := child.Child(k); inner != nil && inner.Type() == "type_identifier" {
						return inner.Content(source)
					}
				}
			}
		}
	}
	return ""
}

// ExtractAll extracts every parseable file in the tree with bounded
// parallelism, merging results per file as each completes so partial results
// are queryable before the bulk job finishes. Per-file failures are logged
// and skipped; only cancellation aborts the sweep.
func (e *Extractor) ExtractAll(ctx context.Context, root string, tree *index.FileTree, table *Table) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	var total atomic.Int64
	for _, entry := range tree.Entries() {
		if !entry.Language.Parseable() {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		relPath := entry.RelPath
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			syms, err := e.ExtractFile(ctx, root, relPath)
			if err != nil {
				e.logger.Debug("symbol extraction failed", map[string]interface{}{
					"file": relPath, "error": err.Error(),
				})
				return nil
			}
			table.ReplaceFile(relPath, syms)
			tree.Update(relPath, func(fe *index.FileEntry) { fe.SymbolsExtracted = true })
			total.Add(int64(len(syms)))
			return nil
		})
	}

	err := g.Wait()
	return int(total.Load()), err
}

// NonCodeRanges returns the merged byte ranges of comment and string nodes
// in source, for callers that must skip matches outside executable code.
// Unsupported languages and parse failures yield nil.
func (e *Extractor) NonCodeRanges(ctx context.Context, relPath string, source []byte) [][2]int {
	lang := index.LanguageFromPath(relPath)
	cfg := configFor(lang, relPath)
	if cfg == nil {
		return nil
	}
	query, err := cfg.scopeQuery()
	if err != nil {
		return nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(cfg.lang)
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil
	}
	defer tree.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, tree.RootNode())

	var ranges [][2]int
	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range match.Captures {
			ranges = append(ranges, [2]int{int(c.Node.StartByte()), int(c.Node.EndByte())})
		}
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i][0] < ranges[j][0] })
	merged := ranges[:0]
	for _, r := range ranges {
		if n := len(merged); n > 0 && r[0] <= merged[n-1][1] {
			if r[1] > merged[n-1][1] {
				merged[n-1][1] = r[1]
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}
