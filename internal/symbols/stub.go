//go:build !cgo

package symbols

import (
	"context"

	"codescope/internal/errors"
	"codescope/internal/index"
	"codescope/internal/logging"
)

// Available reports whether tree-sitter extraction was compiled in.
func Available() bool { return false }

// Extractor is the no-cgo stand-in: the file tree and content operations
// keep working, symbol extraction yields nothing.
type Extractor struct {
	logger      *logging.Logger
	maxFileSize int64
	sigBudget   int
}

// NewExtractor creates a stub extractor.
func NewExtractor(logger *logging.Logger, maxFileSize int64, sigBudget int) *Extractor {
	return &Extractor{logger: logger, maxFileSize: maxFileSize, sigBudget: sigBudget}
}

// ExtractFile returns no symbols.
func (e *Extractor) ExtractFile(ctx context.Context, root, relPath string) ([]Symbol, error) {
	return nil, nil
}

// ExtractAll extracts nothing and leaves the tree untouched; it returns zero
// symbols and the context's error, if any.
func (e *Extractor) ExtractAll(ctx context.Context, root string, tree *index.FileTree, table *Table) (int, error) {
	return 0, ctx.Err()
}

// Variables is unavailable without tree-sitter.
func (e *Extractor) Variables(ctx context.Context, root string, table *Table, name, file string) ([]string, error) {
	return nil, errors.New(errors.Internal, "symbol extraction not available in this build")
}

// NonCodeRanges is unavailable without tree-sitter.
func (e *Extractor) NonCodeRanges(ctx context.Context, relPath string, source []byte) [][2]int {
	return nil
}
