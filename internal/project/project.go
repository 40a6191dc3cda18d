// Package project owns the unit of indexing: one repository root with its
// file tree, symbol table, and watcher, plus the registry that creates,
// resolves, and evicts projects under capacity pressure.
package project

import (
	"context"
	"os"
	"sync"
	"time"

	"codescope/internal/index"
	"codescope/internal/logging"
	"codescope/internal/ops"
	"codescope/internal/paths"
	"codescope/internal/symbols"
	"codescope/internal/watcher"
)

// Project is one resident index over a repository root. The root path is
// canonical (symlinks resolved); lastActive drives LRU eviction.
type Project struct {
	Root  string
	Tree  *index.FileTree
	Table *symbols.Table

	walker      *index.Walker
	extractor   *symbols.Extractor
	watch       *watcher.Watcher
	logger      *logging.Logger
	maxFileSize int64

	mu         sync.Mutex
	lastActive time.Time
}

func newProject(root string, extractor *symbols.Extractor, maxFileSize int64, logger *logging.Logger) *Project {
	return &Project{
		Root:        root,
		Tree:        index.NewFileTree(),
		Table:       symbols.NewTable(),
		walker:      index.NewWalker(root, logger),
		extractor:   extractor,
		logger:      logger.With(map[string]interface{}{"project": root}),
		maxFileSize: maxFileSize,
		lastActive:  time.Now(),
	}
}

// Touch refreshes the LRU timestamp. Called on every session-scoped access.
func (p *Project) Touch() {
	p.mu.Lock()
	p.lastActive = time.Now()
	p.mu.Unlock()
}

// LastActive returns the LRU timestamp.
func (p *Project) LastActive() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastActive
}

// Extractor exposes the shared extractor for ops that need re-parsing
// (variables, scope classification).
func (p *Project) Extractor() *symbols.Extractor {
	return p.extractor
}

// MaxFileSize is the per-file byte cap this project was indexed with.
func (p *Project) MaxFileSize() int64 {
	return p.maxFileSize
}

// HandleEvents applies one debounced watcher batch. Batches arrive
// sequentially, and the symbol table's per-file guard serialises re-indexes
// of the same file, so concurrent flushes cannot interleave on one path.
func (p *Project) HandleEvents(events []watcher.Event) {
	for _, event := range events {
		switch event.Type {
		case watcher.EventRescan:
			p.rescan()
		case watcher.EventChange:
			p.reindexPath(event.Path)
		case watcher.EventRemove:
			p.removePath(event.Path)
		}
	}
}

func (p *Project) removePath(rel string) {
	if _, ok := p.Tree.Remove(rel); ok {
		p.Table.RemoveFile(rel)
		p.logger.Debug("removed from index", map[string]interface{}{"file": rel})
	}
}

// reindexPath re-stats one path and brings both indices current: the entry
// is refreshed (keeping its annotations), and the file's symbols are
// atomically replaced.
func (p *Project) reindexPath(rel string) {
	if !p.walker.Included(rel) {
		p.removePath(rel)
		return
	}

	info, err := os.Lstat(paths.Join(p.Root, rel))
	if err != nil || !info.Mode().IsRegular() {
		p.removePath(rel)
		return
	}

	entry := index.NewFileEntry(rel, info.Size(), info.ModTime())
	if old, ok := p.Tree.Get(rel); ok {
		entry.Definition = old.Definition
		entry.Marks = old.Marks
	}
	p.Tree.Insert(entry)

	if entry.Size > p.maxFileSize || !entry.Language.Parseable() {
		p.Table.RemoveFile(rel)
		return
	}

	syms, err := p.extractor.ExtractFile(context.Background(), p.Root, rel)
	if err != nil {
		p.logger.Debug("re-extraction failed", map[string]interface{}{
			"file": rel, "error": err.Error(),
		})
		return
	}
	p.Table.ReplaceFile(rel, syms)
	p.Tree.Update(rel, func(e *index.FileEntry) { e.SymbolsExtracted = true })
	p.logger.Debug("re-extracted symbols", map[string]interface{}{
		"file": rel, "symbols": len(syms),
	})
}

// rescan is the back-pressure path: the watcher buffer overflowed, so the
// whole tree is re-walked and diffed instead of trusting per-path events.
func (p *Project) rescan() {
	p.logger.Info("full rescan", map[string]interface{}{"root": p.Root})

	fresh := index.NewFileTree()
	if _, err := p.walker.Scan(fresh); err != nil {
		p.logger.Warn("rescan failed", map[string]interface{}{"error": err.Error()})
		return
	}

	freshPaths := make(map[string]struct{})
	for _, path := range fresh.Paths() {
		freshPaths[path] = struct{}{}
	}
	for _, path := range p.Tree.Paths() {
		if _, ok := freshPaths[path]; !ok {
			p.removePath(path)
		}
	}
	for _, entry := range fresh.Entries() {
		old, existed := p.Tree.Get(entry.RelPath)
		if existed && old.Size == entry.Size && old.Modified.Equal(entry.Modified) {
			continue
		}
		p.reindexPath(entry.RelPath)
	}
}

// SaveSidecars persists the annotation file and the compressed index cache
// under the project's workspace directory.
func (p *Project) SaveSidecars() {
	if err := ops.SaveAnnotations(p.Root, p.Tree, p.Table, p.logger); err != nil {
		p.logger.Warn("saving annotations failed", map[string]interface{}{"error": err.Error()})
	}
	if err := saveIndexCache(p.Root, p.Tree, p.Table, p.logger); err != nil {
		p.logger.Warn("saving index cache failed", map[string]interface{}{"error": err.Error()})
	}
}

// Close stops the watcher. The indices become garbage once the registry
// drops its reference.
func (p *Project) Close() {
	if p.watch != nil {
		p.watch.Close()
		p.watch = nil
	}
}
