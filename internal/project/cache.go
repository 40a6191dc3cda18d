package project

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"codescope/internal/config"
	"codescope/internal/index"
	"codescope/internal/logging"
	"codescope/internal/symbols"
)

const (
	cacheFile    = "index.json.zst"
	cacheVersion = 1
)

// indexCache is the zstd-compressed snapshot of a project's indices. The
// secondary symbol indices are not stored; they rebuild from the primary on
// load.
type indexCache struct {
	Version int                        `json:"version"`
	Files   map[string]index.FileEntry `json:"files"`
	Symbols []symbols.Symbol           `json:"symbols"`
}

func cachePath(root string) string {
	return filepath.Join(root, config.WorkspaceDirName, cacheFile)
}

// saveIndexCache snapshots the tree and table to the workspace sidecar.
func saveIndexCache(root string, tree *index.FileTree, table *symbols.Table, logger *logging.Logger) error {
	cache := indexCache{
		Version: cacheVersion,
		Files:   make(map[string]index.FileEntry),
		Symbols: table.All(),
	}
	for _, entry := range tree.Entries() {
		cache.Files[entry.RelPath] = entry
	}

	payload, err := json.Marshal(&cache)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return err
	}
	compressed := enc.EncodeAll(payload, nil)
	enc.Close()

	path := cachePath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}

	logger.Debug("saved index cache", map[string]interface{}{
		"files": len(cache.Files), "symbols": len(cache.Symbols),
	})
	return nil
}

// loadIndexCache populates tree and table from the sidecar, diffed against a
// fresh scan: entries whose size and mtime are unchanged keep their cached
// state (annotations included) and symbols; changed and new files are
// returned for re-extraction. Returns ok=false when no usable cache exists,
// in which case the caller falls back to a plain scan.
func loadIndexCache(root string, tree *index.FileTree, table *symbols.Table, walker *index.Walker, logger *logging.Logger) (toExtract []string, ok bool) {
	raw, err := os.ReadFile(cachePath(root))
	if err != nil {
		return nil, false
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, false
	}
	payload, err := dec.DecodeAll(raw, nil)
	dec.Close()
	if err != nil {
		logger.Warn("index cache unreadable, rescanning", map[string]interface{}{"error": err.Error()})
		return nil, false
	}

	var cache indexCache
	if err := json.Unmarshal(payload, &cache); err != nil {
		logger.Warn("index cache corrupt, rescanning", map[string]interface{}{"error": err.Error()})
		return nil, false
	}
	if cache.Version != cacheVersion {
		logger.Info("index cache version mismatch, rescanning", map[string]interface{}{
			"got": cache.Version, "want": cacheVersion,
		})
		return nil, false
	}

	fresh := index.NewFileTree()
	if _, err := walker.Scan(fresh); err != nil {
		return nil, false
	}

	cached, changed, added := 0, 0, 0
	unchanged := make(map[string]struct{})
	for _, entry := range fresh.Entries() {
		old, existed := cache.Files[entry.RelPath]
		if existed && old.Size == entry.Size && old.Modified.Equal(entry.Modified) {
			tree.Insert(old)
			unchanged[entry.RelPath] = struct{}{}
			cached++
			continue
		}
		tree.Insert(entry)
		toExtract = append(toExtract, entry.RelPath)
		if existed {
			changed++
		} else {
			added++
		}
	}

	byFile := make(map[string][]symbols.Symbol)
	for _, sym := range cache.Symbols {
		if _, keep := unchanged[sym.File]; keep {
			byFile[sym.File] = append(byFile[sym.File], sym)
		}
	}
	for file, syms := range byFile {
		table.ReplaceFile(file, syms)
	}

	logger.Info("loaded index cache", map[string]interface{}{
		"cached": cached, "changed": changed, "new": added,
		"toExtract": len(toExtract), "symbols": table.Len(),
	})
	return toExtract, true
}
