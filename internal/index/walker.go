package index

import (
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"codescope/internal/config"
	"codescope/internal/logging"
)

// ignoreLayer is one compiled gitignore file plus the tree position its
// patterns are relative to ("" for root-level layers).
type ignoreLayer struct {
	base string
	gi   *ignore.GitIgnore
}

func (l ignoreLayer) relTo(relPath string) (string, bool) {
	if l.base == "" {
		return relPath, true
	}
	if !strings.HasPrefix(relPath, l.base+"/") {
		return "", false
	}
	return relPath[len(l.base)+1:], true
}

// matchHow classifies a path against a layer stack: ignored, explicitly
// re-included by a negation, or unmatched. Later layers win, matching git's
// discipline. Directories are additionally tested with a trailing slash.
func matchHow(layers []ignoreLayer, relPath string, isDir bool) (ignored, reincluded bool) {
	for _, layer := range layers {
		scoped, ok := layer.relTo(relPath)
		if !ok {
			continue
		}
		matched, pattern := layer.gi.MatchesPathHow(scoped)
		if !matched && isDir {
			matched, pattern = layer.gi.MatchesPathHow(scoped + "/")
		}
		if matched {
			ignored, reincluded = true, false
		} else if pattern != nil && pattern.Negate {
			ignored, reincluded = false, true
		}
	}
	return ignored, reincluded
}

func compileIgnoreFile(path, base string) (ignoreLayer, bool) {
	if _, err := os.Stat(path); err != nil {
		return ignoreLayer{}, false
	}
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil || gi == nil {
		return ignoreLayer{}, false
	}
	return ignoreLayer{base: base, gi: gi}, true
}

// rootLayers loads the project-independent gitignore sources: the global
// user gitignore and the repository's .git/info/exclude. Per-directory
// .gitignore files are layered on during the walk.
func rootLayers(root string) []ignoreLayer {
	var layers []ignoreLayer
	if home, err := os.UserHomeDir(); err == nil {
		if layer, ok := compileIgnoreFile(filepath.Join(home, ".config", "git", "ignore"), ""); ok {
			layers = append(layers, layer)
		}
	}
	if layer, ok := compileIgnoreFile(filepath.Join(root, ".git", "info", "exclude"), ""); ok {
		layers = append(layers, layer)
	}
	return layers
}

// Walker scans a project root into a FileTree, honouring the layered
// gitignore discipline plus the built-in ignore rules.
type Walker struct {
	root   string
	logger *logging.Logger
}

// NewWalker creates a walker rooted at an absolute, canonical path.
func NewWalker(root string, logger *logging.Logger) *Walker {
	return &Walker{root: root, logger: logger}
}

// Scan traverses the tree and inserts an entry for every included regular
// file. Oversize files are still recorded (with their size); the parser and
// grep gate on size separately. Returns the number of files indexed.
func (w *Walker) Scan(tree *FileTree) (int, error) {
	if _, err := os.Stat(w.root); err != nil {
		return 0, err
	}
	count := w.scanDir(w.root, "", rootLayers(w.root), tree)
	w.logger.Info("scanned project", map[string]interface{}{
		"root":  w.root,
		"files": count,
	})
	return count, nil
}

func (w *Walker) scanDir(absDir, relDir string, layers []ignoreLayer, tree *FileTree) int {
	if layer, ok := compileIgnoreFile(filepath.Join(absDir, ".gitignore"), relDir); ok {
		layers = append(layers, layer)
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		w.logger.Debug("unreadable directory skipped", map[string]interface{}{
			"dir": absDir, "error": err.Error(),
		})
		return 0
	}

	count := 0
	for _, entry := range entries {
		name := entry.Name()
		rel := name
		if relDir != "" {
			rel = relDir + "/" + name
		}

		// Symlinks are never followed: loops and escapes outside the
		// root cannot happen.
		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}

		if entry.IsDir() {
			if config.ShouldIgnoreDir(name) {
				continue
			}
			ignored, reincluded := matchHow(layers, rel, true)
			if ignored {
				continue
			}
			if strings.HasPrefix(name, ".") && !reincluded {
				continue
			}
			count += w.scanDir(filepath.Join(absDir, name), rel, layers, tree)
			continue
		}

		if !entry.Type().IsRegular() {
			continue
		}
		if config.ShouldIgnoreExtension(rel) {
			continue
		}
		ignored, reincluded := matchHow(layers, rel, false)
		if ignored {
			continue
		}
		if strings.HasPrefix(name, ".") && !reincluded {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		tree.Insert(NewFileEntry(rel, info.Size(), info.ModTime()))
		count++
	}
	return count
}

// Included re-evaluates a single relative path against the ignore rules,
// loading every ancestor .gitignore. The watcher uses this when rechecking
// a mutated path.
func (w *Walker) Included(relPath string) bool {
	if config.ShouldSkipPath(relPath) || config.ShouldIgnoreExtension(relPath) {
		return false
	}

	layers := rootLayers(w.root)
	parts := strings.Split(relPath, "/")
	dirAbs, dirRel := w.root, ""
	for i := 0; i < len(parts); i++ {
		if layer, ok := compileIgnoreFile(filepath.Join(dirAbs, ".gitignore"), dirRel); ok {
			layers = append(layers, layer)
		}
		isDir := i < len(parts)-1
		prefix := strings.Join(parts[:i+1], "/")
		ignored, reincluded := matchHow(layers, prefix, isDir)
		if ignored {
			return false
		}
		if strings.HasPrefix(parts[i], ".") && !reincluded {
			return false
		}
		if isDir {
			dirAbs = filepath.Join(dirAbs, parts[i])
			dirRel = prefix
		}
	}
	return true
}
