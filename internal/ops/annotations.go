package ops

import (
	"encoding/json"
	"os"
	"path/filepath"

	"codescope/internal/config"
	"codescope/internal/errors"
	"codescope/internal/index"
	"codescope/internal/logging"
	"codescope/internal/symbols"
)

const annotationsFile = "annotations.json"

// AnnotationData is the sidecar payload: every agent-set definition and
// mark in a project. It lives under the project's workspace directory and
// survives eviction and restarts; the in-memory indices remain the source
// of truth while the project is resident.
type AnnotationData struct {
	FileDefinitions   map[string]string   `json:"fileDefinitions,omitempty"`
	FileMarks         map[string][]string `json:"fileMarks,omitempty"`
	SymbolDefinitions map[string]string   `json:"symbolDefinitions,omitempty"`
}

func annotationsPath(root string) string {
	return filepath.Join(root, config.WorkspaceDirName, annotationsFile)
}

// SaveAnnotations collects all annotations from the tree and table and
// writes them to the project sidecar.
func SaveAnnotations(root string, tree *index.FileTree, table *symbols.Table, logger *logging.Logger) error {
	data := AnnotationData{
		FileDefinitions:   make(map[string]string),
		FileMarks:         make(map[string][]string),
		SymbolDefinitions: make(map[string]string),
	}

	for _, entry := range tree.Entries() {
		if entry.Definition != "" {
			data.FileDefinitions[entry.RelPath] = entry.Definition
		}
		if len(entry.Marks) > 0 {
			marks := make([]string, len(entry.Marks))
			for i, m := range entry.Marks {
				marks[i] = string(m)
			}
			data.FileMarks[entry.RelPath] = marks
		}
	}
	for _, sym := range table.All() {
		if sym.Definition != "" {
			data.SymbolDefinitions[symbols.Key(sym.File, sym.Name)] = sym.Definition
		}
	}

	path := annotationsPath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.IO, err, "creating workspace dir")
	}
	payload, err := json.MarshalIndent(&data, "", "  ")
	if err != nil {
		return errors.Wrap(errors.Internal, err, "marshalling annotations")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(errors.IO, err, "writing annotations")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(errors.IO, err, "replacing annotations")
	}

	logger.Debug("saved annotations", map[string]interface{}{
		"fileDefs":   len(data.FileDefinitions),
		"fileMarks":  len(data.FileMarks),
		"symbolDefs": len(data.SymbolDefinitions),
	})
	return nil
}

// LoadAnnotations reads the sidecar (if present) and applies it to the tree
// and table. Annotations for files or symbols no longer in the index are
// dropped with a debug log; a missing sidecar is not an error.
func LoadAnnotations(root string, tree *index.FileTree, table *symbols.Table, logger *logging.Logger) error {
	payload, err := os.ReadFile(annotationsPath(root))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(errors.IO, err, "reading annotations")
	}

	var data AnnotationData
	if err := json.Unmarshal(payload, &data); err != nil {
		return errors.Wrap(errors.Internal, err, "parsing annotations")
	}

	for path, def := range data.FileDefinitions {
		if !tree.Update(path, func(e *index.FileEntry) { e.Definition = def }) {
			logger.Debug("annotation for missing file", map[string]interface{}{"file": path})
		}
	}
	for path, marks := range data.FileMarks {
		ok := tree.Update(path, func(e *index.FileEntry) {
			for _, raw := range marks {
				if mark, valid := index.ParseFileMark(raw); valid {
					e.AddMark(mark)
				} else {
					logger.Warn("unknown mark in sidecar", map[string]interface{}{
						"file": path, "mark": raw,
					})
				}
			}
		})
		if !ok {
			logger.Debug("marks for missing file", map[string]interface{}{"file": path})
		}
	}
	for key, def := range data.SymbolDefinitions {
		file, name, ok := splitKey(key)
		if !ok {
			continue
		}
		if err := table.SetDefinition(file, name, def, true); err != nil {
			logger.Debug("annotation for missing symbol", map[string]interface{}{"key": key})
		}
	}

	logger.Debug("loaded annotations", map[string]interface{}{
		"fileDefs":   len(data.FileDefinitions),
		"fileMarks":  len(data.FileMarks),
		"symbolDefs": len(data.SymbolDefinitions),
	})
	return nil
}

func splitKey(key string) (file, name string, ok bool) {
	for i := len(key) - 2; i > 0; i-- {
		if key[i] == ':' && key[i+1] == ':' {
			return key[:i], key[i+2:], true
		}
	}
	return "", "", false
}
