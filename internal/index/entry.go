// Package index maintains the per-project file tree: a concurrent mapping
// from relative path to file metadata, populated by the walker and kept
// current by the watcher.
package index

import (
	"strings"
	"time"
)

// FileMark is an agent-set category on a file.
type FileMark string

const (
	MarkDocumentation FileMark = "documentation"
	MarkIgnore        FileMark = "ignore"
	MarkTest          FileMark = "test"
	MarkConfig        FileMark = "config"
	MarkGenerated     FileMark = "generated"
	MarkCustom        FileMark = "custom"
)

// ParseFileMark maps a client string to a FileMark, accepting the common
// aliases. Returns false for unknown marks.
func ParseFileMark(s string) (FileMark, bool) {
	switch strings.ToLower(s) {
	case "documentation", "doc", "docs":
		return MarkDocumentation, true
	case "ignore":
		return MarkIgnore, true
	case "test", "tests":
		return MarkTest, true
	case "config", "configuration":
		return MarkConfig, true
	case "generated", "gen":
		return MarkGenerated, true
	case "custom":
		return MarkCustom, true
	}
	return "", false
}

// FileEntry is the indexed metadata for one file. The relative path is the
// canonical key inside its project; it is forward-slash separated on every
// platform.
type FileEntry struct {
	RelPath  string    `json:"relPath"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	Language Language  `json:"language"`
	// Definition is the agent-set human-readable description of the file.
	Definition string `json:"definition,omitempty"`
	// Marks categorize the file (test, generated, ...).
	Marks []FileMark `json:"marks,omitempty"`
	// SymbolsExtracted records whether extraction has completed for this file.
	SymbolsExtracted bool `json:"symbolsExtracted"`
}

// NewFileEntry builds an entry with the language inferred from the path.
func NewFileEntry(relPath string, size int64, modified time.Time) FileEntry {
	return FileEntry{
		RelPath:  relPath,
		Size:     size,
		Modified: modified,
		Language: LanguageFromPath(relPath),
	}
}

// HasMark reports whether the entry carries the given mark.
func (e *FileEntry) HasMark(mark FileMark) bool {
	for _, m := range e.Marks {
		if m == mark {
			return true
		}
	}
	return false
}

// AddMark appends a mark if not already present.
func (e *FileEntry) AddMark(mark FileMark) {
	if !e.HasMark(mark) {
		e.Marks = append(e.Marks, mark)
	}
}
