package ops

import (
	"codescope/internal/errors"
	"codescope/internal/index"
)

// StructureResult is the rendered view of a project's file tree.
type StructureResult struct {
	Tree        string                `json:"tree"`
	FileCount   int                   `json:"fileCount"`
	Languages   []index.LanguageCount `json:"languages"`
	Definitions map[string]string     `json:"definitions,omitempty"`
}

// Structure renders the ASCII tree with per-language counts and the
// agent-set file definitions. depth 0 means unlimited.
func Structure(tree *index.FileTree, depth int) (*StructureResult, error) {
	if depth < 0 {
		return nil, errors.New(errors.BadArgument, "depth must not be negative, got %d", depth)
	}

	definitions := make(map[string]string)
	for _, entry := range tree.Entries() {
		if entry.Definition != "" {
			definitions[entry.RelPath] = entry.Definition
		}
	}
	if len(definitions) == 0 {
		definitions = nil
	}

	return &StructureResult{
		Tree:        tree.RenderTree(depth),
		FileCount:   tree.Len(),
		Languages:   tree.LanguageBreakdown(),
		Definitions: definitions,
	}, nil
}

func setFileDefinition(tree *index.FileTree, file, definition string, overwrite bool) error {
	var opErr error
	ok := tree.Update(file, func(e *index.FileEntry) {
		if e.Definition != "" && !overwrite {
			opErr = errors.New(errors.AlreadyDefined, "file %q already has a definition; use redefine", file)
			return
		}
		e.Definition = definition
	})
	if !ok {
		return errors.New(errors.NotFound, "file %q not found in index", file)
	}
	return opErr
}

// DefineFile attaches a definition to a file; a present definition is an
// ALREADY_DEFINED error.
func DefineFile(tree *index.FileTree, file, definition string) error {
	return setFileDefinition(tree, file, definition, false)
}

// RedefineFile unconditionally overwrites a file's definition.
func RedefineFile(tree *index.FileTree, file, definition string) error {
	return setFileDefinition(tree, file, definition, true)
}

// MarkFile adds a categorical mark to a file. Adding a mark twice is a
// no-op, not an error.
func MarkFile(tree *index.FileTree, file, markName string) error {
	mark, ok := index.ParseFileMark(markName)
	if !ok {
		return errors.New(errors.BadArgument,
			"unknown mark %q; valid: documentation, ignore, test, config, generated, custom", markName)
	}
	if !tree.Update(file, func(e *index.FileEntry) { e.AddMark(mark) }) {
		return errors.New(errors.NotFound, "file %q not found in index", file)
	}
	return nil
}
