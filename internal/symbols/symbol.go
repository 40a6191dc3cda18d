// Package symbols provides tree-sitter based symbol extraction and the
// tri-index symbol table: a primary (file, name) mapping plus by-name and
// by-file secondary indices kept exactly consistent with it.
package symbols

import (
	"strings"

	"codescope/internal/index"
)

// Kind is the coarse category of an extracted declaration.
type Kind string

const (
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindClass     Kind = "class"
	KindStruct    Kind = "struct"
	KindEnum      Kind = "enum"
	KindTrait     Kind = "trait"
	KindInterface Kind = "interface"
	KindConstant  Kind = "constant"
	KindVariable  Kind = "variable"
	KindType      Kind = "type"
	KindModule    Kind = "module"
)

// ParseKind maps a client string to a Kind, accepting common aliases.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(s) {
	case "function", "fn", "func":
		return KindFunction, true
	case "method":
		return KindMethod, true
	case "class":
		return KindClass, true
	case "struct":
		return KindStruct, true
	case "enum":
		return KindEnum, true
	case "trait":
		return KindTrait, true
	case "interface":
		return KindInterface, true
	case "constant", "const":
		return KindConstant, true
	case "variable", "var", "let":
		return KindVariable, true
	case "type":
		return KindType, true
	case "module", "mod":
		return KindModule, true
	}
	return "", false
}

// Callable reports whether the kind is a function-like declaration.
func (k Kind) Callable() bool {
	return k == KindFunction || k == KindMethod
}

// Symbol is one extracted declaration. StartLine/EndLine are 0-indexed with
// an exclusive end, and refer to the file as it existed at extraction time.
type Symbol struct {
	Name      string         `json:"name"`
	Kind      Kind           `json:"kind"`
	File      string         `json:"file"`
	StartLine int            `json:"startLine"`
	EndLine   int            `json:"endLine"`
	StartByte int            `json:"startByte"`
	EndByte   int            `json:"endByte"`
	Language  index.Language `json:"language"`
	// Signature is the first non-blank line of the declaration, truncated.
	Signature string `json:"signature"`
	// Definition is the agent-set human-readable description.
	Definition string `json:"definition,omitempty"`
	// Parent is the enclosing class/struct/trait identifier for methods.
	Parent string `json:"parent,omitempty"`
}

// Key builds the primary-index key for a (file, name) pair.
func Key(file, name string) string {
	return file + "::" + name
}

// Identifier returns the bare identifier to search for in source text.
// Collision-qualified names ("Parent.name") reduce to their last segment.
func (s *Symbol) Identifier() string {
	if i := strings.LastIndexByte(s.Name, '.'); i >= 0 {
		return s.Name[i+1:]
	}
	return s.Name
}
