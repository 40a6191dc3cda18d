package index

import (
	"path/filepath"
	"strings"
)

// Language is the tag inferred from a file's extension. It drives which
// parser (if any) extracts symbols and how grep filters candidates.
type Language string

const (
	LangRust       Language = "rust"
	LangPython     Language = "python"
	LangTypeScript Language = "typescript"
	LangJavaScript Language = "javascript"
	LangGo         Language = "go"
	LangJava       Language = "java"
	LangC          Language = "c"
	LangCpp        Language = "cpp"
	LangRuby       Language = "ruby"
	LangShell      Language = "shell"
	LangMarkdown   Language = "markdown"
	LangJSON       Language = "json"
	LangYAML       Language = "yaml"
	LangTOML       Language = "toml"
	LangHTML       Language = "html"
	LangCSS        Language = "css"
	LangSQL        Language = "sql"
	LangOther      Language = "other"
)

var extensionLanguages = map[string]Language{
	"rs":   LangRust,
	"py":   LangPython,
	"pyi":  LangPython,
	"ts":   LangTypeScript,
	"tsx":  LangTypeScript,
	"js":   LangJavaScript,
	"jsx":  LangJavaScript,
	"mjs":  LangJavaScript,
	"cjs":  LangJavaScript,
	"go":   LangGo,
	"java": LangJava,
	"c":    LangC,
	"h":    LangC,
	"cpp":  LangCpp,
	"cc":   LangCpp,
	"cxx":  LangCpp,
	"hpp":  LangCpp,
	"hxx":  LangCpp,
	"hh":   LangCpp,
	"rb":   LangRuby,
	"sh":   LangShell,
	"bash": LangShell,
	"zsh":  LangShell,
	"fish": LangShell,
	"md":   LangMarkdown,
	"mdx":  LangMarkdown,
	"json": LangJSON,
	"yml":  LangYAML,
	"yaml": LangYAML,
	"toml": LangTOML,
	"html": LangHTML,
	"htm":  LangHTML,
	"css":  LangCSS,
	"scss": LangCSS,
	"less": LangCSS,
	"sql":  LangSQL,
}

// LanguageFromExtension maps a bare extension (no dot) to a Language.
// Matching is case-insensitive; unknown extensions yield LangOther.
func LanguageFromExtension(ext string) Language {
	if lang, ok := extensionLanguages[strings.ToLower(ext)]; ok {
		return lang
	}
	return LangOther
}

// LanguageFromPath infers the language tag for a path.
func LanguageFromPath(path string) Language {
	ext := filepath.Ext(path)
	if ext == "" {
		return LangOther
	}
	return LanguageFromExtension(ext[1:])
}

// Parseable reports whether the language has tree-sitter symbol support.
func (l Language) Parseable() bool {
	switch l {
	case LangRust, LangPython, LangTypeScript, LangJavaScript, LangGo:
		return true
	}
	return false
}
