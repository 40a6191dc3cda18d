// Package config holds start-time knobs and the built-in ignore rules.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete codescope configuration.
type Config struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`

	// MaxFileSize is the per-file byte cap. Larger files stay in the tree
	// with their size recorded but produce no symbols and are not grepped.
	MaxFileSize int64 `json:"maxFileSize" mapstructure:"maxFileSize"`
	// MaxProjects caps resident projects; the LRU victim is evicted beyond it.
	MaxProjects int `json:"maxProjects" mapstructure:"maxProjects"`

	DebounceMs         int `json:"debounceMs" mapstructure:"debounceMs"`
	OperationTimeoutMs int `json:"operationTimeoutMs" mapstructure:"operationTimeoutMs"`

	GrepMaxMatches  int `json:"grepMaxMatches" mapstructure:"grepMaxMatches"`
	DefaultLimit    int `json:"defaultLimit" mapstructure:"defaultLimit"`
	HistoryLimit    int `json:"historyLimit" mapstructure:"historyLimit"`
	SignatureBudget int `json:"signatureBudget" mapstructure:"signatureBudget"`

	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// WorkspaceDirName is the per-project sidecar directory for the index cache
// and annotation files.
const WorkspaceDirName = ".codescope"

// DefaultMaxFileSize is 1 MiB.
const DefaultMaxFileSize = 1 << 20

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:               "127.0.0.1",
		Port:               3000,
		MaxFileSize:        DefaultMaxFileSize,
		MaxProjects:        5,
		DebounceMs:         500,
		OperationTimeoutMs: 30000,
		GrepMaxMatches:     100,
		DefaultLimit:       50,
		HistoryLimit:       50,
		SignatureBudget:    200,
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// Load reads configuration from <dir>/config.json, falling back to defaults
// when no file exists. Values not present in the file keep their defaults.
func Load(dir string) (*Config, error) {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("maxFileSize", def.MaxFileSize)
	v.SetDefault("maxProjects", def.MaxProjects)
	v.SetDefault("debounceMs", def.DebounceMs)
	v.SetDefault("operationTimeoutMs", def.OperationTimeoutMs)
	v.SetDefault("grepMaxMatches", def.GrepMaxMatches)
	v.SetDefault("defaultLimit", def.DefaultLimit)
	v.SetDefault("historyLimit", def.HistoryLimit)
	v.SetDefault("signatureBudget", def.SignatureBudget)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("logging.level", def.Logging.Level)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration to <dir>/config.json.
func (c *Config) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644)
}

// ignoreDirs are directory names that are never indexed regardless of
// gitignore content. They are dependency trees, build output, and VCS
// internals that code-reading clients never want.
var ignoreDirs = map[string]struct{}{
	"node_modules":   {},
	"vendor":         {},
	"__pycache__":    {},
	"target":         {},
	"dist":           {},
	"build":          {},
	".git":           {},
	".hg":            {},
	".svn":           {},
	".next":          {},
	".nuxt":          {},
	".output":        {},
	".cache":         {},
	".tox":           {},
	".mypy_cache":    {},
	".pytest_cache":  {},
	".ruff_cache":    {},
	"venv":           {},
	".venv":          {},
	"env":            {},
	".env":           {},
	"coverage":       {},
	".nyc_output":    {},
	"htmlcov":        {},
	".terraform":     {},
	".serverless":    {},
	WorkspaceDirName: {},
}

// ignoreExtensions are suffixes of files that are binary or otherwise
// useless for code reading.
var ignoreExtensions = []string{
	"min.js", "min.css", "pyc", "pyo", "class", "o", "so", "dylib", "dll",
	"exe", "a", "lib", "jar", "war", "ear", "zip", "tar", "gz", "bz2", "xz",
	"7z", "rar", "png", "jpg", "jpeg", "gif", "bmp", "ico", "svg", "webp",
	"mp3", "mp4", "avi", "mov", "wmv", "flv", "woff", "woff2", "ttf", "eot",
	"otf", "pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "db",
	"sqlite", "sqlite3", "lock", "map",
}

// ShouldIgnoreDir reports whether a directory name is in the built-in
// ignore set.
func ShouldIgnoreDir(name string) bool {
	_, ok := ignoreDirs[name]
	return ok
}

// ShouldIgnoreExtension reports whether a path ends in a built-in ignored
// extension. Matching is case-insensitive.
func ShouldIgnoreExtension(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range ignoreExtensions {
		if strings.HasSuffix(lower, "."+ext) {
			return true
		}
	}
	return false
}

// ShouldSkipPath reports whether any component of a relative slash-separated
// path is in the built-in directory ignore set.
func ShouldSkipPath(relPath string) bool {
	for _, component := range strings.Split(relPath, "/") {
		if ShouldIgnoreDir(component) {
			return true
		}
	}
	return false
}
