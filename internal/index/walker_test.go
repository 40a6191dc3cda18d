package index

import (
	"os"
	"path/filepath"
	"testing"

	"codescope/internal/logging"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func scanRoot(t *testing.T, root string) *FileTree {
	t.Helper()
	tree := NewFileTree()
	if _, err := NewWalker(root, logging.Discard()).Scan(tree); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return tree
}

func TestScanBasics(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "lib/util.py", "x = 1\n")
	writeFile(t, root, "docs/readme.md", "# hi\n")

	tree := scanRoot(t, root)

	if tree.Len() != 3 {
		t.Fatalf("Len = %d, want 3; paths: %v", tree.Len(), tree.Paths())
	}
	got, ok := tree.Get("lib/util.py")
	if !ok {
		t.Fatal("lib/util.py not indexed")
	}
	if got.Language != LangPython {
		t.Errorf("language = %q, want python", got.Language)
	}
	if got.Size != 6 {
		t.Errorf("size = %d, want 6", got.Size)
	}
}

func TestScanRespectsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "ignored.go\nsecret/\n")
	writeFile(t, root, "ignored.go", "package x\n")
	writeFile(t, root, "secret/key.go", "package secret\n")
	writeFile(t, root, "kept.go", "package x\n")

	tree := scanRoot(t, root)

	if _, ok := tree.Get("ignored.go"); ok {
		t.Error("gitignored file was indexed")
	}
	if _, ok := tree.Get("secret/key.go"); ok {
		t.Error("file under gitignored dir was indexed")
	}
	if _, ok := tree.Get("kept.go"); !ok {
		t.Error("kept.go missing")
	}
}

func TestScanNestedGitignoreScoping(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sub/.gitignore", "local.go\n")
	writeFile(t, root, "sub/local.go", "package sub\n")
	writeFile(t, root, "local.go", "package x\n")

	tree := scanRoot(t, root)

	if _, ok := tree.Get("sub/local.go"); ok {
		t.Error("nested gitignore did not apply inside its directory")
	}
	if _, ok := tree.Get("local.go"); !ok {
		t.Error("nested gitignore leaked to the root")
	}
}

func TestScanSkipsHiddenAndJunk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".hidden.go", "package x\n")
	writeFile(t, root, ".config/tool.json", "{}\n")
	writeFile(t, root, "node_modules/pkg/index.js", "x\n")
	writeFile(t, root, "img/logo.png", "\x89PNG\n")
	writeFile(t, root, "app.min.js", "x\n")
	writeFile(t, root, "real.go", "package x\n")

	tree := scanRoot(t, root)

	if tree.Len() != 1 {
		t.Errorf("Len = %d, want only real.go; paths: %v", tree.Len(), tree.Paths())
	}
}

func TestScanRecordsOversizeFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "big.go", string(make([]byte, 4096)))

	tree := scanRoot(t, root)

	got, ok := tree.Get("big.go")
	if !ok {
		t.Fatal("oversize file should still be recorded in the tree")
	}
	if got.Size != 4096 {
		t.Errorf("size = %d, want 4096", got.Size)
	}
}

func TestScanSkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, outside, "out.go", "package out\n")
	writeFile(t, root, "in.go", "package in\n")
	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := os.Symlink(filepath.Join(root, "in.go"), filepath.Join(root, "alias.go")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	tree := scanRoot(t, root)

	if tree.Len() != 1 {
		t.Errorf("Len = %d, want 1 (symlinks must be skipped); paths: %v", tree.Len(), tree.Paths())
	}
}

func TestIncluded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "gen/\n*.tmp.go\n")
	writeFile(t, root, "a.go", "package x\n")

	w := NewWalker(root, logging.Discard())

	tests := []struct {
		rel  string
		want bool
	}{
		{"a.go", true},
		{"sub/b.go", true},
		{"gen/c.go", false},
		{"d.tmp.go", false},
		{".dotfile.go", false},
		{"node_modules/x.js", false},
		{"logo.png", false},
	}
	for _, tt := range tests {
		if got := w.Included(tt.rel); got != tt.want {
			t.Errorf("Included(%q) = %v, want %v", tt.rel, got, tt.want)
		}
	}
}
