package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveExplicit(t *testing.T) {
	root := t.TempDir()
	cache := filepath.Join(root, "cache")
	tmp := filepath.Join(root, "tmp")
	logs := filepath.Join(root, "logs")

	l, err := Resolve(cache, tmp, logs)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if l.CacheRoot != cache || l.TempRoot != tmp || l.LogsDir != logs {
		t.Fatalf("unexpected layout %+v", l)
	}

	if err := l.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	for _, dir := range []string{cache, tmp, logs} {
		ok, err := DirExists(dir)
		if err != nil || !ok {
			t.Fatalf("expected %s to exist (err=%v)", dir, err)
		}
	}
}

func TestResolveEnvOverride(t *testing.T) {
	root := t.TempDir()
	t.Setenv(EnvToolsDir, root)

	l, err := Resolve("", "", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if l.CacheRoot != root {
		t.Fatalf("expected cache root %s, got %s", root, l.CacheRoot)
	}
	if l.LogsDir != filepath.Join(root, "logs") {
		t.Fatalf("expected logs under cache root, got %s", l.LogsDir)
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if ok, err := FileExists(file); err != nil || !ok {
		t.Fatalf("expected file to exist, ok=%v err=%v", ok, err)
	}
	if ok, err := FileExists(dir); err != nil || ok {
		t.Fatalf("expected dir not to count as file, ok=%v err=%v", ok, err)
	}
	if ok, err := DirExists(filepath.Join(dir, "missing")); err != nil || ok {
		t.Fatalf("expected missing dir, ok=%v err=%v", ok, err)
	}
}
