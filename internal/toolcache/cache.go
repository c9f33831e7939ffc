package toolcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"bundlectl/internal/logx"
	"bundlectl/internal/paths"
)

const markerSuffix = ".complete"

// Cache maps (tool name, canonical version) to an extracted directory.
type Cache interface {
	Find(toolName, semver string) (string, bool)
	Store(ctx context.Context, extractedDir, toolName, semver string) (string, error)
}

// Entry is a complete bundle directory recorded in the cache.
type Entry struct {
	ToolName  string    `json:"tool"`
	Semver    string    `json:"version"`
	Arch      string    `json:"arch"`
	LocalPath string    `json:"path"`
	StoredAt  time.Time `json:"stored_at"`
}

// DirCache stores bundles under <root>/<tool>/<semver>/<arch>. A directory is
// only visible to Find once its <dir>.complete marker exists, and the marker
// is written after the directory is fully in place.
type DirCache struct {
	root   string
	arch   string
	logger logx.Logger
}

// New returns a DirCache rooted at root.
func New(root string, logger logx.Logger) *DirCache {
	if logger == nil {
		logger = logx.Nop()
	}
	return &DirCache{root: root, arch: runtime.GOARCH, logger: logger}
}

// Root returns the cache root directory.
func (c *DirCache) Root() string { return c.root }

// Dir returns where a bundle would live, whether or not it is present.
func (c *DirCache) Dir(toolName, semver string) string {
	return filepath.Join(c.root, toolName, semver, c.arch)
}

// Find returns the cached directory for an exact (toolName, semver) match.
func (c *DirCache) Find(toolName, semver string) (string, bool) {
	if toolName == "" || semver == "" {
		return "", false
	}
	dir := c.Dir(toolName, semver)
	if ok, _ := paths.DirExists(dir); !ok {
		return "", false
	}
	if ok, _ := paths.FileExists(dir + markerSuffix); !ok {
		c.logger.Debug("Ignoring incomplete cache entry %s.", dir)
		return "", false
	}
	return dir, true
}

// Store moves extractedDir into the cache and returns its final location.
// Concurrent stores of the same tool are serialized with a lock file; an
// already complete entry is kept and extractedDir is discarded.
func (c *DirCache) Store(ctx context.Context, extractedDir, toolName, semver string) (string, error) {
	if toolName == "" || semver == "" {
		return "", fmt.Errorf("store: tool name and version are required")
	}
	if info, err := os.Stat(extractedDir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("store: %s is not a directory", extractedDir)
	}

	unlock, err := acquireLock(ctx, c.root, toolName)
	if err != nil {
		return "", err
	}
	defer unlock()

	if existing, ok := c.Find(toolName, semver); ok {
		c.logger.Info("%s %s is already cached at %s.", toolName, semver, existing)
		if filepath.Clean(existing) != filepath.Clean(extractedDir) {
			_ = os.RemoveAll(extractedDir)
		}
		return existing, nil
	}

	dest := c.Dir(toolName, semver)
	if filepath.Clean(dest) != filepath.Clean(extractedDir) {
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return "", fmt.Errorf("prepare cache dir: %w", err)
		}
		if err := os.RemoveAll(dest); err != nil {
			return "", fmt.Errorf("replace cache dir: %w", err)
		}
		if err := moveDir(extractedDir, dest); err != nil {
			_ = os.RemoveAll(dest)
			return "", fmt.Errorf("commit cache dir: %w", err)
		}
	}

	if err := os.WriteFile(dest+markerSuffix, nil, 0o644); err != nil {
		return "", fmt.Errorf("write cache marker: %w", err)
	}
	c.logger.Info("Created toolcache marker file %s%s", dest, markerSuffix)

	entry := Entry{ToolName: toolName, Semver: semver, Arch: c.arch, LocalPath: dest, StoredAt: time.Now().UTC()}
	if err := c.recordEntry(ctx, entry); err != nil {
		c.logger.Warning("Failed to update cache manifest: %v", err)
	}
	return dest, nil
}

// List returns every complete entry, read from disk rather than from the
// manifest so entries stored by other tools are included.
func (c *DirCache) List() ([]Entry, error) {
	manifest, err := c.loadManifest()
	if err != nil {
		return nil, err
	}

	tools, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache root: %w", err)
	}

	var entries []Entry
	for _, tool := range tools {
		if !tool.IsDir() {
			continue
		}
		versions, err := os.ReadDir(filepath.Join(c.root, tool.Name()))
		if err != nil {
			continue
		}
		for _, version := range versions {
			if !version.IsDir() {
				continue
			}
			dir, ok := c.Find(tool.Name(), version.Name())
			if !ok {
				continue
			}
			entry := Entry{ToolName: tool.Name(), Semver: version.Name(), Arch: c.arch, LocalPath: dir}
			if recorded, ok := manifest.Entries[manifestKey(entry)]; ok {
				entry.StoredAt = recorded.StoredAt
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func moveDir(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Rename fails across devices, e.g. a temp root on tmpfs.
	if err := copyTree(src, dst); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	dest, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dest, source); err != nil {
		dest.Close()
		return err
	}
	return dest.Close()
}
