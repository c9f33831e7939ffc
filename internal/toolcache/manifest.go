package toolcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	manifestFileName = "manifest.json"
	manifestVersion  = 1

	lockPollInterval = 100 * time.Millisecond
	// Locks older than this belong to a crashed process and are broken.
	staleLockAge = 10 * time.Minute
)

// Manifest records stored entries, keyed by tool/semver/arch.
type Manifest struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

func manifestKey(e Entry) string {
	return e.ToolName + "/" + e.Semver + "/" + e.Arch
}

func (c *DirCache) manifestPath() string {
	return filepath.Join(c.root, manifestFileName)
}

// loadManifest returns an empty manifest when none has been written yet.
func (c *DirCache) loadManifest() (Manifest, error) {
	m := Manifest{Version: manifestVersion, Entries: map[string]Entry{}}
	contents, err := os.ReadFile(c.manifestPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
		return m, nil
	case err != nil:
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(contents, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse %s: %w", c.manifestPath(), err)
	}
	if m.Entries == nil {
		m.Entries = map[string]Entry{}
	}
	return m, nil
}

func (c *DirCache) recordEntry(ctx context.Context, entry Entry) error {
	unlock, err := acquireLock(ctx, c.root, "manifest")
	if err != nil {
		return err
	}
	defer unlock()

	m, err := c.loadManifest()
	if err != nil {
		return err
	}
	m.Version = manifestVersion
	m.Entries[manifestKey(entry)] = entry
	return writeJSONAtomic(c.manifestPath(), m)
}

// writeJSONAtomic replaces path with the indented JSON of v so readers never
// see a partial file.
func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// acquireLock creates <root>/<name>.lock exclusively, polling while another
// process holds it. The returned func releases the lock.
func acquireLock(ctx context.Context, root, name string) (func(), error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	path := filepath.Join(root, name+".lock")

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
			_ = f.Close()
			return func() { _ = os.Remove(path) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("lock %s: %w", name, err)
		}
		if breakStaleLock(path) {
			continue
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock %s: %w", name, ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}
}

func breakStaleLock(path string) bool {
	info, err := os.Stat(path)
	if err != nil || time.Since(info.ModTime()) < staleLockAge {
		return false
	}
	return os.Remove(path) == nil
}
