package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// EnvToolsDir overrides the cache root for every command.
const EnvToolsDir = "BUNDLECTL_TOOLS_DIR"

// Layout captures canonical locations used by bundlectl.
type Layout struct {
	// CacheRoot holds extracted bundles, keyed by tool and version.
	CacheRoot string
	// TempRoot receives downloaded archives and scratch extraction dirs.
	TempRoot string
	// LogsDir receives timestamped log files.
	LogsDir string
}

// Resolve determines the layout, preferring explicit values and falling back
// to per-user defaults for anything left empty.
func Resolve(cacheDir, tempDir, logsDir string) (Layout, error) {
	var (
		l   Layout
		err error
	)

	l.CacheRoot, err = resolveDir(cacheDir, DefaultCacheRoot)
	if err != nil {
		return Layout{}, err
	}
	l.TempRoot, err = resolveDir(tempDir, func() (string, error) {
		return filepath.Join(os.TempDir(), "bundlectl"), nil
	})
	if err != nil {
		return Layout{}, err
	}
	l.LogsDir, err = resolveDir(logsDir, func() (string, error) {
		return filepath.Join(l.CacheRoot, "logs"), nil
	})
	if err != nil {
		return Layout{}, err
	}
	return l, nil
}

// DefaultCacheRoot determines the per-user cache directory for bundles.
func DefaultCacheRoot() (string, error) {
	if override, ok := os.LookupEnv(EnvToolsDir); ok && override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", EnvToolsDir, err)
		}
		return abs, nil
	}
	if toolCache := os.Getenv("RUNNER_TOOL_CACHE"); toolCache != "" {
		return toolCache, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("detect user home: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "bundlectl"), nil
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "bundlectl", "cache"), nil
		}
		return filepath.Join(home, "AppData", "Local", "bundlectl", "cache"), nil
	default:
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "bundlectl"), nil
		}
		return filepath.Join(home, ".cache", "bundlectl"), nil
	}
}

// Ensure creates every directory of the layout.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.CacheRoot, l.TempRoot, l.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func resolveDir(value string, fallback func() (string, error)) (string, error) {
	if value == "" {
		return fallback()
	}
	abs, err := filepath.Abs(value)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", value, err)
	}
	return abs, nil
}
