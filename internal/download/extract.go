package download

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"bundlectl/internal/logx"
)

// Extract unpacks the archive at archivePath into dest. On failure dest is
// removed before the *ExtractionError is returned.
func Extract(ctx context.Context, archivePath string, method CompressionMethod, dest string, logger logx.Logger) error {
	if logger == nil {
		logger = logx.Nop()
	}
	if err := extract(ctx, archivePath, method, dest, logger); err != nil {
		if rmErr := os.RemoveAll(dest); rmErr != nil {
			logger.Warning("Failed to clean up extraction destination directory %s: %v", dest, rmErr)
		}
		return &ExtractionError{Path: archivePath, Err: err}
	}
	return nil
}

func extract(ctx context.Context, archivePath string, method CompressionMethod, dest string, logger logx.Logger) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("prepare extract dir: %w", err)
	}

	rc, err := newDecompressor(method, file)
	if err != nil {
		return err
	}
	defer rc.Close()

	return writeEntries(ctx, rc, dest, logger)
}

// writeEntries is the archive-entry writer: it materializes every tar entry
// read from r beneath dest. Entries that would escape dest are rejected.
func writeEntries(ctx context.Context, r io.Reader, dest string, logger logx.Logger) error {
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		target, err := entryPath(dest, header.Name)
		if err != nil {
			return err
		}
		if logger.IsDebug() {
			logger.Debug("x %s", header.Name)
		}

		mode := os.FileMode(header.Mode).Perm()
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, mode|0o700); err != nil {
				return fmt.Errorf("create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := clearTarget(target); err != nil {
				return err
			}
			if err := writeFile(target, tr, mode); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := checkLink(dest, target, header.Linkname); err != nil {
				return err
			}
			if err := clearTarget(target); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("prepare link %s: %w", target, err)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("create symlink %s: %w", target, err)
			}
		case tar.TypeLink:
			source, err := entryPath(dest, header.Linkname)
			if err != nil {
				return err
			}
			if err := clearTarget(target); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("prepare link %s: %w", target, err)
			}
			if err := os.Link(source, target); err != nil {
				return fmt.Errorf("create hard link %s: %w", target, err)
			}
		default:
			logger.Debug("Skipping tar entry %s with type %c.", header.Name, header.Typeflag)
		}
	}
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("prepare file %s: %w", target, err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close file %s: %w", target, err)
	}
	return nil
}

// clearTarget removes whatever already sits at target so a link or file
// entry replaces it instead of writing through it. Directories are kept and
// reported, since replacing one would orphan the links resolved through it.
func clearTarget(target string) error {
	info, err := os.Lstat(target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("inspect %s: %w", target, err)
	case info.IsDir():
		return fmt.Errorf("tar entry %s would replace a directory", target)
	}
	if err := os.Remove(target); err != nil {
		return fmt.Errorf("replace %s: %w", target, err)
	}
	return nil
}

// entryPath joins name onto dest. Each component is checked against the
// files already extracted: none of the parents may be a symlink, and ".."
// may not climb above dest.
func entryPath(dest, name string) (string, error) {
	target, err := walkInside(dest, dest, filepath.FromSlash(name))
	if err != nil {
		return "", fmt.Errorf("tar entry %q: %w", name, err)
	}
	return target, nil
}

// checkLink resolves a symlink's target from the link's directory the same
// way, so a link can never point through another link or out of dest.
func checkLink(dest, target, linkname string) error {
	if filepath.IsAbs(linkname) || strings.HasPrefix(linkname, "/") {
		return fmt.Errorf("symlink %s points to absolute path %q", target, linkname)
	}
	if _, err := walkInside(dest, filepath.Dir(target), filepath.FromSlash(linkname)); err != nil {
		return fmt.Errorf("symlink %s: %w", target, err)
	}
	return nil
}

// walkInside follows rel from base one component at a time. Intermediate
// components that exist on disk must be real directories; the final one may
// be anything.
func walkInside(dest, base, rel string) (string, error) {
	dest = filepath.Clean(dest)
	cur := filepath.Clean(base)
	parts := strings.Split(rel, string(filepath.Separator))
	for i, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
			if !within(dest, cur) {
				return "", errors.New("escapes extraction directory")
			}
			continue
		}
		cur = filepath.Join(cur, part)
		if i == len(parts)-1 {
			break
		}
		info, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return "", fmt.Errorf("passes through symlink %s", cur)
		}
	}
	return cur, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
