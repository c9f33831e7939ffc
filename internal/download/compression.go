package download

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// CompressionMethod identifies how a bundle archive is compressed.
type CompressionMethod string

const (
	CompressionGzip CompressionMethod = "gzip"
	CompressionZstd CompressionMethod = "zstd"
	CompressionNone CompressionMethod = "none"
)

// InferCompressionMethod derives the method from the archive's file name.
// Query strings and fragments on URLs are ignored.
func InferCompressionMethod(locator string) (CompressionMethod, error) {
	name := locator
	if u, err := url.Parse(locator); err == nil && u.Path != "" {
		name = u.Path
	}
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return CompressionGzip, nil
	case strings.HasSuffix(name, ".tar.zst"):
		return CompressionZstd, nil
	case strings.HasSuffix(name, ".tar"):
		return CompressionNone, nil
	default:
		return "", fmt.Errorf("cannot infer compression method from %q: expected .tar.gz, .tar.zst or .tar", locator)
	}
}

// newDecompressor wraps r with the decoder for method.
func newDecompressor(method CompressionMethod, r io.Reader) (io.ReadCloser, error) {
	switch method {
	case CompressionGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return gz, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	case CompressionNone:
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("unsupported compression method %q", method)
	}
}
