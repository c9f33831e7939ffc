package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
)

// StreamExtract pipes the response body through the decompressor into the
// archive-entry writer without staging the archive on disk. The three stages
// run concurrently; a failure in any of them tears down the others, and
// dest is removed before the error is returned.
func (c *Client) StreamExtract(ctx context.Context, req Request, method CompressionMethod, dest string) error {
	if method != CompressionZstd {
		return fmt.Errorf("streaming extraction requires zstd, got %s", method)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resp, err := c.open(reqCtx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return &ExtractionError{Path: dest, Err: fmt.Errorf("prepare extract dir: %w", err)}
	}

	netR, netW := io.Pipe()
	tarR, tarW := io.Pipe()

	var (
		once  sync.Once
		cause error
	)
	abort := func(err error) {
		once.Do(func() {
			cause = err
			cancel()
			netW.CloseWithError(err)
			netR.CloseWithError(err)
			tarW.CloseWithError(err)
			tarR.CloseWithError(err)
		})
	}

	g, gctx := errgroup.WithContext(reqCtx)

	g.Go(func() error {
		if _, err := io.Copy(netW, resp.Body); err != nil {
			err = &DownloadError{URL: SanitizeURL(req.URL), Err: err}
			abort(err)
			return err
		}
		return netW.Close()
	})

	g.Go(func() error {
		rc, err := newDecompressor(method, netR)
		if err != nil {
			abort(err)
			return err
		}
		defer rc.Close()
		if _, err := io.Copy(tarW, rc); err != nil {
			err = fmt.Errorf("decompress: %w", err)
			abort(err)
			return err
		}
		return tarW.Close()
	})

	g.Go(func() error {
		if err := writeEntries(gctx, tarR, dest, c.logger); err != nil {
			abort(err)
			return err
		}
		// Drain trailing padding so the decompressor can finish.
		_, err := io.Copy(io.Discard, tarR)
		return err
	})

	if err := g.Wait(); err != nil {
		if cause != nil {
			err = cause
		}
		if rmErr := os.RemoveAll(dest); rmErr != nil {
			c.logger.Warning("Failed to clean up extraction destination directory %s: %v", dest, rmErr)
		}
		var dlErr *DownloadError
		if errors.As(err, &dlErr) {
			return err
		}
		return &ExtractionError{Path: SanitizeURL(req.URL), Err: err}
	}
	return nil
}
