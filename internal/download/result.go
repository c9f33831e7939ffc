package download

import (
	"context"
	"os"
	"time"
)

// ExtractionResult describes a completed download-and-extract. Streamed
// results carry only CombinedDuration; download-first results also carry
// the separate download and extraction timings.
type ExtractionResult struct {
	ExtractedPath      string
	CompressionMethod  CompressionMethod
	ToolsURL           string
	Streamed           bool
	CombinedDuration   time.Duration
	DownloadDuration   time.Duration
	ExtractionDuration time.Duration
}

// StatusReport is the serializable timing summary of an ExtractionResult.
type StatusReport struct {
	CompressionMethod    CompressionMethod `json:"compression_method"`
	ToolsURL             string            `json:"tools_url"`
	Streamed             bool              `json:"streamed"`
	CombinedDurationMs   *int64            `json:"combined_duration_ms,omitempty"`
	DownloadDurationMs   *int64            `json:"download_duration_ms,omitempty"`
	ExtractionDurationMs *int64            `json:"extraction_duration_ms,omitempty"`
}

// Report renders the timing summary. Only the durations that apply to the
// extraction mode are populated.
func (r ExtractionResult) Report() StatusReport {
	report := StatusReport{
		CompressionMethod: r.CompressionMethod,
		ToolsURL:          r.ToolsURL,
		Streamed:          r.Streamed,
	}
	if r.Streamed {
		report.CombinedDurationMs = millis(r.CombinedDuration)
	} else {
		report.DownloadDurationMs = millis(r.DownloadDuration)
		report.ExtractionDurationMs = millis(r.ExtractionDuration)
	}
	return report
}

func millis(d time.Duration) *int64 {
	ms := d.Milliseconds()
	return &ms
}

// Options controls DownloadAndExtract.
type Options struct {
	TempRoot string
	// Stream enables single-pass extraction for zstd archives.
	Stream bool
	// StreamFallback retries with download-first when streaming fails.
	StreamFallback bool
	// OnExtract, if set, is called between download and extraction on the
	// download-first path.
	OnExtract func()
}

// DownloadAndExtract fetches req.URL and unpacks it into dest. Streaming is
// used only for zstd archives when opts.Stream is set; otherwise the archive
// is staged under opts.TempRoot and always deleted afterwards.
func (c *Client) DownloadAndExtract(ctx context.Context, req Request, method CompressionMethod, dest string, opts Options) (ExtractionResult, error) {
	result := ExtractionResult{
		ExtractedPath:     dest,
		CompressionMethod: method,
		ToolsURL:          SanitizeURL(req.URL),
	}

	if opts.Stream && method == CompressionZstd {
		start := time.Now()
		err := c.StreamExtract(ctx, req, method, dest)
		if err == nil {
			result.Streamed = true
			result.CombinedDuration = time.Since(start)
			c.logger.Info("Finished downloading and extracting CodeQL bundle to %s (%s).", dest, result.CombinedDuration.Round(time.Millisecond))
			return result, nil
		}
		if !opts.StreamFallback || ctx.Err() != nil {
			return ExtractionResult{}, err
		}
		c.logger.Warning("Failed to download and extract CodeQL bundle using streaming. Falling back to downloading the bundle before extracting: %v", err)
	}

	start := time.Now()
	archive, err := c.Download(ctx, req, opts.TempRoot)
	if err != nil {
		return ExtractionResult{}, err
	}
	defer func() {
		if rmErr := os.Remove(archive); rmErr != nil && !os.IsNotExist(rmErr) {
			c.logger.Warning("Failed to clean up downloaded archive %s: %v", archive, rmErr)
		}
	}()
	result.DownloadDuration = time.Since(start)
	c.logger.Info("Finished downloading CodeQL bundle in %s.", result.DownloadDuration.Round(time.Millisecond))

	if opts.OnExtract != nil {
		opts.OnExtract()
	}
	start = time.Now()
	if err := Extract(ctx, archive, method, dest, c.logger); err != nil {
		return ExtractionResult{}, err
	}
	result.ExtractionDuration = time.Since(start)
	result.CombinedDuration = result.DownloadDuration + result.ExtractionDuration
	c.logger.Info("Finished extracting CodeQL bundle to %s (%s).", dest, result.ExtractionDuration.Round(time.Millisecond))
	return result, nil
}
