package download

import "fmt"

// DownloadError reports a failed fetch: a non-200 response or a transport
// failure. It is surfaced to the caller without retrying.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Failed to download CodeQL bundle from %s. HTTP status code: %d.", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("Failed to download CodeQL bundle from %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// ExtractionError is returned once partially extracted output has been
// removed.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
