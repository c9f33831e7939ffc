package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"bundlectl/internal/logx"
)

const defaultUserAgent = "bundlectl"

// ClientConfig configures a Client.
type ClientConfig struct {
	HTTPClient *http.Client
	UserAgent  string
	Logger     logx.Logger
}

// Client fetches bundle archives over HTTP.
type Client struct {
	http      *http.Client
	userAgent string
	logger    logx.Logger
	newID     func() string
}

// NewClient builds a Client, filling unset fields with defaults.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 0}
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logx.Nop()
	}
	return &Client{
		http:      httpClient,
		userAgent: userAgent,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// Request describes one archive fetch.
type Request struct {
	URL string
	// Authorization is sent verbatim as the Authorization header when set.
	Authorization string
	Headers       map[string]string
}

// Download writes the archive at req.URL into a uniquely named file under
// tempRoot and returns its path. Partial files are removed on failure.
func (c *Client) Download(ctx context.Context, req Request, tempRoot string) (string, error) {
	resp, err := c.open(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(tempRoot, 0o755); err != nil {
		return "", fmt.Errorf("prepare temp dir: %w", err)
	}
	archivePath := filepath.Join(tempRoot, c.newID())
	out, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}

	start := time.Now()
	n, err := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(archivePath)
		return "", &DownloadError{URL: SanitizeURL(req.URL), Err: err}
	}

	c.logger.Debug("Downloaded %d bytes from %s in %s.", n, SanitizeURL(req.URL), time.Since(start).Round(time.Millisecond))
	return archivePath, nil
}

// open issues the GET and checks for a 200 response. The caller owns the
// returned body.
func (c *Client) open(ctx context.Context, req Request) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/octet-stream")
	if req.Authorization != "" {
		httpReq.Header.Set("Authorization", req.Authorization)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	c.logger.Debug("Downloading CodeQL tools from %s.", SanitizeURL(req.URL))
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &DownloadError{URL: SanitizeURL(req.URL), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &DownloadError{URL: SanitizeURL(req.URL), StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// SanitizeURL strips credentials and the query string so a URL can be
// logged.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
