// Package transfer streams one remote file to disk.
//
// Fetch writes into a hidden .part file beside the destination and renames it
// into place only after the body has been fully written, so an interrupted or
// failed transfer never leaves a truncated file under the final name.
//
// Failures are classified so callers can log precise diagnostics:
//   - *HTTPError: the server answered with a non-2xx status.
//   - *NoDownloadError: the server answered 2xx but the response is not a file
//     (an HTML page, or no length and no attachment header).
//
// Anything else is a transport or filesystem error.
package transfer

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultUserAgent identifies the archiver to the storefront.
const DefaultUserAgent = "itch-archiver/1.0"

// HTTPError is returned when the server answers with a non-success status.
type HTTPError struct {
	URL        string
	StatusCode int
	Reason     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("download failed with status %d %s", e.StatusCode, e.Reason)
}

// NoDownloadError is returned when a successful response does not look like
// a file download.
type NoDownloadError struct {
	URL    string
	Reason string
}

func (e *NoDownloadError) Error() string {
	return "response is not a download: " + e.Reason
}

// Client performs file downloads.
type Client struct {
	http      *http.Client
	logger    *zap.Logger
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a Client. timeout bounds connection setup and the wait for
// response headers, not the body, so large files are not cut off.
func New(timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeout,
	}

	c := &Client{
		http:      &http.Client{Transport: transport},
		logger:    zap.NewNop(),
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads url into dir/filename and returns the number of bytes
// written. displayName is only used for logging.
func (c *Client) Fetch(ctx context.Context, url, dir, displayName, filename string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download %s: %w", filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &HTTPError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Reason:     http.StatusText(resp.StatusCode),
		}
	}

	if reason := notADownload(resp); reason != "" {
		return 0, &NoDownloadError{URL: url, Reason: reason}
	}

	dest := filepath.Join(dir, filename)
	written, err := writeAtomically(dest, resp.Body)
	if err != nil {
		return written, err
	}

	if resp.ContentLength >= 0 && written != resp.ContentLength {
		os.Remove(dest)
		return written, fmt.Errorf("short download of %s: got %d of %d bytes", filename, written, resp.ContentLength)
	}

	c.logger.Debug("Downloaded file",
		zap.String("title", displayName),
		zap.String("file", filename),
		zap.Int64("size", written))

	return written, nil
}

// notADownload returns a non-empty reason when resp does not carry a file.
func notADownload(resp *http.Response) string {
	var mediaType string
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err == nil {
			mediaType = mt
		}
		if mediaType == "text/html" || mediaType == "application/json" {
			return "unexpected content type " + mediaType
		}
	}
	if resp.ContentLength >= 0 || strings.Contains(resp.Header.Get("Content-Disposition"), "attachment") {
		return ""
	}
	// Chunked bodies are trusted only when they declare a non-text type.
	if mediaType == "" || strings.HasPrefix(mediaType, "text/") {
		return "missing Content-Length header"
	}
	return ""
}

func writeAtomically(dest string, body io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, body)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return written, fmt.Errorf("failed to save %s: %w", filepath.Base(dest), err)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return written, fmt.Errorf("failed to move %s into place: %w", filepath.Base(dest), err)
	}
	return written, nil
}
