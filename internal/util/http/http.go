// Package http fetches remote plugin bundles and images.
package http

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/shutter/internal/filename"
	"github.com/jmylchreest/shutter/internal/security"
	"github.com/jmylchreest/shutter/internal/version"
)

const (
	// UserAgentName is the application name used in the User-Agent header.
	UserAgentName = "shutter"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxSize caps a download when FetchOptions.MaxSize is zero.
	DefaultMaxSize = 100 * 1024 * 1024
)

// ErrNotURL is returned for sources that are not http or https URLs.
var ErrNotURL = errors.New("not an http or https URL")

// FetchOptions configures HTTP fetch behavior.
type FetchOptions struct {
	// Timeout specifies the HTTP request timeout. Zero means DefaultTimeout.
	Timeout time.Duration

	// MaxSize is the largest accepted body in bytes. Zero means DefaultMaxSize.
	MaxSize int64

	// Headers specifies additional HTTP headers to send with the request.
	Headers map[string]string
}

// IsURL reports whether s is an http or https URL.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Fetch retrieves content from a URL. Anything but 200 OK is an error.
func Fetch(ctx context.Context, rawURL string, opts FetchOptions) ([]byte, error) {
	if !IsURL(rawURL) {
		return nil, fmt.Errorf("%w: %s", ErrNotURL, rawURL)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	maxSize := opts.MaxSize
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}

	client := &http.Client{Timeout: timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", fmt.Sprintf("%s/%s", UserAgentName, version.Version))
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(security.NewLimitedReader(resp.Body, maxSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}

// Download fetches rawURL into dir and returns the file path. The file is
// named after the last URL path segment so its extension survives; URLs
// without one get a name derived from a hash of the URL.
func Download(ctx context.Context, rawURL, dir string, opts FetchOptions) (string, error) {
	data, err := Fetch(ctx, rawURL, opts)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}
	dest := filepath.Join(dir, FileName(rawURL))
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write download: %w", err)
	}
	return dest, nil
}

// FileName returns the local file name used for rawURL.
func FileName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if name := filename.Sanitize(path.Base(u.Path)); name != "" && name != "/" && path.Ext(name) != "" {
			return name
		}
	}
	hash := sha256.Sum256([]byte(rawURL))
	return fmt.Sprintf("%x", hash[:16])
}
