package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stickerbridge/internal/fileutil"
)

const (
	defaultTimeout = 30 * time.Second
	// maxErrorBody bounds how much of a failed response is kept for diagnostics.
	maxErrorBody = 512
)

// ErrTooLarge means the response exceeded the configured size ceiling.
var ErrTooLarge = errors.New("fetch: response exceeds size limit")

// StatusError reports a non-success HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fetch %s: http %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: http %d: %s", e.URL, e.StatusCode, e.Body)
}

// Config captures download settings.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Client downloads source files.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a Client.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.UserAgent = strings.TrimSpace(cfg.UserAgent)
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration {
	return c.cfg.Timeout
}

// ToFile streams url into dst and returns the number of bytes written. A
// limit <= 0 disables the size ceiling. dst is removed on failure.
func (c *Client) ToFile(ctx context.Context, url, dst string, limit int64) (int64, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	written, exceeded, err := fileutil.CopyToFile(dst, resp.Body, limit)
	if err != nil {
		_ = fileutil.RemoveIfExists(dst)
		return written, fmt.Errorf("fetch %s: write %s: %w", url, dst, err)
	}
	if exceeded {
		_ = fileutil.RemoveIfExists(dst)
		return written, fmt.Errorf("%w: %s larger than %d bytes", ErrTooLarge, url, limit)
	}
	return written, nil
}

// Bytes reads url into memory. A limit <= 0 disables the size ceiling.
func (c *Client) Bytes(ctx context.Context, url string, limit int64) ([]byte, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	reader := io.Reader(resp.Body)
	if limit > 0 {
		reader = io.LimitReader(resp.Body, limit+1)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", url, err)
	}
	if limit > 0 && int64(buf.Len()) > limit {
		return nil, fmt.Errorf("%w: %s larger than %d bytes", ErrTooLarge, url, limit)
	}
	return buf.Bytes(), nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: build request: %w", url, err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}
