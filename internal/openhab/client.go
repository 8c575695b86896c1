package openhab

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultRequestTimeout = 30 * time.Second

	// maxStateBytes caps how much of a state reply is read.
	maxStateBytes = 64 << 10
)

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the hub connection settings.
type Config struct {
	// URL is the hub base URL, e.g. "http://openhab:8080".
	URL string

	// RequestTimeout bounds each REST call. Default: 30 seconds.
	// The event stream is not subject to it.
	RequestTimeout time.Duration

	// HTTPClient overrides the transport (tests).
	HTTPClient *http.Client
}

// Client reads and writes item states.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client

	missingMu sync.RWMutex
	missing   map[string]struct{}

	logger   Logger
	loggerMu sync.RWMutex
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	base, err := parseBaseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: base,
		http:    httpClient,
		missing: make(map[string]struct{}),
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	return u, nil
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// GetState returns the raw state text of an item.
//
// Returns:
//   - string: State as sent by the hub, possibly "NULL" or carrying a unit
//   - error: ErrItemNotFound or ErrUnavailable (wrapped)
func (c *Client) GetState(ctx context.Context, item string) (string, error) {
	if c.isMissing(item) {
		return "", fmt.Errorf("%w: %s", ErrItemNotFound, item)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.stateURL(item), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: get %s: %w", ErrUnavailable, item, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(item, resp); err != nil {
		return "", err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStateBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrUnavailable, item, err)
	}
	return string(body), nil
}

// SetState replaces the state of an item.
func (c *Client) SetState(ctx context.Context, item, value string) error {
	if c.isMissing(item) {
		return fmt.Errorf("%w: %s", ErrItemNotFound, item)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.stateURL(item), strings.NewReader(value))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: put %s: %w", ErrUnavailable, item, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxStateBytes)) //nolint:errcheck // drain for keep-alive

	return c.checkStatus(item, resp)
}

// HealthCheck verifies the REST root answers.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.JoinPath("rest").String()+"/", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// MissingItems returns the items remembered as absent, sorted.
func (c *Client) MissingItems() []string {
	c.missingMu.RLock()
	defer c.missingMu.RUnlock()

	items := make([]string, 0, len(c.missing))
	for item := range c.missing {
		items = append(items, item)
	}
	sort.Strings(items)
	return items
}

func (c *Client) stateURL(item string) string {
	return c.baseURL.JoinPath("rest", "items", item, "state").String()
}

// checkStatus maps a reply status to an error, remembering 404s.
func (c *Client) checkStatus(item string, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.markMissing(item)
		return fmt.Errorf("%w: %s", ErrItemNotFound, item)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %s status %d", ErrUnavailable, item, resp.StatusCode)
	}
	return nil
}

func (c *Client) isMissing(item string) bool {
	c.missingMu.RLock()
	defer c.missingMu.RUnlock()
	_, ok := c.missing[item]
	return ok
}

func (c *Client) markMissing(item string) {
	c.missingMu.Lock()
	_, seen := c.missing[item]
	c.missing[item] = struct{}{}
	c.missingMu.Unlock()

	if !seen {
		c.logInfo("item not found, ignoring it from now on", "item", item)
	}
}

func (c *Client) logInfo(msg string, args ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, args...)
	}
}
