// Package portal is the HTTP client for the clearinghouse portal that publishes
// claim, statement, and transfer extracts. It lists downloadable files from the
// portal's HTML listing pages and streams individual files. Authentication is
// supplied as a session cookie; the client never logs in on its own.
package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/config"
)

// maxListingPages bounds how many rel=next links a single listing follows.
const maxListingPages = 100

// Errors returned by the portal client.
var (
	ErrUnauthorized  = errors.New("portal rejected credentials")
	ErrUnavailable   = errors.New("portal unavailable")
	ErrNotFound      = errors.New("portal resource not found")
	ErrUnknownSource = errors.New("no listing configured for source type")
)

// StatusError carries an unexpected HTTP status from the portal.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("portal returned %d for %s", e.Code, e.URL)
}

// Is maps status codes onto the package's sentinel errors.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrUnavailable:
		return e.Code >= 500
	}
	return false
}

// RemoteFile is one downloadable file discovered on a listing page.
type RemoteFile struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// Client lists and fetches files from the portal.
type Client struct {
	http      *http.Client
	base      *url.URL
	cookie    string
	userAgent string
	headers   map[string]string
	listings  map[string]string
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a Client from the portal configuration. The configured timeout
// applies to listing requests; fetches are bounded by the caller's context.
func New(cfg *config.PortalConfig, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	return &Client{
		http:      &http.Client{},
		base:      base,
		cookie:    cfg.Cookie,
		userAgent: cfg.UserAgent,
		headers:   cfg.Headers,
		listings:  cfg.Listings,
		timeout:   cfg.TimeoutDuration(),
		logger:    logger.With("system", "portal"),
	}, nil
}

// List walks the listing pages for sourceType and returns every file link,
// de-duplicated by filename in first-seen order.
func (c *Client) List(ctx context.Context, sourceType string, params url.Values) ([]RemoteFile, error) {
	path, ok := c.listings[sourceType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, sourceType)
	}

	next := c.base.ResolveReference(&url.URL{Path: path, RawQuery: params.Encode()})
	visited := make(map[string]bool)
	seen := make(map[string]bool)
	var result []RemoteFile

	for page := 0; next != nil && page < maxListingPages; page++ {
		if visited[next.String()] {
			break
		}
		visited[next.String()] = true

		listing, err := c.listPage(ctx, next)
		if err != nil {
			return nil, err
		}

		for _, f := range listing.files {
			if seen[f.Filename] {
				continue
			}
			seen[f.Filename] = true
			result = append(result, f)
		}
		next = listing.next
	}

	c.logger.Info("listing complete", "source_type", sourceType, "files", len(result))
	return result, nil
}

// Fetch opens the file at rawURL. The caller must close the returned body.
func (c *Client) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	target, err := c.base.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse file url: %w", err)
	}

	resp, err := c.do(ctx, target)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) listPage(ctx context.Context, u *url.URL) (*listing, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.do(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	listing, err := parseListing(resp.Body, u)
	if err != nil {
		return nil, fmt.Errorf("parse listing %s: %w", u, err)
	}
	if listing.login {
		return nil, fmt.Errorf("%w: listing returned a login form", ErrUnauthorized)
	}
	return listing, nil
}

func (c *Client) do(ctx context.Context, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, URL: redact(u)}
	}

	return resp, nil
}

func redact(u *url.URL) string {
	return strings.SplitN(u.String(), "?", 2)[0]
}
