package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	EnvPortalBaseURL   = "ECLAIM_PORTAL_BASE_URL"
	EnvPortalCookie    = "ECLAIM_PORTAL_COOKIE"
	EnvPortalUserAgent = "ECLAIM_PORTAL_USER_AGENT"
	EnvPortalTimeout   = "ECLAIM_PORTAL_TIMEOUT"
)

// PortalConfig describes how to reach the source portal. Credentials are
// supplied as a ready-made session cookie; the service never logs in itself.
type PortalConfig struct {
	BaseURL   string            `toml:"base_url"`
	Cookie    string            `toml:"cookie"`
	UserAgent string            `toml:"user_agent"`
	Timeout   string            `toml:"timeout"`
	Headers   map[string]string `toml:"headers"`
	// Listings maps a source type to the listing page path for that source.
	Listings map[string]string `toml:"listings"`
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *PortalConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *PortalConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay. Map entries are merged key by key.
func (c *PortalConfig) Merge(overlay *PortalConfig) {
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.Cookie != "" {
		c.Cookie = overlay.Cookie
	}
	if overlay.UserAgent != "" {
		c.UserAgent = overlay.UserAgent
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if len(overlay.Headers) > 0 {
		if c.Headers == nil {
			c.Headers = make(map[string]string, len(overlay.Headers))
		}
		for k, v := range overlay.Headers {
			c.Headers[k] = v
		}
	}
	if len(overlay.Listings) > 0 {
		if c.Listings == nil {
			c.Listings = make(map[string]string, len(overlay.Listings))
		}
		for k, v := range overlay.Listings {
			c.Listings[k] = v
		}
	}
}

func (c *PortalConfig) loadDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://eclaim.nhso.go.th"
	}
	if c.UserAgent == "" {
		c.UserAgent = "eclaim-rep-download"
	}
	if c.Timeout == "" {
		c.Timeout = "60s"
	}
	if c.Listings == nil {
		c.Listings = map[string]string{
			"claims":    "/webComponent/validation/ValidationMainAction.do",
			"statement": "/webComponent/ucs/statementUCSAction.do",
			"transfer":  "/webComponent/smt/smtTransferAction.do",
		}
	}
}

func (c *PortalConfig) loadEnv() {
	if v := os.Getenv(EnvPortalBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvPortalCookie); v != "" {
		c.Cookie = v
	}
	if v := os.Getenv(EnvPortalUserAgent); v != "" {
		c.UserAgent = v
	}
	if v := os.Getenv(EnvPortalTimeout); v != "" {
		c.Timeout = v
	}
}

func (c *PortalConfig) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base_url: %q", c.BaseURL)
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	for source, path := range c.Listings {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("listing path for %s must start with /", source)
		}
	}
	return nil
}
