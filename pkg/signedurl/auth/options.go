package auth

import (
	"log/slog"
	"net/http"
	"time"
)

// Option is a functional option for configuring a Cache
type Option func(*Cache)

// WithScope sets the OAuth scope requested in the assertion
// Default is https://www.googleapis.com/auth/cloud-platform
func WithScope(scope string) Option {
	return func(c *Cache) {
		c.scope = scope
	}
}

// WithTTL sets the lifetime of each assertion
// Default is 1 hour
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithRenewMargin sets how long before the reported expiry the cache
// fetches a new token
// Default is 5 minutes
func WithRenewMargin(margin time.Duration) Option {
	return func(c *Cache) {
		c.renewMargin = margin
	}
}

// WithTokenURL overrides the token endpoint. The URL is also used as the
// assertion audience.
func WithTokenURL(tokenURL string) Option {
	return func(c *Cache) {
		c.tokenURL = tokenURL
	}
}

// WithHTTPClient sets the transport used to reach the token endpoint
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Cache) {
		c.client = client
	}
}

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger sets the logger used for fetch diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// HTTPClient is the transport capability the cache needs. *http.Client
// satisfies it; wrap it to add timeouts or retries.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
