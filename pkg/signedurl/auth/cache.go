// Package auth keeps a short-lived OAuth bearer token behind a cache that
// fetches at most one token at a time and renews it ahead of expiry.
//
// A token is obtained by signing an assertion (see AssertionSigner) and
// exchanging it at the token endpoint with the jwt-bearer grant:
//
//	signer := auth.NewJWTAssertionSigner(email, privateKey, keyID)
//	cache := auth.NewCache(signer, auth.WithRenewMargin(5*time.Minute))
//	header, err := cache.Token(ctx) // "Bearer ya29..."
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// TokenURL is the Google OAuth2 token endpoint.
	TokenURL = "https://www.googleapis.com/oauth2/v4/token"

	// GrantType is the grant type for JWT bearer assertions.
	GrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// DefaultScope grants access to all Google Cloud APIs.
	DefaultScope = "https://www.googleapis.com/auth/cloud-platform"

	fetchKey = "token"
)

// Cache memoizes a bearer token and renews it renewMargin before the
// lifetime reported by the issuer runs out.
//
// The zero value is not usable; construct one per signer with NewCache. The
// cached token, its expiry and the in-flight fetch are owned by the Cache:
// only the fetch writes them, every Token call reads them.
type Cache struct {
	signer      AssertionSigner
	client      HTTPClient
	tokenURL    string
	scope       string
	ttl         time.Duration
	renewMargin time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu     sync.Mutex
	token  string
	expiry int64 // epoch seconds; the token is served while now < expiry

	inflight singleflight.Group
}

// NewCache creates a token cache that signs assertions with signer.
func NewCache(signer AssertionSigner, opts ...Option) *Cache {
	c := &Cache{
		signer:      signer,
		client:      http.DefaultClient,
		tokenURL:    TokenURL,
		scope:       DefaultScope,
		ttl:         1 * time.Hour,
		renewMargin: 5 * time.Minute,
		now:         time.Now,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Token returns the cached Authorization header value, fetching a new token
// when none is cached or the cached one is due for renewal.
//
// Concurrent callers share a single fetch: everyone who calls Token while a
// fetch is pending gets that fetch's result. A failed fetch is not cached,
// so the next call tries again. If ctx ends first Token returns ctx.Err(),
// but the shared fetch keeps running for the other callers.
func (c *Cache) Token(ctx context.Context) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(fetchKey, func() (interface{}, error) {
		// A fetch may have finished between the check above and joining.
		if token, ok := c.cached(); ok {
			return token, nil
		}
		return c.fetch(fetchCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops the cached token. The next Token call fetches a new one.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiry = 0
}

// Expiry reports the epoch second at which the cached token stops being
// served. It is zero when nothing has been fetched yet.
func (c *Cache) Expiry() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiry
}

func (c *Cache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || c.now().Unix() >= c.expiry {
		return "", false
	}
	return c.token, true
}

type tokenRequest struct {
	GrantType string `json:"grant_type"`
	Assertion string `json:"assertion"`
}

type tokenResponse struct {
	TokenType   string `json:"token_type"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *Cache) fetch(ctx context.Context) (string, error) {
	claims := BuildClaims(c.signer.Issuer(), c.tokenURL, c.scope, c.ttl, c.now())

	assertion, err := c.signer.SignAssertion(ctx, claims)
	if err != nil {
		return "", fmt.Errorf("auth: failed to sign assertion: %w", err)
	}

	body, err := json.Marshal(tokenRequest{GrantType: GrantType, Assertion: assertion})
	if err != nil {
		return "", fmt.Errorf("auth: failed to encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("auth: failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("Token exchange failed", "issuer", claims.Issuer, "err", err)
		return "", fmt.Errorf("auth: token request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("auth: failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("Token endpoint rejected assertion", "issuer", claims.Issuer, "status", resp.StatusCode)
		return "", &TokenError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	// A missing expires_in counts as zero, which leaves the token already
	// past its renewal point: every call refetches.
	token := tr.TokenType + " " + tr.AccessToken
	expiry := c.now().Unix() + tr.ExpiresIn - int64(c.renewMargin/time.Second)

	c.mu.Lock()
	c.token = token
	c.expiry = expiry
	c.mu.Unlock()

	c.logger.Debug("Token refreshed", "issuer", claims.Issuer, "expires_in", tr.ExpiresIn, "renew_at", expiry)
	return token, nil
}
