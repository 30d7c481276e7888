package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSigner struct {
	mu     sync.Mutex
	claims []Claims
	err    error
}

func (s *fakeSigner) Issuer() string { return "signer@project.iam.gserviceaccount.com" }

func (s *fakeSigner) SignAssertion(_ context.Context, c Claims) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.claims = append(s.claims, c)
	return fmt.Sprintf("assertion-%d", c.IssuedAt), nil
}

type clock struct {
	sec atomic.Int64
}

func newClock(sec int64) *clock {
	c := &clock{}
	c.sec.Store(sec)
	return c
}

func (c *clock) Now() time.Time { return time.Unix(c.sec.Load(), 0) }
func (c *clock) Set(sec int64)  { c.sec.Store(sec) }

// tokenServer answers every exchange with the given body and counts calls.
func tokenServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestCache_TokenExchangeRequest(t *testing.T) {
	var got tokenRequest
	var header http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		header = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"token_type":"Bearer","access_token":"abc","expires_in":3600}`))
	}))
	defer srv.Close()

	signer := &fakeSigner{}
	clk := newClock(1000)
	cache := NewCache(signer,
		WithTokenURL(srv.URL),
		WithClock(clk.Now),
		WithTTL(30*time.Minute),
		WithScope("https://www.googleapis.com/auth/devstorage.read_only"),
	)

	token, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", token)

	assert.Equal(t, GrantType, got.GrantType)
	assert.Equal(t, "assertion-1000", got.Assertion)
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, "application/json", header.Get("Accept"))

	require.Len(t, signer.claims, 1)
	assert.Equal(t, Claims{
		Issuer:    "signer@project.iam.gserviceaccount.com",
		Audience:  srv.URL,
		Scope:     "https://www.googleapis.com/auth/devstorage.read_only",
		IssuedAt:  1000,
		ExpiresAt: 1000 + 1800,
	}, signer.claims[0])
}

func TestCache_RenewalMargin(t *testing.T) {
	srv, calls := tokenServer(t, http.StatusOK, `{"token_type":"Bearer","access_token":"abc","expires_in":3600}`)

	clk := newClock(1000)
	cache := NewCache(&fakeSigner{},
		WithTokenURL(srv.URL),
		WithClock(clk.Now),
		WithRenewMargin(300*time.Second),
	)
	ctx := context.Background()

	_, err := cache.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4300), cache.Expiry())
	assert.Equal(t, int32(1), calls.Load())

	clk.Set(4299)
	token, err := cache.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", token)
	assert.Equal(t, int32(1), calls.Load(), "token still inside its lifetime")

	clk.Set(4300)
	_, err = cache.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "renewal point reached")
	assert.Equal(t, int64(4300+3600-300), cache.Expiry())
}

func TestCache_ConcurrentCallersShareOneFetch(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		w.Write([]byte(`{"token_type":"Bearer","access_token":"shared","expires_in":3600}`))
	}))
	defer srv.Close()

	cache := NewCache(&fakeSigner{}, WithTokenURL(srv.URL))

	const n = 50
	var wg sync.WaitGroup
	var started sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	started.Add(n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			results[i], errs[i] = cache.Token(context.Background())
		}(i)
	}

	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "Bearer shared", results[i])
	}
}

func TestCache_FailureIsNotCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Write([]byte(`{"token_type":"Bearer","access_token":"second","expires_in":3600}`))
	}))
	defer srv.Close()

	cache := NewCache(&fakeSigner{}, WithTokenURL(srv.URL))
	ctx := context.Background()

	_, err := cache.Token(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenExchange))

	var tokenErr *TokenError
	require.True(t, errors.As(err, &tokenErr))
	assert.Equal(t, http.StatusBadRequest, tokenErr.StatusCode)
	assert.Equal(t, `{"error":"invalid_grant"}`, tokenErr.Body)

	// The failed fetch must not leave the cache wedged.
	token, err := cache.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bearer second", token)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_SignerErrorPropagates(t *testing.T) {
	srv, calls := tokenServer(t, http.StatusOK, `{}`)
	boom := errors.New("kms unavailable")

	cache := NewCache(&fakeSigner{err: boom}, WithTokenURL(srv.URL))

	_, err := cache.Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(0), calls.Load())
}

func TestCache_MissingExpiresInDisablesCaching(t *testing.T) {
	srv, calls := tokenServer(t, http.StatusOK, `{"token_type":"Bearer","access_token":"abc"}`)

	clk := newClock(1000)
	cache := NewCache(&fakeSigner{}, WithTokenURL(srv.URL), WithClock(clk.Now))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		token, err := cache.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Bearer abc", token)
	}

	assert.Equal(t, int64(1000-300), cache.Expiry())
	assert.Equal(t, int32(3), calls.Load())
}

func TestCache_MalformedResponse(t *testing.T) {
	srv, _ := tokenServer(t, http.StatusOK, `not json`)

	cache := NewCache(&fakeSigner{}, WithTokenURL(srv.URL))

	_, err := cache.Token(context.Background())
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestCache_Invalidate(t *testing.T) {
	srv, calls := tokenServer(t, http.StatusOK, `{"token_type":"Bearer","access_token":"abc","expires_in":3600}`)

	cache := NewCache(&fakeSigner{}, WithTokenURL(srv.URL))
	ctx := context.Background()

	_, err := cache.Token(ctx)
	require.NoError(t, err)
	cache.Invalidate()
	_, err = cache.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_CallerContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`{"token_type":"Bearer","access_token":"late","expires_in":3600}`))
	}))
	defer srv.Close()
	defer close(release)

	cache := NewCache(&fakeSigner{}, WithTokenURL(srv.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := cache.Token(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBuildClaims(t *testing.T) {
	c := BuildClaims("iss@example.com", TokenURL, DefaultScope, time.Hour, time.Unix(1700000000, 0))
	assert.Equal(t, int64(1700000000), c.IssuedAt)
	assert.Equal(t, int64(1700003600), c.ExpiresAt)
	assert.Equal(t, TokenURL, c.Audience)
	assert.Equal(t, "iss@example.com", c.Issuer)
}
