package auth

import (
	"context"
	"time"
)

// Claims is the payload of a token assertion. It is built fresh for every
// token fetch and handed to an AssertionSigner.
type Claims struct {
	Issuer    string `json:"iss"`
	Audience  string `json:"aud"`
	Scope     string `json:"scope"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// BuildClaims stamps an assertion payload issued at now and valid for ttl.
func BuildClaims(issuer, audience, scope string, ttl time.Duration, now time.Time) Claims {
	iat := now.Unix()
	return Claims{
		Issuer:    issuer,
		Audience:  audience,
		Scope:     scope,
		IssuedAt:  iat,
		ExpiresAt: iat + int64(ttl/time.Second),
	}
}

// AssertionSigner turns assertion claims into a signed assertion the token
// endpoint accepts. Issuer reports the identity that owns the signing key;
// the cache stamps it into the claims before calling SignAssertion.
type AssertionSigner interface {
	Issuer() string
	SignAssertion(ctx context.Context, claims Claims) (string, error)
}

// TokenSource yields an Authorization header value such as "Bearer abc".
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}
