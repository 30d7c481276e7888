package auth

import (
	"context"
	"crypto/rsa"
	"errors"

	"github.com/golang-jwt/jwt/v4"
)

// JWTAssertionSigner signs assertions as RS256 JWTs with a service
// account's private key.
type JWTAssertionSigner struct {
	issuer string
	key    *rsa.PrivateKey
	keyID  string
}

// NewJWTAssertionSigner creates a signer for the service account issuer.
// keyID is optional and ends up in the "kid" header.
func NewJWTAssertionSigner(issuer string, key *rsa.PrivateKey, keyID string) *JWTAssertionSigner {
	return &JWTAssertionSigner{issuer: issuer, key: key, keyID: keyID}
}

// Issuer returns the service account email.
func (s *JWTAssertionSigner) Issuer() string {
	return s.issuer
}

// SignAssertion encodes claims as a signed JWT.
func (s *JWTAssertionSigner) SignAssertion(_ context.Context, claims Claims) (string, error) {
	if s.key == nil {
		return "", errors.New("auth: no private key configured")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   claims.Issuer,
		"aud":   claims.Audience,
		"scope": claims.Scope,
		"iat":   claims.IssuedAt,
		"exp":   claims.ExpiresAt,
	})
	if s.keyID != "" {
		token.Header["kid"] = s.keyID
	}

	return token.SignedString(s.key)
}
