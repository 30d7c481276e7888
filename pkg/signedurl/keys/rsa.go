// Package keys provides signing capabilities for the signedurl signers: a
// local service-account RSA key, a remote signer backed by the IAM
// Credentials signBlob API, and a resolver for Cloud KMS public keys.
package keys

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2/google"

	"github.com/tendant/simple-signedurl/pkg/signedurl"
)

var (
	_ signedurl.SigningKey = (*RSAKey)(nil)
	_ signedurl.V2Key      = (*RSAKey)(nil)
	_ signedurl.SigningKey = (*IAMSigner)(nil)
	_ signedurl.V2Key      = (*IAMSigner)(nil)
)

// ErrNoPrivateKey is returned when a key file carries no usable private key
var ErrNoPrivateKey = errors.New("keys: no private key")

// RSAKey signs with a service account's private key held in memory.
type RSAKey struct {
	email string
	keyID string
	key   *rsa.PrivateKey
}

// NewRSAKey wraps an already parsed private key.
func NewRSAKey(email string, key *rsa.PrivateKey) *RSAKey {
	return &RSAKey{email: email, key: key}
}

// ParseRSAKey parses a PEM encoded PKCS#1 or PKCS#8 RSA private key.
func ParseRSAKey(email string, pemBytes []byte) (*RSAKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("keys: failed to parse private key: %w", err)
	}
	return &RSAKey{email: email, key: key}, nil
}

// LoadServiceAccount reads a service-account JSON key file.
func LoadServiceAccount(jsonKey []byte) (*RSAKey, error) {
	cfg, err := google.JWTConfigFromJSON(jsonKey)
	if err != nil {
		return nil, fmt.Errorf("keys: failed to read service account key: %w", err)
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, ErrNoPrivateKey
	}

	k, err := ParseRSAKey(cfg.Email, cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	k.keyID = cfg.PrivateKeyID
	return k, nil
}

// ClientEmail returns the service account email.
func (k *RSAKey) ClientEmail() string { return k.email }

// KeyID returns the private key id from the key file, if any.
func (k *RSAKey) KeyID() string { return k.keyID }

// PrivateKey exposes the parsed key, e.g. for assertion signing.
func (k *RSAKey) PrivateKey() *rsa.PrivateKey { return k.key }

// Digest returns the hex encoded SHA-256 of data.
func (k *RSAKey) Digest(_ context.Context, data string) (string, error) {
	return hexSHA256(data), nil
}

// Sign returns the hex encoded RSASSA-PKCS1-v1_5 SHA-256 signature of
// payload, the form V4 URLs carry.
func (k *RSAKey) Sign(_ context.Context, payload string) (string, error) {
	sig, err := k.sign(payload)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

// SignV2 returns the base64 encoded signature of payload, the form V2 URLs
// carry.
func (k *RSAKey) SignV2(_ context.Context, payload string) (string, error) {
	sig, err := k.sign(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func (k *RSAKey) sign(payload string) ([]byte, error) {
	if k.key == nil {
		return nil, ErrNoPrivateKey
	}
	sum := sha256.Sum256([]byte(payload))
	sig, err := rsa.SignPKCS1v15(rand.Reader, k.key, crypto.SHA256, sum[:])
	if err != nil {
		return nil, fmt.Errorf("keys: failed to sign: %w", err)
	}
	return sig, nil
}

func hexSHA256(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
