package keys

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tendant/simple-signedurl/pkg/signedurl/auth"
)

// DefaultKMSEndpoint is the Cloud KMS API base URL.
const DefaultKMSEndpoint = "https://cloudkms.googleapis.com/v1/"

// ErrInvalidPEM is returned when a public key response carries no PEM block
var ErrInvalidPEM = errors.New("keys: invalid PEM public key")

// PublicKeyResponse is the body of a cryptoKeyVersions.getPublicKey call.
type PublicKeyResponse struct {
	PEM       string `json:"pem"`
	Algorithm string `json:"algorithm"`
	PEMCRC32C string `json:"pemCrc32c"`
	Name      string `json:"name"`
}

// PublicKeyDecoder turns a getPublicKey response into a usable key.
type PublicKeyDecoder func(PublicKeyResponse) (crypto.PublicKey, error)

// KMSClient resolves public keys of asymmetric Cloud KMS key versions.
type KMSClient struct {
	client  auth.HTTPClient
	tokens  auth.TokenSource
	base    string
	decoder PublicKeyDecoder
}

// KMSConfig configures a KMSClient.
type KMSConfig struct {
	// CryptoKey is the resource name of the key, e.g.
	// projects/p/locations/global/keyRings/r/cryptoKeys/k.
	CryptoKey string

	// Endpoint overrides DefaultKMSEndpoint.
	Endpoint string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient auth.HTTPClient

	// Tokens authorizes requests. Optional.
	Tokens auth.TokenSource

	// Decoder defaults to DecodePublicKey.
	Decoder PublicKeyDecoder
}

// NewKMSClient creates a client for the key versions of cfg.CryptoKey.
func NewKMSClient(cfg KMSConfig) (*KMSClient, error) {
	if cfg.CryptoKey == "" {
		return nil, errors.New("keys: crypto key name is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultKMSEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Decoder == nil {
		cfg.Decoder = DecodePublicKey
	}

	return &KMSClient{
		client:  cfg.HTTPClient,
		tokens:  cfg.Tokens,
		base:    strings.TrimSuffix(cfg.Endpoint, "/") + "/" + strings.Trim(cfg.CryptoKey, "/") + "/cryptoKeyVersions/",
		decoder: cfg.Decoder,
	}, nil
}

// PublicKey fetches and decodes the public key of the given key version.
func (c *KMSClient) PublicKey(ctx context.Context, version string) (crypto.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+version+"/publicKey", nil)
	if err != nil {
		return nil, fmt.Errorf("keys: failed to create publicKey request: %w", err)
	}
	if c.tokens != nil {
		authz, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("keys: failed to get access token: %w", err)
		}
		req.Header.Set("Authorization", authz)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keys: publicKey request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("keys: failed to read publicKey response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{Op: "get public key", StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var body PublicKeyResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("keys: malformed publicKey response: %w", err)
	}
	return c.decoder(body)
}

// DecodePublicKey parses the PKIX PEM block of a getPublicKey response.
func DecodePublicKey(body PublicKeyResponse) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(body.PEM))
	if block == nil {
		return nil, ErrInvalidPEM
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPEM, err)
	}
	return key, nil
}
