package keys

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tendant/simple-signedurl/pkg/signedurl/auth"
)

// DefaultIAMEndpoint is the IAM Credentials API base URL.
const DefaultIAMEndpoint = "https://iamcredentials.googleapis.com/v1/"

// IAMSigner signs with a service account's Google-managed key through the
// IAM Credentials signBlob API, so the private key never leaves Google.
// Digests are computed locally.
type IAMSigner struct {
	email    string
	tokens   auth.TokenSource
	client   auth.HTTPClient
	endpoint string
	logger   *slog.Logger
}

// IAMOption is a functional option for configuring an IAMSigner
type IAMOption func(*IAMSigner)

// WithIAMHTTPClient sets the transport used for signBlob calls
func WithIAMHTTPClient(client auth.HTTPClient) IAMOption {
	return func(s *IAMSigner) {
		s.client = client
	}
}

// WithIAMEndpoint overrides the IAM Credentials base URL
func WithIAMEndpoint(endpoint string) IAMOption {
	return func(s *IAMSigner) {
		s.endpoint = endpoint
	}
}

// WithIAMLogger sets the logger
func WithIAMLogger(logger *slog.Logger) IAMOption {
	return func(s *IAMSigner) {
		s.logger = logger
	}
}

// NewIAMSigner creates a signer acting as the service account email. The
// caller's identity, carried by tokens, needs the
// iam.serviceAccounts.signBlob permission on that account.
func NewIAMSigner(email string, tokens auth.TokenSource, opts ...IAMOption) *IAMSigner {
	s := &IAMSigner{
		email:    email,
		tokens:   tokens,
		client:   http.DefaultClient,
		endpoint: DefaultIAMEndpoint,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClientEmail returns the service account email.
func (s *IAMSigner) ClientEmail() string { return s.email }

// Digest returns the hex encoded SHA-256 of data.
func (s *IAMSigner) Digest(_ context.Context, data string) (string, error) {
	return hexSHA256(data), nil
}

// Sign returns the hex encoded signature of payload.
func (s *IAMSigner) Sign(ctx context.Context, payload string) (string, error) {
	sig, err := s.signBlob(ctx, payload)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

// SignV2 returns the base64 encoded signature of payload.
func (s *IAMSigner) SignV2(ctx context.Context, payload string) (string, error) {
	sig, err := s.signBlob(ctx, payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

type signBlobRequest struct {
	Payload string `json:"payload"`
}

type signBlobResponse struct {
	KeyID      string `json:"keyId"`
	SignedBlob string `json:"signedBlob"`
}

func (s *IAMSigner) signBlob(ctx context.Context, payload string) ([]byte, error) {
	authz, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("keys: failed to get access token: %w", err)
	}

	body, err := json.Marshal(signBlobRequest{
		Payload: base64.StdEncoding.EncodeToString([]byte(payload)),
	})
	if err != nil {
		return nil, err
	}

	endpoint := s.endpoint + "projects/-/serviceAccounts/" + url.PathEscape(s.email) + ":signBlob"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("keys: failed to create signBlob request: %w", err)
	}
	req.Header.Set("Authorization", authz)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keys: signBlob request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("keys: failed to read signBlob response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Error("signBlob rejected", "service_account", s.email, "status", resp.StatusCode)
		return nil, &RemoteError{Op: "signBlob", StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var sbr signBlobResponse
	if err := json.Unmarshal(raw, &sbr); err != nil {
		return nil, fmt.Errorf("keys: malformed signBlob response: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(sbr.SignedBlob)
	if err != nil {
		return nil, fmt.Errorf("keys: malformed signedBlob: %w", err)
	}

	s.logger.Debug("Signed blob", "service_account", s.email, "key_id", sbr.KeyID)
	return sig, nil
}

// RemoteError is returned when a Google API answers with a non-success
// status. Body holds the raw response body.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("keys: %s failed with status %d\n%s", e.Op, e.StatusCode, e.Body)
}
