// Package storage is a thin client for the Cloud Storage JSON API object
// endpoints: media uploads and downloads authorized with a bearer token.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tendant/simple-signedurl/pkg/signedurl/auth"
	"github.com/tendant/simple-signedurl/pkg/signedurl/canonical"
)

const (
	// DefaultEndpoint is the JSON API base URL.
	DefaultEndpoint = "https://storage.googleapis.com"

	defaultContentType = "application/octet-stream"
)

// ErrObjectNotFound is returned by Get for a 404
var ErrObjectNotFound = errors.New("storage: object not found")

// Object is the subset of object metadata returned by uploads.
type Object struct {
	Bucket          string    `json:"bucket"`
	Name            string    `json:"name"`
	ContentType     string    `json:"contentType"`
	ContentEncoding string    `json:"contentEncoding,omitempty"`
	Size            int64     `json:"size,string"`
	Generation      int64     `json:"generation,string"`
	MD5Hash         string    `json:"md5Hash"`
	Updated         time.Time `json:"updated"`
}

// APIError is returned for non-success responses. Body holds the raw
// response body.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storage: request failed with status %d: %s", e.StatusCode, e.Body)
}

// Client reads and writes objects of one bucket.
type Client struct {
	bucket   string
	tokens   auth.TokenSource
	client   auth.HTTPClient
	endpoint string
	logger   *slog.Logger
}

// Option is a functional option for configuring a Client
type Option func(*Client)

// WithHTTPClient sets the transport
func WithHTTPClient(client auth.HTTPClient) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithEndpoint overrides DefaultEndpoint
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for bucket authorized by tokens.
func New(bucket string, tokens auth.TokenSource, opts ...Option) (*Client, error) {
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	if tokens == nil {
		return nil, errors.New("storage: token source is required")
	}

	c := &Client{
		bucket:   bucket,
		tokens:   tokens,
		client:   http.DefaultClient,
		endpoint: DefaultEndpoint,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Create uploads body as object name with the given content type.
func (c *Client) Create(ctx context.Context, name string, body io.Reader, contentType string) (*Object, error) {
	q := url.Values{}
	q.Set("uploadType", "media")
	q.Set("name", name)
	return c.upload(ctx, q, body, contentType)
}

// Put uploads body as a publicly readable object stored with the given
// Content-Encoding (e.g. "gzip").
func (c *Client) Put(ctx context.Context, name string, body io.Reader, contentType, contentEncoding string) (*Object, error) {
	q := url.Values{}
	q.Set("uploadType", "media")
	q.Set("name", name)
	q.Set("predefinedAcl", "publicRead")
	if contentEncoding != "" {
		q.Set("contentEncoding", contentEncoding)
	}
	return c.upload(ctx, q, body, contentType)
}

// Get downloads object name. The caller closes the returned reader.
func (c *Client) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	u := c.endpoint + "/storage/v1/b/" + canonical.EncodeComponent(c.bucket) +
		"/o/" + canonical.EncodeComponent(name) + "?alt=media"

	resp, err := c.do(ctx, http.MethodGet, u, nil, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) upload(ctx context.Context, q url.Values, body io.Reader, contentType string) (*Object, error) {
	if contentType == "" {
		contentType = defaultContentType
	}
	u := c.endpoint + "/upload/storage/v1/b/" + canonical.EncodeComponent(c.bucket) + "/o?" + q.Encode()

	resp, err := c.do(ctx, http.MethodPost, u, body, contentType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var obj Object
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return nil, fmt.Errorf("storage: failed to decode object metadata: %w", err)
	}

	c.logger.Debug("Object uploaded", "bucket", obj.Bucket, "name", obj.Name, "size", strconv.FormatInt(obj.Size, 10))
	return &obj, nil
}

func (c *Client) do(ctx context.Context, method, u string, body io.Reader, contentType string) (*http.Response, error) {
	authz, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to get access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", authz)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage: request failed: %w", err)
	}
	return resp, nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
}
