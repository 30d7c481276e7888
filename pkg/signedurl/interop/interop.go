// Package interop issues Cloud Storage URLs through the XML API's AWS SigV4
// compatibility layer, using HMAC keys and the AWS SDK instead of RSA
// service-account keys.
package interop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

const (
	// DefaultEndpoint is the XML API host.
	DefaultEndpoint = "https://storage.googleapis.com"

	// Region is the only region Cloud Storage accepts in SigV4 scopes.
	Region = "auto"

	defaultExpires = 15 * time.Minute
)

var (
	ErrBucketNotFound = errors.New("interop: bucket not found")
	ErrObjectNotFound = errors.New("interop: object not found")
	ErrAccessDenied   = errors.New("interop: access denied")
)

// Config options for the HMAC presigner
type Config struct {
	AccessID string        // HMAC key access id
	Secret   string        // HMAC key secret
	Bucket   string        // Bucket name
	Endpoint string        // Optional override of DefaultEndpoint
	Expires  time.Duration // Presigned URL lifetime (default: 15m)
	Logger   *slog.Logger
}

// Presigner signs XML API requests with an HMAC key.
type Presigner struct {
	client   *s3.Client
	presign  *s3.PresignClient
	accessID string
	bucket   string
	expires  time.Duration
	logger   *slog.Logger
}

// New builds a presigner from config.
func New(ctx context.Context, config Config) (*Presigner, error) {
	if config.Bucket == "" {
		return nil, errors.New("interop: bucket name is required")
	}
	if config.AccessID == "" || config.Secret == "" {
		return nil, errors.New("interop: HMAC access id and secret are required")
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Expires <= 0 {
		config.Expires = defaultExpires
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessID, config.Secret, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("interop: failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(config.Endpoint)
		o.UsePathStyle = true
		// Cloud Storage rejects the SDK's default flexible checksums.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &Presigner{
		client:   client,
		presign:  s3.NewPresignClient(client),
		accessID: config.AccessID,
		bucket:   config.Bucket,
		expires:  config.Expires,
		logger:   config.Logger,
	}, nil
}

// AccessID returns the HMAC key access id URLs are signed with.
func (p *Presigner) AccessID() string { return p.accessID }

// Bucket returns the bucket URLs are issued for.
func (p *Presigner) Bucket() string { return p.bucket }

// Expires returns the lifetime of presigned URLs.
func (p *Presigner) Expires() time.Duration { return p.expires }

// PresignGet returns a URL to download key.
func (p *Presigner) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.expires))
	if err != nil {
		return "", fmt.Errorf("interop: failed to presign GET: %w", err)
	}
	return req.URL, nil
}

// PresignPut returns a URL to upload key. When contentType is set the
// uploader must send the same Content-Type header.
func (p *Presigner) PresignPut(ctx context.Context, key, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := p.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(p.expires))
	if err != nil {
		return "", fmt.Errorf("interop: failed to presign PUT: %w", err)
	}
	return req.URL, nil
}

// Upload streams reader to key through the multipart-aware upload manager
// and returns the object location.
func (p *Presigner) Upload(ctx context.Context, key string, reader io.Reader, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   reader,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	out, err := manager.NewUploader(p.client).Upload(ctx, input)
	if err != nil {
		p.logger.Error("Upload failed", "bucket", p.bucket, "key", key, "err", err)
		return "", Classify(err)
	}
	return out.Location, nil
}

// Classify maps XML API error codes onto the package's sentinel errors. The
// original error stays in the chain.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("interop: %w", err)
	}
	switch apiErr.ErrorCode() {
	case "NoSuchBucket":
		return fmt.Errorf("%w: %w", ErrBucketNotFound, err)
	case "NoSuchKey", "NotFound":
		return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
	case "AccessDenied", "SignatureDoesNotMatch", "InvalidAccessKeyId", "InvalidSecurity":
		return fmt.Errorf("%w: %w", ErrAccessDenied, err)
	}
	return fmt.Errorf("interop: %w", err)
}
