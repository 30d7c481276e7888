package signedurl

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/simple-signedurl/pkg/signedurl/canonical"
)

const (
	// V4Algorithm names the V4 signing scheme.
	V4Algorithm = "GOOG4-RSA-SHA256"

	// DefaultV4Expiration is used when SigningRequest.Expires is zero. It is
	// also the longest lifetime Cloud Storage accepts.
	DefaultV4Expiration = 7 * 24 * time.Hour

	unsignedPayload  = "UNSIGNED-PAYLOAD"
	contentSHA256    = "x-goog-content-sha256"
	v4ScopeSuffix    = "/auto/storage/goog4_request"
	v4TimestampFmt   = "20060102T150405Z"
	v4SignatureParam = "x-goog-signature"
)

// V4Signer builds GOOG4-RSA-SHA256 signed URLs.
type V4Signer struct {
	resolver KeyResolver
	settings
}

// V4Result carries the signed URL together with the intermediate strings,
// which is what you compare against the server's error response when a
// signature is rejected.
type V4Result struct {
	URL              string
	CanonicalRequest string
	StringToSign     string
	Signature        string
	ClientEmail      string
	Timestamp        string
	ExpiresAt        time.Time
}

// NewV4Signer creates a V4 signer that resolves its key through resolver on
// every call.
func NewV4Signer(resolver KeyResolver, opts ...Option) *V4Signer {
	return &V4Signer{
		resolver: resolver,
		settings: newSettings(opts),
	}
}

// SignedURL returns a V4 signed URL for object in bucket.
func (s *V4Signer) SignedURL(ctx context.Context, bucket, object string, req SigningRequest) (string, error) {
	res, err := s.Sign(ctx, bucket, object, req)
	if err != nil {
		return "", err
	}
	return res.URL, nil
}

// Sign builds the V4 canonical request, has the resolved key digest and sign
// it, and assembles the URL. Failures of the resolver or the key are
// returned as is, without retry.
func (s *V4Signer) Sign(ctx context.Context, bucket, object string, req SigningRequest) (*V4Result, error) {
	if s.resolver == nil {
		return nil, ErrNoSigner
	}
	if bucket == "" {
		return nil, ErrMissingBucket
	}
	expiresSeconds, err := v4ExpiresSeconds(req.Expires)
	if err != nil {
		return nil, err
	}

	host := s.host(bucket)
	headers := canonical.CanonicalizeHeaders(v4Headers(req, host))
	signedHeaders := headers.Names()

	now := s.now().UTC()
	timestamp := now.Format(v4TimestampFmt)
	credentialScope := timestamp[:8] + v4ScopeSuffix

	resourcePath := canonical.EncodePath("/" + object)
	method := req.method()

	key, err := s.resolver(ctx)
	if err != nil {
		return nil, err
	}
	clientEmail := key.ClientEmail()

	query := canonical.Query{
		{Key: "X-Goog-Algorithm", Value: V4Algorithm},
		{Key: "X-Goog-Credential", Value: canonical.EncodeComponent(clientEmail + "/" + credentialScope)},
		{Key: "X-Goog-Date", Value: timestamp},
		{Key: "X-Goog-Expires", Value: strconv.FormatInt(expiresSeconds, 10)},
		{Key: "X-Goog-SignedHeaders", Value: canonical.EncodeComponent(signedHeaders)},
	}
	query = append(query, canonical.EncodedParams(req.QueryParams)...)
	query.Sort()
	queryString := query.Encode()

	payloadHash, ok := headers.Get(contentSHA256)
	if !ok {
		payloadHash = unsignedPayload
	}

	canonicalRequest := strings.Join([]string{
		method,
		resourcePath,
		queryString,
		headers.Block(),
		signedHeaders,
		payloadHash,
	}, "\n")

	hash, err := key.Digest(ctx, canonicalRequest)
	if err != nil {
		return nil, err
	}

	stringToSign := V4Algorithm + "\n" + timestamp + "\n" + credentialScope + "\n" + hash

	signature, err := key.Sign(ctx, stringToSign)
	if err != nil {
		return nil, err
	}

	signedURL := buildURL(host, resourcePath, append(query, canonical.Param{
		Key:   v4SignatureParam,
		Value: canonical.EncodeComponent(signature),
	}))

	s.logger.Debug("Signed V4 URL", "bucket", bucket, "object", object, "method", method,
		"client_email", clientEmail, "expires_in", expiresSeconds)

	return &V4Result{
		URL:              signedURL,
		CanonicalRequest: canonicalRequest,
		StringToSign:     stringToSign,
		Signature:        signature,
		ClientEmail:      clientEmail,
		Timestamp:        timestamp,
		ExpiresAt:        now.Add(time.Duration(expiresSeconds) * time.Second),
	}, nil
}

// v4Headers merges the caller's extension headers with the headers V4
// always signs. host, content-md5 and content-type replace any
// caller-supplied header of the same name regardless of case.
func v4Headers(req SigningRequest, host string) map[string]string {
	h := make(map[string]string, len(req.ExtensionHeaders)+3)
	for name, value := range req.ExtensionHeaders {
		h[name] = value
	}

	set := func(name, value string) {
		for existing := range h {
			if strings.EqualFold(existing, name) {
				delete(h, existing)
			}
		}
		h[name] = value
	}

	set("host", host)
	if req.ContentMD5 != "" {
		set("content-md5", req.ContentMD5)
	}
	if req.ContentType != "" {
		set("content-type", req.ContentType)
	}
	return h
}

// v4ExpiresSeconds converts a lifetime to the whole seconds carried in
// X-Goog-Expires. Zero selects DefaultV4Expiration.
func v4ExpiresSeconds(expires time.Duration) (int64, error) {
	switch {
	case expires == 0:
		return int64(DefaultV4Expiration / time.Second), nil
	case expires < time.Second:
		return 0, fmt.Errorf("%w: %s is not a positive number of seconds", ErrInvalidExpiration, expires)
	case expires > DefaultV4Expiration:
		return 0, fmt.Errorf("%w: %s exceeds %s", ErrInvalidExpiration, expires, DefaultV4Expiration)
	}
	return int64(expires / time.Second), nil
}
