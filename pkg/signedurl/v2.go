package signedurl

import (
	"context"
	"sort"
	"strconv"

	"github.com/tendant/simple-signedurl/pkg/signedurl/canonical"
)

// V2Signer builds legacy V2 signed URLs (GoogleAccessId/Expires/Signature).
type V2Signer struct {
	sign V2SignFunc
	settings
}

// V2Result carries the signed URL and the string that was signed.
type V2Result struct {
	URL          string
	StringToSign string
	ClientEmail  string
	Signature    string
}

// NewV2Signer creates a V2 signer backed by sign.
func NewV2Signer(sign V2SignFunc, opts ...Option) *V2Signer {
	return &V2Signer{
		sign:     sign,
		settings: newSettings(opts),
	}
}

// SignedURL returns a V2 signed URL for object in bucket.
func (s *V2Signer) SignedURL(ctx context.Context, bucket, object string, req SigningRequest) (string, error) {
	res, err := s.Sign(ctx, bucket, object, req)
	if err != nil {
		return "", err
	}
	return res.URL, nil
}

// Sign builds the V2 string to sign, signs it in one step and assembles the
// URL. Errors from the signing function are returned unchanged.
func (s *V2Signer) Sign(ctx context.Context, bucket, object string, req SigningRequest) (*V2Result, error) {
	if s.sign == nil {
		return nil, ErrNoSigner
	}
	if bucket == "" {
		return nil, ErrMissingBucket
	}
	if req.ExpiresAt.IsZero() {
		return nil, ErrMissingExpiration
	}

	encodedObject := canonical.EncodePath(object)
	expires := strconv.FormatInt(req.ExpiresAt.Unix(), 10)
	method := req.method()

	stringToSign := method + "\n" +
		req.ContentMD5 + "\n" +
		req.ContentType + "\n" +
		expires + "\n" +
		canonical.CanonicalizeHeaders(req.ExtensionHeaders).Block() +
		"/" + bucket + "/" + encodedObject

	sig, err := s.sign(ctx, stringToSign)
	if err != nil {
		return nil, err
	}

	query := canonical.Query{
		{Key: "GoogleAccessId", Value: canonical.EncodeComponent(sig.ClientEmail)},
		{Key: "Expires", Value: expires},
		{Key: "Signature", Value: canonical.EncodeComponent(sig.Signature)},
	}
	// Extra parameters follow in key order; one that names a base parameter
	// overrides it in place.
	keys := make([]string, 0, len(req.QueryParams))
	for k := range req.QueryParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		query = query.Set(canonical.EncodeComponent(k), canonical.EncodeComponent(req.QueryParams[k]))
	}

	s.logger.Debug("Signed V2 URL", "bucket", bucket, "object", object, "method", method,
		"client_email", sig.ClientEmail, "expires", expires)

	return &V2Result{
		URL:          buildURL(s.host(bucket), encodedObject, query),
		StringToSign: stringToSign,
		ClientEmail:  sig.ClientEmail,
		Signature:    sig.Signature,
	}, nil
}
