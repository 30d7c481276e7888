package signedurl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingV2 struct {
	payload string
	err     error
}

func (r *recordingV2) sign(_ context.Context, payload string) (V2Signature, error) {
	r.payload = payload
	if r.err != nil {
		return V2Signature{}, r.err
	}
	return V2Signature{ClientEmail: testEmail, Signature: "ab+/="}, nil
}

func TestV2Signer_StringToSign(t *testing.T) {
	rec := &recordingV2{}
	signer := NewV2Signer(rec.sign)

	res, err := signer.Sign(context.Background(), "my-bucket", "a b.txt", SigningRequest{
		Method:    "GET",
		ExpiresAt: time.Unix(1700000000, 0),
	})
	require.NoError(t, err)

	assert.Equal(t, "GET\n\n\n1700000000\n/my-bucket/a%20b.txt", res.StringToSign)
	assert.Equal(t, res.StringToSign, rec.payload)
	assert.Equal(t,
		"https://my-bucket.storage.googleapis.com/a%20b.txt"+
			"?GoogleAccessId=svc%40proj.iam.gserviceaccount.com"+
			"&Expires=1700000000"+
			"&Signature=ab%2B%2F%3D",
		res.URL)
}

func TestV2Signer_HeadersAndDefaults(t *testing.T) {
	rec := &recordingV2{}
	signer := NewV2Signer(rec.sign)

	_, err := signer.Sign(context.Background(), "my-bucket", "photos/cat.png", SigningRequest{
		ContentMD5:  "md5==",
		ContentType: "image/png",
		ExpiresAt:   time.Unix(1700000000, 0),
		ExtensionHeaders: map[string]string{
			"X-Goog-Acl":    "public-read",
			"x-goog-meta-A": " b  c",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "PUT\nmd5==\nimage/png\n1700000000\n"+
		"x-goog-acl:public-read\n"+
		"x-goog-meta-a:b c\n"+
		"/my-bucket/photos/cat.png", rec.payload)
}

func TestV2Signer_QueryParams(t *testing.T) {
	signer := NewV2Signer((&recordingV2{}).sign)

	url, err := signer.SignedURL(context.Background(), "b", "dir/o(1).txt", SigningRequest{
		Method:    "GET",
		ExpiresAt: time.Unix(1700000000, 0),
		QueryParams: map[string]string{
			"response-content-disposition": "attachment; filename=o.txt",
			"generation":                   "42",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "https://b.storage.googleapis.com/dir/o%281%29.txt"+
		"?GoogleAccessId=svc%40proj.iam.gserviceaccount.com"+
		"&Expires=1700000000"+
		"&Signature=ab%2B%2F%3D"+
		"&generation=42"+
		"&response-content-disposition=attachment%3B%20filename%3Do.txt", url)
}

func TestV2Signer_QueryParamOverridesInPlace(t *testing.T) {
	signer := NewV2Signer((&recordingV2{}).sign)

	url, err := signer.SignedURL(context.Background(), "b", "o", SigningRequest{
		ExpiresAt:   time.Unix(1700000000, 0),
		QueryParams: map[string]string{"GoogleAccessId": "other@example.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, "https://b.storage.googleapis.com/o"+
		"?GoogleAccessId=other%40example.com"+
		"&Expires=1700000000"+
		"&Signature=ab%2B%2F%3D", url)
}

func TestV2Signer_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing expiration", func(t *testing.T) {
		_, err := NewV2Signer((&recordingV2{}).sign).SignedURL(ctx, "b", "o", SigningRequest{})
		assert.ErrorIs(t, err, ErrMissingExpiration)
	})

	t.Run("signer failure is returned unchanged", func(t *testing.T) {
		boom := errors.New("signBlob: permission denied")
		_, err := NewV2Signer((&recordingV2{err: boom}).sign).SignedURL(ctx, "b", "o", SigningRequest{
			ExpiresAt: time.Unix(1700000000, 0),
		})
		assert.Equal(t, boom, err)
	})

	t.Run("no signer", func(t *testing.T) {
		_, err := NewV2Signer(nil).SignedURL(ctx, "b", "o", SigningRequest{ExpiresAt: time.Now()})
		assert.ErrorIs(t, err, ErrNoSigner)
	})
}

type v2KeyStub struct{}

func (v2KeyStub) ClientEmail() string { return testEmail }
func (v2KeyStub) SignV2(_ context.Context, payload string) (string, error) {
	return "sig(" + payload + ")", nil
}

func TestV2SignFuncFromKey(t *testing.T) {
	sig, err := V2SignFuncFromKey(v2KeyStub{})(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, V2Signature{ClientEmail: testEmail, Signature: "sig(x)"}, sig)
}
