package signedurl

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEmail = "svc@proj.iam.gserviceaccount.com"

// recordingKey returns canned values and remembers what it was asked to
// digest and sign.
type recordingKey struct {
	digestIn  string
	signIn    string
	digestErr error
	signErr   error
}

func (k *recordingKey) ClientEmail() string { return testEmail }

func (k *recordingKey) Digest(_ context.Context, data string) (string, error) {
	k.digestIn = data
	if k.digestErr != nil {
		return "", k.digestErr
	}
	return "HASH", nil
}

func (k *recordingKey) Sign(_ context.Context, payload string) (string, error) {
	k.signIn = payload
	if k.signErr != nil {
		return "", k.signErr
	}
	return "ab+/=", nil
}

func fixedClock() time.Time {
	return time.Date(2024, 1, 2, 3, 4, 5, 999, time.UTC)
}

func TestV4Signer_SignedURL(t *testing.T) {
	key := &recordingKey{}
	signer := NewV4Signer(StaticKey(key), WithClock(fixedClock))

	res, err := signer.Sign(context.Background(), "my-bucket", "dir/a b.txt", SigningRequest{
		Method:      "GET",
		ContentType: "text/plain",
		Expires:     15 * time.Minute,
		ExtensionHeaders: map[string]string{
			"X-Goog-Meta-Owner": "  jane   doe ",
		},
		QueryParams: map[string]string{
			"userProject": "billing proj",
		},
	})
	require.NoError(t, err)

	query := "X-Goog-Algorithm=GOOG4-RSA-SHA256" +
		"&X-Goog-Credential=svc%40proj.iam.gserviceaccount.com%2F20240102%2Fauto%2Fstorage%2Fgoog4_request" +
		"&X-Goog-Date=20240102T030405Z" +
		"&X-Goog-Expires=900" +
		"&X-Goog-SignedHeaders=content-type%3Bhost%3Bx-goog-meta-owner" +
		"&userProject=billing%20proj"

	wantCanonical := "GET\n" +
		"/dir/a%20b.txt\n" +
		query + "\n" +
		"content-type:text/plain\n" +
		"host:my-bucket.storage.googleapis.com\n" +
		"x-goog-meta-owner:jane doe\n" +
		"\n" +
		"content-type;host;x-goog-meta-owner\n" +
		"UNSIGNED-PAYLOAD"

	assert.Equal(t, wantCanonical, res.CanonicalRequest)
	assert.Equal(t, wantCanonical, key.digestIn)

	wantStringToSign := "GOOG4-RSA-SHA256\n20240102T030405Z\n20240102/auto/storage/goog4_request\nHASH"
	assert.Equal(t, wantStringToSign, res.StringToSign)
	assert.Equal(t, wantStringToSign, key.signIn)

	assert.Equal(t,
		"https://my-bucket.storage.googleapis.com/dir/a%20b.txt?"+query+"&x-goog-signature=ab%2B%2F%3D",
		res.URL)
	assert.Equal(t, testEmail, res.ClientEmail)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 19, 5, 999, time.UTC), res.ExpiresAt)
}

func TestV4Signer_Defaults(t *testing.T) {
	key := &recordingKey{}
	signer := NewV4Signer(StaticKey(key), WithClock(fixedClock))

	res, err := signer.Sign(context.Background(), "b", "o", SigningRequest{
		ExtensionHeaders: map[string]string{},
	})
	require.NoError(t, err)

	assert.Contains(t, res.URL, "&X-Goog-Expires=604800&")
	assert.Equal(t, "PUT\n/o\n"+
		"X-Goog-Algorithm=GOOG4-RSA-SHA256"+
		"&X-Goog-Credential=svc%40proj.iam.gserviceaccount.com%2F20240102%2Fauto%2Fstorage%2Fgoog4_request"+
		"&X-Goog-Date=20240102T030405Z"+
		"&X-Goog-Expires=604800"+
		"&X-Goog-SignedHeaders=host\n"+
		"host:b.storage.googleapis.com\n\n"+
		"host\n"+
		"UNSIGNED-PAYLOAD", res.CanonicalRequest)
}

func TestV4Signer_ContentSHA256Header(t *testing.T) {
	signer := NewV4Signer(StaticKey(&recordingKey{}), WithClock(fixedClock))

	res, err := signer.Sign(context.Background(), "b", "o", SigningRequest{
		ExtensionHeaders: map[string]string{"X-Goog-Content-SHA256": "e3b0c442"},
	})
	require.NoError(t, err)

	assert.Contains(t, res.CanonicalRequest, "\nhost;x-goog-content-sha256\ne3b0c442")
}

func TestV4Signer_MandatoryHeadersWin(t *testing.T) {
	signer := NewV4Signer(StaticKey(&recordingKey{}), WithClock(fixedClock))

	res, err := signer.Sign(context.Background(), "b", "o", SigningRequest{
		ContentMD5: "rL0Y20zC+Fzt72VPzMSk2A==",
		ExtensionHeaders: map[string]string{
			"Host":        "attacker.example.com",
			"Content-MD5": "stale",
		},
	})
	require.NoError(t, err)

	assert.Contains(t, res.CanonicalRequest, "content-md5:rL0Y20zC+Fzt72VPzMSk2A==\nhost:b.storage.googleapis.com\n\ncontent-md5;host\n")
	assert.NotContains(t, res.CanonicalRequest, "attacker")
}

func TestV4Signer_HeaderOrderDoesNotMatter(t *testing.T) {
	signer := NewV4Signer(StaticKey(&recordingKey{}), WithClock(fixedClock))
	ctx := context.Background()

	headers := map[string]string{
		"x-goog-meta-c": "3",
		"X-Goog-Meta-A": "1",
		"x-goog-meta-b": "2",
		"X-Goog-Acl":    "private",
	}
	params := map[string]string{"z": "1", "a": "2", "M": "3"}

	first, err := signer.Sign(ctx, "b", "o", SigningRequest{ExtensionHeaders: headers, QueryParams: params})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		copied := make(map[string]string, len(headers))
		for k, v := range headers {
			copied[k] = v
		}
		res, err := signer.Sign(ctx, "b", "o", SigningRequest{ExtensionHeaders: copied, QueryParams: params})
		require.NoError(t, err)
		assert.Equal(t, first.CanonicalRequest, res.CanonicalRequest)
		assert.Equal(t, first.URL, res.URL)
	}

	assert.Contains(t, first.URL, "?M=3&X-Goog-Algorithm=")
	assert.Contains(t, first.URL, "&a=2&z=1&x-goog-signature=")
}

func TestV4Signer_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	t.Run("resolver", func(t *testing.T) {
		signer := NewV4Signer(func(context.Context) (SigningKey, error) { return nil, boom })
		_, err := signer.SignedURL(ctx, "b", "o", SigningRequest{})
		assert.Same(t, boom, err)
	})

	t.Run("digest", func(t *testing.T) {
		key := &recordingKey{digestErr: boom}
		_, err := NewV4Signer(StaticKey(key)).SignedURL(ctx, "b", "o", SigningRequest{})
		assert.Same(t, boom, err)
		assert.Empty(t, key.signIn)
	})

	t.Run("sign", func(t *testing.T) {
		_, err := NewV4Signer(StaticKey(&recordingKey{signErr: boom})).SignedURL(ctx, "b", "o", SigningRequest{})
		assert.Same(t, boom, err)
	})

	t.Run("missing bucket", func(t *testing.T) {
		_, err := NewV4Signer(StaticKey(&recordingKey{})).SignedURL(ctx, "", "o", SigningRequest{})
		assert.ErrorIs(t, err, ErrMissingBucket)
	})

	t.Run("negative expiration", func(t *testing.T) {
		_, err := NewV4Signer(StaticKey(&recordingKey{})).SignedURL(ctx, "b", "o", SigningRequest{Expires: -time.Second})
		assert.ErrorIs(t, err, ErrInvalidExpiration)
	})

	t.Run("sub-second expiration", func(t *testing.T) {
		key := &recordingKey{}
		_, err := NewV4Signer(StaticKey(key)).SignedURL(ctx, "b", "o", SigningRequest{Expires: 500 * time.Millisecond})
		assert.ErrorIs(t, err, ErrInvalidExpiration)
		assert.Empty(t, key.signIn)
	})

	t.Run("expiration over seven days", func(t *testing.T) {
		_, err := NewV4Signer(StaticKey(&recordingKey{})).SignedURL(ctx, "b", "o",
			SigningRequest{Expires: DefaultV4Expiration + time.Second})
		assert.ErrorIs(t, err, ErrInvalidExpiration)
	})

	t.Run("no resolver", func(t *testing.T) {
		_, err := NewV4Signer(nil).SignedURL(ctx, "b", "o", SigningRequest{})
		assert.ErrorIs(t, err, ErrNoSigner)
	})
}

func TestV4Signer_HostTemplate(t *testing.T) {
	signer := NewV4Signer(StaticKey(&recordingKey{}),
		WithClock(fixedClock),
		WithHostTemplate("%s.storage.example.com"),
	)

	res, err := signer.Sign(context.Background(), "b", "o", SigningRequest{})
	require.NoError(t, err)
	assert.Contains(t, res.CanonicalRequest, "host:b.storage.example.com\n")
	assert.True(t, strings.HasPrefix(res.URL, "https://b.storage.example.com/o?"))
}

func TestV4ExpiresSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int64
	}{
		{0, 604800},
		{time.Second, 1},
		{1500 * time.Millisecond, 1},
		{time.Hour, 3600},
		{DefaultV4Expiration, 604800},
	}
	for _, tt := range tests {
		got, err := v4ExpiresSeconds(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
