package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens string

func (s staticTokens) Token(context.Context) (string, error) { return string(s), nil }

type failingTokens struct{ err error }

func (f failingTokens) Token(context.Context) (string, error) { return "", f.err }

func TestNew_Validation(t *testing.T) {
	_, err := New("", staticTokens("Bearer t"))
	assert.Error(t, err)

	_, err = New("bucket", nil)
	assert.Error(t, err)
}

func TestClient_Create(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/upload/storage/v1/b/my-bucket/o", r.URL.Path)
		assert.Equal(t, "media", r.URL.Query().Get("uploadType"))
		assert.Equal(t, "dir/a b.json", r.URL.Query().Get("name"))
		assert.Empty(t, r.URL.Query().Get("predefinedAcl"))
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"k":1}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bucket":"my-bucket","name":"dir/a b.json","contentType":"application/json","size":"7","generation":"1700000000000000"}`))
	}))
	defer srv.Close()

	c, err := New("my-bucket", staticTokens("Bearer abc"), WithEndpoint(srv.URL))
	require.NoError(t, err)

	obj, err := c.Create(context.Background(), "dir/a b.json", strings.NewReader(`{"k":1}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", obj.Bucket)
	assert.Equal(t, "dir/a b.json", obj.Name)
	assert.Equal(t, int64(7), obj.Size)
	assert.Equal(t, int64(1700000000000000), obj.Generation)
}

func TestClient_Put(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "publicRead", q.Get("predefinedAcl"))
		assert.Equal(t, "gzip", q.Get("contentEncoding"))
		assert.Equal(t, "obj.gz", q.Get("name"))
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"bucket":"b","name":"obj.gz","contentEncoding":"gzip","size":"3"}`))
	}))
	defer srv.Close()

	c, err := New("b", staticTokens("Bearer abc"), WithEndpoint(srv.URL))
	require.NoError(t, err)

	obj, err := c.Put(context.Background(), "obj.gz", strings.NewReader("xyz"), "", "gzip")
	require.NoError(t, err)
	assert.Equal(t, "gzip", obj.ContentEncoding)
}

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "media", r.URL.Query().Get("alt"))
		switch r.URL.EscapedPath() {
		case "/storage/v1/b/b/o/dir%2Fhello.txt":
			w.Write([]byte("hello"))
		case "/storage/v1/b/b/o/denied":
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte("forbidden"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c, err := New("b", staticTokens("Bearer abc"), WithEndpoint(srv.URL))
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		rc, err := c.Get(ctx, "dir/hello.txt")
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	})

	t.Run("missing", func(t *testing.T) {
		_, err := c.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrObjectNotFound)
	})

	t.Run("api error", func(t *testing.T) {
		_, err := c.Get(ctx, "denied")
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.Equal(t, "forbidden", apiErr.Body)
	})
}

func TestClient_TokenFailure(t *testing.T) {
	boom := errors.New("token endpoint down")
	c, err := New("b", failingTokens{boom})
	require.NoError(t, err)

	_, err = c.Create(context.Background(), "x", strings.NewReader(""), "")
	assert.ErrorIs(t, err, boom)
}
