package signedurl

import (
	"net/http"
	"strings"
	"time"

	"github.com/tendant/simple-signedurl/pkg/signedurl/canonical"
)

// SigningRequest describes the request a signed URL will authorize.
// Empty strings and nil maps mean "absent" and are left out of the
// canonical strings entirely.
type SigningRequest struct {
	// Method is the HTTP method the URL is valid for. Default is PUT.
	Method string

	ContentMD5  string
	ContentType string

	// Expires is the V4 lifetime counted from the signing time.
	// Default is 7 days.
	Expires time.Duration

	// ExpiresAt is the absolute V2 expiry. Required for V2.
	ExpiresAt time.Time

	// ExtensionHeaders are extra headers the client must send. Name case
	// does not matter.
	ExtensionHeaders map[string]string

	// QueryParams are extra query parameters added to the URL, and for V4
	// covered by the signature.
	QueryParams map[string]string
}

func (r SigningRequest) method() string {
	if r.Method == "" {
		return http.MethodPut
	}
	return r.Method
}

// buildURL assembles https://<host><path>?<query>.
func buildURL(host, path string, q canonical.Query) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	var b strings.Builder
	b.WriteString("https://")
	b.WriteString(host)
	b.WriteString(path)
	if len(q) > 0 {
		b.WriteByte('?')
		b.WriteString(q.Encode())
	}
	return b.String()
}
