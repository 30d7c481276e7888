// Package canonical holds the encoding and header canonicalization rules
// shared by the V2 and V4 URL signers. Every function here is deterministic:
// the server recomputes the same strings and compares them byte for byte.
package canonical

import (
	"net/url"
	"strings"
)

// EncodeComponent percent-encodes s so that only A-Z a-z 0-9 - _ . ~ are left
// as is. Unlike url.QueryEscape a space becomes %20, never '+'.
func EncodeComponent(s string) string {
	// QueryEscape already escapes ! ' ( ) * and a literal '+' as %2B, so any
	// '+' left in its output stands for a space.
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// EncodePath encodes s like EncodeComponent but keeps forward slashes, so a
// nested object name stays a path.
func EncodePath(s string) string {
	return strings.ReplaceAll(EncodeComponent(s), "%2F", "/")
}
