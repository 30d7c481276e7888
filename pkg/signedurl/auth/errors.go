package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenExchange is matched by every *TokenError.
	ErrTokenExchange = errors.New("auth: token exchange failed")

	// ErrMalformedToken is returned when the token endpoint answers 2xx with
	// a body that cannot be decoded.
	ErrMalformedToken = errors.New("auth: malformed token response")
)

// TokenError is returned when the token endpoint answers with a non-success
// status. Body holds the raw response body.
type TokenError struct {
	StatusCode int
	Body       string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("auth: token endpoint returned %d: %s", e.StatusCode, e.Body)
}

// Is reports whether target is ErrTokenExchange.
func (e *TokenError) Is(target error) bool {
	return target == ErrTokenExchange
}
