package signedurl

import "errors"

var (
	// ErrMissingBucket is returned when no bucket name is given
	ErrMissingBucket = errors.New("signedurl: bucket name is required")

	// ErrMissingExpiration is returned by the V2 signer when ExpiresAt is not set
	ErrMissingExpiration = errors.New("signedurl: expiration is required")

	// ErrInvalidExpiration is returned for a V4 lifetime that is negative,
	// shorter than a second or longer than seven days
	ErrInvalidExpiration = errors.New("signedurl: invalid expiration")

	// ErrNoSigner is returned when a signer was constructed without a key
	// resolver or signing function
	ErrNoSigner = errors.New("signedurl: no signing capability configured")
)
