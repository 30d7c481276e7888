// Package signedurl builds signed URLs that grant time-limited access to
// Google Cloud Storage objects without handing out credentials.
//
// Two signing schemes are supported. Both must reproduce the string the
// storage service recomputes on its side byte for byte, so canonicalization
// lives in the canonical subpackage and is shared.
//
// # V4 (GOOG4-RSA-SHA256)
//
// The signing key is resolved per call, the canonical request is digested
// and the digest is signed:
//
//	signer := signedurl.NewV4Signer(signedurl.StaticKey(key))
//	url, err := signer.SignedURL(ctx, "my-bucket", "reports/2024.pdf", signedurl.SigningRequest{
//	    Method:  "GET",
//	    Expires: 15 * time.Minute,
//	})
//
// # V2 (legacy)
//
// The string to sign is handed to a signing function in one step:
//
//	signer := signedurl.NewV2Signer(signedurl.V2SignFuncFromKey(key))
//	url, err := signer.SignedURL(ctx, "my-bucket", "a b.txt", signedurl.SigningRequest{
//	    Method:    "GET",
//	    ExpiresAt: time.Now().Add(time.Hour),
//	})
//
// Keys backed by a local RSA key or by the IAM signBlob API live in the keys
// subpackage. Bearer tokens for regular API calls come from the auth
// subpackage.
package signedurl
