package signedurl

import "context"

// SigningKey is the capability the V4 signer consumes. Sign and Digest
// return the encoded (hex) form the storage service expects. The signer
// treats the key as opaque and never keeps it past a single call.
type SigningKey interface {
	ClientEmail() string
	Sign(ctx context.Context, payload string) (string, error)
	Digest(ctx context.Context, data string) (string, error)
}

// KeyResolver produces the SigningKey for one V4 signing call.
type KeyResolver func(ctx context.Context) (SigningKey, error)

// StaticKey returns a KeyResolver that always yields k.
func StaticKey(k SigningKey) KeyResolver {
	return func(context.Context) (SigningKey, error) {
		return k, nil
	}
}

// V2Signature is what a V2 signing function hands back.
type V2Signature struct {
	ClientEmail string
	Signature   string
}

// V2SignFunc signs a V2 string-to-sign in a single step.
type V2SignFunc func(ctx context.Context, payload string) (V2Signature, error)

// V2Key is a key able to produce V2 (base64) signatures.
type V2Key interface {
	ClientEmail() string
	SignV2(ctx context.Context, payload string) (string, error)
}

// V2SignFuncFromKey adapts a V2Key to a V2SignFunc.
func V2SignFuncFromKey(k V2Key) V2SignFunc {
	return func(ctx context.Context, payload string) (V2Signature, error) {
		sig, err := k.SignV2(ctx, payload)
		if err != nil {
			return V2Signature{}, err
		}
		return V2Signature{ClientEmail: k.ClientEmail(), Signature: sig}, nil
	}
}
