// Package ledger records the signed URLs issued by the service so operators
// can audit who was granted what, and until when.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 100

var (
	ErrNotFound        = errors.New("ledger: issuance not found")
	ErrInvalidIssuance = errors.New("ledger: invalid issuance")
)

// Scheme identifies the signing scheme of an issued URL.
type Scheme string

const (
	SchemeV4   Scheme = "v4"
	SchemeV2   Scheme = "v2"
	SchemeHMAC Scheme = "hmac"
)

// Issuance is one issued URL. The URL itself is not stored: it is a bearer
// credential.
type Issuance struct {
	ID          uuid.UUID `json:"id"`
	Bucket      string    `json:"bucket"`
	Object      string    `json:"object"`
	Method      string    `json:"method"`
	Scheme      Scheme    `json:"scheme"`
	ClientEmail string    `json:"client_email"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the fields every store requires.
func (i *Issuance) Validate() error {
	if i.ID == uuid.Nil {
		return errors.Join(ErrInvalidIssuance, errors.New("id is required"))
	}
	if i.Bucket == "" {
		return errors.Join(ErrInvalidIssuance, errors.New("bucket is required"))
	}
	if i.Method == "" {
		return errors.Join(ErrInvalidIssuance, errors.New("method is required"))
	}
	return nil
}

// NewIssuance fills in a fresh ID and creation time.
func NewIssuance(bucket, object, method string, scheme Scheme, clientEmail string, expiresAt, now time.Time) *Issuance {
	return &Issuance{
		ID:          uuid.New(),
		Bucket:      bucket,
		Object:      object,
		Method:      method,
		Scheme:      scheme,
		ClientEmail: clientEmail,
		ExpiresAt:   expiresAt.UTC(),
		CreatedAt:   now.UTC(),
	}
}

// Store persists issuances.
type Store interface {
	Record(ctx context.Context, issuance *Issuance) error
	// List returns the newest issuances first. An empty bucket lists all
	// buckets.
	List(ctx context.Context, bucket string, limit int) ([]*Issuance, error)
	Get(ctx context.Context, id uuid.UUID) (*Issuance, error)
}

// NormalizeLimit applies DefaultListLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultListLimit {
		return DefaultListLimit
	}
	return limit
}
