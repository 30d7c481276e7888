// Package api exposes the signers over HTTP: callers post a description of
// the request they want to authorize and receive a signed URL. Every
// issued URL is recorded in the ledger.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"

	"github.com/tendant/simple-signedurl/pkg/signedurl"
	"github.com/tendant/simple-signedurl/pkg/signedurl/auth"
	"github.com/tendant/simple-signedurl/pkg/signedurl/ledger"
	"github.com/tendant/simple-signedurl/pkg/signedurl/ledger/memory"
)

// HMACPresigner issues XML API URLs signed with an HMAC key.
// *interop.Presigner implements it.
type HMACPresigner interface {
	AccessID() string
	Bucket() string
	Expires() time.Duration
	PresignGet(ctx context.Context, key string) (string, error)
	PresignPut(ctx context.Context, key, contentType string) (string, error)
}

// Handler serves the signing endpoints.
type Handler struct {
	v4     *signedurl.V4Signer
	v2     *signedurl.V2Signer
	hmac   HMACPresigner
	ledger ledger.Store
	tokens auth.TokenSource
	jwt    *jwtauth.JWTAuth
	now    func() time.Time
	logger *slog.Logger
}

// Option is a functional option for configuring the Handler
type Option func(*Handler)

// WithV2Signer enables POST /v2/sign
func WithV2Signer(s *signedurl.V2Signer) Option {
	return func(h *Handler) {
		h.v2 = s
	}
}

// WithHMACPresigner enables POST /hmac/sign
func WithHMACPresigner(p HMACPresigner) Option {
	return func(h *Handler) {
		h.hmac = p
	}
}

// WithLedger sets the issuance store. Default is an in-memory store.
func WithLedger(store ledger.Store) Option {
	return func(h *Handler) {
		h.ledger = store
	}
}

// WithTokenSource enables GET /token
func WithTokenSource(tokens auth.TokenSource) Option {
	return func(h *Handler) {
		h.tokens = tokens
	}
}

// WithJWTSecret requires an HS256 bearer token signed with secret on every
// endpoint except /healthz.
func WithJWTSecret(secret string) Option {
	return func(h *Handler) {
		if secret != "" {
			h.jwt = jwtauth.New("HS256", []byte(secret), nil)
		}
	}
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a handler issuing V4 URLs through v4. A nil v4 leaves
// POST /v4/sign unmounted.
func NewHandler(v4 *signedurl.V4Signer, opts ...Option) *Handler {
	h := &Handler{
		v4:     v4,
		ledger: memory.New(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for the signing endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if h.jwt != nil {
			r.Use(jwtauth.Verifier(h.jwt))
			r.Use(jwtauth.Authenticator)
		}

		if h.v4 != nil {
			r.Post("/v4/sign", h.SignV4)
		}
		if h.v2 != nil {
			r.Post("/v2/sign", h.SignV2)
		}
		if h.hmac != nil {
			r.Post("/hmac/sign", h.SignHMAC)
		}
		if h.tokens != nil {
			r.Get("/token", h.GetToken)
		}
		r.Get("/issuances", h.ListIssuances)
		r.Get("/issuances/{issuance_id}", h.GetIssuance)
	})
	return r
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: msg})
}

// signingStatus maps signer errors to response codes: caller mistakes are
// 400, everything else is a failure of the signing backend.
func signingStatus(err error) int {
	switch {
	case errors.Is(err, signedurl.ErrMissingBucket),
		errors.Is(err, signedurl.ErrMissingExpiration),
		errors.Is(err, signedurl.ErrInvalidExpiration):
		return http.StatusBadRequest
	case errors.Is(err, signedurl.ErrNoSigner):
		return http.StatusNotImplemented
	}
	return http.StatusBadGateway
}
