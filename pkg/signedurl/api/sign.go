package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/simple-signedurl/pkg/signedurl"
	"github.com/tendant/simple-signedurl/pkg/signedurl/ledger"
)

// SignRequest describes the request the signed URL should authorize
type SignRequest struct {
	Bucket      string            `json:"bucket"`
	Object      string            `json:"object"`
	Method      string            `json:"method,omitempty"`
	ContentMD5  string            `json:"content_md5,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	ExpiresIn   int64             `json:"expires_in,omitempty"` // seconds
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"` // V2 only
	Headers     map[string]string `json:"headers,omitempty"`
	Query       map[string]string `json:"query,omitempty"`
}

// SignResponse carries the signed URL and its ledger entry
type SignResponse struct {
	IssuanceID       string    `json:"issuance_id"`
	URL              string    `json:"url"`
	Method           string    `json:"method"`
	Scheme           string    `json:"scheme"`
	ClientEmail      string    `json:"client_email"`
	ExpiresAt        time.Time `json:"expires_at"`
	CanonicalRequest string    `json:"canonical_request,omitempty"`
	StringToSign     string    `json:"string_to_sign,omitempty"`
}

// HMACSignRequest asks for an XML API URL signed with the HMAC key
type HMACSignRequest struct {
	Object      string `json:"object"`
	Method      string `json:"method,omitempty"` // GET or PUT
	ContentType string `json:"content_type,omitempty"`
}

// maxExpiresIn bounds expires_in to the longest lifetime Cloud Storage
// accepts for V4 URLs.
var maxExpiresIn = int64(signedurl.DefaultV4Expiration / time.Second)

// TokenResponse carries the cached Authorization header value
type TokenResponse struct {
	Authorization string `json:"authorization"`
}

func (req *SignRequest) signingRequest() signedurl.SigningRequest {
	sr := signedurl.SigningRequest{
		Method:           strings.ToUpper(req.Method),
		ContentMD5:       req.ContentMD5,
		ContentType:      req.ContentType,
		Expires:          time.Duration(req.ExpiresIn) * time.Second,
		ExtensionHeaders: req.Headers,
		QueryParams:      req.Query,
	}
	if sr.Method == "" {
		sr.Method = http.MethodPut
	}
	return sr
}

// SignV4 issues a V4 signed URL
func (h *Handler) SignV4(w http.ResponseWriter, r *http.Request) {
	var req SignRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.logger.Error("Fail to decode request", "err", err)
		h.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ExpiresIn > maxExpiresIn {
		h.writeError(w, r, http.StatusBadRequest, "expires_in exceeds "+strconv.FormatInt(maxExpiresIn, 10)+" seconds")
		return
	}

	sr := req.signingRequest()
	res, err := h.v4.Sign(r.Context(), req.Bucket, req.Object, sr)
	if err != nil {
		h.logger.Error("Failed to sign V4 URL", "bucket", req.Bucket, "object", req.Object, "err", err)
		h.writeError(w, r, signingStatus(err), err.Error())
		return
	}

	issuance := ledger.NewIssuance(req.Bucket, req.Object, sr.Method, ledger.SchemeV4,
		res.ClientEmail, res.ExpiresAt, h.now())
	if !h.record(w, r, issuance) {
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, SignResponse{
		IssuanceID:       issuance.ID.String(),
		URL:              res.URL,
		Method:           sr.Method,
		Scheme:           string(ledger.SchemeV4),
		ClientEmail:      res.ClientEmail,
		ExpiresAt:        res.ExpiresAt,
		CanonicalRequest: res.CanonicalRequest,
		StringToSign:     res.StringToSign,
	})
}

// SignV2 issues a V2 signed URL. The expiry is expires_at, or expires_in
// seconds from now.
func (h *Handler) SignV2(w http.ResponseWriter, r *http.Request) {
	var req SignRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.logger.Error("Fail to decode request", "err", err)
		h.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ExpiresIn > maxExpiresIn {
		h.writeError(w, r, http.StatusBadRequest, "expires_in exceeds "+strconv.FormatInt(maxExpiresIn, 10)+" seconds")
		return
	}

	sr := req.signingRequest()
	sr.Expires = 0
	switch {
	case req.ExpiresAt != nil:
		sr.ExpiresAt = *req.ExpiresAt
	case req.ExpiresIn > 0:
		sr.ExpiresAt = h.now().Add(time.Duration(req.ExpiresIn) * time.Second)
	}

	res, err := h.v2.Sign(r.Context(), req.Bucket, req.Object, sr)
	if err != nil {
		h.logger.Error("Failed to sign V2 URL", "bucket", req.Bucket, "object", req.Object, "err", err)
		h.writeError(w, r, signingStatus(err), err.Error())
		return
	}

	expiresAt := time.Unix(sr.ExpiresAt.Unix(), 0).UTC()
	issuance := ledger.NewIssuance(req.Bucket, req.Object, sr.Method, ledger.SchemeV2,
		res.ClientEmail, expiresAt, h.now())
	if !h.record(w, r, issuance) {
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, SignResponse{
		IssuanceID:   issuance.ID.String(),
		URL:          res.URL,
		Method:       sr.Method,
		Scheme:       string(ledger.SchemeV2),
		ClientEmail:  res.ClientEmail,
		ExpiresAt:    expiresAt,
		StringToSign: res.StringToSign,
	})
}

// SignHMAC issues an XML API URL signed with the configured HMAC key
func (h *Handler) SignHMAC(w http.ResponseWriter, r *http.Request) {
	var req HMACSignRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.logger.Error("Fail to decode request", "err", err)
		h.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Object == "" {
		h.writeError(w, r, http.StatusBadRequest, "object is required")
		return
	}

	method := strings.ToUpper(req.Method)
	var (
		u   string
		err error
	)
	switch method {
	case "", http.MethodGet:
		method = http.MethodGet
		u, err = h.hmac.PresignGet(r.Context(), req.Object)
	case http.MethodPut:
		u, err = h.hmac.PresignPut(r.Context(), req.Object, req.ContentType)
	default:
		h.writeError(w, r, http.StatusBadRequest, "method must be GET or PUT")
		return
	}
	if err != nil {
		h.logger.Error("Failed to presign HMAC URL", "object", req.Object, "err", err)
		h.writeError(w, r, http.StatusBadGateway, err.Error())
		return
	}

	now := h.now()
	expiresAt := now.Add(h.hmac.Expires())
	issuance := ledger.NewIssuance(h.hmac.Bucket(), req.Object, method, ledger.SchemeHMAC,
		h.hmac.AccessID(), expiresAt, now)
	if !h.record(w, r, issuance) {
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, SignResponse{
		IssuanceID:  issuance.ID.String(),
		URL:         u,
		Method:      method,
		Scheme:      string(ledger.SchemeHMAC),
		ClientEmail: h.hmac.AccessID(),
		ExpiresAt:   issuance.ExpiresAt,
	})
}

// GetToken returns the cached OAuth2 Authorization header value
func (h *Handler) GetToken(w http.ResponseWriter, r *http.Request) {
	authz, err := h.tokens.Token(r.Context())
	if err != nil {
		h.logger.Error("Failed to get access token", "err", err)
		h.writeError(w, r, http.StatusBadGateway, err.Error())
		return
	}
	render.JSON(w, r, TokenResponse{Authorization: authz})
}

// ListIssuances lists recorded issuances, newest first
func (h *Handler) ListIssuances(w http.ResponseWriter, r *http.Request) {
	bucket := r.URL.Query().Get("bucket")
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid limit")
		return
	}

	issuances, err := h.ledger.List(r.Context(), bucket, limit)
	if err != nil {
		h.logger.Error("Failed to list issuances", "bucket", bucket, "err", err)
		h.writeError(w, r, http.StatusInternalServerError, "failed to list issuances")
		return
	}
	if issuances == nil {
		issuances = []*ledger.Issuance{}
	}
	render.JSON(w, r, issuances)
}

// GetIssuance returns one recorded issuance
func (h *Handler) GetIssuance(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "issuance_id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid issuance ID")
		return
	}

	issuance, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			h.writeError(w, r, http.StatusNotFound, "issuance not found")
			return
		}
		h.logger.Error("Failed to get issuance", "issuance_id", idStr, "err", err)
		h.writeError(w, r, http.StatusInternalServerError, "failed to get issuance")
		return
	}
	render.JSON(w, r, issuance)
}

// record writes the issuance to the ledger. A URL whose issuance cannot be
// recorded is not handed out.
func (h *Handler) record(w http.ResponseWriter, r *http.Request, issuance *ledger.Issuance) bool {
	if err := h.ledger.Record(r.Context(), issuance); err != nil {
		h.logger.Error("Failed to record issuance", "bucket", issuance.Bucket, "object", issuance.Object, "err", err)
		h.writeError(w, r, http.StatusInternalServerError, "failed to record issuance")
		return false
	}
	h.logger.Info("Signed URL issued", "issuance_id", issuance.ID, "bucket", issuance.Bucket,
		"object", issuance.Object, "method", issuance.Method, "scheme", issuance.Scheme)
	return true
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.New("invalid limit")
	}
	return limit, nil
}
