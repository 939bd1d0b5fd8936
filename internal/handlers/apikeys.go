package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/openexch/exauth/internal/apikey"
	"github.com/openexch/exauth/internal/audit"
	"github.com/openexch/exauth/internal/email"
	"github.com/openexch/exauth/internal/gate"
	"github.com/openexch/exauth/internal/storage"
)

const (
	defaultKeyType   = "user"
	defaultKeyExpiry = 90 * 24 * time.Hour
	maxKeyExpiry     = 365 * 24 * time.Hour
)

type createAPIKeyRequest struct {
	Name         string `json:"name" binding:"required"`
	Type         string `json:"type"`
	ExpiresInDay int    `json:"expires_in_days"`
	OTPCode      string `json:"otp_code"`
}

type apiKeyResponse struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Secret    string    `json:"secret,omitempty"`
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	Revoked   bool      `json:"revoked"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateAPIKey mints a key pair for the caller. The secret appears in this
// response only; it is never readable again.
func (h *Handler) CreateAPIKey(c *gin.Context) {
	id, ok := gate.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "identity missing"})
		return
	}

	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "invalid payload"})
		return
	}

	if err := h.OTP.RequireValid(c.Request.Context(), id.UserID, req.OTPCode); err != nil {
		h.respondError(c, err)
		return
	}

	keyType := req.Type
	if keyType == "" {
		keyType = defaultKeyType
	}
	expiry := defaultKeyExpiry
	if req.ExpiresInDay > 0 {
		expiry = time.Duration(req.ExpiresInDay) * 24 * time.Hour
		if expiry > maxKeyExpiry {
			expiry = maxKeyExpiry
		}
	}

	key, secret, err := apikey.Generate()
	if err != nil {
		h.respondError(c, err)
		return
	}

	rec, err := h.Store.CreateAPIKey(c.Request.Context(), id.UserID, key, secret, keyType, req.Name, h.Clock.Now().Add(expiry))
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.Audit.Emit(audit.EventAPIKeyCreated, id.UserID, c.ClientIP(), map[string]any{
		"key_id": rec.ID.String(),
		"name":   rec.Name,
		"type":   rec.Type,
	})
	h.notify(c, id.Email, email.TemplateAPIKeyCreated, map[string]any{"name": rec.Name})

	c.JSON(http.StatusCreated, toAPIKeyResponse(rec, secret))
}

func (h *Handler) ListAPIKeys(c *gin.Context) {
	id, ok := gate.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "identity missing"})
		return
	}

	items, err := h.Store.ListAPIKeys(c.Request.Context(), id.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make([]apiKeyResponse, 0, len(items))
	for i := range items {
		out = append(out, toAPIKeyResponse(&items[i], ""))
	}
	c.JSON(http.StatusOK, gin.H{"api_keys": out})
}

func (h *Handler) RevokeAPIKey(c *gin.Context) {
	id, ok := gate.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "identity missing"})
		return
	}

	keyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "malformed key id"})
		return
	}

	otpCode := c.GetHeader("otp-code")
	if err := h.OTP.RequireValid(c.Request.Context(), id.UserID, otpCode); err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.Store.RevokeAPIKey(c.Request.Context(), keyID, id.UserID); err != nil {
		h.respondError(c, err)
		return
	}

	h.Audit.Emit(audit.EventAPIKeyRevoked, id.UserID, c.ClientIP(), map[string]any{"key_id": keyID.String()})
	h.notify(c, id.Email, email.TemplateAPIKeyRevoked, map[string]any{"key_id": keyID.String()})

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func toAPIKeyResponse(rec *storage.APIKey, secret string) apiKeyResponse {
	return apiKeyResponse{
		ID:        rec.ID.String(),
		Key:       rec.Key,
		Secret:    secret,
		Type:      rec.Type,
		Name:      rec.Name,
		Active:    rec.Active,
		Revoked:   rec.Revoked,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
	}
}
