package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/openexch/exauth/internal/audit"
	"github.com/openexch/exauth/internal/email"
	"github.com/openexch/exauth/internal/gate"
)

type requestResetRequest struct {
	Email   string `json:"email" binding:"required"`
	Captcha string `json:"captcha"`
}

type resetPasswordRequest struct {
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
	OTPCode     string `json:"otp_code"`
}

// RequestPasswordReset answers identically for known and unknown accounts so
// the endpoint cannot be used to enumerate registered emails.
func (h *Handler) RequestPasswordReset(c *gin.Context) {
	var req requestResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "invalid payload"})
		return
	}

	ip := c.ClientIP()
	if h.rateLimited(c, h.ResetLimiter, "reset:"+ip) {
		return
	}

	err := h.Recovery.RequestReset(c.Request.Context(), strings.ToLower(req.Email), req.Captcha, ip)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "if the account exists, a reset email has been sent"})
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "invalid payload"})
		return
	}

	if err := h.Recovery.ResetPassword(c.Request.Context(), req.Code, req.NewPassword); err != nil {
		h.respondError(c, err)
		return
	}

	h.Audit.Emit(audit.EventPasswordReset, uuid.Nil, c.ClientIP(), map[string]any{"code": req.Code})
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) ChangePassword(c *gin.Context) {
	id, ok := gate.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "identity missing"})
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "invalid payload"})
		return
	}

	if err := h.OTP.RequireValid(c.Request.Context(), id.UserID, req.OTPCode); err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.Recovery.ChangePassword(c.Request.Context(), id.Email, req.OldPassword, req.NewPassword); err != nil {
		h.respondError(c, err)
		return
	}

	h.Audit.Emit(audit.EventPasswordChanged, id.UserID, c.ClientIP(), nil)
	h.notify(c, id.Email, email.TemplatePasswordChanged, nil)

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
