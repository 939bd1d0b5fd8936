package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/openexch/exauth/internal/audit"
	"github.com/openexch/exauth/internal/gate"
	"github.com/openexch/exauth/internal/security"
	"github.com/openexch/exauth/internal/storage"
	"github.com/openexch/exauth/internal/token"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	OTPCode  string `json:"otp_code"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "invalid payload"})
		return
	}

	ip := c.ClientIP()
	if h.rateLimited(c, h.LoginLimiter, "login:"+ip) {
		return
	}

	user, err := h.Store.GetUserByEmail(c.Request.Context(), strings.ToLower(req.Email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.Audit.Emit(audit.EventLoginDenied, uuid.Nil, ip, map[string]any{"reason": "unknown_email"})
			c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "invalid credentials"})
			return
		}
		h.respondError(c, err)
		return
	}

	ok, err := security.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		h.Audit.Emit(audit.EventLoginDenied, user.ID, ip, map[string]any{"reason": "bad_password"})
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "invalid credentials"})
		return
	}

	if user.Status == storage.UserStatusFrozen {
		c.JSON(http.StatusForbidden, errorResponse{Code: "DEACTIVATED_USER", Message: "account is deactivated"})
		return
	}

	if err := h.OTP.RequireValid(c.Request.Context(), user.ID, req.OTPCode); err != nil {
		h.Audit.Emit(audit.EventLoginDenied, user.ID, ip, map[string]any{"reason": "bad_otp"})
		h.respondError(c, err)
		return
	}

	tok, err := h.Tokens.Issue(user.ID, user.Email, ip, token.RoleFlags{
		Admin:      user.IsAdmin,
		Support:    user.IsSupport,
		Supervisor: user.IsSupervisor,
		KYC:        user.IsKYC,
		Tech:       user.IsTech,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.Audit.Emit(audit.EventLogin, user.ID, ip, nil)
	c.JSON(http.StatusOK, loginResponse{
		Token:     tok,
		ExpiresIn: int64(h.Tokens.TTL().Seconds()),
	})
}

type whoamiResponse struct {
	UserID   string   `json:"user_id"`
	Email    string   `json:"email"`
	Scopes   []string `json:"scopes"`
	SourceIP string   `json:"source_ip,omitempty"`
}

func (h *Handler) Whoami(c *gin.Context) {
	id, ok := gate.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "identity missing"})
		return
	}
	c.JSON(http.StatusOK, whoamiResponse{
		UserID:   id.UserID.String(),
		Email:    id.Email,
		Scopes:   id.Scopes,
		SourceIP: id.SourceIP,
	})
}
