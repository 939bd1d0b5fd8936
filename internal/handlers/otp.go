package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openexch/exauth/internal/audit"
	"github.com/openexch/exauth/internal/gate"
)

type confirmOTPRequest struct {
	Code string `json:"code" binding:"required"`
}

// EnrollOTP mints a pending secret for the caller. The secret only becomes
// the account's second factor after ConfirmOTP proves the authenticator
// produces matching codes.
func (h *Handler) EnrollOTP(c *gin.Context) {
	id, ok := gate.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "identity missing"})
		return
	}

	secret, err := h.OTP.Enroll(c.Request.Context(), id.UserID, id.Email)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"secret": secret})
}

func (h *Handler) ConfirmOTP(c *gin.Context) {
	id, ok := gate.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "identity missing"})
		return
	}

	var req confirmOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "invalid payload"})
		return
	}

	if err := h.OTP.ConfirmEnrollment(c.Request.Context(), id.UserID, req.Code); err != nil {
		h.respondError(c, err)
		return
	}

	h.Audit.Emit(audit.EventOTPEnabled, id.UserID, c.ClientIP(), nil)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
