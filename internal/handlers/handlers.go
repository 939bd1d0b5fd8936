// Package handlers exposes the HTTP surface of the auth service: login,
// API key lifecycle, TOTP enrollment, and credential recovery.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/openexch/exauth/internal/audit"
	"github.com/openexch/exauth/internal/autherr"
	"github.com/openexch/exauth/internal/email"
	"github.com/openexch/exauth/internal/gate"
	"github.com/openexch/exauth/internal/otp"
	"github.com/openexch/exauth/internal/rate"
	"github.com/openexch/exauth/internal/recovery"
	"github.com/openexch/exauth/internal/storage"
	"github.com/openexch/exauth/internal/token"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Store interface {
	GetUserByEmail(ctx context.Context, email string) (*storage.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*storage.User, error)
	CreateAPIKey(ctx context.Context, userID uuid.UUID, key, secret, keyType, name string, expiresAt time.Time) (*storage.APIKey, error)
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]storage.APIKey, error)
	RevokeAPIKey(ctx context.Context, keyID uuid.UUID, userID uuid.UUID) error
}

type Handler struct {
	Store        Store
	Tokens       *token.Service
	OTP          *otp.Service
	Recovery     *recovery.Service
	LoginLimiter rate.Limiter
	ResetLimiter rate.Limiter
	Logger       *slog.Logger
	Audit        *audit.Emitter
	Mailer       email.Mailer
	Clock        Clock
}

func New(store Store, tokens *token.Service, otpSvc *otp.Service, recoverySvc *recovery.Service,
	loginLimiter, resetLimiter rate.Limiter, logger *slog.Logger, auditor *audit.Emitter, mailer email.Mailer) *Handler {
	return &Handler{
		Store:        store,
		Tokens:       tokens,
		OTP:          otpSvc,
		Recovery:     recoverySvc,
		LoginLimiter: loginLimiter,
		ResetLimiter: resetLimiter,
		Logger:       logger,
		Audit:        auditor,
		Mailer:       mailer,
		Clock:        systemClock{},
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine, g *gate.Gate) {
	r.POST("/auth/login", h.Login)
	r.POST("/auth/reset-password/request", h.RequestPasswordReset)
	r.POST("/auth/reset-password", h.ResetPassword)

	user := gate.Middleware(g, "user")
	r.GET("/user/me", user, h.Whoami)
	r.POST("/user/change-password", user, h.ChangePassword)
	r.POST("/user/api-keys", user, h.CreateAPIKey)
	r.GET("/user/api-keys", user, h.ListAPIKeys)
	r.DELETE("/user/api-keys/:id", user, h.RevokeAPIKey)
	r.POST("/user/otp/enroll", user, h.EnrollOTP)
	r.POST("/user/otp/confirm", user, h.ConfirmOTP)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respondError maps denial errors to their stable code and status; anything
// else is an infrastructure failure and surfaces as a plain 500.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind, ok := autherr.KindOf(err)
	if !ok {
		h.Logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}
	c.JSON(autherr.HTTPStatus(kind), errorResponse{Code: string(kind), Message: denialMessage(err)})
}

func denialMessage(err error) string {
	var ae *autherr.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "access denied"
}

// notify dispatches an account notification email. Failures are logged and
// swallowed; notifications never fail the request that triggered them.
func (h *Handler) notify(c *gin.Context, recipient string, kind email.Template, data map[string]any) {
	if h.Mailer == nil {
		return
	}
	if err := h.Mailer.Send(c.Request.Context(), kind, recipient, data); err != nil {
		h.Logger.Error("notification dispatch failed", "template", string(kind), "error", err)
	}
}

func (h *Handler) rateLimited(c *gin.Context, limiter rate.Limiter, key string) bool {
	if limiter == nil {
		return false
	}
	allowed, retryAfter, err := limiter.Allow(c.Request.Context(), key, h.Clock.Now())
	if err != nil {
		// A broken limiter backend must not lock everyone out.
		h.Logger.Error("rate limiter unavailable", "error", err)
		return false
	}
	if !allowed {
		c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		c.JSON(http.StatusTooManyRequests, errorResponse{Code: "RATE_LIMITED", Message: "too many requests"})
		return true
	}
	return false
}
