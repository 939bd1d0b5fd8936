package gate

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openexch/exauth/internal/autherr"
	"github.com/openexch/exauth/internal/identity"
	"github.com/openexch/exauth/libs/metrics"
)

const (
	headerAPIKey       = "api-key"
	headerAPISignature = "api-signature"
	headerAPIExpires   = "api-expires"

	contextIdentityKey = "auth_identity"
)

// Middleware adapts the gate to gin. The request body is buffered only when
// an API key is presented, since the HMAC covers it.
func Middleware(g *Gate, requiredScopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := Request{
			APIKey:         c.GetHeader(headerAPIKey),
			Authorization:  c.GetHeader("Authorization"),
			APISignature:   c.GetHeader(headerAPISignature),
			APIExpires:     c.GetHeader(headerAPIExpires),
			SourceIP:       c.ClientIP(),
			Method:         c.Request.Method,
			Path:           c.Request.URL.Path,
			RequiredScopes: requiredScopes,
		}

		credPath := "bearer"
		if req.APIKey != "" {
			credPath = "apikey"
			body, err := io.ReadAll(c.Request.Body)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "unreadable body"})
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
			req.Body = body
		}

		id, err := g.Authorize(c.Request.Context(), req)
		if err != nil {
			kind, ok := autherr.KindOf(err)
			if !ok {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "message": "internal error"})
				return
			}
			metrics.AuthDecisions.WithLabelValues(credPath, "deny").Inc()
			metrics.AuthDenials.WithLabelValues(string(kind)).Inc()
			c.AbortWithStatusJSON(autherr.HTTPStatus(kind), gin.H{"code": string(kind), "message": denialMessage(err)})
			return
		}

		metrics.AuthDecisions.WithLabelValues(credPath, "allow").Inc()
		c.Set(contextIdentityKey, id)
		c.Next()
	}
}

func IdentityFromContext(c *gin.Context) (*identity.Identity, bool) {
	val, ok := c.Get(contextIdentityKey)
	if !ok {
		return nil, false
	}
	id, ok := val.(*identity.Identity)
	return id, ok
}

func denialMessage(err error) string {
	var ae *autherr.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "access denied"
}
