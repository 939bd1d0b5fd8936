// Package gate is the single authorization entry point for protected
// endpoints. Exactly one credential path runs per request: bearer token or
// HMAC API key. There is no fallback between paths.
package gate

import (
	"context"

	"github.com/openexch/exauth/internal/autherr"
	"github.com/openexch/exauth/internal/identity"
)

// Request is the parsed authorization-relevant view of an inbound request,
// extracted once at the transport boundary.
type Request struct {
	APIKey         string
	Authorization  string
	APISignature   string
	APIExpires     string
	SourceIP       string
	Method         string
	Path           string
	Body           any
	RequiredScopes []string
}

type BearerVerifier interface {
	Verify(header string, requiredScopes []string) (*identity.Identity, error)
}

type KeyVerifier interface {
	Verify(ctx context.Context, key, sig, expires, method, path string, body any, requiredScopes []string) (*identity.Identity, error)
}

type Gate struct {
	Tokens BearerVerifier
	Keys   KeyVerifier
}

func New(tokens BearerVerifier, keys KeyVerifier) *Gate {
	return &Gate{Tokens: tokens, Keys: keys}
}

// Authorize selects the verification path from header presence and runs it.
// Presenting both credentials is a hard reject, independent of their
// validity; presenting neither is a missing-header reject.
func (g *Gate) Authorize(ctx context.Context, req Request) (*identity.Identity, error) {
	hasKey := req.APIKey != ""
	hasBearer := req.Authorization != ""

	switch {
	case hasKey && hasBearer:
		return nil, autherr.E(autherr.KindMultipleAPIKey, "request carries both api key and bearer token")
	case hasBearer:
		return g.Tokens.Verify(req.Authorization, req.RequiredScopes)
	case hasKey:
		return g.Keys.Verify(ctx, req.APIKey, req.APISignature, req.APIExpires, req.Method, req.Path, req.Body, req.RequiredScopes)
	default:
		return nil, autherr.E(autherr.KindMissingHeader, "no credentials presented")
	}
}
