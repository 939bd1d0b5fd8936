// Package apikey verifies long-lived key/secret pairs against HMAC-signed
// requests. Verification is read-only: the key record is never mutated by a
// lookup, and a revoked key can never verify again.
package apikey

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/openexch/exauth/internal/autherr"
	"github.com/openexch/exauth/internal/identity"
	"github.com/openexch/exauth/internal/storage"
	"github.com/openexch/exauth/libs/signature"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Store interface {
	GetAPIKeyByKey(ctx context.Context, key string) (*storage.APIKey, string, error)
}

// SystemPair is the deployment-wide key/secret used for
// network-to-network calls that are not tied to a user.
type SystemPair struct {
	Key    string
	Secret string
}

type Service struct {
	Store  Store
	System SystemPair
	Clock  Clock
}

func New(store Store, system SystemPair) *Service {
	return &Service{Store: store, System: system, Clock: systemClock{}}
}

// Verify checks a signed request against a stored key record. The check
// order is fixed: presence, request window, lookup, scope, record expiry,
// active state, then the signature itself.
func (s *Service) Verify(ctx context.Context, key, sig, expires, method, path string, body any, requiredScopes []string) (*identity.Identity, error) {
	if err := s.checkRequest(key, sig, expires); err != nil {
		return nil, err
	}

	record, ownerEmail, err := s.Store.GetAPIKeyByKey(ctx, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, autherr.E(autherr.KindAPIKeyInvalid, "api key not recognized")
		}
		return nil, err
	}

	if !scopeAllowed(record.Type, requiredScopes) {
		return nil, autherr.E(autherr.KindAPIKeyOutOfScope, "api key type not permitted on this endpoint")
	}
	if s.Clock.Now().After(record.ExpiresAt) {
		return nil, autherr.E(autherr.KindAPIKeyExpired, "api key has expired")
	}
	if record.Revoked || !record.Active {
		return nil, autherr.E(autherr.KindAPIKeyInactive, "api key is not active")
	}

	ok, err := signature.Verify(record.Secret, sig, method, path, expires, body)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, autherr.E(autherr.KindAPISignatureInvalid, "request signature does not match")
	}

	return &identity.Identity{
		UserID: record.UserID,
		Email:  ownerEmail,
		Scopes: []string{record.Type},
	}, nil
}

// VerifySystem validates the deployment-wide key pair for internal calls.
// Same ordering as Verify minus the scope and ownership checks.
func (s *Service) VerifySystem(key, sig, expires, method, path string, body any) error {
	if err := s.checkRequest(key, sig, expires); err != nil {
		return err
	}
	if s.System.Key == "" || key != s.System.Key {
		return autherr.E(autherr.KindAPIKeyInvalid, "api key not recognized")
	}

	ok, err := signature.Verify(s.System.Secret, sig, method, path, expires, body)
	if err != nil {
		return err
	}
	if !ok {
		return autherr.E(autherr.KindAPISignatureInvalid, "request signature does not match")
	}
	return nil
}

func (s *Service) checkRequest(key, sig, expires string) error {
	if key == "" {
		return autherr.E(autherr.KindAPIKeyNull, "api key header is empty")
	}
	if sig == "" {
		return autherr.E(autherr.KindAPISignatureNull, "api signature header is empty")
	}

	// The client-supplied expiry is only an upper bound; it is checked
	// against the server's own clock.
	ts, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return autherr.E(autherr.KindAPIRequestExpired, "api-expires header malformed")
	}
	if s.Clock.Now().After(time.Unix(ts, 0)) {
		return autherr.E(autherr.KindAPIRequestExpired, "request window has expired")
	}
	return nil
}

func scopeAllowed(keyType string, requiredScopes []string) bool {
	for _, scope := range requiredScopes {
		if scope == keyType {
			return true
		}
	}
	return false
}

// Generate mints a new key/secret pair: a base32 key id presented on
// requests and a base64url secret used only for signing.
func Generate() (key string, secret string, err error) {
	keyBuf := make([]byte, 10)
	if _, err := rand.Read(keyBuf); err != nil {
		return "", "", err
	}
	secretBuf := make([]byte, 32)
	if _, err := rand.Read(secretBuf); err != nil {
		return "", "", err
	}

	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	key = strings.ToLower(enc.EncodeToString(keyBuf))
	secret = base64.RawURLEncoding.EncodeToString(secretBuf)
	return key, secret, nil
}
