// Package token issues and verifies the signed, self-contained session
// tokens used by interactive clients. Tokens are capability snapshots:
// scopes are fixed at issuance and never re-derived, except for the
// frozen-user check, which is always re-checked against the live snapshot.
package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/openexch/exauth/internal/autherr"
	"github.com/openexch/exauth/internal/frozen"
	"github.com/openexch/exauth/internal/identity"
)

const bearerScheme = "Bearer "

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// RoleFlags are the elevated roles a user may hold. Each true flag appends
// its scope set at issuance, subject to the issuer IP allowlist.
type RoleFlags struct {
	Admin      bool
	Support    bool
	Supervisor bool
	KYC        bool
	Tech       bool
}

type Claims struct {
	Email    string   `json:"email"`
	Scopes   []string `json:"scopes"`
	SourceIP string   `json:"source_ip"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret     []byte
	Issuer     string
	TTL        time.Duration
	BaseScopes []string

	// IPAllowlist restricts which source IPs receive role scopes at
	// issuance. Empty means unrestricted.
	IPAllowlist      []string
	AdminScopes      []string
	SupportScopes    []string
	SupervisorScopes []string
	KYCScopes        []string
	TechScopes       []string
}

type Service struct {
	cfg    Config
	frozen *frozen.Set
	Clock  Clock
}

func New(cfg Config, frozenSet *frozen.Set) *Service {
	return &Service{cfg: cfg, frozen: frozenSet, Clock: systemClock{}}
}

// TTL reports the configured token lifetime.
func (s *Service) TTL() time.Duration { return s.cfg.TTL }

// Issue signs a session token for the user. Role scopes are appended only
// when the allowlist permits the caller's source IP; the base scope set is
// always present. The token embeds the source IP for audit but verification
// does not pin sessions to it.
func (s *Service) Issue(userID uuid.UUID, email, sourceIP string, roles RoleFlags) (string, error) {
	scopes := append([]string(nil), s.cfg.BaseScopes...)

	if s.ipAllowed(sourceIP) {
		if roles.Admin {
			scopes = append(scopes, s.cfg.AdminScopes...)
		}
		if roles.Support {
			scopes = append(scopes, s.cfg.SupportScopes...)
		}
		if roles.Supervisor {
			scopes = append(scopes, s.cfg.SupervisorScopes...)
		}
		if roles.KYC {
			scopes = append(scopes, s.cfg.KYCScopes...)
		}
		if roles.Tech {
			scopes = append(scopes, s.cfg.TechScopes...)
		}
	}

	now := s.Clock.Now()
	claims := Claims{
		Email:    email,
		Scopes:   scopes,
		SourceIP: sourceIP,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TTL)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.cfg.Secret)
}

// Verify checks the Authorization header value against the required scopes.
// It is a pure function of the header, the clock, and the current frozen
// snapshot; it performs no store round-trips.
func (s *Service) Verify(header string, requiredScopes []string) (*identity.Identity, error) {
	if !strings.HasPrefix(header, bearerScheme) {
		return nil, autherr.E(autherr.KindMissingHeader, "missing or malformed authorization header")
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, bearerScheme))

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, autherr.E(autherr.KindInvalidToken, "unexpected signing method")
		}
		return s.cfg.Secret, nil
	}, jwt.WithTimeFunc(s.Clock.Now))
	if err != nil || !tok.Valid {
		return nil, autherr.E(autherr.KindInvalidToken, "token signature or payload invalid")
	}

	granted := Intersect(claims.Scopes, requiredScopes)
	if len(granted) == 0 {
		return nil, autherr.E(autherr.KindNotAuthorized, "token scopes do not cover this endpoint")
	}

	if claims.Issuer != s.cfg.Issuer {
		return nil, autherr.E(autherr.KindTokenExpired, "token issuer no longer accepted")
	}

	if s.frozen.Contains(claims.Subject) {
		return nil, autherr.E(autherr.KindDeactivatedUser, "account is deactivated")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, autherr.E(autherr.KindInvalidToken, "token subject malformed")
	}

	return &identity.Identity{
		UserID:   userID,
		Email:    claims.Email,
		Scopes:   claims.Scopes,
		SourceIP: claims.SourceIP,
	}, nil
}

// Intersect returns the elements of a that also appear in b, preserving the
// order of a.
func Intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (s *Service) ipAllowed(ip string) bool {
	if len(s.cfg.IPAllowlist) == 0 {
		return true
	}
	for _, allowed := range s.cfg.IPAllowlist {
		if allowed == ip {
			return true
		}
	}
	return false
}
