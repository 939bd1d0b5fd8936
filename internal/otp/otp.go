// Package otp implements TOTP second-factor enrollment and verification.
// Codes are standard 6-digit, 30-second-step TOTP; validation tolerates one
// step of clock skew in either direction.
package otp

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/openexch/exauth/internal/autherr"
	"github.com/openexch/exauth/internal/storage"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	period = 30
	digits = otp.DigitsSix
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Store interface {
	CreateOTPSecret(ctx context.Context, userID uuid.UUID, secret string) (uuid.UUID, error)
	GetPendingOTPSecret(ctx context.Context, userID uuid.UUID) (*storage.OTPSecret, error)
	GetLastUsedOTPSecret(ctx context.Context, userID uuid.UUID) (*storage.OTPSecret, error)
	ConfirmOTPSecret(ctx context.Context, secretID uuid.UUID, userID uuid.UUID) error
	IsOTPEnabled(ctx context.Context, userID uuid.UUID) (bool, error)
}

type Service struct {
	Store  Store
	Issuer string
	Clock  Clock
}

func New(store Store, issuer string) *Service {
	return &Service{Store: store, Issuer: issuer, Clock: systemClock{}}
}

// GenerateSecret mints a fresh random secret bound to the deployment's
// issuer label. The returned value is the base32 secret for authenticator
// enrollment.
func (s *Service) GenerateSecret(account string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: account,
		Algorithm:   otp.AlgorithmSHA1,
		Digits:      digits,
		Period:      period,
	})
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

// Code computes the TOTP code for the step containing now+offset. Used by
// tests and by clients of the enrollment flow.
func (s *Service) Code(secret string, offset time.Duration) (string, error) {
	return totp.GenerateCodeCustom(secret, s.Clock.Now().Add(offset), totp.ValidateOpts{
		Period:    period,
		Digits:    digits,
		Algorithm: otp.AlgorithmSHA1,
	})
}

// VerifyCode accepts the candidate if it matches the current step or one
// step on either side.
func (s *Service) VerifyCode(secret, candidate string) bool {
	ok, err := totp.ValidateCustom(candidate, secret, s.Clock.Now(), totp.ValidateOpts{
		Period:    period,
		Skew:      1,
		Digits:    digits,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func (s *Service) IsEnabled(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.Store.IsOTPEnabled(ctx, userID)
}

// Enroll creates a new pending secret for the user and returns it. Callers
// are expected not to call this while an unused secret already exists; that
// expectation is not enforced here.
func (s *Service) Enroll(ctx context.Context, userID uuid.UUID, account string) (string, error) {
	secret, err := s.GenerateSecret(account)
	if err != nil {
		return "", err
	}
	if _, err := s.Store.CreateOTPSecret(ctx, userID, secret); err != nil {
		return "", err
	}
	return secret, nil
}

// ConfirmEnrollment verifies the candidate against the pending secret and,
// in one transaction, marks the secret used and enables OTP for the user.
func (s *Service) ConfirmEnrollment(ctx context.Context, userID uuid.UUID, candidate string) error {
	pending, err := s.Store.GetPendingOTPSecret(ctx, userID)
	if err != nil {
		return err
	}
	if !s.VerifyCode(pending.Secret, candidate) {
		return autherr.E(autherr.KindInvalidOTPCode, "otp code does not match")
	}
	return s.Store.ConfirmOTPSecret(ctx, pending.ID, userID)
}

// RequireValid gates sensitive account actions. Users who never enrolled
// pass trivially; OTP gating only applies to users who opted in.
func (s *Service) RequireValid(ctx context.Context, userID uuid.UUID, candidate string) error {
	enabled, err := s.Store.IsOTPEnabled(ctx, userID)
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}
	return s.verifyEnrolled(ctx, userID, candidate)
}

// RequireEnabledAndValid is the strict variant for actions that must not
// proceed at all without an enrolled second factor.
func (s *Service) RequireEnabledAndValid(ctx context.Context, userID uuid.UUID, candidate string) error {
	enabled, err := s.Store.IsOTPEnabled(ctx, userID)
	if err != nil {
		return err
	}
	if !enabled {
		return autherr.E(autherr.KindOTPMustBeEnabled, "otp must be enabled for this action")
	}
	return s.verifyEnrolled(ctx, userID, candidate)
}

func (s *Service) verifyEnrolled(ctx context.Context, userID uuid.UUID, candidate string) error {
	enrolled, err := s.Store.GetLastUsedOTPSecret(ctx, userID)
	if err != nil {
		return err
	}
	if !s.VerifyCode(enrolled.Secret, candidate) {
		return autherr.E(autherr.KindInvalidOTPCode, "otp code does not match")
	}
	return nil
}
