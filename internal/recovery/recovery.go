// Package recovery implements password validation, reset via single-use
// codes, and password change with old-password verification.
package recovery

import (
	"context"
	"errors"
	"unicode"

	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/openexch/exauth/internal/autherr"
	"github.com/openexch/exauth/internal/email"
	"github.com/openexch/exauth/internal/security"
	"github.com/openexch/exauth/internal/storage"
	"golang.org/x/sync/errgroup"
)

type Store interface {
	GetUserByEmail(ctx context.Context, email string) (*storage.User, error)
	UpdateUserPassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	GetOrCreateResetCode(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
	GetResetCode(ctx context.Context, code uuid.UUID) (*storage.ResetCode, error)
	MarkResetCodeUsed(ctx context.Context, code uuid.UUID) error
}

type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

type Service struct {
	Store   Store
	Captcha CaptchaVerifier
	Mailer  email.Mailer
	Logger  *slog.Logger
	Argon2  security.Argon2Params
}

// ValidPasswordFormat requires at least one letter, at least one digit and a
// minimum length of 8. Checked before any store access.
func ValidPasswordFormat(candidate string) bool {
	if len(candidate) < 8 {
		return false
	}
	var hasLetter, hasDigit bool
	for _, r := range candidate {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

// RequestReset obtains (or reuses) the user's single unused reset code,
// verifies the CAPTCHA token, and dispatches the reset email. The code
// issuance and the CAPTCHA call run concurrently; any failure aborts the
// operation before the email is sent.
func (s *Service) RequestReset(ctx context.Context, userEmail, captchaToken, sourceIP string) error {
	user, err := s.Store.GetUserByEmail(ctx, userEmail)
	if err != nil {
		return err
	}

	var code uuid.UUID
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		code, err = s.Store.GetOrCreateResetCode(gctx, user.ID)
		return err
	})
	g.Go(func() error {
		return s.Captcha.Verify(gctx, captchaToken, sourceIP)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	// Dispatch failures are logged, not surfaced: the code is already
	// persisted at this point. Known gap, kept as-is.
	if err := s.Mailer.Send(ctx, email.TemplateResetPassword, user.Email, map[string]any{
		"code": code.String(),
		"ip":   sourceIP,
	}); err != nil {
		s.Logger.Error("reset email dispatch failed", "error", err, "user_id", user.ID)
	}
	return nil
}

// ResetPassword consumes a single-use code and sets the new password. The
// mark-used write and the password update are two separate operations; a
// fault between them leaves the code consumed with the password unchanged.
// That window is accepted, not eliminated.
func (s *Service) ResetPassword(ctx context.Context, code, newPassword string) error {
	if !ValidPasswordFormat(newPassword) {
		return autherr.E(autherr.KindInvalidPassword, "password must be at least 8 characters with a letter and a digit")
	}

	codeID, err := uuid.Parse(code)
	if err != nil {
		return autherr.E(autherr.KindCodeNotFound, "reset code not found")
	}

	rc, err := s.Store.GetResetCode(ctx, codeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return autherr.E(autherr.KindCodeNotFound, "reset code not found")
		}
		return err
	}
	if rc.Used {
		return autherr.E(autherr.KindCodeUsed, "reset code already used")
	}

	if err := s.Store.MarkResetCodeUsed(ctx, codeID); err != nil {
		return err
	}

	hash, err := security.HashPassword(newPassword, s.Argon2)
	if err != nil {
		return err
	}
	return s.Store.UpdateUserPassword(ctx, rc.UserID, hash)
}

// ChangePassword verifies the old password and sets the new one. A wrong old
// password reports the same kind as a format failure on purpose: callers
// cannot distinguish "bad format" from "bad credentials".
func (s *Service) ChangePassword(ctx context.Context, userEmail, oldPassword, newPassword string) error {
	if oldPassword == newPassword {
		return autherr.E(autherr.KindSamePassword, "new password must differ from the old one")
	}
	if !ValidPasswordFormat(newPassword) {
		return autherr.E(autherr.KindInvalidPassword, "password must be at least 8 characters with a letter and a digit")
	}

	user, err := s.Store.GetUserByEmail(ctx, userEmail)
	if err != nil {
		return err
	}

	ok, err := security.VerifyPassword(oldPassword, user.PasswordHash)
	if err != nil || !ok {
		return autherr.E(autherr.KindInvalidPassword, "password verification failed")
	}

	hash, err := security.HashPassword(newPassword, s.Argon2)
	if err != nil {
		return err
	}
	return s.Store.UpdateUserPassword(ctx, user.ID, hash)
}
