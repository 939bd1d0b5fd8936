package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, status, otp_enabled,
		       is_admin, is_support, is_supervisor, is_kyc, is_tech, created_at
		FROM users
		WHERE email = $1
	`, email)

	var user User
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Status, &user.OTPEnabled,
		&user.IsAdmin, &user.IsSupport, &user.IsSupervisor, &user.IsKYC, &user.IsTech, &user.CreatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, status, otp_enabled,
		       is_admin, is_support, is_supervisor, is_kyc, is_tech, created_at
		FROM users
		WHERE id = $1
	`, id)

	var user User
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Status, &user.OTPEnabled,
		&user.IsAdmin, &user.IsSupport, &user.IsSupervisor, &user.IsKYC, &user.IsTech, &user.CreatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`, userID, passwordHash)
	return err
}

func (s *Store) ListFrozenUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM users WHERE status = $1
	`, UserStatusFrozen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id.String())
	}
	return ids, rows.Err()
}

// GetAPIKeyByKey returns the key record and the owning user's email.
func (s *Store) GetAPIKeyByKey(ctx context.Context, key string) (*APIKey, string, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT k.id, k.user_id, k.key, k.secret, k.type, k.name,
		       k.active, k.revoked, k.expires_at, k.created_at, u.email
		FROM api_keys k
		JOIN users u ON u.id = k.user_id
		WHERE k.key = $1
	`, key)

	var rec APIKey
	var ownerEmail string
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Key, &rec.Secret, &rec.Type, &rec.Name,
		&rec.Active, &rec.Revoked, &rec.ExpiresAt, &rec.CreatedAt, &ownerEmail); err != nil {
		return nil, "", err
	}
	return &rec, ownerEmail, nil
}

func (s *Store) CreateAPIKey(ctx context.Context, userID uuid.UUID, key, secret, keyType, name string, expiresAt time.Time) (*APIKey, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO api_keys (user_id, key, secret, type, name, active, revoked, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, true, false, $6, now())
		RETURNING id, user_id, key, secret, type, name, active, revoked, expires_at, created_at
	`, userID, key, secret, keyType, name, expiresAt)

	var rec APIKey
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Key, &rec.Secret, &rec.Type, &rec.Name,
		&rec.Active, &rec.Revoked, &rec.ExpiresAt, &rec.CreatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]APIKey, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, key, secret, type, name, active, revoked, expires_at, created_at
		FROM api_keys
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []APIKey
	for rows.Next() {
		var rec APIKey
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Key, &rec.Secret, &rec.Type, &rec.Name,
			&rec.Active, &rec.Revoked, &rec.ExpiresAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

// RevokeAPIKey is irreversible: revoked keys are never reactivated and never
// physically deleted here.
func (s *Store) RevokeAPIKey(ctx context.Context, keyID uuid.UUID, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE api_keys
		SET revoked = true, active = false, updated_at = now()
		WHERE id = $1 AND user_id = $2
	`, keyID, userID)
	return err
}

func (s *Store) CreateOTPSecret(ctx context.Context, userID uuid.UUID, secret string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO otp_secrets (user_id, secret, used, created_at)
		VALUES ($1, $2, false, now())
		RETURNING id
	`, userID, secret).Scan(&id)
	return id, err
}

func (s *Store) GetPendingOTPSecret(ctx context.Context, userID uuid.UUID) (*OTPSecret, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, secret, used, created_at
		FROM otp_secrets
		WHERE user_id = $1 AND used = false
		ORDER BY created_at DESC
		LIMIT 1
	`, userID)

	var sec OTPSecret
	if err := row.Scan(&sec.ID, &sec.UserID, &sec.Secret, &sec.Used, &sec.CreatedAt); err != nil {
		return nil, err
	}
	return &sec, nil
}

func (s *Store) GetLastUsedOTPSecret(ctx context.Context, userID uuid.UUID) (*OTPSecret, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, secret, used, created_at
		FROM otp_secrets
		WHERE user_id = $1 AND used = true
		ORDER BY created_at DESC
		LIMIT 1
	`, userID)

	var sec OTPSecret
	if err := row.Scan(&sec.ID, &sec.UserID, &sec.Secret, &sec.Used, &sec.CreatedAt); err != nil {
		return nil, err
	}
	return &sec, nil
}

// ConfirmOTPSecret marks the secret used and enables OTP for the user inside
// one transaction; neither write is visible without the other.
func (s *Store) ConfirmOTPSecret(ctx context.Context, secretID uuid.UUID, userID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `
		UPDATE otp_secrets
		SET used = true
		WHERE id = $1 AND user_id = $2 AND used = false
	`, secretID, userID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE users
		SET otp_enabled = true, updated_at = now()
		WHERE id = $1
	`, userID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) IsOTPEnabled(ctx context.Context, userID uuid.UUID) (bool, error) {
	var enabled bool
	err := s.pool.QueryRow(ctx, `
		SELECT otp_enabled FROM users WHERE id = $1
	`, userID).Scan(&enabled)
	return enabled, err
}

// GetOrCreateResetCode reuses any unused code for the user rather than
// minting duplicates, so repeated reset requests are idempotent.
func (s *Store) GetOrCreateResetCode(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	var code uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT code FROM reset_codes
		WHERE user_id = $1 AND used = false
		LIMIT 1
	`, userID).Scan(&code)
	if err == nil {
		return code, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, err
	}

	code = uuid.New()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO reset_codes (code, user_id, used, created_at)
		VALUES ($1, $2, false, now())
	`, code, userID)
	return code, err
}

func (s *Store) GetResetCode(ctx context.Context, code uuid.UUID) (*ResetCode, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT code, user_id, used, created_at
		FROM reset_codes
		WHERE code = $1
	`, code)

	var rc ResetCode
	if err := row.Scan(&rc.Code, &rc.UserID, &rc.Used, &rc.CreatedAt); err != nil {
		return nil, err
	}
	return &rc, nil
}

func (s *Store) MarkResetCodeUsed(ctx context.Context, code uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE reset_codes
		SET used = true
		WHERE code = $1 AND used = false
	`, code)
	return err
}
