package recovery

import (
	"context"
	"io"
	"sync"
	"testing"

	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/openexch/exauth/internal/autherr"
	"github.com/openexch/exauth/internal/email"
	"github.com/openexch/exauth/internal/security"
	"github.com/openexch/exauth/internal/storage"
)

type memStore struct {
	mu    sync.Mutex
	users map[string]*storage.User
	codes map[uuid.UUID]*storage.ResetCode
}

func newMemStore() *memStore {
	return &memStore{
		users: map[string]*storage.User{},
		codes: map[uuid.UUID]*storage.ResetCode{},
	}
}

func (m *memStore) GetUserByEmail(ctx context.Context, userEmail string) (*storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userEmail]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

func (m *memStore) UpdateUserPassword(ctx context.Context, userID uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == userID {
			u.PasswordHash = hash
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *memStore) GetOrCreateResetCode(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, rc := range m.codes {
		if rc.UserID == userID && !rc.Used {
			return code, nil
		}
	}
	code := uuid.New()
	m.codes[code] = &storage.ResetCode{Code: code, UserID: userID}
	return code, nil
}

func (m *memStore) GetResetCode(ctx context.Context, code uuid.UUID) (*storage.ResetCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.codes[code]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return rc, nil
}

func (m *memStore) MarkResetCodeUsed(ctx context.Context, code uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.codes[code]
	if !ok {
		return pgx.ErrNoRows
	}
	rc.Used = true
	return nil
}

type passCaptcha struct{}

func (passCaptcha) Verify(ctx context.Context, token, remoteIP string) error { return nil }

type failCaptcha struct{}

func (failCaptcha) Verify(ctx context.Context, token, remoteIP string) error {
	return autherr.E(autherr.KindInvalidCaptcha, "captcha verification failed")
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []map[string]any
}

func (m *recordingMailer) Send(ctx context.Context, kind email.Template, recipient string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, data)
	return nil
}

func testParams() security.Argon2Params {
	return security.Argon2Params{Memory: 16 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func setup(t *testing.T) (*Service, *memStore, *recordingMailer, *storage.User) {
	t.Helper()
	store := newMemStore()
	hash, err := security.HashPassword("oldpass123", testParams())
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := &storage.User{ID: uuid.New(), Email: "trader@example.com", PasswordHash: hash, Status: "active"}
	store.users[user.Email] = user

	mailer := &recordingMailer{}
	svc := &Service{
		Store:   store,
		Captcha: passCaptcha{},
		Mailer:  mailer,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Argon2:  testParams(),
	}
	return svc, store, mailer, user
}

func expectKind(t *testing.T, err error, want autherr.Kind) {
	t.Helper()
	kind, ok := autherr.KindOf(err)
	if !ok || kind != want {
		t.Fatalf("expected %s, got %v", want, err)
	}
}

func TestValidPasswordFormat(t *testing.T) {
	cases := []struct {
		candidate string
		want      bool
	}{
		{"abcdef12", true},
		{"A1bcdefg", true},
		{"short1a", false},
		{"allletters", false},
		{"12345678", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := ValidPasswordFormat(tc.candidate); got != tc.want {
			t.Errorf("%q: expected %v, got %v", tc.candidate, tc.want, got)
		}
	}
}

func TestRequestResetIdempotentCode(t *testing.T) {
	svc, _, mailer, _ := setup(t)
	ctx := context.Background()

	if err := svc.RequestReset(ctx, "trader@example.com", "tok", "1.2.3.4"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := svc.RequestReset(ctx, "trader@example.com", "tok", "1.2.3.4"); err != nil {
		t.Fatalf("second request: %v", err)
	}

	if len(mailer.sent) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(mailer.sent))
	}
	if mailer.sent[0]["code"] != mailer.sent[1]["code"] {
		t.Fatal("repeated reset requests must reuse the unused code")
	}
}

func TestRequestResetCaptchaFailureAbortsBeforeEmail(t *testing.T) {
	svc, _, mailer, _ := setup(t)
	svc.Captcha = failCaptcha{}

	err := svc.RequestReset(context.Background(), "trader@example.com", "bad", "1.2.3.4")
	expectKind(t, err, autherr.KindInvalidCaptcha)
	if len(mailer.sent) != 0 {
		t.Fatal("email sent despite captcha failure")
	}
}

func TestRequestResetUnknownUser(t *testing.T) {
	svc, _, mailer, _ := setup(t)
	if err := svc.RequestReset(context.Background(), "nobody@example.com", "tok", "1.2.3.4"); err == nil {
		t.Fatal("expected lookup failure to propagate")
	}
	if len(mailer.sent) != 0 {
		t.Fatal("email sent despite unknown user")
	}
}

func TestResetPasswordConsumesCode(t *testing.T) {
	svc, store, _, user := setup(t)
	ctx := context.Background()

	code, err := store.GetOrCreateResetCode(ctx, user.ID)
	if err != nil {
		t.Fatalf("code: %v", err)
	}

	if err := svc.ResetPassword(ctx, code.String(), "newpass123"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	ok, err := security.VerifyPassword("newpass123", store.users[user.Email].PasswordHash)
	if err != nil || !ok {
		t.Fatalf("expected new password set, ok=%v err=%v", ok, err)
	}

	err = svc.ResetPassword(ctx, code.String(), "anotherpass1")
	expectKind(t, err, autherr.KindCodeUsed)
}

func TestResetPasswordValidationShortCircuits(t *testing.T) {
	svc, _, _, _ := setup(t)

	err := svc.ResetPassword(context.Background(), uuid.NewString(), "weak")
	expectKind(t, err, autherr.KindInvalidPassword)

	err = svc.ResetPassword(context.Background(), "not-a-code", "newpass123")
	expectKind(t, err, autherr.KindCodeNotFound)

	err = svc.ResetPassword(context.Background(), uuid.NewString(), "newpass123")
	expectKind(t, err, autherr.KindCodeNotFound)
}

func TestChangePassword(t *testing.T) {
	svc, store, _, user := setup(t)
	ctx := context.Background()

	if err := svc.ChangePassword(ctx, user.Email, "oldpass123", "newpass456"); err != nil {
		t.Fatalf("change: %v", err)
	}
	ok, err := security.VerifyPassword("newpass456", store.users[user.Email].PasswordHash)
	if err != nil || !ok {
		t.Fatalf("expected new password set, ok=%v err=%v", ok, err)
	}
}

func TestChangePasswordSamePassword(t *testing.T) {
	svc, _, _, user := setup(t)
	err := svc.ChangePassword(context.Background(), user.Email, "samepass12", "samepass12")
	expectKind(t, err, autherr.KindSamePassword)
}

func TestChangePasswordWrongOldReportsInvalidPassword(t *testing.T) {
	svc, _, _, user := setup(t)
	err := svc.ChangePassword(context.Background(), user.Email, "wrongold12", "newpass456")
	expectKind(t, err, autherr.KindInvalidPassword)
}
