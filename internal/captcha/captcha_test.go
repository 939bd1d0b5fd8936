package captcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openexch/exauth/internal/autherr"
)

func captchaServer(t *testing.T, success bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostFormValue("secret") == "" || r.PostFormValue("response") == "" {
			t.Error("expected secret and response form fields")
		}
		w.Header().Set("Content-Type", "application/json")
		if success {
			_, _ = w.Write([]byte(`{"success":true}`))
		} else {
			_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
		}
	}))
}

func TestVerifySuccess(t *testing.T) {
	srv := captchaServer(t, true)
	defer srv.Close()

	v := New(srv.URL, "captcha-secret", true)
	if err := v.Verify(context.Background(), "client-token", "1.2.3.4"); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyFailure(t *testing.T) {
	srv := captchaServer(t, false)
	defer srv.Close()

	v := New(srv.URL, "captcha-secret", true)
	err := v.Verify(context.Background(), "client-token", "1.2.3.4")
	kind, ok := autherr.KindOf(err)
	if !ok || kind != autherr.KindInvalidCaptcha {
		t.Fatalf("expected INVALID_CAPTCHA, got %v", err)
	}
}

func TestVerifyShortCircuits(t *testing.T) {
	// No secret configured: always passes, no network call.
	v := New("http://127.0.0.1:1", "", true)
	if err := v.Verify(context.Background(), "anything", "1.2.3.4"); err != nil {
		t.Fatalf("expected pass with no secret, got %v", err)
	}

	// Non-production with no token: passes.
	v = New("http://127.0.0.1:1", "captcha-secret", false)
	if err := v.Verify(context.Background(), "", "1.2.3.4"); err != nil {
		t.Fatalf("expected pass for empty token outside production, got %v", err)
	}
}
