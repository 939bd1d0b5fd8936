package gate

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/openexch/exauth/internal/autherr"
	"github.com/openexch/exauth/internal/identity"
)

type fakeBearer struct {
	id        *identity.Identity
	err       error
	gotHeader string
	calls     int
}

func (f *fakeBearer) Verify(header string, requiredScopes []string) (*identity.Identity, error) {
	f.calls++
	f.gotHeader = header
	return f.id, f.err
}

type fakeKeys struct {
	id     *identity.Identity
	err    error
	gotKey string
	calls  int
}

func (f *fakeKeys) Verify(ctx context.Context, key, sig, expires, method, path string, body any, requiredScopes []string) (*identity.Identity, error) {
	f.calls++
	f.gotKey = key
	return f.id, f.err
}

func expectKind(t *testing.T, err error, want autherr.Kind) {
	t.Helper()
	kind, ok := autherr.KindOf(err)
	if !ok || kind != want {
		t.Fatalf("expected %s, got %v", want, err)
	}
}

func TestAuthorizeBothHeadersRejected(t *testing.T) {
	bearer := &fakeBearer{id: &identity.Identity{}}
	keys := &fakeKeys{id: &identity.Identity{}}
	g := New(bearer, keys)

	_, err := g.Authorize(context.Background(), Request{
		APIKey:        "key",
		Authorization: "Bearer token",
	})
	expectKind(t, err, autherr.KindMultipleAPIKey)

	// Neither verifier may run: the reject is independent of validity.
	if bearer.calls != 0 || keys.calls != 0 {
		t.Fatal("verifiers invoked despite hard reject")
	}
}

func TestAuthorizeNoHeaders(t *testing.T) {
	g := New(&fakeBearer{}, &fakeKeys{})
	_, err := g.Authorize(context.Background(), Request{})
	expectKind(t, err, autherr.KindMissingHeader)
}

func TestAuthorizeBearerPath(t *testing.T) {
	want := &identity.Identity{UserID: uuid.New(), Email: "a@b.c"}
	bearer := &fakeBearer{id: want}
	keys := &fakeKeys{}
	g := New(bearer, keys)

	got, err := g.Authorize(context.Background(), Request{Authorization: "Bearer tok"})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if got != want {
		t.Fatal("unexpected identity")
	}
	if bearer.gotHeader != "Bearer tok" {
		t.Fatalf("header not forwarded, got %q", bearer.gotHeader)
	}
	if keys.calls != 0 {
		t.Fatal("api-key path ran on a bearer request")
	}
}

func TestAuthorizeAPIKeyPath(t *testing.T) {
	want := &identity.Identity{UserID: uuid.New()}
	keys := &fakeKeys{id: want}
	bearer := &fakeBearer{}
	g := New(bearer, keys)

	got, err := g.Authorize(context.Background(), Request{APIKey: "k1", APISignature: "sig", APIExpires: "123"})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if got != want {
		t.Fatal("unexpected identity")
	}
	if keys.gotKey != "k1" {
		t.Fatalf("key not forwarded, got %q", keys.gotKey)
	}
	if bearer.calls != 0 {
		t.Fatal("bearer path ran on an api-key request")
	}
}

func TestAuthorizeNoFallbackBetweenPaths(t *testing.T) {
	bearer := &fakeBearer{err: autherr.E(autherr.KindInvalidToken, "bad token")}
	keys := &fakeKeys{id: &identity.Identity{}}
	g := New(bearer, keys)

	_, err := g.Authorize(context.Background(), Request{Authorization: "Bearer bad"})
	expectKind(t, err, autherr.KindInvalidToken)
	if keys.calls != 0 {
		t.Fatal("denied bearer request fell back to api-key path")
	}
}
