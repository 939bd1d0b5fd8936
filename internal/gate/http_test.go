package gate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/openexch/exauth/internal/autherr"
	"github.com/openexch/exauth/internal/identity"
)

func newRouter(g *Gate) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/v1/balance", Middleware(g, "user"), func(c *gin.Context) {
		id, ok := IdentityFromContext(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": id.UserID.String()})
	})
	return r
}

func TestMiddlewareAttachesIdentity(t *testing.T) {
	want := &identity.Identity{UserID: uuid.New(), Email: "a@b.c", Scopes: []string{"user"}}
	g := New(&fakeBearer{id: want}, &fakeKeys{})
	router := newRouter(g)

	req := httptest.NewRequest(http.MethodGet, "/v1/balance", nil)
	req.Header.Set("Authorization", "Bearer tok")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["user_id"] != want.UserID.String() {
		t.Fatalf("expected identity in context, got %v", body)
	}
}

func TestMiddlewareMapsDenialToStatusAndCode(t *testing.T) {
	g := New(&fakeBearer{err: autherr.E(autherr.KindNotAuthorized, "scope mismatch")}, &fakeKeys{})
	router := newRouter(g)

	req := httptest.NewRequest(http.MethodGet, "/v1/balance", nil)
	req.Header.Set("Authorization", "Bearer tok")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"] != "NOT_AUTHORIZED" {
		t.Fatalf("expected NOT_AUTHORIZED code, got %q", body["code"])
	}
}

func TestMiddlewareBothCredentials(t *testing.T) {
	g := New(&fakeBearer{id: &identity.Identity{}}, &fakeKeys{id: &identity.Identity{}})
	router := newRouter(g)

	req := httptest.NewRequest(http.MethodGet, "/v1/balance", nil)
	req.Header.Set("Authorization", "Bearer tok")
	req.Header.Set("api-key", "k1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(resp.Body.Bytes(), &body)
	if body["code"] != "MULTIPLE_API_KEY" {
		t.Fatalf("expected MULTIPLE_API_KEY, got %q", body["code"])
	}
}

func TestMiddlewareMissingCredentials(t *testing.T) {
	g := New(&fakeBearer{}, &fakeKeys{})
	router := newRouter(g)

	req := httptest.NewRequest(http.MethodGet, "/v1/balance", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(resp.Body.Bytes(), &body)
	if body["code"] != "MISSING_HEADER" {
		t.Fatalf("expected MISSING_HEADER, got %q", body["code"])
	}
}
