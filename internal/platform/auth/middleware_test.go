package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coreos/go-oidc/v3/oidc"
)

type testAuthenticator struct {
	identity Identity
	err      error
	calls    int
}

func (a *testAuthenticator) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	a.calls++
	return a.identity, a.err
}

func serve(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "http://example.test"+path, nil)
	req.Header.Set("X-Request-Id", "rid-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
	}
	return rec, body
}

func TestMiddleware_Unauthorized(t *testing.T) {
	var denied []DenyEvent
	called := false
	h := Middleware{
		Authenticator: &testAuthenticator{err: ErrUnauthenticated},
		Audit: func(ctx context.Context, event DenyEvent) error {
			denied = append(denied, event)
			return nil
		},
	}.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec, body := serve(t, h, "/resubmit")
	if called {
		t.Fatalf("handler should not be called")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", rec.Code)
	}
	if body["error"] != "unauthorized" || body["request_id"] != "rid-1" {
		t.Fatalf("body=%v", body)
	}
	if len(denied) != 1 || denied[0].Reason != "unauthenticated" || denied[0].Path != "/resubmit" {
		t.Fatalf("denied=%+v", denied)
	}
}

func TestMiddleware_InvalidToken(t *testing.T) {
	h := Middleware{
		Authenticator: &testAuthenticator{err: errors.New("bad token")},
	}.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec, body := serve(t, h, "/resubmit")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", rec.Code)
	}
	if body["error"] != "invalid_token" {
		t.Fatalf("error=%v, want invalid_token", body["error"])
	}
}

func TestMiddleware_Forbidden(t *testing.T) {
	h := Middleware{
		Authenticator: &testAuthenticator{identity: Identity{Subject: "u", Roles: []string{"viewer"}}},
		Authorize:     RequireRole(RoleEditor),
	}.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec, body := serve(t, h, "/resubmit")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d, want 403", rec.Code)
	}
	if body["error"] != "forbidden" {
		t.Fatalf("error=%v, want forbidden", body["error"])
	}
}

func TestMiddleware_AllowsAndStoresIdentity(t *testing.T) {
	var got Identity
	h := Middleware{
		Authenticator: &testAuthenticator{identity: Identity{Subject: "ops", Roles: []string{"admin"}}},
		Authorize:     RequireRole(RoleEditor),
	}.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec, _ := serve(t, h, "/resubmit")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	if got.Subject != "ops" {
		t.Fatalf("identity subject=%q, want ops", got.Subject)
	}
}

func TestMiddleware_SkipPrefixes(t *testing.T) {
	authn := &testAuthenticator{err: ErrUnauthenticated}
	h := Middleware{
		Authenticator: authn,
		SkipPrefixes:  []string{"/healthz"},
	}.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec, _ := serve(t, h, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	if authn.calls != 0 {
		t.Fatalf("authenticator calls=%d, want 0", authn.calls)
	}
}

type stubVerifier struct {
	token *oidc.IDToken
	err   error
	raw   string
}

func (v *stubVerifier) Verify(ctx context.Context, raw string) (*oidc.IDToken, error) {
	v.raw = raw
	return v.token, v.err
}

func TestBearerAuthenticator(t *testing.T) {
	cfg := Config{Mode: ModeOIDC, RolesClaim: "roles", EmailClaim: "email"}
	verifier := &stubVerifier{token: &oidc.IDToken{Subject: "svc-rebitctl"}}
	a := newBearerAuthenticator(cfg, verifier)
	a.claims = func(*oidc.IDToken) (map[string]any, error) {
		return map[string]any{"roles": []any{"Editor", " "}, "email": "ops@example.local"}, nil
	}

	req := httptest.NewRequest(http.MethodPost, "http://example.test/resubmit", nil)
	if _, err := a.Authenticate(context.Background(), req); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("Authenticate() err=%v, want ErrUnauthenticated", err)
	}

	req.Header.Set("Authorization", "Bearer tok-1")
	identity, err := a.Authenticate(context.Background(), req)
	if err != nil {
		t.Fatalf("Authenticate() err=%v", err)
	}
	if verifier.raw != "tok-1" {
		t.Fatalf("verified token=%q, want tok-1", verifier.raw)
	}
	if identity.Subject != "svc-rebitctl" || identity.Email != "ops@example.local" {
		t.Fatalf("identity=%+v", identity)
	}
	if len(identity.Roles) != 1 || identity.Roles[0] != "editor" {
		t.Fatalf("roles=%v, want [editor]", identity.Roles)
	}

	verifier.err = errors.New("expired")
	if _, err := a.Authenticate(context.Background(), req); err == nil {
		t.Fatalf("Authenticate() expected verifier error")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Mode: ModeOIDC, RolesClaim: "roles", EmailClaim: "email"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate() expected error without issuer")
	}
	cfg.OIDCIssuerURL = "https://idp.example.local"
	cfg.OIDCClientID = "rebit"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
	cfg = Config{Mode: ModeDev, RolesClaim: "roles", EmailClaim: "email", DevSubject: "dev"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate() expected error without dev roles")
	}
	cfg.Mode = "other"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate() expected error for unknown mode")
	}
}
