package jwtauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("correct-horse-battery-staple")

func signHS(t *testing.T, method jwt.SigningMethod, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func mustVerifier(t *testing.T, cfg Config) *Verifier {
	t.Helper()
	v, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return v
}

func TestVerifier_HMAC(t *testing.T) {
	now := time.Now()
	v := mustVerifier(t, Config{Secret: testSecret, Audience: "pipedrive-mcp", Issuer: "issuer.example"})

	valid := jwt.MapClaims{
		"sub": "operator",
		"aud": "pipedrive-mcp",
		"iss": "issuer.example",
		"exp": now.Add(time.Hour).Unix(),
	}

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "valid", token: signHS(t, jwt.SigningMethodHS256, testSecret, valid)},
		{name: "audience array", token: signHS(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
			"sub": "operator", "aud": []string{"other", "pipedrive-mcp"}, "iss": "issuer.example",
		})},
		{name: "wrong secret", token: signHS(t, jwt.SigningMethodHS256, []byte("nope"), valid), wantErr: true},
		{name: "expired", token: signHS(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
			"aud": "pipedrive-mcp", "iss": "issuer.example", "exp": now.Add(-time.Hour).Unix(),
		}), wantErr: true},
		{name: "not yet valid", token: signHS(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
			"aud": "pipedrive-mcp", "iss": "issuer.example", "nbf": now.Add(time.Hour).Unix(),
		}), wantErr: true},
		{name: "wrong audience", token: signHS(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
			"aud": "someone-else", "iss": "issuer.example",
		}), wantErr: true},
		{name: "missing audience", token: signHS(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
			"iss": "issuer.example",
		}), wantErr: true},
		{name: "wrong issuer", token: signHS(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
			"aud": "pipedrive-mcp", "iss": "evil.example",
		}), wantErr: true},
		{name: "algorithm outside allow-list", token: signHS(t, jwt.SigningMethodHS512, testSecret, valid), wantErr: true},
		{name: "garbage", token: "not.a.jwt", wantErr: true},
		{name: "empty", token: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ui, err := v.CheckAuthentication(context.Background(), tt.token)
			if tt.wantErr {
				if !errors.Is(err, ErrUnauthorized) {
					t.Fatalf("want ErrUnauthorized, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ui.UserID() != "operator" {
				t.Fatalf("want sub operator, got %q", ui.UserID())
			}
		})
	}
}

func TestVerifier_NoConstraintsAcceptsAnySignedToken(t *testing.T) {
	v := mustVerifier(t, Config{Secret: testSecret})
	tok := signHS(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"aud": "whatever"})
	if _, err := v.CheckAuthentication(context.Background(), tok); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func TestVerifier_MultipleAlgorithms(t *testing.T) {
	v := mustVerifier(t, Config{Secret: testSecret, AllowedAlgs: ParseAlgorithms("HS256, HS512")})
	tok := signHS(t, jwt.SigningMethodHS512, testSecret, jwt.MapClaims{"sub": "a"})
	if _, err := v.CheckAuthentication(context.Background(), tok); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func TestNew_RejectsInconsistentConfig(t *testing.T) {
	for name, cfg := range map[string]Config{
		"nothing configured":      {},
		"asymmetric without jwks": {Secret: testSecret, AllowedAlgs: []string{"RS256"}},
		"hmac without secret":     {JWKSURL: "http://127.0.0.1/keys", AllowedAlgs: []string{"HS256"}},
		"none algorithm":          {Secret: testSecret, AllowedAlgs: []string{"none"}},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := New(context.Background(), cfg); err == nil {
				t.Fatalf("expected error for %+v", cfg)
			}
		})
	}
}

func TestVerifier_JWKS(t *testing.T) {
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	const kid = "test-key"
	set := struct {
		Keys []jose.JSONWebKey `json:"keys"`
	}{Keys: []jose.JSONWebKey{{Key: &pk.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"}}}
	keys, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(keys)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	v, err := New(ctx, Config{JWKSURL: srv.URL, AllowedAlgs: []string{"RS256"}, Audience: "pipedrive-mcp"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "operator",
		"aud": "pipedrive-mcp",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(pk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.CheckAuthentication(ctx, signed); err != nil {
		t.Fatalf("check: %v", err)
	}

	hs := signHS(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"aud": "pipedrive-mcp"})
	if _, err := v.CheckAuthentication(ctx, hs); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("HS256 must be rejected when only RS256 is allowed, got %v", err)
	}
}

// newIssuer serves an OpenID configuration and a one-key JWKS from the same
// origin. When withJWKS is false the configuration omits jwks_uri.
func newIssuer(t *testing.T, kid string, pub *rsa.PublicKey, withJWKS bool) *httptest.Server {
	t.Helper()
	keys, err := json.Marshal(struct {
		Keys []jose.JSONWebKey `json:"keys"`
	}{Keys: []jose.JSONWebKey{{Key: pub, KeyID: kid, Algorithm: "RS256", Use: "sig"}}})
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/.well-known/openid-configuration":
			doc := map[string]any{
				"issuer":                                srv.URL,
				"authorization_endpoint":                srv.URL + "/authorize",
				"token_endpoint":                        srv.URL + "/token",
				"response_types_supported":              []string{"code"},
				"subject_types_supported":               []string{"public"},
				"id_token_signing_alg_values_supported": []string{"RS256"},
			}
			if withJWKS {
				doc["jwks_uri"] = srv.URL + "/keys"
			}
			_ = json.NewEncoder(w).Encode(doc)
		case "/keys":
			_, _ = w.Write(keys)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifier_DiscoversJWKSFromIssuer(t *testing.T) {
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	const kid = "discovered"
	srv := newIssuer(t, kid, &pk.PublicKey, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := Config{Issuer: srv.URL, AllowedAlgs: []string{"RS256"}}
	if !cfg.Enabled() {
		t.Fatal("issuer with an asymmetric algorithm should enable verification")
	}
	v, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if v.JWKSURL() != srv.URL+"/keys" {
		t.Fatalf("JWKSURL = %q", v.JWKSURL())
	}

	sign := func(iss string) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"sub": "operator",
			"iss": iss,
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		tok.Header["kid"] = kid
		s, err := tok.SignedString(pk)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	ui, err := v.CheckAuthentication(ctx, sign(srv.URL))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ui.UserID() != "operator" {
		t.Fatalf("sub = %q", ui.UserID())
	}
	if _, err := v.CheckAuthentication(ctx, sign("https://elsewhere.example")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("foreign issuer must be rejected, got %v", err)
	}
}

func TestNew_DiscoveryFailures(t *testing.T) {
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	noKeys := newIssuer(t, "k", &pk.PublicKey, false)
	if _, err := New(context.Background(), Config{Issuer: noKeys.URL, AllowedAlgs: []string{"RS256"}}); err == nil {
		t.Fatal("expected error when discovery omits jwks_uri")
	}

	gone := httptest.NewServer(http.NotFoundHandler())
	gone.Close()
	if _, err := New(context.Background(), Config{Issuer: gone.URL, AllowedAlgs: []string{"RS256"}}); err == nil {
		t.Fatal("expected error when the issuer is unreachable")
	}
}

func TestConfig_IssuerWithHMACDoesNotDiscover(t *testing.T) {
	cfg := Config{Issuer: "https://issuer.example", AllowedAlgs: []string{"HS256"}}
	if cfg.Enabled() {
		t.Fatal("an issuer alone with HMAC algorithms is not a key source")
	}
}
