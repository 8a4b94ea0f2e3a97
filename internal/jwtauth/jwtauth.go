// Package jwtauth verifies signed bearer tokens against a shared secret or a
// remote JWKS. The JWKS location is either configured directly or discovered
// from the issuer's OpenID configuration.
package jwtauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized indicates that the token failed validation (signature,
// algorithm, audience, issuer, exp/nbf).
var ErrUnauthorized = errors.New("jwtauth: unauthorized")

var hmacAlgs = []string{"HS256", "HS384", "HS512"}

var asymmetricAlgs = []string{
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"ES256", "ES384", "ES512",
	"EdDSA",
}

// Config is the credential verification context. It is read once at start-up.
type Config struct {
	// Secret verifies HMAC-signed tokens.
	Secret []byte
	// AllowedAlgs is the algorithm allow-list. Defaults to HS256.
	AllowedAlgs []string
	// Audience, when set, must appear in the aud claim.
	Audience string
	// Issuer, when set, must equal the iss claim. With an asymmetric algorithm
	// allowed and no JWKSURL, the key set is discovered from the issuer.
	Issuer string
	// JWKSURL, when set, verifies asymmetric tokens against a key set that is
	// refreshed in the background.
	JWKSURL string
	// Leeway is the clock skew tolerated on exp, nbf and iat.
	Leeway time.Duration
}

// Enabled reports whether any verification key source is configured.
func (c Config) Enabled() bool {
	return len(c.Secret) > 0 || c.JWKSURL != "" || c.discovers()
}

// discovers reports whether the key set comes from OpenID discovery.
func (c Config) discovers() bool {
	if c.Issuer == "" || c.JWKSURL != "" {
		return false
	}
	return slices.ContainsFunc(c.AllowedAlgs, func(alg string) bool {
		return slices.Contains(asymmetricAlgs, alg)
	})
}

// ParseAlgorithms splits a comma-separated allow-list.
func ParseAlgorithms(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// UserInfo is the validated principal.
type UserInfo interface {
	UserID() string
	Claims(ref any) error
}

type userInfo struct {
	sub    string
	claims map[string]any
}

func (u *userInfo) UserID() string { return u.sub }
func (u *userInfo) Claims(ref any) error {
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

// Verifier validates tokens against a Config.
type Verifier struct {
	cfg    Config
	parser *jwt.Parser
	jwks   keyfunc.Keyfunc
}

// New validates cfg and builds a Verifier. When cfg.JWKSURL is set, or
// discovered from cfg.Issuer, the key set is fetched using ctx, which also
// bounds the background refresh.
func New(ctx context.Context, cfg Config) (*Verifier, error) {
	if len(cfg.AllowedAlgs) == 0 {
		cfg.AllowedAlgs = []string{"HS256"}
	}
	if !cfg.Enabled() {
		return nil, errors.New("a secret, a JWKS URL or an issuer is required")
	}
	for _, alg := range cfg.AllowedAlgs {
		switch {
		case slices.Contains(hmacAlgs, alg):
			if len(cfg.Secret) == 0 {
				return nil, fmt.Errorf("algorithm %s requires a secret", alg)
			}
		case slices.Contains(asymmetricAlgs, alg):
			if cfg.JWKSURL == "" && cfg.Issuer == "" {
				return nil, fmt.Errorf("algorithm %s requires a JWKS URL or an issuer", alg)
			}
		default:
			return nil, fmt.Errorf("unsupported algorithm %q", alg)
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(cfg.AllowedAlgs),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	v := &Verifier{cfg: cfg, parser: jwt.NewParser(opts...)}
	if cfg.discovers() {
		u, err := discoverJWKS(ctx, cfg.Issuer)
		if err != nil {
			return nil, err
		}
		v.cfg.JWKSURL = u
	}
	if v.cfg.JWKSURL != "" {
		kf, err := keyfunc.NewDefaultCtx(ctx, []string{v.cfg.JWKSURL})
		if err != nil {
			return nil, fmt.Errorf("jwks init failed: %w", err)
		}
		v.jwks = kf
	}
	return v, nil
}

// JWKSURL returns the key set location in use, configured or discovered.
func (v *Verifier) JWKSURL() string { return v.cfg.JWKSURL }

// discoverJWKS resolves jwks_uri from the issuer's OpenID configuration.
func discoverJWKS(ctx context.Context, issuer string) (string, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return "", fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return "", fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return "", errors.New("discovery incomplete: missing jwks_uri")
	}
	return meta.JwksURI, nil
}

func (v *Verifier) keyFor(t *jwt.Token) (any, error) {
	alg := t.Method.Alg()
	if slices.Contains(hmacAlgs, alg) {
		if len(v.cfg.Secret) == 0 {
			return nil, fmt.Errorf("no secret for %s", alg)
		}
		return v.cfg.Secret, nil
	}
	if v.jwks == nil {
		return nil, fmt.Errorf("no key set for %s", alg)
	}
	return v.jwks.Keyfunc(t)
}

// CheckAuthentication verifies tok. Every validation failure wraps
// ErrUnauthorized.
func (v *Verifier) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	parsed, err := v.parser.Parse(tok, v.keyFor)
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims type", ErrUnauthorized)
	}
	sub, _ := claims["sub"].(string)
	return &userInfo{sub: sub, claims: claims}, nil
}
