package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/ggoodman/pipedrive-mcp-server-go/internal/jwtauth"
)

// JWTConfig is the credential verification context for NewJWT.
type JWTConfig = jwtauth.Config

// NewJWT builds an Authenticator validating HMAC tokens against cfg.Secret and
// asymmetric tokens against a remote key set, taken from cfg.JWKSURL or
// discovered from cfg.Issuer.
func NewJWT(ctx context.Context, cfg JWTConfig) (Authenticator, error) {
	v, err := jwtauth.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("jwt verifier: %w", err)
	}
	return &jwtAuthenticator{v: v}, nil
}

type jwtAuthenticator struct {
	v *jwtauth.Verifier
}

func (a *jwtAuthenticator) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	ui, err := a.v.CheckAuthentication(ctx, tok)
	if err != nil {
		if errors.Is(err, jwtauth.ErrUnauthorized) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return nil, err
	}
	return ui, nil
}
