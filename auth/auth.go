package auth

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnauthorized indicates authentication failed or no valid credentials were supplied.
var ErrUnauthorized = errors.New("unauthorized")

// ErrBootToken indicates the start-up credential is missing or does not verify.
var ErrBootToken = errors.New("boot token rejected")

// UserInfo represents an authenticated principal.
type UserInfo interface {
	// UserID returns the subject of the credential; it may be empty.
	UserID() string
	// Claims unmarshals the credential's claims into ref.
	Claims(ref any) error
}

// Authenticator validates bearer tokens.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, tok string) (UserInfo, error)

func (f AuthenticatorFunc) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	return f(ctx, tok)
}

// VerifyBootToken checks the start-up credential against a. It fails closed:
// an empty token is an error.
func VerifyBootToken(ctx context.Context, a Authenticator, tok string) error {
	if tok == "" {
		return fmt.Errorf("%w: MCP_JWT_TOKEN is required when JWT verification is enabled", ErrBootToken)
	}
	if _, err := a.CheckAuthentication(ctx, tok); err != nil {
		return fmt.Errorf("%w: %v", ErrBootToken, err)
	}
	return nil
}
