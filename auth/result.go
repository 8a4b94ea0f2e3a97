package auth

import (
	"context"
	"net/http"
	"strings"
)

// Messages returned to callers in Result.Message.
const (
	MessageMissingHeader = "Missing Authorization header"
	MessageInvalidFormat = "Invalid Authorization header format"
	MessageInvalidToken  = "Invalid or expired token"
)

// Result is the outcome of a gate check. Status and Message are set only
// when OK is false.
type Result struct {
	OK      bool
	Status  int
	Message string
	// User is set when a token was verified.
	User UserInfo
	// Err carries the verification detail for logs; never send it to callers.
	Err error
}

func failure(msg string, err error) Result {
	return Result{Status: http.StatusUnauthorized, Message: msg, Err: err}
}

// Gate applies an Authenticator to HTTP request headers.
type Gate struct {
	auth Authenticator
}

// NewGate returns a gate backed by a. A nil Authenticator disables the gate.
func NewGate(a Authenticator) *Gate {
	return &Gate{auth: a}
}

// Enabled reports whether requests are checked at all.
func (g *Gate) Enabled() bool { return g != nil && g.auth != nil }

// Verify checks the Authorization header. It is evaluated on every request;
// sessions carry no authenticated identity of their own.
func (g *Gate) Verify(ctx context.Context, h http.Header) Result {
	if !g.Enabled() {
		return Result{OK: true}
	}

	header := h.Get("Authorization")
	if header == "" {
		return failure(MessageMissingHeader, nil)
	}

	scheme, tok, found := strings.Cut(header, " ")
	if !found || scheme != "Bearer" || tok == "" || strings.ContainsAny(tok, " \t") {
		return failure(MessageInvalidFormat, nil)
	}

	ui, err := g.auth.CheckAuthentication(ctx, tok)
	if err != nil {
		return failure(MessageInvalidToken, err)
	}
	return Result{OK: true, User: ui}
}
