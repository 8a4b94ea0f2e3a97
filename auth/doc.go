// Package auth implements the bearer-token gate in front of the SSE transport.
//
// A Gate wraps an Authenticator (typically one built by NewJWT). A Gate built
// without an Authenticator lets every request through; authentication is
// opt-in by configuration. With an Authenticator, every request that opens or
// feeds a session must carry "Authorization: Bearer <token>". All
// verification failures collapse into the same 401 message so callers learn
// nothing about why a token was rejected.
//
// Example:
//
//	a, err := auth.NewJWT(ctx, auth.JWTConfig{Secret: []byte(secret)})
//	if err != nil { return err }
//	if err := auth.VerifyBootToken(ctx, a, bootToken); err != nil { return err }
//	gate := auth.NewGate(a)
//
//	res := gate.Verify(r.Context(), r.Header)
//	if !res.OK { /* reply res.Status with {"error": res.Message} */ }
package auth
