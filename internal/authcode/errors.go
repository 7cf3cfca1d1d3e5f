package authcode

import "errors"

// Sentinel errors for code validation. Handlers map these to HTTP responses;
// the check order when validating a code is revoked, then expired, then
// exhausted, so a code in multiple bad states reports the most severe one.
var (
	// ErrInvalidCode indicates no code matches the supplied value.
	ErrInvalidCode = errors.New("invalid auth code")

	// ErrExpiredCode indicates the code's expiry time has passed.
	ErrExpiredCode = errors.New("auth code expired")

	// ErrRevokedCode indicates an administrator deactivated the code.
	ErrRevokedCode = errors.New("auth code revoked")

	// ErrExhaustedCode indicates the code has no redemptions left.
	ErrExhaustedCode = errors.New("auth code exhausted")
)
