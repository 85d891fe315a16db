package identity

import "errors"

// Service errors.
var (
	// ErrInvalidCredentials covers unknown email, wrong password and
	// unverified accounts alike, so a caller cannot probe which emails are
	// registered.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrInvalidToken = errors.New("invalid or expired token")
)
