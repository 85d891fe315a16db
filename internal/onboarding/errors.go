package onboarding

import "errors"

// Flow errors.
var (
	ErrFlowNotFound = errors.New("registration flow not found or expired")
	ErrInvalidState = errors.New("operation not valid in current flow state")
	ErrInvalidRole  = errors.New("unknown role")
)
