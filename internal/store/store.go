// Package store defines the credential store interface owning the account
// collection and the single active-session slot.
package store

import (
	"context"
	"errors"

	"github.com/carify/identity-service/internal/domain"
)

// Store errors.
var (
	// ErrDuplicateEmail is returned by InsertAccount when an account with the
	// same (case-folded) email already exists.
	ErrDuplicateEmail = errors.New("account with this email already exists")

	// ErrAccountNotFound is returned by lookups when no account matches.
	ErrAccountNotFound = errors.New("account not found")

	// ErrNoSession is returned by GetSession when no session is active.
	ErrNoSession = errors.New("no active session")

	// ErrStorageUnavailable wraps storage-layer I/O failures. Callers treat it
	// as non-recoverable for the current operation.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Store is the credential store. Implementations must enforce email
// uniqueness inside the storage layer itself (unique index or single write
// transaction), not merely by check-then-insert in the caller.
type Store interface {
	// ListAccounts returns all committed accounts. Returns an empty slice if
	// none are stored.
	ListAccounts(ctx context.Context) ([]domain.Account, error)

	// FindAccountByEmail performs a case-insensitive lookup.
	// Returns ErrAccountNotFound when no account matches.
	FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error)

	// InsertAccount appends a new account. Returns ErrDuplicateEmail when an
	// account with the same email exists.
	InsertAccount(ctx context.Context, account *domain.Account) error

	// SetSession persists the single active-session slot, overwriting any
	// previous session.
	SetSession(ctx context.Context, session *domain.Session) error

	// GetSession returns the active session or ErrNoSession.
	GetSession(ctx context.Context) (*domain.Session, error)

	// ClearSession erases the active-session slot. Clearing an empty slot is
	// not an error.
	ClearSession(ctx context.Context) error

	// Ping verifies the underlying storage is reachable.
	Ping(ctx context.Context) error

	// Close releases storage resources.
	Close() error
}
