// Package postgres provides the PostgreSQL implementation of the credential
// store.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/carify/identity-service/internal/domain"
	"github.com/carify/identity-service/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the PostgreSQL error code raised by the unique index on
// lower(email).
const uniqueViolation = "23505"

// Repository implements store.Store using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL credential store.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListAccounts returns all committed accounts.
func (r *Repository) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	query := `
		SELECT id, name, email, phone, password_hash, role, permissions, is_verified, created_at, updated_at
		FROM accounts
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list accounts: %w", store.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0)
	for rows.Next() {
		var a domain.Account
		var perms []string
		if err := rows.Scan(
			&a.ID,
			&a.Name,
			&a.Email,
			&a.Phone,
			&a.PasswordHash,
			&a.Role,
			&perms,
			&a.IsVerified,
			&a.CreatedAt,
			&a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scan account: %w", store.ErrStorageUnavailable, err)
		}
		a.Permissions = permissionSet(perms)
		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list accounts: %w", store.ErrStorageUnavailable, err)
	}
	return accounts, nil
}

// FindAccountByEmail performs a case-insensitive lookup.
func (r *Repository) FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		return nil, store.ErrAccountNotFound
	}

	query := `
		SELECT id, name, email, phone, password_hash, role, permissions, is_verified, created_at, updated_at
		FROM accounts
		WHERE lower(email) = $1
	`
	var a domain.Account
	var perms []string
	err = r.db.QueryRow(ctx, query, normalized).Scan(
		&a.ID,
		&a.Name,
		&a.Email,
		&a.Phone,
		&a.PasswordHash,
		&a.Role,
		&perms,
		&a.IsVerified,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: find account by email: %w", store.ErrStorageUnavailable, err)
	}
	a.Permissions = permissionSet(perms)

	return &a, nil
}

// InsertAccount appends a new account. Email uniqueness is enforced by the
// unique index on lower(email), so a concurrent duplicate insert loses with
// ErrDuplicateEmail rather than silently winning.
func (r *Repository) InsertAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, name, email, phone, password_hash, role, permissions, is_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		account.ID,
		account.Name,
		account.Email,
		account.Phone,
		account.PasswordHash,
		account.Role,
		permissionCodes(account.Permissions),
		account.IsVerified,
	).Scan(&account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("%w: insert account: %w", store.ErrStorageUnavailable, err)
	}
	return nil
}

// SetSession overwrites the single active-session slot.
func (r *Repository) SetSession(ctx context.Context, session *domain.Session) error {
	query := `
		INSERT INTO active_session (slot, account, token, created_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (slot) DO UPDATE
		SET account = EXCLUDED.account, token = EXCLUDED.token, created_at = EXCLUDED.created_at
	`
	if _, err := r.db.Exec(ctx, query, session.Account, session.Token, session.CreatedAt); err != nil {
		return fmt.Errorf("%w: set session: %w", store.ErrStorageUnavailable, err)
	}
	return nil
}

// GetSession returns the active session or store.ErrNoSession.
func (r *Repository) GetSession(ctx context.Context) (*domain.Session, error) {
	query := `SELECT account, token, created_at FROM active_session WHERE slot = 1`

	var s domain.Session
	err := r.db.QueryRow(ctx, query).Scan(&s.Account, &s.Token, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNoSession
		}
		return nil, fmt.Errorf("%w: get session: %w", store.ErrStorageUnavailable, err)
	}
	return &s, nil
}

// ClearSession erases the active-session slot.
func (r *Repository) ClearSession(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM active_session WHERE slot = 1`); err != nil {
		return fmt.Errorf("%w: clear session: %w", store.ErrStorageUnavailable, err)
	}
	return nil
}

// Ping verifies database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", store.ErrStorageUnavailable, err)
	}
	return nil
}

// Close releases the connection pool.
func (r *Repository) Close() error {
	r.db.Close()
	return nil
}

func permissionCodes(set domain.PermissionSet) []string {
	perms := set.List()
	codes := make([]string, len(perms))
	for i, p := range perms {
		codes[i] = string(p)
	}
	return codes
}

func permissionSet(codes []string) domain.PermissionSet {
	perms := make([]domain.Permission, len(codes))
	for i, c := range codes {
		perms[i] = domain.Permission(c)
	}
	return domain.NewPermissionSet(perms...)
}
