// Package domain contains the core identity types shared across modules.
package domain

import (
	"fmt"
	"time"

	"golang.org/x/text/secure/precis"
)

// Account is a registered identity record with credentials, role and permissions.
type Account struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Email        string        `json:"email"`
	Phone        string        `json:"phone"`
	PasswordHash string        `json:"-"`
	Role         Role          `json:"role"`
	Permissions  PermissionSet `json:"permissions"`
	IsVerified   bool          `json:"is_verified"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NormalizeEmail case-folds an email address for uniqueness comparison.
// Uses the PRECIS UsernameCaseMapped profile so that unicode addresses
// compare the same way the storage layer's unique index does.
func NormalizeEmail(email string) (string, error) {
	normalized, err := precis.UsernameCaseMapped.String(email)
	if err != nil {
		return "", fmt.Errorf("normalize email: %w", err)
	}
	return normalized, nil
}
