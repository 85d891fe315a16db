package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/carify/identity-service/internal/domain"
	"github.com/carify/identity-service/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testAccount(email string) *domain.Account {
	return &domain.Account{
		ID:           "7b1c6e9a-0000-0000-0000-000000000001",
		Name:         "Jane Doe",
		Email:        email,
		Phone:        "1234567890",
		PasswordHash: "$2a$10$fake-hash",
		Role:         domain.RoleCustomer,
		Permissions:  domain.DefaultPermissions(),
		IsVerified:   true,
	}
}

func TestInsertAndFindAccount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertAccount(ctx, testAccount("jane@example.com")))

	found, err := s.FindAccountByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", found.Name)
	assert.True(t, found.IsVerified)
	assert.True(t, found.Permissions.Has(domain.PermUserView))
}

func TestFindAccountByEmail_CaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertAccount(ctx, testAccount("Jane@Example.COM")))

	found, err := s.FindAccountByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Jane@Example.COM", found.Email)
}

func TestFindAccountByEmail_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FindAccountByEmail(context.Background(), "missing@example.com")
	assert.ErrorIs(t, err, store.ErrAccountNotFound)
}

func TestInsertAccount_DuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertAccount(ctx, testAccount("jane@example.com")))

	dup := testAccount("JANE@example.com")
	dup.ID = "7b1c6e9a-0000-0000-0000-000000000002"
	err := s.InsertAccount(ctx, dup)
	assert.ErrorIs(t, err, store.ErrDuplicateEmail)

	accounts, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestListAccounts_Empty(t *testing.T) {
	s := newTestStore(t)

	accounts, err := s.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetSession(ctx)
	assert.ErrorIs(t, err, store.ErrNoSession)

	account := testAccount("jane@example.com")
	session := &domain.Session{
		Account:   *account,
		Token:     "token-one",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SetSession(ctx, session))

	got, err := s.GetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-one", got.Token)
	assert.Equal(t, account.Email, got.Account.Email)

	// Second login overwrites the slot.
	session.Token = "token-two"
	require.NoError(t, s.SetSession(ctx, session))

	got, err = s.GetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-two", got.Token)

	require.NoError(t, s.ClearSession(ctx))
	_, err = s.GetSession(ctx)
	assert.ErrorIs(t, err, store.ErrNoSession)

	// Clearing an empty slot is not an error.
	require.NoError(t, s.ClearSession(ctx))
}
