package identity

import (
	"context"
	"fmt"
	"testing"

	"github.com/carify/identity-service/internal/domain"
	"github.com/carify/identity-service/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// mockStore implements store.Store for testing.
type mockStore struct {
	accounts map[string]*domain.Account
	session  *domain.Session
}

func newMockStore() *mockStore {
	return &mockStore{accounts: make(map[string]*domain.Account)}
}

func (m *mockStore) add(account *domain.Account) {
	normalized, _ := domain.NormalizeEmail(account.Email)
	m.accounts[normalized] = account
}

func (m *mockStore) ListAccounts(_ context.Context) ([]domain.Account, error) {
	result := make([]domain.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		result = append(result, *a)
	}
	return result, nil
}

func (m *mockStore) FindAccountByEmail(_ context.Context, email string) (*domain.Account, error) {
	normalized, _ := domain.NormalizeEmail(email)
	if a, ok := m.accounts[normalized]; ok {
		return a, nil
	}
	return nil, store.ErrAccountNotFound
}

func (m *mockStore) InsertAccount(_ context.Context, account *domain.Account) error {
	m.add(account)
	return nil
}

func (m *mockStore) SetSession(_ context.Context, session *domain.Session) error {
	m.session = session
	return nil
}

func (m *mockStore) GetSession(_ context.Context) (*domain.Session, error) {
	if m.session == nil {
		return nil, store.ErrNoSession
	}
	return m.session, nil
}

func (m *mockStore) ClearSession(_ context.Context) error {
	m.session = nil
	return nil
}

func (m *mockStore) Ping(_ context.Context) error { return nil }
func (m *mockStore) Close() error                 { return nil }

// mockAuthenticator implements TokenAuthenticator for testing.
type mockAuthenticator struct {
	issued int
}

func (m *mockAuthenticator) GenerateToken(_ *domain.Account) (string, error) {
	m.issued++
	return fmt.Sprintf("token-%d", m.issued), nil
}

func (m *mockAuthenticator) ValidateToken(_ context.Context, _ string) (string, domain.Role, domain.PermissionSet, error) {
	return "", "", nil, nil
}

func testBuiltin() BuiltinAdmin {
	return BuiltinAdmin{
		Name:     "Carify Admin",
		Email:    "admin@carify.com",
		Password: "admin123",
	}
}

func verifiedAccount(t *testing.T, email, password string) *domain.Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &domain.Account{
		ID:           "account-1",
		Name:         "Jane Doe",
		Email:        email,
		Phone:        "1234567890",
		PasswordHash: string(hash),
		Role:         domain.RoleCustomer,
		Permissions:  domain.DefaultPermissions(),
		IsVerified:   true,
	}
}

func TestLogin_RegisteredAccount(t *testing.T) {
	credStore := newMockStore()
	credStore.add(verifiedAccount(t, "jane@example.com", "password123"))
	service := NewService(credStore, &mockAuthenticator{}, testBuiltin())

	session, err := service.Login(context.Background(), "jane@example.com", "password123")

	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", session.Account.Email)
	assert.NotEmpty(t, session.Token)

	// The session (and its token marker) is persisted in the store slot.
	stored, err := credStore.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.Token, stored.Token)
}

func TestLogin_InvalidCredentialsUniform(t *testing.T) {
	credStore := newMockStore()
	credStore.add(verifiedAccount(t, "jane@example.com", "password123"))

	unverified := verifiedAccount(t, "pending@example.com", "password123")
	unverified.ID = "account-2"
	unverified.IsVerified = false
	credStore.add(unverified)

	service := NewService(credStore, &mockAuthenticator{}, testBuiltin())

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "nobody@example.com", "password123"},
		{"wrong password", "jane@example.com", "nope"},
		{"unverified account", "pending@example.com", "password123"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Login(context.Background(), tc.email, tc.password)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestLogin_BuiltinAdmin(t *testing.T) {
	service := NewService(newMockStore(), &mockAuthenticator{}, testBuiltin())

	session, err := service.Login(context.Background(), "admin@carify.com", "admin123")

	require.NoError(t, err)
	assert.Equal(t, domain.RoleSuperAdmin, session.Account.Role)
	assert.True(t, session.Account.Permissions.Has(domain.PermRoleManage))
	assert.True(t, session.Account.IsVerified)
}

func TestLogin_BuiltinAdminWrongPassword(t *testing.T) {
	service := NewService(newMockStore(), &mockAuthenticator{}, testBuiltin())

	_, err := service.Login(context.Background(), "admin@carify.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_OverwritesPreviousSession(t *testing.T) {
	credStore := newMockStore()
	credStore.add(verifiedAccount(t, "jane@example.com", "password123"))
	service := NewService(credStore, &mockAuthenticator{}, testBuiltin())
	ctx := context.Background()

	first, err := service.Login(ctx, "jane@example.com", "password123")
	require.NoError(t, err)
	second, err := service.Login(ctx, "jane@example.com", "password123")
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token, "each login issues a fresh token")

	stored, err := credStore.GetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.Token, stored.Token)
}

func TestCurrentSession_OnlyForSlotOwner(t *testing.T) {
	credStore := newMockStore()
	credStore.add(verifiedAccount(t, "jane@example.com", "password123"))

	bob := verifiedAccount(t, "bob@example.com", "password123")
	bob.ID = "account-2"
	credStore.add(bob)

	service := NewService(credStore, &mockAuthenticator{}, testBuiltin())
	ctx := context.Background()

	_, err := service.Login(ctx, "jane@example.com", "password123")
	require.NoError(t, err)
	_, err = service.Login(ctx, "bob@example.com", "password123")
	require.NoError(t, err)

	// Jane's token may still be unexpired, but Bob's login replaced the
	// session slot; her token resolves no session.
	_, err = service.CurrentSession(ctx, "account-1")
	assert.ErrorIs(t, err, store.ErrNoSession)

	session, err := service.CurrentSession(ctx, "account-2")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", session.Account.Email)
}

func TestLogout(t *testing.T) {
	credStore := newMockStore()
	credStore.add(verifiedAccount(t, "jane@example.com", "password123"))
	service := NewService(credStore, &mockAuthenticator{}, testBuiltin())
	ctx := context.Background()

	_, err := service.Login(ctx, "jane@example.com", "password123")
	require.NoError(t, err)

	require.NoError(t, service.Logout(ctx))

	_, err = service.CurrentSession(ctx, "account-1")
	assert.ErrorIs(t, err, store.ErrNoSession)

	// Logging out with no session is not an error.
	require.NoError(t, service.Logout(ctx))
}
