package jwt

import (
	"context"
	"testing"
	"time"

	"github.com/carify/identity-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAccount() *domain.Account {
	return &domain.Account{
		ID:          "account-1",
		Role:        domain.RoleCustomer,
		Permissions: domain.DefaultPermissions(),
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	auth := NewAuthenticator(Config{SecretKey: "test-secret"})

	token, err := auth.GenerateToken(testAccount())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, role, perms, err := auth.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "account-1", userID)
	assert.Equal(t, domain.RoleCustomer, role)
	assert.True(t, perms.Has(domain.PermUserView))
	assert.False(t, perms.Has(domain.PermRoleManage))
}

func TestGenerateToken_UniquePerLogin(t *testing.T) {
	auth := NewAuthenticator(Config{SecretKey: "test-secret"})
	account := testAccount()

	first, err := auth.GenerateToken(account)
	require.NoError(t, err)
	second, err := auth.GenerateToken(account)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	auth := NewAuthenticator(Config{SecretKey: "test-secret"})
	other := NewAuthenticator(Config{SecretKey: "other-secret"})

	token, err := auth.GenerateToken(testAccount())
	require.NoError(t, err)

	_, _, _, err = other.ValidateToken(context.Background(), token)
	assert.Error(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	auth := NewAuthenticator(Config{SecretKey: "test-secret", TokenDuration: -time.Minute})

	token, err := auth.GenerateToken(testAccount())
	require.NoError(t, err)

	_, _, _, err = auth.ValidateToken(context.Background(), token)
	assert.Error(t, err)
}

func TestValidateToken_Garbage(t *testing.T) {
	auth := NewAuthenticator(Config{SecretKey: "test-secret"})

	_, _, _, err := auth.ValidateToken(context.Background(), "not-a-token")
	assert.Error(t, err)
}
