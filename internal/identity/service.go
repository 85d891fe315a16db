package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/carify/identity-service/internal/domain"
	"github.com/carify/identity-service/internal/pkg/ctxlog"
	"github.com/carify/identity-service/internal/pkg/metrics"
	"github.com/carify/identity-service/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// TokenAuthenticator issues and validates session tokens.
type TokenAuthenticator interface {
	GenerateToken(account *domain.Account) (string, error)
	ValidateToken(ctx context.Context, token string) (userID string, role domain.Role, perms domain.PermissionSet, err error)
}

// BuiltinAdmin is the reserved administrator identity. It is never stored as
// an account; its credentials come from configuration.
type BuiltinAdmin struct {
	Name     string
	Email    string
	Password string
}

// Account materializes the built-in administrator as a constant account with
// the full permission catalog.
func (b BuiltinAdmin) Account() domain.Account {
	return domain.Account{
		ID:          "builtin-admin",
		Name:        b.Name,
		Email:       b.Email,
		Role:        domain.RoleSuperAdmin,
		Permissions: domain.FullCatalogSet(),
		IsVerified:  true,
	}
}

// Service provides session login and logout.
type Service struct {
	store   store.Store
	auth    TokenAuthenticator
	builtin BuiltinAdmin
}

// NewService creates the identity service.
func NewService(credStore store.Store, auth TokenAuthenticator, builtin BuiltinAdmin) *Service {
	return &Service{
		store:   credStore,
		auth:    auth,
		builtin: builtin,
	}
}

// Login checks the submitted credentials and establishes the session. The
// reserved administrator pair is always an acceptable alternate credential.
// Rejections are uniform: unknown email, wrong password and unverified
// accounts all yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*domain.Session, error) {
	account, err := s.authenticate(ctx, email, password)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("rejected").Inc()
		return nil, err
	}

	token, err := s.auth.GenerateToken(account)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	session := &domain.Session{
		Account:   *account,
		Token:     token,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.SetSession(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	metrics.LoginAttempts.WithLabelValues("accepted").Inc()
	ctxlog.FromContext(ctx).Info("session established",
		"account_id", account.ID,
		"role", account.Role,
	)

	return session, nil
}

func (s *Service) authenticate(ctx context.Context, email, password string) (*domain.Account, error) {
	if s.isBuiltinAdmin(email, password) {
		admin := s.builtin.Account()
		return &admin, nil
	}

	account, err := s.store.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find account: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !account.IsVerified {
		return nil, ErrInvalidCredentials
	}

	return account, nil
}

func (s *Service) isBuiltinAdmin(email, password string) bool {
	if s.builtin.Email == "" {
		return false
	}

	submitted, err := domain.NormalizeEmail(email)
	if err != nil {
		return false
	}
	reserved, err := domain.NormalizeEmail(s.builtin.Email)
	if err != nil {
		return false
	}

	emailMatch := subtle.ConstantTimeCompare([]byte(submitted), []byte(reserved)) == 1
	passwordMatch := subtle.ConstantTimeCompare([]byte(password), []byte(s.builtin.Password)) == 1
	return emailMatch && passwordMatch
}

// Logout destroys the active session. Logging out with no session is not an
// error.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.store.ClearSession(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// CurrentSession returns the active session when it belongs to accountID,
// or store.ErrNoSession. A token that outlives its session slot (a later
// login replaced it) resolves nothing, even while the token itself is still
// valid.
func (s *Service) CurrentSession(ctx context.Context, accountID string) (*domain.Session, error) {
	session, err := s.store.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session.Account.ID != accountID {
		return nil, store.ErrNoSession
	}
	return session, nil
}

// ListAccounts returns all committed accounts.
func (s *Service) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.store.ListAccounts(ctx)
}

// ValidateToken implements the middleware token validator.
func (s *Service) ValidateToken(ctx context.Context, token string) (string, domain.Role, domain.PermissionSet, error) {
	userID, role, perms, err := s.auth.ValidateToken(ctx, token)
	if err != nil {
		return "", "", nil, ErrInvalidToken
	}
	return userID, role, perms, nil
}
