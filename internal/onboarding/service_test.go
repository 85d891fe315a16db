package onboarding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/carify/identity-service/internal/domain"
	"github.com/carify/identity-service/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// mockStore implements store.Store for testing.
type mockStore struct {
	accounts  map[string]*domain.Account
	session   *domain.Session
	insertErr error
	inserts   int
}

func newMockStore() *mockStore {
	return &mockStore{accounts: make(map[string]*domain.Account)}
}

func (m *mockStore) key(email string) string {
	normalized, _ := domain.NormalizeEmail(email)
	return normalized
}

func (m *mockStore) ListAccounts(_ context.Context) ([]domain.Account, error) {
	result := make([]domain.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		result = append(result, *a)
	}
	return result, nil
}

func (m *mockStore) FindAccountByEmail(_ context.Context, email string) (*domain.Account, error) {
	if a, ok := m.accounts[m.key(email)]; ok {
		return a, nil
	}
	return nil, store.ErrAccountNotFound
}

func (m *mockStore) InsertAccount(_ context.Context, account *domain.Account) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	key := m.key(account.Email)
	if _, ok := m.accounts[key]; ok {
		return store.ErrDuplicateEmail
	}
	m.accounts[key] = account
	m.inserts++
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

// mockMailer implements VerificationSender for testing.
type mockMailer struct {
	sent []string
	err  error
}

func (m *mockMailer) SendVerification(_ context.Context, _, email, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

func newTestService(credStore store.Store, mailer VerificationSender) *Service {
	return NewService(credStore, NewFlowManager(time.Hour), mailer)
}

func validIdentity() IdentityInput {
	return IdentityInput{
		Name:  "Jane Doe",
		Email: "jane@example.com",
		Phone: "1234567890",
	}
}

func TestStart_AdvancesToEmailVerification(t *testing.T) {
	credStore := newMockStore()
	mailer := &mockMailer{}
	service := newTestService(credStore, mailer)

	flow, err := service.Start(context.Background(), validIdentity())

	require.NoError(t, err)
	assert.Equal(t, StateEmailVerification, flow.State)
	assert.NotEmpty(t, flow.ID)
	assert.Equal(t, []string{"jane@example.com"}, mailer.sent)

	// Step 1 never mutates the credential store.
	accounts, err := credStore.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestStart_ValidationFailureStaysPut(t *testing.T) {
	service := newTestService(newMockStore(), nil)

	tests := []struct {
		name  string
		input IdentityInput
	}{
		{"short name", IdentityInput{Name: "Jo", Email: "jo@example.com", Phone: "1234567890"}},
		{"bad email", IdentityInput{Name: "Jane Doe", Email: "not-an-email", Phone: "1234567890"}},
		{"short phone", IdentityInput{Name: "Jane Doe", Email: "jane@example.com", Phone: "12345"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			flow, err := service.Start(context.Background(), tc.input)
			assert.Nil(t, flow)

			var validationErrs validator.ValidationErrors
			assert.ErrorAs(t, err, &validationErrs)
		})
	}
}

func TestStart_PhoneNormalization(t *testing.T) {
	service := newTestService(newMockStore(), nil)

	flow, err := service.Start(context.Background(), IdentityInput{
		Name:  "Jane Doe",
		Email: "jane@example.com",
		Phone: "(123) 456-7890",
	})

	require.NoError(t, err)
	assert.Equal(t, "1234567890", flow.Phone)
}

func TestStart_ContinuesWhenVerificationSendFails(t *testing.T) {
	mailer := &mockMailer{err: errors.New("smtp down")}
	service := newTestService(newMockStore(), mailer)

	flow, err := service.Start(context.Background(), validIdentity())

	require.NoError(t, err)
	assert.Equal(t, StateEmailVerification, flow.State)
}

func TestConfirm_AdvancesToCredentialSetup(t *testing.T) {
	service := newTestService(newMockStore(), nil)

	flow, err := service.Start(context.Background(), validIdentity())
	require.NoError(t, err)

	flow, err = service.Confirm(context.Background(), flow.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCredentialSetup, flow.State)

	// A second click on the emailed link is harmless.
	flow, err = service.Confirm(context.Background(), flow.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCredentialSetup, flow.State)
}

func TestConfirm_ConcurrentClicks(t *testing.T) {
	service := newTestService(newMockStore(), nil)

	flow, err := service.Start(context.Background(), validIdentity())
	require.NoError(t, err)

	// The emailed link can be clicked from several tabs at once; every
	// click must land in CredentialSetup while readers see a consistent
	// snapshot.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			confirmed, err := service.Confirm(context.Background(), flow.ID)
			assert.NoError(t, err)
			assert.Equal(t, StateCredentialSetup, confirmed.State)

			if snapshot, ok := service.flows.Get(flow.ID); ok {
				assert.Contains(t,
					[]State{StateEmailVerification, StateCredentialSetup},
					snapshot.State,
				)
			}
		}()
	}
	wg.Wait()

	kept, ok := service.flows.Get(flow.ID)
	require.True(t, ok)
	assert.Equal(t, StateCredentialSetup, kept.State)
}

func TestConfirm_UnknownFlow(t *testing.T) {
	service := newTestService(newMockStore(), nil)

	_, err := service.Confirm(context.Background(), "no-such-flow")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestComplete_CommitsVerifiedAccount(t *testing.T) {
	credStore := newMockStore()
	service := newTestService(credStore, nil)
	ctx := context.Background()

	flow, err := service.Start(ctx, validIdentity())
	require.NoError(t, err)
	_, err = service.Confirm(ctx, flow.ID)
	require.NoError(t, err)

	account, err := service.Complete(ctx, flow.ID, CredentialInput{
		Password: "password123",
		Role:     "Customer",
	})

	require.NoError(t, err)
	assert.True(t, account.IsVerified)
	assert.Equal(t, domain.RoleCustomer, account.Role)
	assert.True(t, account.Permissions.Has(domain.PermUserView))
	assert.True(t, account.Permissions.Has(domain.PermFleetView))

	// Password is hashed, never stored in plaintext.
	assert.NotEqual(t, "password123", account.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("password123")))

	accounts, err := credStore.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.True(t, accounts[0].IsVerified)

	// The flow is gone once committed.
	_, err = service.Complete(ctx, flow.ID, CredentialInput{Password: "password123"})
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestComplete_RoleDefaultsToCustomer(t *testing.T) {
	service := newTestService(newMockStore(), nil)
	ctx := context.Background()

	flow, _ := service.Start(ctx, validIdentity())
	_, err := service.Confirm(ctx, flow.ID)
	require.NoError(t, err)

	account, err := service.Complete(ctx, flow.ID, CredentialInput{Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCustomer, account.Role)
}

func TestComplete_RoleGrantsApplied(t *testing.T) {
	service := newTestService(newMockStore(), nil)
	ctx := context.Background()

	flow, _ := service.Start(ctx, validIdentity())
	_, err := service.Confirm(ctx, flow.ID)
	require.NoError(t, err)

	account, err := service.Complete(ctx, flow.ID, CredentialInput{
		Password: "password123",
		Role:     "Fleet Manager",
	})
	require.NoError(t, err)
	assert.True(t, account.Permissions.Has(domain.PermFleetManage))
	assert.True(t, account.Permissions.Has(domain.PermUserView))
}

func TestComplete_InvalidRole(t *testing.T) {
	service := newTestService(newMockStore(), nil)
	ctx := context.Background()

	flow, _ := service.Start(ctx, validIdentity())
	_, err := service.Confirm(ctx, flow.ID)
	require.NoError(t, err)

	_, err = service.Complete(ctx, flow.ID, CredentialInput{
		Password: "password123",
		Role:     "Wizard",
	})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestComplete_ShortPassword(t *testing.T) {
	service := newTestService(newMockStore(), nil)
	ctx := context.Background()

	flow, _ := service.Start(ctx, validIdentity())
	_, err := service.Confirm(ctx, flow.ID)
	require.NoError(t, err)

	_, err = service.Complete(ctx, flow.ID, CredentialInput{Password: "12345"})

	var validationErrs validator.ValidationErrors
	assert.ErrorAs(t, err, &validationErrs)
}

func TestComplete_BeforeConfirm(t *testing.T) {
	service := newTestService(newMockStore(), nil)
	ctx := context.Background()

	flow, _ := service.Start(ctx, validIdentity())

	_, err := service.Complete(ctx, flow.ID, CredentialInput{Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestComplete_DuplicateEmailPreservesFlow(t *testing.T) {
	credStore := newMockStore()
	credStore.accounts[credStore.key("jane@example.com")] = &domain.Account{
		Email: "jane@example.com",
	}
	service := newTestService(credStore, nil)
	ctx := context.Background()

	flow, _ := service.Start(ctx, validIdentity())
	_, err := service.Confirm(ctx, flow.ID)
	require.NoError(t, err)

	_, err = service.Complete(ctx, flow.ID, CredentialInput{Password: "password123"})
	assert.ErrorIs(t, err, store.ErrDuplicateEmail)

	// Store still has exactly one record with that email.
	accounts, err := credStore.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	// The flow survives with its fields intact for correction.
	kept, ok := service.flows.Get(flow.ID)
	require.True(t, ok)
	assert.Equal(t, StateCredentialSetup, kept.State)
	assert.Equal(t, "Jane Doe", kept.Name)
}

func TestFlowManager_SweepsExpiredFlows(t *testing.T) {
	manager := NewFlowManager(time.Millisecond)
	manager.Put(&Flow{ID: "stale"})

	time.Sleep(5 * time.Millisecond)

	removed := manager.sweep(time.Now())
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, manager.Len())
}

func TestFlowManager_GetExpired(t *testing.T) {
	manager := NewFlowManager(time.Millisecond)
	manager.Put(&Flow{ID: "stale"})

	time.Sleep(5 * time.Millisecond)

	_, ok := manager.Get("stale")
	assert.False(t, ok)
}
