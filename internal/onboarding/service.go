package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carify/identity-service/internal/domain"
	"github.com/carify/identity-service/internal/pkg/ctxlog"
	"github.com/carify/identity-service/internal/pkg/metrics"
	"github.com/carify/identity-service/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// VerificationSender issues the confirm-your-email message for a flow.
// A nil sender disables verification mail entirely.
type VerificationSender interface {
	SendVerification(ctx context.Context, name, email, flowID string) error
}

// IdentityInput is the step-1 payload.
type IdentityInput struct {
	Name  string `json:"name" validate:"required,min=3"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required,min=10"`
}

// CredentialInput is the step-3 payload. Role defaults to Customer.
type CredentialInput struct {
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role"`
}

// registrationData is the merged schema re-validated at commit.
type registrationData struct {
	Name     string `validate:"required,min=3"`
	Email    string `validate:"required,email"`
	Phone    string `validate:"required,min=10"`
	Password string `validate:"required,min=6"`
}

// Service implements the registration flow state machine.
type Service struct {
	store    store.Store
	flows    *FlowManager
	mailer   VerificationSender
	validate *validator.Validate
}

// NewService creates the onboarding service. mailer may be nil.
func NewService(credStore store.Store, flows *FlowManager, mailer VerificationSender) *Service {
	return &Service{
		store:    credStore,
		flows:    flows,
		mailer:   mailer,
		validate: validator.New(),
	}
}

// Start runs the IdentityEntry step: validates name, email and phone, issues
// the verification message, and advances the flow to EmailVerification.
// The credential store is never touched here. A failed verification send is
// reported in logs but does not block the transition.
func (s *Service) Start(ctx context.Context, input IdentityInput) (*Flow, error) {
	input.Phone = normalizePhone(input.Phone)

	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}
	if _, err := domain.NormalizeEmail(input.Email); err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}

	flow := &Flow{
		ID:        uuid.NewString(),
		State:     StateIdentityEntry,
		Name:      input.Name,
		Email:     input.Email,
		Phone:     input.Phone,
		CreatedAt: time.Now().UTC(),
	}

	if s.mailer != nil {
		if err := s.mailer.SendVerification(ctx, flow.Name, flow.Email, flow.ID); err != nil {
			ctxlog.FromContext(ctx).Warn("verification message failed, continuing registration",
				"flow_id", flow.ID,
				"error", err,
			)
		}
	}

	flow.State = StateEmailVerification
	s.flows.Put(flow)

	metrics.RegistrationsStarted.Inc()

	return flow, nil
}

// Confirm runs the EmailVerification step: the single confirmation action
// advancing the flow to CredentialSetup. Confirming twice is harmless.
func (s *Service) Confirm(_ context.Context, flowID string) (*Flow, error) {
	return s.flows.Update(flowID, func(flow *Flow) error {
		switch flow.State {
		case StateEmailVerification:
			flow.State = StateCredentialSetup
		case StateCredentialSetup:
			// Already confirmed; the emailed link may be clicked more than once.
		default:
			return fmt.Errorf("%w: %s", ErrInvalidState, flow.State)
		}
		return nil
	})
}

// Complete runs the CredentialSetup step: re-validates the accumulated
// fields, constructs a verified account with the default permission set plus
// role grants, and commits it. On a duplicate email the flow stays in
// CredentialSetup with its fields intact so the user can correct the email
// and resubmit.
func (s *Service) Complete(ctx context.Context, flowID string, input CredentialInput) (*domain.Account, error) {
	flow, ok := s.flows.Get(flowID)
	if !ok {
		return nil, ErrFlowNotFound
	}
	if flow.State != StateCredentialSetup {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, flow.State)
	}

	role := domain.Role(input.Role)
	if input.Role == "" {
		role = domain.RoleCustomer
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, input.Role)
	}

	merged := registrationData{
		Name:     flow.Name,
		Email:    flow.Email,
		Phone:    flow.Phone,
		Password: input.Password,
	}
	if err := s.validate.Struct(merged); err != nil {
		return nil, err
	}

	if _, err := s.store.FindAccountByEmail(ctx, flow.Email); err == nil {
		return nil, store.ErrDuplicateEmail
	} else if !errors.Is(err, store.ErrAccountNotFound) {
		return nil, fmt.Errorf("check existing account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := &domain.Account{
		ID:           uuid.NewString(),
		Name:         flow.Name,
		Email:        flow.Email,
		Phone:        flow.Phone,
		PasswordHash: string(hash),
		Role:         role,
		Permissions:  domain.DefaultPermissions().Union(domain.GrantsForRole(role)),
		IsVerified:   true,
	}

	// The store enforces uniqueness itself, so a concurrent duplicate submit
	// loses here even though the lookup above saw nothing.
	if err := s.store.InsertAccount(ctx, account); err != nil {
		return nil, err
	}

	s.flows.Delete(flow.ID)

	metrics.RegistrationsCommitted.Inc()
	ctxlog.FromContext(ctx).Info("registration committed",
		"account_id", account.ID,
		"role", account.Role,
	)

	return account, nil
}

// normalizePhone strips separators commonly typed into phone fields.
func normalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, phone)
}
