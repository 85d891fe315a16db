package onboarding

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/carify/identity-service/internal/pkg/httputil"
	"github.com/carify/identity-service/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the registration flow.
type Handler struct {
	service *Service
}

// NewHandler creates a new onboarding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers registration routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth/register", func(r chi.Router) {
		r.Post("/", h.Start)
		r.Post("/{flowID}/confirm", h.Confirm)
		r.Post("/{flowID}/complete", h.Complete)
	})
}

// Start handles POST /auth/register (IdentityEntry).
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req IdentityInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	flow, err := h.service.Start(r.Context(), req)
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	httputil.Success(w, http.StatusAccepted, flow)
}

// Confirm handles POST /auth/register/{flowID}/confirm (EmailVerification).
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "flowID")

	flow, err := h.service.Confirm(r.Context(), flowID)
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	httputil.Success(w, http.StatusOK, flow)
}

// Complete handles POST /auth/register/{flowID}/complete (CredentialSetup).
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "flowID")

	var req CredentialInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	account, err := h.service.Complete(r.Context(), flowID, req)
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, account)
}

func (h *Handler) handleServiceError(r *http.Request, w http.ResponseWriter, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		httputil.ValidationError(w, validationErrs)
		return
	}

	httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
		{Error: ErrFlowNotFound, Status: http.StatusNotFound},
		{Error: ErrInvalidState, Status: http.StatusConflict},
		{Error: ErrInvalidRole, Status: http.StatusBadRequest},
		{Error: store.ErrDuplicateEmail, Status: http.StatusConflict},
		{Error: store.ErrStorageUnavailable, Status: http.StatusServiceUnavailable, Message: "storage unavailable"},
	})
}
