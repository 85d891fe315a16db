package identity

import (
	"encoding/json"
	"net/http"

	"github.com/carify/identity-service/internal/domain"
	"github.com/carify/identity-service/internal/pkg/httputil"
	"github.com/carify/identity-service/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for sessions.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new identity handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers public session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})
}

// RegisterProtectedRoutes registers routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/me", h.Me)
	r.Get("/me/permissions", h.MyPermissions)
	r.With(httputil.RequirePermission(domain.PermUserManage)).
		Get("/accounts", h.ListAccounts)
}

// LoginRequest represents login request body.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents login response.
type LoginResponse struct {
	Account     domain.Account `json:"account"`
	AccessToken string         `json:"access_token"`
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	httputil.Success(w, http.StatusOK, LoginResponse{
		Account:     session.Account,
		AccessToken: session.Token,
	})
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context()); err != nil {
		h.handleServiceError(r, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /me. Returns the active session's account, provided the
// session slot still belongs to the caller's token.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.CurrentSession(r.Context(), httputil.GetUserID(r.Context()))
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}
	httputil.Success(w, http.StatusOK, session.Account)
}

// MyPermissions handles GET /me/permissions.
func (h *Handler) MyPermissions(w http.ResponseWriter, r *http.Request) {
	perms := httputil.GetPermissions(r.Context())
	role := httputil.GetRole(r.Context())
	if role == domain.RoleSuperAdmin {
		perms = domain.FullCatalogSet()
	}
	httputil.Success(w, http.StatusOK, map[string]interface{}{
		"role":        role,
		"permissions": perms.List(),
	})
}

// ListAccounts handles GET /accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}
	httputil.Success(w, http.StatusOK, accounts)
}

func (h *Handler) handleServiceError(r *http.Request, w http.ResponseWriter, err error) {
	httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
		{Error: ErrInvalidCredentials, Status: http.StatusUnauthorized},
		{Error: ErrInvalidToken, Status: http.StatusUnauthorized},
		{Error: store.ErrNoSession, Status: http.StatusUnauthorized, Message: "no active session"},
		{Error: store.ErrStorageUnavailable, Status: http.StatusServiceUnavailable, Message: "storage unavailable"},
	})
}
