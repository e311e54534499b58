package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/schola-erp/schola/internal/credentials"
	"github.com/schola-erp/schola/internal/platform/httpx"
	"github.com/schola-erp/schola/internal/policy"
	"github.com/schola-erp/schola/internal/realm"
	"github.com/schola-erp/schola/internal/shared"
)

// guardResetter releases the redirect guard when a login surface is reached.
type guardResetter interface {
	ResetGuard()
}

// Handler wires the session-facing HTTP endpoints: login/logout per realm,
// flash drain, and the permission surface for generated CRUD screens.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	store      *credentials.Store
	sessions   *shared.SessionManager
	engine     *policy.Engine
	resolver   *realm.Resolver
	guardReset guardResetter
	validator  *validator.Validate
}

// NewHandler constructs a Handler. guardReset may be nil.
func NewHandler(logger *slog.Logger, service *Service, store *credentials.Store, sessions *shared.SessionManager, engine *policy.Engine, resolver *realm.Resolver, guardReset guardResetter) *Handler {
	return &Handler{
		logger:     logger,
		service:    service,
		store:      store,
		sessions:   sessions,
		engine:     engine,
		resolver:   resolver,
		guardReset: guardReset,
		validator:  validator.New(),
	}
}

// MountRoutes registers the session API under the router's /api subtree.
// The login endpoints shadow their upstream counterparts so tokens are
// captured server-side and never reach the browser.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/auth/login", h.login(realm.Tenant))
	r.Post("/auth/logout", h.logout(realm.Tenant))
	r.Post("/system-management/auth/login", h.login(realm.System))
	r.Post("/system-management/auth/logout", h.logout(realm.System))
	r.Get("/session/flash", h.flash)
	r.Get("/session/me", h.me)
	r.Get("/session/permissions", h.permissions)
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) login(rlm realm.Realm) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			httpx.Detail(w, http.StatusInternalServerError, "session missing")
			return
		}

		var form loginForm
		if err := httpx.DecodeJSON(r, &form); err != nil {
			httpx.Detail(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if err := h.validator.Struct(form); err != nil {
			httpx.Detail(w, http.StatusUnprocessableEntity, "email and password are required")
			return
		}

		cred, err := h.service.Login(r.Context(), rlm, form.Email, form.Password)
		if err != nil {
			if errors.Is(err, shared.ErrInvalidCredentials) {
				httpx.Detail(w, http.StatusUnauthorized, "Invalid email or password")
				return
			}
			if h.logger != nil {
				h.logger.Error("upstream login", slog.String("realm", string(rlm)), slog.Any("error", err))
			}
			httpx.Detail(w, http.StatusBadGateway, "login service unavailable")
			return
		}

		if err := h.store.Set(r.Context(), sess.ID, rlm, cred); err != nil {
			if h.logger != nil {
				h.logger.Error("store credential", slog.Any("error", err))
			}
			httpx.Detail(w, http.StatusInternalServerError, "could not establish session")
			return
		}

		expiresAt := time.Now().Add(h.sessions.TTL())
		if err := h.service.RegisterSession(r.Context(), sess.ID, rlm, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil && h.logger != nil {
			h.logger.Warn("register session", slog.Any("error", err))
		}
		if err := h.service.RecordEvent(r.Context(), sess.ID, rlm, "login", ""); err != nil && h.logger != nil {
			h.logger.Warn("record login event", slog.Any("error", err))
		}

		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back"})
		// A completed login means navigation reached the login surface; any
		// pending redirect cycle is over.
		if h.guardReset != nil {
			h.guardReset.ResetGuard()
		}

		httpx.JSON(w, http.StatusOK, loginResponse(rlm, cred))
	}
}

func loginResponse(rlm realm.Realm, cred credentials.Credential) map[string]any {
	resp := map[string]any{
		"realm":   string(rlm),
		"profile": json.RawMessage(cred.Profile),
	}
	if rlm == realm.Tenant {
		resp["role"] = string(policy.RoleFromProfile(cred.Profile))
	}
	return resp
}

func (h *Handler) logout(rlm realm.Realm) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if err := h.store.Clear(r.Context(), sess.ID, rlm); err != nil {
			if h.logger != nil {
				h.logger.Error("clear credential", slog.Any("error", err))
			}
			httpx.Detail(w, http.StatusInternalServerError, "could not end session")
			return
		}
		if err := h.service.RemoveSession(r.Context(), sess.ID, rlm); err != nil && h.logger != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		if err := h.service.RecordEvent(r.Context(), sess.ID, rlm, "logout", ""); err != nil && h.logger != nil {
			h.logger.Warn("record logout event", slog.Any("error", err))
		}
		sess.AddFlash(shared.FlashMessage{Kind: "info", Message: "You have been signed out"})
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) flash(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	var messages []shared.FlashMessage
	if sess != nil {
		messages = sess.DrainFlashes()
	}
	if messages == nil {
		messages = []shared.FlashMessage{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	loginPath := h.resolver.LoginPath(realm.Tenant)
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.DetailRedirect(w, http.StatusUnauthorized, "no active session", loginPath)
		return
	}
	cred, ok, err := h.store.Get(r.Context(), sess.ID, realm.Tenant)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !ok {
		httpx.DetailRedirect(w, http.StatusUnauthorized, "no active session", loginPath)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role":    string(policy.RoleFromProfile(cred.Profile)),
		"profile": json.RawMessage(cred.Profile),
	})
}

// LoginForTest exposes the login handler for tests.
func (h *Handler) LoginForTest(rlm realm.Realm) http.HandlerFunc {
	return h.login(rlm)
}

// LogoutForTest exposes the logout handler for tests.
func (h *Handler) LogoutForTest(rlm realm.Realm) http.HandlerFunc {
	return h.logout(rlm)
}

// MeForTest exposes the profile handler for tests.
func (h *Handler) MeForTest() http.HandlerFunc {
	return h.me
}

// PermissionsForTest exposes the permissions handler for tests.
func (h *Handler) PermissionsForTest() http.HandlerFunc {
	return h.permissions
}

// permissions reports the per-module allowed actions for the current role so
// generated screens can hide controls. Role is re-derived from storage on
// every call; nothing here is cacheable across a role change.
func (h *Handler) permissions(w http.ResponseWriter, r *http.Request) {
	role := policy.RoleNone
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if cred, ok, err := h.store.Get(r.Context(), sess.ID, realm.Tenant); err == nil && ok {
			role = policy.RoleFromProfile(cred.Profile)
		}
	}

	modules := make(map[string][]string, len(policy.Modules()))
	for _, module := range policy.Modules() {
		actions := h.engine.Allowed(role, module)
		names := make([]string, len(actions))
		for i, a := range actions {
			names[i] = string(a)
		}
		modules[module] = names
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role":    string(role),
		"modules": modules,
	})
}
