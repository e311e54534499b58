package app

import (
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/schola-erp/schola/internal/auth"
	"github.com/schola-erp/schola/internal/guard"
	"github.com/schola-erp/schola/internal/observability"
	"github.com/schola-erp/schola/internal/platform/httpx"
	"github.com/schola-erp/schola/internal/policy"
	"github.com/schola-erp/schola/internal/realm"
	"github.com/schola-erp/schola/internal/shared"
	"github.com/schola-erp/schola/jobs"
	"github.com/schola-erp/schola/web"
)

// guardReleaser releases the redirect guard when a login surface is served.
type guardReleaser interface {
	ResetGuard()
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthHandler    *auth.Handler
	AuditHandler   *auth.AuditHandler
	JobHandler     *jobs.Handler
	Proxy          http.Handler
	Guards         guard.Middleware
	GuardRelease   guardReleaser
	Metrics        *observability.Metrics
}

// modulePaths maps dashboard modules onto their SPA routes.
var modulePaths = map[string]string{
	policy.ModuleDashboard:     "/dashboard",
	policy.ModuleStudents:      "/students",
	policy.ModuleStaff:         "/staff",
	policy.ModuleClasses:       "/classes",
	policy.ModuleAttendance:    "/attendance",
	policy.ModuleExams:         "/exams",
	policy.ModuleAssessments:   "/assessments",
	policy.ModuleFeeManagement: "/fee-management",
	policy.ModulePayments:      "/payments",
	policy.ModuleReports:       "/reports",
	policy.ModuleSettings:      "/settings",
}

// NewRouter constructs the chi.Router with Schola defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	shell := shellHandler(params.Logger)

	// Login surfaces. Serving one means a redirect cycle, if any, completed.
	loginShell := func(w http.ResponseWriter, req *http.Request) {
		if params.GuardRelease != nil {
			params.GuardRelease.ResetGuard()
		}
		shell(w, req)
	}
	r.Get("/login", loginShell)
	r.Get("/system/login", loginShell)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, guard.DashboardPath, http.StatusSeeOther)
	})

	// Tenant module routes, each behind the session and permission guards.
	for module, path := range modulePaths {
		r.Route(path, func(sub chi.Router) {
			sub.Use(params.Guards.RequireSession(realm.Tenant))
			sub.Use(params.Guards.RequireModule(module))
			sub.Get("/", shell)
			sub.Get("/*", shell)
		})
	}

	// System operator dashboard. Permission modules do not apply here; the
	// system realm has its own session guard only.
	r.Route("/system", func(sub chi.Router) {
		sub.Group(func(protected chi.Router) {
			protected.Use(params.Guards.RequireSession(realm.System))
			protected.Get("/", shell)
			protected.Get("/schools", shell)
			protected.Get("/schools/*", shell)
			protected.Get("/payments", shell)
		})
	})

	// Session API and upstream proxy.
	r.Route("/api", func(api chi.Router) {
		api.Group(func(authRoutes chi.Router) {
			authRoutes.Use(httprate.Limit(20, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
			params.AuthHandler.MountRoutes(authRoutes)
		})
		if params.AuditHandler != nil {
			api.Route("/audit", func(audit chi.Router) {
				audit.Use(params.Guards.RequireSession(realm.System))
				params.AuditHandler.MountRoutes(audit)
			})
		}
		if params.JobHandler != nil {
			api.Route("/jobs", func(jobRoutes chi.Router) {
				jobRoutes.Use(params.Guards.RequireSession(realm.System))
				params.JobHandler.MountRoutes(jobRoutes)
			})
		}
		api.Get("/session/csrf", func(w http.ResponseWriter, req *http.Request) {
			sess := shared.SessionFromContext(req.Context())
			token, err := params.CSRFManager.TokenFor(sess)
			if err != nil {
				httpx.Detail(w, http.StatusInternalServerError, "session missing")
				return
			}
			httpx.JSON(w, http.StatusOK, map[string]string{"token": token})
		})
		api.Handle("/*", params.Proxy)
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// shellHandler serves the embedded SPA shell; the client router takes over
// from there.
func shellHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := web.Static.ReadFile("static/index.html")
		if err != nil {
			if logger != nil {
				logger.Error("read dashboard shell", slog.Any("error", err))
			}
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(data)
	}
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
