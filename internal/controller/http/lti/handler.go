package lti

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quipper/poc/lti/tool/internal/ltitool"
	"github.com/quipper/poc/lti/tool/pkg/common/logger"
	"github.com/quipper/poc/lti/tool/pkg/common/metrics"
	"github.com/quipper/poc/lti/tool/pkg/repositories/grades"
	"github.com/quipper/poc/lti/tool/pkg/repositories/library"
	"github.com/quipper/poc/lti/tool/pkg/repositories/platform"
)

// KeySetPublisher exposes the tool's public signing keys.
type KeySetPublisher interface {
	PublicJWKS() jwk.Set
}

// Deps are the services behind the HTTP boundary.
type Deps struct {
	Tool      *ltitool.Tool
	Login     *ltitool.LoginInitiator
	Keys      KeySetPublisher
	Platforms platform.Repository
	Libraries library.Repository
	Grades    grades.Repository
	Sessions  SessionStore
}

type Options struct {
	// Enabled gates every LTI route; disabled routes answer 404.
	Enabled bool
	// AdminToken protects /api/platforms and /api/graded-resources. Empty disables them.
	AdminToken    string
	CookieName    string
	SecureCookies bool
	MaxBodyBytes  int64
}

type Handler struct {
	tool      *ltitool.Tool
	login     *ltitool.LoginInitiator
	keys      KeySetPublisher
	platforms platform.Repository
	libraries library.Repository
	grades    grades.Repository
	sessions  SessionStore
	opts      Options
}

func NewHandler(deps Deps, opts Options) *Handler {
	if opts.CookieName == "" {
		opts.CookieName = "ltitool_session"
	}
	return &Handler{
		tool:      deps.Tool,
		login:     deps.Login,
		keys:      deps.Keys,
		platforms: deps.Platforms,
		libraries: deps.Libraries,
		grades:    deps.Grades,
		sessions:  deps.Sessions,
		opts:      opts,
	}
}

// Router returns the chi router serving every tool endpoint.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	if h.opts.MaxBodyBytes > 0 {
		r.Use(middleware.RequestSize(h.opts.MaxBodyBytes))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/api/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(h.requireLTIEnabled)

		// Tool JWKS
		r.Get("/lti/1.3/pub/jwks/", h.jwks)
		r.Get("/.well-known/jwks.json", h.jwks)

		// Third-party initiated login, then the platform's form_post back
		r.Get("/lti/1.3/login/", h.loginInit)
		r.Post("/lti/1.3/login/", h.loginInit)
		r.Post("/lti/1.3/launch/", h.launch)

		r.Get("/lti/1.3/session/", h.session)
		r.Post("/lti/1.3/logout/", h.logout)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireAdmin)

		r.Get("/api/platforms", h.listPlatforms)
		r.Post("/api/platforms", h.createPlatform)
		r.Get("/api/platforms/{id}", h.getPlatform)
		r.Delete("/api/platforms/{id}", h.deletePlatform)
		r.Post("/api/platforms/{id}/libraries", h.authorizeLibrary)

		r.Get("/api/graded-resources", h.listGradedResources)
		r.Get("/api/graded-resources/{id}", h.getGradedResource)
	})
	return r
}

func (h *Handler) requireLTIEnabled(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.opts.Enabled {
			logger.Debug("LTI 1.3: disabled, refusing %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := h.platforms.Health(r.Context()); err != nil {
		logger.Error("health: storage check failed: %v", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// jwks serves the tool's public keys so platforms can verify what it signs.
func (h *Handler) jwks(w http.ResponseWriter, r *http.Request) {
	data, err := json.Marshal(h.keys.PublicJWKS())
	if err != nil {
		logger.Error("marshal jwks: %v", err)
		http.Error(w, "failed to get JWKS", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
