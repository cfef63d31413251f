package lti

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/quipper/poc/lti/tool/pkg/common/logger"
)

// requireAdmin validates the static admin bearer token.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.opts.AdminToken == "" {
			logger.Debug("admin auth: admin API disabled, path=%s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if auth == "" || !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			logger.Debug("admin auth: missing bearer token")
			w.Header().Set("WWW-Authenticate", `Bearer realm="ltitool-admin", error="invalid_request", error_description="missing bearer token"`)
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		tok := strings.TrimSpace(auth[len("Bearer "):])
		if subtle.ConstantTimeCompare([]byte(tok), []byte(h.opts.AdminToken)) != 1 {
			logger.Warn("admin auth: invalid token for %s %s", r.Method, r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Bearer realm="ltitool-admin", error="invalid_token"`)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
