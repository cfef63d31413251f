package lti

import (
	"context"
	"errors"
	"net/http"

	"github.com/quipper/poc/lti/tool/pkg/common/logger"
	"github.com/quipper/poc/lti/tool/pkg/repositories"
	"github.com/quipper/poc/lti/tool/pkg/repositories/identity"
)

// SessionStore resolves and ends the sessions opened by a launch.
type SessionStore interface {
	Current(ctx context.Context, sessionID string) (*identity.Account, error)
	Logout(ctx context.Context, sessionID string) error
}

// session reports the account behind the launch cookie. Framed content calls
// it to learn who it is rendering for.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(h.opts.CookieName)
	if err != nil || c.Value == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no session"})
		return
	}
	account, err := h.sessions.Current(r.Context(), c.Value)
	if errors.Is(err, repositories.ErrNotFound) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no session"})
		return
	}
	if err != nil {
		logger.Error("session: lookup failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, account)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(h.opts.CookieName); err == nil && c.Value != "" {
		if err := h.sessions.Logout(r.Context(), c.Value); err != nil {
			logger.Error("logout: delete session: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
	}
	cookie := h.sessionCookie("")
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sessionCookie(value string) *http.Cookie {
	cookie := &http.Cookie{
		Name:     h.opts.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if h.opts.SecureCookies {
		// the launch is framed cross-site by the platform
		cookie.Secure = true
		cookie.SameSite = http.SameSiteNoneMode
	}
	return cookie
}
