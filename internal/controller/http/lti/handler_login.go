package lti

import (
	"net/http"

	"github.com/quipper/poc/lti/tool/internal/ltitool"
	"github.com/quipper/poc/lti/tool/pkg/common/logger"
	"github.com/quipper/poc/lti/tool/pkg/common/metrics"
)

const invalidLoginMessage = "Invalid LTI login request."

// loginInit handles the platform's third-party initiated login and redirects
// the user agent to the platform's OIDC authorization endpoint.
// GET and POST are read identically from query and form.
func (h *Handler) loginInit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		logger.Info("LTI 1.3: login: unreadable form: %v", err)
		metrics.LoginsTotal.WithLabelValues("rejected").Inc()
		http.Error(w, invalidLoginMessage, http.StatusBadRequest)
		return
	}
	req := ltitool.LoginRequest{
		Issuer:         r.Form.Get("iss"),
		LoginHint:      r.Form.Get("login_hint"),
		TargetLinkURI:  r.Form.Get("target_link_uri"),
		LTIMessageHint: r.Form.Get("lti_message_hint"),
		ClientID:       r.Form.Get("client_id"),
		DeploymentID:   r.Form.Get("lti_deployment_id"),
	}
	logger.Debug("LTI 1.3: login: method=%s iss=%s client_id=%s target_link_uri=%s", r.Method, req.Issuer, req.ClientID, req.TargetLinkURI)

	redirect, err := h.login.Initiate(r.Context(), req)
	if err != nil {
		if ltitool.IsRejection(err) {
			logger.Info("LTI 1.3: login rejected: %v", err)
			metrics.LoginsTotal.WithLabelValues("rejected").Inc()
			http.Error(w, invalidLoginMessage, http.StatusBadRequest)
			return
		}
		logger.Error("LTI 1.3: login: %v", err)
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	metrics.LoginsTotal.WithLabelValues("redirected").Inc()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
	logger.Debug("LTI 1.3: login: redirected to %s", redirect.Redacted())
}
