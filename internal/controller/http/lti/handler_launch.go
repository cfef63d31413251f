package lti

import (
	"html/template"
	"net/http"

	"github.com/quipper/poc/lti/tool/internal/ltitool"
	"github.com/quipper/poc/lti/tool/pkg/common/logger"
)

const invalidLaunchMessage = "Invalid LTI tool launch."

var launchPage = template.Must(template.New("launch").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8"/>
<meta name="viewport" content="width=device-width, initial-scale=1"/>
<title>{{.Title}}</title>
</head>
<body data-usage-key="{{.UsageKey}}">
{{.HTML}}
</body>
</html>`))

// launch receives the platform's form_post of id_token and state. The page
// is rendered inside the platform's frame, so no X-Frame-Options is set.
func (h *Handler) launch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		logger.Info("LTI 1.3: launch: unreadable form: %v", err)
		http.Error(w, invalidLaunchMessage, http.StatusBadRequest)
		return
	}
	idToken := r.PostForm.Get("id_token")
	state := r.PostForm.Get("state")
	requested := r.URL.Query().Get("id")
	if idToken == "" || state == "" {
		logger.Info("LTI 1.3: launch rejected: missing id_token or state")
		http.Error(w, invalidLaunchMessage, http.StatusBadRequest)
		return
	}

	res, err := h.tool.Launch(r.Context(), idToken, state, requested)
	if err != nil {
		if ltitool.IsRejection(err) {
			logger.Info("LTI 1.3: launch rejected: %v", err)
			http.Error(w, invalidLaunchMessage, http.StatusBadRequest)
			return
		}
		logger.Error("LTI 1.3: launch failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	sess := res.Identity.Session
	cookie := h.sessionCookie(sess.ID)
	cookie.Expires = sess.ExpiresAt
	http.SetCookie(w, cookie)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	err = launchPage.Execute(w, map[string]any{
		"Title":    res.Fragment.Title,
		"UsageKey": res.Claims.ContentRef.String(),
		"HTML":     res.Fragment.HTML,
	})
	if err != nil {
		logger.Error("LTI 1.3: render launch page: %v", err)
	}
}
