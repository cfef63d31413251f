package content

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quipper/poc/lti/tool/internal/ltitool"
)

func usageKey(t *testing.T) ltitool.UsageKey {
	t.Helper()
	k, err := ltitool.ParseUsageKey("lb:org:physics:problem:q1")
	require.NoError(t, err)
	return k
}

func TestEmbedLoader(t *testing.T) {
	f, err := NewEmbedLoader("https://learn.example.com/").LoadContent(context.Background(), usageKey(t), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "q1", f.Title)
	assert.Contains(t, string(f.HTML), `src="https://learn.example.com/xblock/lb:org:physics:problem:q1"`)
}

func TestHTTPLoader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/blocks/lb:org:physics:problem:q1/fragment" || r.URL.Query().Get("principal") != "acct-1" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Pendulum","html":"<div class=\"problem\">T = 2π√(L/g)</div>"}`))
	}))
	defer srv.Close()

	f, err := NewHTTPLoader(srv.URL, time.Second).LoadContent(context.Background(), usageKey(t), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "Pendulum", f.Title)
	assert.Contains(t, string(f.HTML), `class="problem"`)
}

func TestHTTPLoader_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("principal") {
		case "slow":
			time.Sleep(200 * time.Millisecond)
		case "garbage":
			_, _ = w.Write([]byte("<html>"))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	l := NewHTTPLoader(srv.URL, 50*time.Millisecond)
	for _, principal := range []string{"down", "slow", "garbage"} {
		_, err := l.LoadContent(context.Background(), usageKey(t), principal)
		assert.Error(t, err, principal)
	}
}
