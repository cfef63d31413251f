package lti

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quipper/poc/lti/tool/internal/accounts"
	"github.com/quipper/poc/lti/tool/internal/content"
	"github.com/quipper/poc/lti/tool/internal/ltitool"
	gradessqlite "github.com/quipper/poc/lti/tool/internal/repositories/grades/sqlite"
	identitysqlite "github.com/quipper/poc/lti/tool/internal/repositories/identity/sqlite"
	launchsqlite "github.com/quipper/poc/lti/tool/internal/repositories/launchstate/sqlite"
	librarysqlite "github.com/quipper/poc/lti/tool/internal/repositories/library/sqlite"
	platformsqlite "github.com/quipper/poc/lti/tool/internal/repositories/platform/sqlite"
	"github.com/quipper/poc/lti/tool/internal/repositories/sqlitedb"
	"github.com/quipper/poc/lti/tool/pkg/common/jwkscache"
	"github.com/quipper/poc/lti/tool/pkg/common/keys"
	"github.com/quipper/poc/lti/tool/pkg/repositories/grades"
	"github.com/quipper/poc/lti/tool/pkg/repositories/platform"
)

const (
	adminToken = "s3cret"
	issuer     = "https://lms.example.com"
	clientID   = "tool-client"
	deployment = "d1"
	launchURL  = "https://tool.example.com/lti/1.3/launch/"
	usageKey   = "lb:org:physics:problem:q1"
)

var target = launchURL + "?id=" + url.QueryEscape(usageKey)

type fixture struct {
	router   http.Handler
	lmsKey   jwk.Key
	lmsKeys  jwk.Set
	toolKeys *keys.KeyPair
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := sqlitedb.Open(ctx, filepath.Join(t.TempDir(), "tool.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	platforms := platformsqlite.NewSQLiteRepo(db)
	states := launchsqlite.NewSQLiteRepo(db)
	identities := identitysqlite.NewSQLiteRepo(db)
	libraries := librarysqlite.NewSQLiteRepo(db)
	links := gradessqlite.NewSQLiteRepo(db)

	toolKeys, err := keys.Load(keys.Source{KID: "tool-1"})
	require.NoError(t, err)
	trust := ltitool.NewTrustStore(platforms, toolKeys.PublicSet(), jwkscache.New(jwkscache.Options{}), time.Minute)
	login, err := ltitool.NewLoginInitiator(platforms, states, launchURL, 10*time.Minute)
	require.NoError(t, err)

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	lmsKey, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, lmsKey.Set(jwk.KeyIDKey, "lms-1"))
	priv := jwk.NewSet()
	require.NoError(t, priv.AddKey(lmsKey))
	lmsKeys, err := jwk.PublicSetOf(priv)
	require.NoError(t, err)

	sessions := accounts.NewService(identities, time.Hour)
	tool := &ltitool.Tool{
		Validator:   ltitool.NewLaunchValidator(platforms, states, trust),
		Authorizer:  ltitool.NewLaunchAuthorizer(libraries),
		Identities:  ltitool.NewIdentityResolver(identities, sessions),
		Permissions: ltitool.NewPermissionBootstrapper(libraries),
		Grades:      ltitool.NewAGSRegistrar(links),
		Content:     content.NewEmbedLoader("https://learn.example.com"),
	}
	h := NewHandler(Deps{
		Tool:      tool,
		Login:     login,
		Keys:      trust,
		Platforms: platforms,
		Libraries: libraries,
		Grades:    links,
		Sessions:  sessions,
	}, opts)
	return &fixture{router: h.Router(), lmsKey: lmsKey, lmsKeys: lmsKeys, toolKeys: toolKeys}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) admin(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = strings.NewReader(string(b))
	} else {
		rd = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set("Content-Type", "application/json")
	return f.do(t, req)
}

// register creates the LMS registration and authorizes it on the physics library.
func (f *fixture) register(t *testing.T) int64 {
	t.Helper()
	keySet, err := json.Marshal(f.lmsKeys)
	require.NoError(t, err)
	rec := f.admin(t, http.MethodPost, "/api/platforms", platform.Registration{
		Name:          "LMS",
		Issuer:        issuer,
		ClientID:      clientID,
		AuthLoginURL:  issuer + "/oidc/auth",
		KeySet:        string(keySet),
		DeploymentIDs: []string{deployment},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created platform.Registration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.admin(t, http.MethodPost, fmt.Sprintf("/api/platforms/%d/libraries", created.ID),
		map[string]string{"library_key": "lib:org:physics", "title": "Physics"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	return created.ID
}

func (f *fixture) loginLeg(t *testing.T) (state, nonce string) {
	t.Helper()
	q := url.Values{
		"iss":               {issuer},
		"login_hint":        {"user-7"},
		"target_link_uri":   {target},
		"client_id":         {clientID},
		"lti_deployment_id": {deployment},
	}
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/lti/1.3/login/?"+q.Encode(), nil))
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return loc.Query().Get("state"), loc.Query().Get("nonce")
}

func (f *fixture) idToken(t *testing.T, nonce string) string {
	t.Helper()
	return signLaunch(t, f.lmsKey, nonce)
}

func signLaunch(t *testing.T, key jwk.Key, nonce string) string {
	t.Helper()
	now := time.Now()
	tok := jwt.New()
	claims := map[string]any{
		jwt.IssuerKey:              issuer,
		jwt.AudienceKey:            clientID,
		jwt.SubjectKey:             "user-7",
		jwt.IssuedAtKey:            now,
		jwt.ExpirationKey:          now.Add(5 * time.Minute),
		"nonce":                    nonce,
		ltitool.ClaimMessageType:   ltitool.MessageTypeResourceLink,
		ltitool.ClaimVersion:       ltitool.LTIVersion,
		ltitool.ClaimDeploymentID:  deployment,
		ltitool.ClaimTargetLinkURI: target,
		ltitool.ClaimResourceLink:  map[string]any{"id": "rl-9", "title": "Pendulum"},
		ltitool.ClaimAGSEndpoint: map[string]any{
			"scope":    []string{ltitool.ScopeLineItem, ltitool.ScopeScore},
			"lineitem": issuer + "/lineitems/3",
		},
	}
	for k, v := range claims {
		require.NoError(t, tok.Set(k, v))
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key))
	require.NoError(t, err)
	return string(signed)
}

func launchRequest(idToken, state string) *http.Request {
	form := url.Values{"id_token": {idToken}, "state": {state}}
	req := httptest.NewRequest(http.MethodPost, "/lti/1.3/launch/?id="+url.QueryEscape(usageKey), strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestLaunchFlow(t *testing.T) {
	f := newFixture(t, Options{Enabled: true, AdminToken: adminToken, CookieName: "sid"})
	f.register(t)

	state, nonce := f.loginLeg(t)
	require.NotEmpty(t, state)
	token := f.idToken(t, nonce)

	rec := f.do(t, launchRequest(token, state))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `src="https://learn.example.com/xblock/lb:org:physics:problem:q1"`)
	assert.Contains(t, rec.Body.String(), `data-usage-key="lb:org:physics:problem:q1"`)
	assert.Empty(t, rec.Header().Get("X-Frame-Options"))

	var sid *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sid" {
			sid = c
		}
	}
	require.NotNil(t, sid)
	assert.True(t, sid.HttpOnly)
	assert.NotEmpty(t, sid.Value)

	// the state is gone after one presentation
	rec = f.do(t, launchRequest(token, state))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, invalidLaunchMessage, strings.TrimSpace(rec.Body.String()))

	rec = f.admin(t, http.MethodGet, "/api/graded-resources?content_ref="+url.QueryEscape(usageKey), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var links []grades.GradedResourceLink
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &links))
	require.Len(t, links, 1)
	assert.Equal(t, issuer+"/lineitems/3", links[0].LineItemURL)
	assert.Equal(t, "Pendulum", links[0].ResourceTitle)

	rec = f.admin(t, http.MethodGet, fmt.Sprintf("/api/graded-resources/%d", links[0].ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLaunch_Rejections(t *testing.T) {
	f := newFixture(t, Options{Enabled: true, AdminToken: adminToken})
	f.register(t)

	state, nonce := f.loginLeg(t)
	rec := f.do(t, launchRequest(f.idToken(t, "not-"+nonce), state))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, invalidLaunchMessage, strings.TrimSpace(rec.Body.String()))

	rec = f.do(t, launchRequest("", "state-x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	state, nonce = f.loginLeg(t)
	req := launchRequest(f.idToken(t, nonce), state)
	req.URL.RawQuery = "id=" + url.QueryEscape("lb:org:physics:problem:other")
	rec = f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLaunch_ForeignKeyRejected(t *testing.T) {
	f := newFixture(t, Options{Enabled: true, AdminToken: adminToken, CookieName: "sid"})
	f.register(t)

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	forged, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, forged.Set(jwk.KeyIDKey, "lms-1"))

	state, nonce := f.loginLeg(t)
	rec := f.do(t, launchRequest(signLaunch(t, forged, nonce), state))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, invalidLaunchMessage, strings.TrimSpace(rec.Body.String()))
	assert.Empty(t, rec.Result().Cookies())

	rec = f.admin(t, http.MethodGet, "/api/graded-resources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestSessionAndLogout(t *testing.T) {
	f := newFixture(t, Options{Enabled: true, AdminToken: adminToken, CookieName: "sid"})
	f.register(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/lti/1.3/session/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	state, nonce := f.loginLeg(t)
	rec = f.do(t, launchRequest(f.idToken(t, nonce), state))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sid *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sid" {
			sid = c
		}
	}
	require.NotNil(t, sid)

	req := httptest.NewRequest(http.MethodGet, "/lti/1.3/session/", nil)
	req.AddCookie(sid)
	rec = f.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var account struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &account))
	assert.NotEmpty(t, account.ID)
	assert.NotEmpty(t, account.Username)

	req = httptest.NewRequest(http.MethodPost, "/lti/1.3/logout/", nil)
	req.AddCookie(sid)
	rec = f.do(t, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, "sid", cleared[0].Name)
	assert.Negative(t, cleared[0].MaxAge)

	req = httptest.NewRequest(http.MethodGet, "/lti/1.3/session/", nil)
	req.AddCookie(sid)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, req).Code)
}

type unhealthyPlatforms struct {
	platform.Repository
}

func (unhealthyPlatforms) Health(context.Context) error {
	return errors.New("open /var/lib/ltitool/tool.db: permission denied")
}

func TestHealth_HidesStorageError(t *testing.T) {
	h := NewHandler(Deps{Platforms: unhealthyPlatforms{}}, Options{Enabled: true})
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "tool.db")
}

func TestLogin_Rejections(t *testing.T) {
	f := newFixture(t, Options{Enabled: true, AdminToken: adminToken})
	f.register(t)

	tests := map[string]url.Values{
		"unknown issuer":  {"iss": {"https://evil.example.com"}, "login_hint": {"u"}, "target_link_uri": {target}, "client_id": {clientID}},
		"missing hint":    {"iss": {issuer}, "target_link_uri": {target}, "client_id": {clientID}},
		"foreign target":  {"iss": {issuer}, "login_hint": {"u"}, "target_link_uri": {"https://elsewhere.example.com/?id=" + usageKey}, "client_id": {clientID}},
		"bad content ref": {"iss": {issuer}, "login_hint": {"u"}, "target_link_uri": {launchURL + "?id=nope"}, "client_id": {clientID}},
	}
	for name, q := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/lti/1.3/login/", strings.NewReader(q.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := f.do(t, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, invalidLoginMessage, strings.TrimSpace(rec.Body.String()))
		})
	}
}

func TestLogin_PostFormRedirects(t *testing.T) {
	f := newFixture(t, Options{Enabled: true, AdminToken: adminToken})
	f.register(t)

	form := url.Values{"iss": {issuer}, "login_hint": {"u"}, "target_link_uri": {target}, "lti_message_hint": {"mh"}}
	req := httptest.NewRequest(http.MethodPost, "/lti/1.3/login/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := f.do(t, req)
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "lms.example.com", loc.Host)
	assert.Equal(t, "/oidc/auth", loc.Path)
	assert.Equal(t, "mh", loc.Query().Get("lti_message_hint"))
	assert.Equal(t, target, loc.Query().Get("redirect_uri"))
}

func TestJWKS(t *testing.T) {
	f := newFixture(t, Options{Enabled: true})
	for _, path := range []string{"/lti/1.3/pub/jwks/", "/.well-known/jwks.json"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Origin", "https://lms.example.com")
		rec := f.do(t, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

		set, err := jwk.Parse(rec.Body.Bytes())
		require.NoError(t, err)
		k, ok := set.LookupKeyID("tool-1")
		require.True(t, ok)
		assert.Equal(t, "RS256", k.Algorithm().String())
	}
}

func TestDisabledLTIRoutes(t *testing.T) {
	f := newFixture(t, Options{Enabled: false, AdminToken: adminToken})
	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/lti/1.3/login/", nil),
		httptest.NewRequest(http.MethodPost, "/lti/1.3/launch/", nil),
		httptest.NewRequest(http.MethodGet, "/lti/1.3/pub/jwks/", nil),
	} {
		assert.Equal(t, http.StatusNotFound, f.do(t, req).Code, req.URL.Path)
	}
	assert.Equal(t, http.StatusOK, f.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil)).Code)
}

func TestAdminAPI(t *testing.T) {
	f := newFixture(t, Options{Enabled: true, AdminToken: adminToken})

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/platforms", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/platforms", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, f.do(t, req).Code)

	rec = f.admin(t, http.MethodGet, "/api/platforms", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	id := f.register(t)
	rec = f.admin(t, http.MethodGet, fmt.Sprintf("/api/platforms/%d", id), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	dup, err := json.Marshal(f.lmsKeys)
	require.NoError(t, err)
	rec = f.admin(t, http.MethodPost, "/api/platforms", platform.Registration{
		Name: "LMS", Issuer: issuer, ClientID: clientID, AuthLoginURL: issuer + "/oidc/auth", KeySet: string(dup),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.admin(t, http.MethodPost, "/api/platforms", platform.Registration{
		Name: "Other", Issuer: issuer, ClientID: "c2", AuthLoginURL: issuer + "/oidc/auth",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.admin(t, http.MethodPost, fmt.Sprintf("/api/platforms/%d/libraries", id), map[string]string{"library_key": "physics"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.admin(t, http.MethodDelete, fmt.Sprintf("/api/platforms/%d", id), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.admin(t, http.MethodGet, fmt.Sprintf("/api/platforms/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.admin(t, http.MethodGet, "/api/graded-resources/42", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminAPIDisabledWithoutToken(t *testing.T) {
	f := newFixture(t, Options{Enabled: true})
	req := httptest.NewRequest(http.MethodGet, "/api/platforms", nil)
	req.Header.Set("Authorization", "Bearer anything")
	assert.Equal(t, http.StatusNotFound, f.do(t, req).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, Options{Enabled: true})
	_ = f.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ltitool_http_requests_total{method="GET",route="/api/health",status="200"}`)
}
