package ltitool_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/quipper/poc/lti/tool/internal/ltitool"
	gradessqlite "github.com/quipper/poc/lti/tool/internal/repositories/grades/sqlite"
	identitysqlite "github.com/quipper/poc/lti/tool/internal/repositories/identity/sqlite"
	launchsqlite "github.com/quipper/poc/lti/tool/internal/repositories/launchstate/sqlite"
	librarysqlite "github.com/quipper/poc/lti/tool/internal/repositories/library/sqlite"
	platformsqlite "github.com/quipper/poc/lti/tool/internal/repositories/platform/sqlite"
	"github.com/quipper/poc/lti/tool/internal/repositories/sqlitedb"
	"github.com/quipper/poc/lti/tool/pkg/common/jwkscache"
	"github.com/quipper/poc/lti/tool/pkg/common/keys"
	"github.com/quipper/poc/lti/tool/pkg/repositories/library"
	"github.com/quipper/poc/lti/tool/pkg/repositories/platform"
)

const (
	testIssuer   = "https://platform.example.com"
	testClientID = "client-1"
	testDeploy   = "deploy-1"
	launchURL    = "https://tool.example.com/lti/1.3/launch/"
	contentID    = "lb:org:physics:problem:q1"
	libraryKey   = "lib:org:physics"
)

var targetLinkURI = launchURL + "?id=" + url.QueryEscape(contentID)

// testPlatform signs launch tokens like an LMS would.
type testPlatform struct {
	key    jwk.Key
	public jwk.Set
}

func newTestPlatform(t *testing.T, kid string) *testPlatform {
	t.Helper()
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	key, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, kid))
	require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256))
	pub, err := jwk.PublicSetOf(func() jwk.Set {
		s := jwk.NewSet()
		_ = s.AddKey(key)
		return s
	}())
	require.NoError(t, err)
	return &testPlatform{key: key, public: pub}
}

func (p *testPlatform) keySetJSON(t *testing.T) string {
	t.Helper()
	b, err := json.Marshal(p.public)
	require.NoError(t, err)
	return string(b)
}

func (p *testPlatform) sign(t *testing.T, claims map[string]any) string {
	t.Helper()
	return signWith(t, p.key, claims)
}

func signWith(t *testing.T, key jwk.Key, claims map[string]any) string {
	t.Helper()
	tok := jwt.New()
	for k, v := range claims {
		require.NoError(t, tok.Set(k, v), k)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key))
	require.NoError(t, err)
	return string(signed)
}

// launchClaims is a valid resource link launch for nonce.
func launchClaims(nonce string) map[string]any {
	now := time.Now()
	return map[string]any{
		jwt.IssuerKey:              testIssuer,
		jwt.AudienceKey:            testClientID,
		jwt.SubjectKey:             "user-42",
		jwt.IssuedAtKey:            now,
		jwt.ExpirationKey:          now.Add(5 * time.Minute),
		"nonce":                    nonce,
		"name":                     "Ada Lovelace",
		"email":                    "ada@example.com",
		ltitool.ClaimMessageType:   ltitool.MessageTypeResourceLink,
		ltitool.ClaimVersion:       ltitool.LTIVersion,
		ltitool.ClaimDeploymentID:  testDeploy,
		ltitool.ClaimTargetLinkURI: targetLinkURI,
		ltitool.ClaimRoles:         []string{"http://purl.imsglobal.org/vocab/lis/v2/membership#Instructor"},
		ltitool.ClaimResourceLink:  map[string]any{"id": "rl-1", "title": "Week 1 quiz"},
	}
}

func agsEndpoint(lineitem string, scopes ...string) map[string]any {
	return map[string]any{
		"scope":     scopes,
		"lineitem":  lineitem,
		"lineitems": "https://platform.example.com/api/lti/courses/1/line_items",
	}
}

type env struct {
	platforms  *platformsqlite.SQLiteRepo
	states     *launchsqlite.SQLiteRepo
	identities *identitysqlite.SQLiteRepo
	libraries  *librarysqlite.SQLiteRepo
	grades     *gradessqlite.SQLiteRepo

	platform  *testPlatform
	reg       *platform.Registration
	toolKeys  *keys.KeyPair
	trust     *ltitool.TrustStore
	login     *ltitool.LoginInitiator
	validator *ltitool.LaunchValidator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	db, err := sqlitedb.Open(ctx, filepath.Join(t.TempDir(), "tool.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	e := &env{
		platforms:  platformsqlite.NewSQLiteRepo(db),
		states:     launchsqlite.NewSQLiteRepo(db),
		identities: identitysqlite.NewSQLiteRepo(db),
		libraries:  librarysqlite.NewSQLiteRepo(db),
		grades:     gradessqlite.NewSQLiteRepo(db),
		platform:   newTestPlatform(t, "platform-key-1"),
	}

	e.reg = &platform.Registration{
		Name:          "Test LMS",
		Issuer:        testIssuer,
		ClientID:      testClientID,
		AuthLoginURL:  testIssuer + "/auth?tenant=a",
		KeySet:        e.platform.keySetJSON(t),
		DeploymentIDs: []string{testDeploy},
	}
	_, err = e.platforms.Create(ctx, e.reg)
	require.NoError(t, err)

	require.NoError(t, e.libraries.CreateLibrary(ctx, &library.Library{Key: libraryKey, Title: "Physics"}))
	require.NoError(t, e.libraries.AuthorizePlatform(ctx, libraryKey, e.reg.ID))

	e.toolKeys, err = keys.Load(keys.Source{KID: "tool-key"})
	require.NoError(t, err)
	e.trust = ltitool.NewTrustStore(e.platforms, e.toolKeys.PublicSet(), jwkscache.New(jwkscache.Options{}), time.Minute)
	e.login, err = ltitool.NewLoginInitiator(e.platforms, e.states, launchURL, 10*time.Minute)
	require.NoError(t, err)
	e.validator = ltitool.NewLaunchValidator(e.platforms, e.states, e.trust)
	return e
}

// initiate runs the login leg and returns the state and nonce handed to the platform.
func (e *env) initiate(t *testing.T) (state, nonce string) {
	t.Helper()
	redirect, err := e.login.Initiate(context.Background(), ltitool.LoginRequest{
		Issuer:        testIssuer,
		LoginHint:     "hint",
		TargetLinkURI: targetLinkURI,
		ClientID:      testClientID,
	})
	require.NoError(t, err)
	q := redirect.Query()
	return q.Get("state"), q.Get("nonce")
}
