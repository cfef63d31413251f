package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/quipper/poc/lti/tool/internal/accounts"
	"github.com/quipper/poc/lti/tool/internal/config"
	"github.com/quipper/poc/lti/tool/internal/content"
	ltiHandler "github.com/quipper/poc/lti/tool/internal/controller/http/lti"
	"github.com/quipper/poc/lti/tool/internal/ltitool"
	gradesSqlite "github.com/quipper/poc/lti/tool/internal/repositories/grades/sqlite"
	identitySqlite "github.com/quipper/poc/lti/tool/internal/repositories/identity/sqlite"
	launchRedis "github.com/quipper/poc/lti/tool/internal/repositories/launchstate/redis"
	launchSqlite "github.com/quipper/poc/lti/tool/internal/repositories/launchstate/sqlite"
	librarySqlite "github.com/quipper/poc/lti/tool/internal/repositories/library/sqlite"
	platformSqlite "github.com/quipper/poc/lti/tool/internal/repositories/platform/sqlite"
	"github.com/quipper/poc/lti/tool/internal/repositories/sqlitedb"
	"github.com/quipper/poc/lti/tool/pkg/common/jwkscache"
	"github.com/quipper/poc/lti/tool/pkg/common/keys"
	"github.com/quipper/poc/lti/tool/pkg/common/logger"
	"github.com/quipper/poc/lti/tool/pkg/repositories/launchstate"
)

// app owns the storage handles shared by every command.
type app struct {
	cfg   *config.Config
	db    *sql.DB
	redis redis.UniversalClient

	platforms  *platformSqlite.SQLiteRepo
	states     launchstate.Repository
	identities *identitySqlite.SQLiteRepo
	libraries  *librarySqlite.SQLiteRepo
	grades     *gradesSqlite.SQLiteRepo
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := sqlitedb.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:        cfg,
		db:         db,
		platforms:  platformSqlite.NewSQLiteRepo(db),
		identities: identitySqlite.NewSQLiteRepo(db),
		libraries:  librarySqlite.NewSQLiteRepo(db),
		grades:     gradesSqlite.NewSQLiteRepo(db),
		states:     launchSqlite.NewSQLiteRepo(db),
	}
	if cfg.LaunchState.Backend == config.StateBackendRedis {
		a.redis = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
		}
		a.states = launchRedis.New(a.redis, cfg.Redis.KeyPrefix)
		logger.Info("launch state backend: redis %s", cfg.Redis.Addr)
	}
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// handler wires the LTI services into the HTTP boundary.
func (a *app) handler() (*ltiHandler.Handler, error) {
	cfg := a.cfg
	kp, err := keys.Load(keys.Source{
		KID:           cfg.Keys.KID,
		PrivateKeyPEM: cfg.Keys.PrivateKeyPEM,
		PrivateKeyB64: cfg.Keys.PrivateKeyB64,
	})
	if err != nil {
		return nil, fmt.Errorf("load keys: %w", err)
	}
	keySets := jwkscache.New(jwkscache.Options{
		DefaultTTL:   cfg.JWKS.CacheTTL,
		StaleGrace:   cfg.JWKS.StaleGrace,
		FailureTTL:   cfg.JWKS.FailureTTL,
		FetchTimeout: cfg.JWKS.FetchTimeout,
	})
	trust := ltitool.NewTrustStore(a.platforms, kp.PublicSet(), keySets, cfg.LTI.ClockSkew)

	login, err := ltitool.NewLoginInitiator(a.platforms, a.states, cfg.LaunchURL(), cfg.LTI.StateTTL)
	if err != nil {
		return nil, fmt.Errorf("login initiator: %w", err)
	}

	var loader ltitool.ContentLoader = content.NewEmbedLoader(cfg.Content.EmbedBaseURL)
	if cfg.Content.RenderURL != "" {
		loader = content.NewHTTPLoader(cfg.Content.RenderURL, cfg.Content.Timeout)
	}

	sessions := accounts.NewService(a.identities, cfg.Session.TTL)
	tool := &ltitool.Tool{
		Validator:   ltitool.NewLaunchValidator(a.platforms, a.states, trust),
		Authorizer:  ltitool.NewLaunchAuthorizer(a.libraries),
		Identities:  ltitool.NewIdentityResolver(a.identities, sessions),
		Permissions: ltitool.NewPermissionBootstrapper(a.libraries),
		Grades:      ltitool.NewAGSRegistrar(a.grades),
		Content:     loader,
	}
	return ltiHandler.NewHandler(ltiHandler.Deps{
		Tool:      tool,
		Login:     login,
		Keys:      trust,
		Platforms: a.platforms,
		Libraries: a.libraries,
		Grades:    a.grades,
		Sessions:  sessions,
	}, ltiHandler.Options{
		Enabled:       cfg.LTI.Enabled,
		AdminToken:    cfg.Admin.Token,
		CookieName:    cfg.Session.CookieName,
		SecureCookies: cfg.SecureCookies(),
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
	}), nil
}
