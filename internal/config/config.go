// Package config loads the tool configuration from defaults, an optional
// config file and LTITOOL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. LTITOOL_SERVER_PORT.
const EnvPrefix = "LTITOOL"

// Launch state backends.
const (
	StateBackendSQLite = "sqlite"
	StateBackendRedis  = "redis"
)

// Config holds every runtime setting of the tool.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	LTI         LTIConfig         `mapstructure:"lti"`
	Database    DatabaseConfig    `mapstructure:"database"`
	LaunchState LaunchStateConfig `mapstructure:"launch_state"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Keys        KeysConfig        `mapstructure:"keys"`
	JWKS        JWKSConfig        `mapstructure:"jwks"`
	Session     SessionConfig     `mapstructure:"session"`
	Content     ContentConfig     `mapstructure:"content"`
	Admin       AdminConfig       `mapstructure:"admin"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
	// PublicBaseURL is the externally reachable origin of the tool; the launch
	// URL registered on platforms is PublicBaseURL + /lti/1.3/launch/.
	PublicBaseURL   string        `mapstructure:"public_base_url"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LTIConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	StateTTL  time.Duration `mapstructure:"state_ttl"`
	ClockSkew time.Duration `mapstructure:"clock_skew"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LaunchStateConfig struct {
	Backend string `mapstructure:"backend"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type KeysConfig struct {
	KID           string `mapstructure:"kid"`
	PrivateKeyPEM string `mapstructure:"private_key_pem"`
	PrivateKeyB64 string `mapstructure:"private_key_b64"`
}

type JWKSConfig struct {
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	StaleGrace   time.Duration `mapstructure:"stale_grace"`
	FailureTTL   time.Duration `mapstructure:"failure_ttl"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type SessionConfig struct {
	CookieName string        `mapstructure:"cookie_name"`
	TTL        time.Duration `mapstructure:"ttl"`
}

type ContentConfig struct {
	// RenderURL, when set, is the base URL of the block rendering service
	// queried for fragments. Otherwise fragments embed EmbedBaseURL.
	RenderURL    string        `mapstructure:"render_url"`
	EmbedBaseURL string        `mapstructure:"embed_base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type AdminConfig struct {
	Token string `mapstructure:"token"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.public_base_url", "http://localhost:8080")
	v.SetDefault("server.max_body_bytes", 2_100_000)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("lti.enabled", true)
	v.SetDefault("lti.state_ttl", 10*time.Minute)
	v.SetDefault("lti.clock_skew", 60*time.Second)

	v.SetDefault("database.path", "./ltitool.db")

	v.SetDefault("launch_state.backend", StateBackendSQLite)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "ltitool:")

	v.SetDefault("keys.kid", "")
	v.SetDefault("keys.private_key_pem", "")
	v.SetDefault("keys.private_key_b64", "")

	v.SetDefault("jwks.cache_ttl", 10*time.Minute)
	v.SetDefault("jwks.stale_grace", time.Hour)
	v.SetDefault("jwks.failure_ttl", 30*time.Second)
	v.SetDefault("jwks.fetch_timeout", 5*time.Second)

	v.SetDefault("session.cookie_name", "ltitool_session")
	v.SetDefault("session.ttl", 8*time.Hour)

	v.SetDefault("content.render_url", "")
	v.SetDefault("content.embed_base_url", "http://localhost:8000")
	v.SetDefault("content.timeout", 5*time.Second)

	v.SetDefault("admin.token", "")
}

// New returns a viper instance wired to the LTITOOL_ environment and defaults.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file and unmarshals the effective settings.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}
	if u, err := url.Parse(c.Server.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("server.public_base_url: %q is not an absolute URL", c.Server.PublicBaseURL))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("log.format: %q, want json or console", c.Log.Format))
	}
	if c.LTI.StateTTL <= 0 {
		errs = append(errs, errors.New("lti.state_ttl must be positive"))
	}
	if c.LTI.ClockSkew < 0 {
		errs = append(errs, errors.New("lti.clock_skew must not be negative"))
	}
	switch c.LaunchState.Backend {
	case StateBackendSQLite:
	case StateBackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis launch state backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("launch_state.backend: %q, want sqlite or redis", c.LaunchState.Backend))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.JWKS.FetchTimeout <= 0 {
		errs = append(errs, errors.New("jwks.fetch_timeout must be positive"))
	}
	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session.cookie_name is required"))
	}
	return errors.Join(errs...)
}

// LaunchURL is the endpoint platforms post launches to.
func (c *Config) LaunchURL() string {
	return strings.TrimRight(c.Server.PublicBaseURL, "/") + "/lti/1.3/launch/"
}

// SecureCookies reports whether the tool is served over https, in which case
// the session cookie is marked Secure and SameSite=None for framed launches.
func (c *Config) SecureCookies() bool {
	u, err := url.Parse(c.Server.PublicBaseURL)
	return err == nil && u.Scheme == "https"
}

// Addr is the listen address derived from the port.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
