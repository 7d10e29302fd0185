package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix              = "STAGETRACK"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabaseDriver  = DriverSQLite
	defaultDatabasePath    = "stagetrack.db"
	defaultLogLevel        = "info"
	defaultPortalCookie    = "portal_auth"
	defaultHostCookie      = "app_session"
	defaultHostIssuer      = "host-auth"
	defaultCommentsBackend = CommentsBackendDatabase
	defaultCommentsCap     = 200
	defaultAdminListLimit  = 500
	defaultSearchLimit     = 50
	defaultSessionTTL      = 24 * time.Hour
	defaultRememberTTL     = 30 * 24 * time.Hour
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	CommentsBackendDatabase = "database"
	CommentsBackendRedis    = "redis"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	LogLevel       string

	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string

	PortalCookieName    string
	PortalSigningSecret string
	PortalSecureCookie  bool
	SessionTTL          time.Duration
	RememberTTL         time.Duration

	HostCookieName    string
	HostSigningSecret string
	HostIssuer        string

	CommentsBackend string
	CommentsCap     int
	RedisAddress    string
	RedisPassword   string
	RedisDB         int

	AdminListLimit int
	SearchLimit    int
}

// HostSessionEnabled reports whether host-native session cookies should be honoured.
func (c AppConfig) HostSessionEnabled() bool {
	return strings.TrimSpace(c.HostSigningSecret) != ""
}

// LoadEnvFiles loads ".env.<env>" and ".env" when present. Values already set in the
// process environment win.
func LoadEnvFiles(env string) []string {
	candidates := []string{".env"}
	if trimmed := strings.TrimSpace(env); trimmed != "" {
		candidates = append([]string{fmt.Sprintf(".env.%s", trimmed)}, candidates...)
	}
	loaded := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if err := godotenv.Load(candidate); err == nil {
			loaded = append(loaded, candidate)
		}
	}
	return loaded
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("portal.cookie_name", defaultPortalCookie)
	configViper.SetDefault("portal.signing_secret", "")
	configViper.SetDefault("portal.secure_cookie", false)
	configViper.SetDefault("portal.session_ttl", defaultSessionTTL)
	configViper.SetDefault("portal.remember_ttl", defaultRememberTTL)
	configViper.SetDefault("host.cookie_name", defaultHostCookie)
	configViper.SetDefault("host.signing_secret", "")
	configViper.SetDefault("host.issuer", defaultHostIssuer)
	configViper.SetDefault("comments.backend", defaultCommentsBackend)
	configViper.SetDefault("comments.cap", defaultCommentsCap)
	configViper.SetDefault("redis.address", "")
	configViper.SetDefault("redis.password", "")
	configViper.SetDefault("redis.db", 0)
	configViper.SetDefault("admin.list_limit", defaultAdminListLimit)
	configViper.SetDefault("search.limit", defaultSearchLimit)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		AllowedOrigins:      cleanOrigins(configViper.GetStringSlice("http.allowed_origins")),
		LogLevel:            configViper.GetString("log.level"),
		DatabaseDriver:      strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:        configViper.GetString("database.path"),
		DatabaseDSN:         configViper.GetString("database.dsn"),
		PortalCookieName:    configViper.GetString("portal.cookie_name"),
		PortalSigningSecret: configViper.GetString("portal.signing_secret"),
		PortalSecureCookie:  configViper.GetBool("portal.secure_cookie"),
		SessionTTL:          configViper.GetDuration("portal.session_ttl"),
		RememberTTL:         configViper.GetDuration("portal.remember_ttl"),
		HostCookieName:      configViper.GetString("host.cookie_name"),
		HostSigningSecret:   configViper.GetString("host.signing_secret"),
		HostIssuer:          configViper.GetString("host.issuer"),
		CommentsBackend:     strings.ToLower(strings.TrimSpace(configViper.GetString("comments.backend"))),
		CommentsCap:         configViper.GetInt("comments.cap"),
		RedisAddress:        configViper.GetString("redis.address"),
		RedisPassword:       configViper.GetString("redis.password"),
		RedisDB:             configViper.GetInt("redis.db"),
		AdminListLimit:      configViper.GetInt("admin.list_limit"),
		SearchLimit:         configViper.GetInt("search.limit"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.PortalSigningSecret) == "" {
		return fmt.Errorf("portal.signing_secret is required")
	}
	if strings.TrimSpace(c.PortalCookieName) == "" {
		return fmt.Errorf("portal.cookie_name is required")
	}
	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.DatabaseDriver)
	}
	if c.HostSessionEnabled() && strings.TrimSpace(c.HostCookieName) == "" {
		return fmt.Errorf("host.cookie_name is required when host.signing_secret is set")
	}
	switch c.CommentsBackend {
	case CommentsBackendDatabase:
	case CommentsBackendRedis:
		if strings.TrimSpace(c.RedisAddress) == "" {
			return fmt.Errorf("redis.address is required for the redis comments backend")
		}
	default:
		return fmt.Errorf("unsupported comments.backend %q", c.CommentsBackend)
	}
	if c.CommentsCap <= 0 {
		return fmt.Errorf("comments.cap must be positive")
	}
	if c.SessionTTL <= 0 || c.RememberTTL <= 0 {
		return fmt.Errorf("portal session ttl values must be positive")
	}
	return nil
}

func cleanOrigins(raw []string) []string {
	origins := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, origin := range strings.Split(entry, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
