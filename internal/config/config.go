package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the call agent.
// Values come from the environment. ENV_FILE, when set, is loaded first and
// never overrides variables already present in the process environment.
type Config struct {
	App     AppConfig
	Backend BackendConfig
	Calls   CallsConfig
	Auth    AuthConfig
	DB      DBConfig
	Redis   RedisConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type BackendConfig struct {
	BaseURL      string
	AccessToken  string
	RefreshToken string
	Timeout      time.Duration

	// SignalURL is the optional websocket endpoint pushing call status.
	SignalURL string
}

type CallsConfig struct {
	LearnerID         string
	RingTimeout       time.Duration
	PollInterval      time.Duration
	PreferredLanguage string
	BlockTTL          time.Duration
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// DBConfig is optional. An empty Host keeps the journal in memory.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional. An empty Host keeps the blocklist in memory and
// disables the cross-process session lease.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

const (
	defaultPort           = 8080
	defaultBackendURL     = "http://localhost:3000"
	defaultBackendTimeout = 60 * time.Second
	defaultRingTimeout    = 30 * time.Second
	defaultPollInterval   = 10 * time.Second
	defaultBlockTTL       = 30 * 24 * time.Hour
	defaultAccessTTL      = 15 * time.Minute
	defaultRefreshTTL     = 30 * 24 * time.Hour
)

func Load() (Config, error) {
	if path := strings.TrimSpace(os.Getenv("ENV_FILE")); path != "" {
		if err := godotenv.Load(path); err != nil {
			return Config{}, fmt.Errorf("load ENV_FILE %q: %w", path, err)
		}
	}

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port, parseErrs = intOr(parseErrs, "APP_PORT", defaultPort)

	c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("EDUTALKS_API_BASE_URL")), "/")
	c.Backend.AccessToken = strings.TrimSpace(os.Getenv("EDUTALKS_ACCESS_TOKEN"))
	c.Backend.RefreshToken = strings.TrimSpace(os.Getenv("EDUTALKS_REFRESH_TOKEN"))
	c.Backend.Timeout, parseErrs = durationOr(parseErrs, "BACKEND_TIMEOUT", 0)
	c.Backend.SignalURL = strings.TrimSpace(os.Getenv("SIGNAL_WS_URL"))

	c.Calls.LearnerID = strings.TrimSpace(os.Getenv("LEARNER_ID"))
	c.Calls.RingTimeout, parseErrs = durationOr(parseErrs, "RING_TIMEOUT", 0)
	c.Calls.PollInterval, parseErrs = durationOr(parseErrs, "POLL_INTERVAL", 0)
	c.Calls.PreferredLanguage = strings.TrimSpace(os.Getenv("PREFERRED_LANGUAGE"))
	c.Calls.BlockTTL, parseErrs = durationOr(parseErrs, "BLOCK_TTL", 0)

	c.Auth.JWTSecret = os.Getenv("AGENT_JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL, parseErrs = durationOr(parseErrs, "JWT_ACCESS_TTL", 0)
	c.Auth.RefreshTokenTTL, parseErrs = durationOr(parseErrs, "JWT_REFRESH_TTL", 0)

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, parseErrs = intOr(parseErrs, "DB_PORT", 5432)
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = intOr(parseErrs, "REDIS_PORT", 6379)
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ApplyDefaults fills optional values left empty.
func (c *Config) ApplyDefaults() {
	if c.App.Port == 0 {
		c.App.Port = defaultPort
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = defaultBackendURL
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = defaultBackendTimeout
	}
	if c.Calls.RingTimeout <= 0 {
		c.Calls.RingTimeout = defaultRingTimeout
	}
	if c.Calls.PollInterval <= 0 {
		c.Calls.PollInterval = defaultPollInterval
	}
	if c.Calls.BlockTTL <= 0 {
		c.Calls.BlockTTL = defaultBlockTTL
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = defaultAccessTTL
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = defaultRefreshTTL
	}
	if c.DB.Host != "" && c.DB.SSLMode == "" && !c.IsProduction() {
		c.DB.SSLMode = "disable"
	}
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("EDUTALKS_API_BASE_URL must be an absolute URL, got %q", c.Backend.BaseURL))
	}
	if c.Backend.AccessToken == "" && c.Backend.RefreshToken == "" {
		errs = append(errs, errors.New("EDUTALKS_ACCESS_TOKEN or EDUTALKS_REFRESH_TOKEN is required"))
	}
	if c.Backend.SignalURL != "" {
		if u, err := url.Parse(c.Backend.SignalURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, fmt.Errorf("SIGNAL_WS_URL must be a ws:// or wss:// URL, got %q", c.Backend.SignalURL))
		}
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("AGENT_JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.DB.Host != "" {
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required when DB_HOST is set"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required when DB_HOST is set"))
		}
		if c.DB.SSLMode == "" {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else if !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	if c.Redis.Host != "" {
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
		if c.Calls.LearnerID == "" {
			errs = append(errs, errors.New("LEARNER_ID is required when REDIS_HOST is set"))
		}
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) IsLocal() bool {
	return c.App.Env == "local" || c.App.Env == "dev"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresEnabled() bool { return c.DB.Host != "" }

func (c Config) RedisEnabled() bool { return c.Redis.Host != "" }

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func intOr(errs []error, key string, def int) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func durationOr(errs []error, key string, def time.Duration) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
