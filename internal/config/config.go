package config

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

type CacheType string

const (
	CacheTypeMemory CacheType = "memory"
	CacheTypeRedis  CacheType = "redis"
)

type DatabaseDriver string

const (
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
)

// Config holds the configuration for the clubhub server and its dependencies.
type Config struct {
	// Listen is the address the clubhub server will listen on.
	Listen string `yaml:"listen" mapstructure:"listen"`
	// ServerURL is the base URL of the clubhub server.
	ServerURL string `yaml:"server_url" mapstructure:"server_url"`
	// SessionKey is the key used to encrypt session data.
	SessionKey string `yaml:"session_key" mapstructure:"session_key"`
	// SessionMaxAge is the maximum age of a session in seconds.
	SessionMaxAge int `yaml:"session_max_age" mapstructure:"session_max_age"`
	// Database holds the database configuration.
	Database *DatabaseConfig `yaml:"database" mapstructure:"database"`
	// Auth holds the authentication configuration.
	Auth *AuthConfig `yaml:"auth" mapstructure:"auth"`
	// Cache holds the cache engine configuration.
	Cache *CacheConfig `yaml:"cache" mapstructure:"cache"`
	// Email holds the mass email configuration.
	Email *EmailConfig `yaml:"email" mapstructure:"email"`
	// Gravatar holds the configuration for Gravatar profile pictures.
	Gravatar *GravatarConfig `yaml:"gravatar" mapstructure:"gravatar"`
	// Seed holds the optional bootstrap admin account.
	Seed *SeedConfig `yaml:"seed" mapstructure:"seed"`
}

// DatabaseConfig holds the database configuration.
type DatabaseConfig struct {
	// Driver selects the database backend ("sqlite" or "postgres").
	Driver DatabaseDriver `yaml:"driver" mapstructure:"driver"`
	// Path is the path to the sqlite database file.
	Path string `yaml:"path" mapstructure:"path"`
	// DSN is the postgres connection string.
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// AuthConfig holds the authentication and registration policy.
type AuthConfig struct {
	// TokenSecret signs the record store auth tokens.
	TokenSecret string `yaml:"token_secret" mapstructure:"token_secret"`
	// TokenTTL is the lifetime of an auth token.
	TokenTTL time.Duration `yaml:"token_ttl" mapstructure:"token_ttl"`
	// MinPasswordLength is the minimum accepted password length on registration.
	MinPasswordLength int `yaml:"min_password_length" mapstructure:"min_password_length"`
	// RequireUppercase requires at least one uppercase letter in new passwords.
	RequireUppercase bool `yaml:"require_uppercase" mapstructure:"require_uppercase"`
	// RequireDigit requires at least one digit in new passwords.
	RequireDigit bool `yaml:"require_digit" mapstructure:"require_digit"`
	// RequireTerms requires the terms of use to be accepted on registration.
	RequireTerms bool `yaml:"require_terms" mapstructure:"require_terms"`
	// LoginAfterRegister logs a freshly registered user in.
	LoginAfterRegister bool `yaml:"login_after_register" mapstructure:"login_after_register"`
	// DemoAcceptAnySecret lets active non-admin accounts log in with any password.
	// Only meant for demo deployments, never enable it in production.
	DemoAcceptAnySecret bool `yaml:"demo_accept_any_secret" mapstructure:"demo_accept_any_secret"`
}

// CacheConfig holds the configuration for the cache engine.
type CacheConfig struct {
	// Type is the type of cache engine to use (e.g., "memory", "redis").
	Type CacheType `yaml:"type" mapstructure:"type"`
	// RedisURL is the URL for the Redis cache if using Redis.
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
}

// EmailConfig holds the email configuration.
type EmailConfig struct {
	// Enabled indicates whether sending emails is enabled.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// SMTPHost is the SMTP server host.
	SMTPHost string `yaml:"smtp_host" mapstructure:"smtp_host"`
	// SMTPPort is the SMTP server port.
	SMTPPort int `yaml:"smtp_port" mapstructure:"smtp_port"`
	// Username is the SMTP username.
	Username string `yaml:"username" mapstructure:"username"`
	// Password is the SMTP password.
	Password string `yaml:"password" mapstructure:"password"`
	// FromEmail is the email address from which emails are sent.
	FromEmail string `yaml:"from_email" mapstructure:"from_email"`
	// FromName is the name from which emails are sent.
	FromName string `yaml:"from_name" mapstructure:"from_name"`
	// UseTLS indicates whether to use STARTTLS for the SMTP connection.
	UseTLS bool `yaml:"use_tls" mapstructure:"use_tls"`
	// UseSSL indicates whether to use SSL for the SMTP connection.
	UseSSL bool `yaml:"use_ssl" mapstructure:"use_ssl"`
	// InsecureSkipVerify indicates whether to skip TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
	// Concurrency caps the number of parallel SMTP deliveries of a mass email.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// GravatarConfig holds the configuration for Gravatar profile pictures.
type GravatarConfig struct {
	// Enabled indicates whether Gravatar support is enabled.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// DefaultImage is the default image to use when no Gravatar is found.
	// Valid values: "404", "mp", "identicon", "monsterid", "wavatar", "retro", "robohash", "blank"
	DefaultImage string `yaml:"default_image" mapstructure:"default_image"`
	// Rating is the maximum rating for Gravatar images.
	// Valid values: "g", "pg", "r", "x"
	Rating string `yaml:"rating" mapstructure:"rating"`
	// Size is the size of the Gravatar image in pixels (1-2048).
	Size int `yaml:"size" mapstructure:"size"`
}

// SeedConfig holds the admin account created by "clubhub seed-admin" and on first start.
type SeedConfig struct {
	Username string `yaml:"username" mapstructure:"username"`
	Email    string `yaml:"email" mapstructure:"email"`
	Password string `yaml:"password" mapstructure:"password"`
}

// Load reads the configuration from the specified path and returns a Config struct.
// If path is empty, it will use default search paths for config files.
func Load(path string) (*Config, error) {
	v := viper.New()

	bindNestedEnv(v)
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix("CLUBHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var configFileFound bool
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.clubhub")
		v.AddConfigPath("/etc/clubhub")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		configFileFound = true
	}

	if configFileFound {
		log.Debug("Using config file", "file", v.ConfigFileUsed())
		log.Debug("Environment variables with the CLUBHUB_ prefix override config file values")
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	sanitizeConfig(&c)

	if err := validateConfig(&c); err != nil {
		return nil, err
	}

	if c.Auth.DemoAcceptAnySecret {
		log.Warn("auth.demo_accept_any_secret is enabled: non-admin accounts log in with ANY password")
	}

	return &c, nil
}

// setDefaults sets default values for the configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", "0.0.0.0:8090")
	v.SetDefault("server_url", "http://localhost:8090")
	v.SetDefault("session_max_age", 172800) // 48 hours
	v.SetDefault("session_key", "")

	// Database defaults
	v.SetDefault("database.driver", DatabaseDriverSQLite)
	v.SetDefault("database.path", "./data/clubhub.db")
	v.SetDefault("database.dsn", "")

	// Auth defaults
	v.SetDefault("auth.token_secret", "")
	v.SetDefault("auth.token_ttl", 14*24*time.Hour)
	v.SetDefault("auth.min_password_length", 8)
	v.SetDefault("auth.require_uppercase", true)
	v.SetDefault("auth.require_digit", true)
	v.SetDefault("auth.require_terms", true)
	v.SetDefault("auth.login_after_register", false)
	v.SetDefault("auth.demo_accept_any_secret", false)

	// Cache defaults
	v.SetDefault("cache.type", CacheTypeMemory)
	v.SetDefault("cache.redis_url", "")

	// Email defaults
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.smtp_host", "")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.from_name", "Club del 1500")
	v.SetDefault("email.use_tls", true)
	v.SetDefault("email.use_ssl", false)
	v.SetDefault("email.insecure_skip_verify", false)
	v.SetDefault("email.concurrency", 4)

	// Gravatar defaults
	v.SetDefault("gravatar.enabled", false)
	v.SetDefault("gravatar.default_image", "mp")
	v.SetDefault("gravatar.rating", "g")
	v.SetDefault("gravatar.size", 80)
}

// the auto env function from viper only works for nested structs, if the struct to which a value binds isn't nil.
// The seed account has no defaults on purpose, so its env vars have to be bound manually.
func bindNestedEnv(v *viper.Viper) {
	v.MustBindEnv("seed.username", "CLUBHUB_SEED_USERNAME")
	v.MustBindEnv("seed.email", "CLUBHUB_SEED_EMAIL")
	v.MustBindEnv("seed.password", "CLUBHUB_SEED_PASSWORD")
}

// validateConfig validates the configuration.
func validateConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("missing clubhub config")
	}

	if c.SessionKey == "" {
		return fmt.Errorf("session key is required")
	}

	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("session max age must be greater than 0")
	}

	if c.Database == nil {
		return fmt.Errorf("missing database config")
	}
	switch c.Database.Driver {
	case DatabaseDriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required when using sqlite")
		}
	case DatabaseDriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required when using postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Auth == nil {
		return fmt.Errorf("missing auth config")
	}
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("auth token secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token ttl must be greater than 0")
	}
	if c.Auth.MinPasswordLength < 1 {
		return fmt.Errorf("auth min password length must be at least 1")
	}

	if c.Cache != nil {
		if c.Cache.Type == "" {
			return fmt.Errorf("cache type is required when cache is enabled")
		}
		if c.Cache.Type == CacheTypeRedis && c.Cache.RedisURL == "" {
			return fmt.Errorf("Redis URL is required when Redis cache is enabled") //nolint:staticcheck
		}
	} else {
		c.Cache = &CacheConfig{
			Type: CacheTypeMemory,
		}
	}

	if c.Email != nil && c.Email.Enabled {
		if c.Email.SMTPHost == "" {
			return fmt.Errorf("smtp host is required when email is enabled")
		}
		if c.Email.FromEmail == "" {
			return fmt.Errorf("from email is required when email is enabled")
		}
		if c.Email.UseSSL && c.Email.UseTLS {
			return fmt.Errorf("use_ssl and use_tls are mutually exclusive")
		}
	}

	if c.Seed != nil && c.Seed.Username != "" {
		if c.Seed.Password == "" {
			return fmt.Errorf("seed password is required when a seed username is set")
		}
		if _, err := mail.ParseAddress(c.Seed.Email); err != nil {
			return fmt.Errorf("seed email is invalid: %w", err)
		}
	}

	return nil
}

// sanitizeConfig sanitizes the configuration values.
func sanitizeConfig(c *Config) {
	if c == nil {
		return
	}

	c.Listen = urlSanitize(c.Listen)

	if c.ServerURL != "" {
		c.ServerURL = urlSanitize(c.ServerURL)
	}

	if c.Seed != nil {
		c.Seed.Username = strings.TrimSpace(c.Seed.Username)
		c.Seed.Email = strings.TrimSpace(c.Seed.Email)
	}
}

func urlSanitize(url string) string {
	return strings.TrimSuffix(strings.TrimSpace(url), "/")
}

// SecurePort reports whether the configured server url uses https, which decides the cookie Secure flag.
func (c *Config) SecurePort() bool {
	return strings.HasPrefix(c.ServerURL, "https://")
}
