// Package config loads assetdesk settings from struct defaults, an optional
// YAML file and ASSETDESK_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"assetdesk.org/internal/validation"
)

const (
	EnvPrefix     = "ASSETDESK_"
	ConfigPathEnv = "ASSETDESK_CONFIG"
)

// DefaultConfigPaths are probed when ASSETDESK_CONFIG is unset.
var DefaultConfigPaths = []string{"config.yaml", "config.yml", "/etc/assetdesk/config.yaml"}

type Config struct {
	Environment string            `koanf:"environment" validate:"oneof=development production test"`
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Auth        AuthConfig        `koanf:"auth"`
	Permissions PermissionsConfig `koanf:"permissions"`
	Audit       AuditConfig       `koanf:"audit"`
	RateLimit   RateLimitConfig   `koanf:"ratelimit"`
	Logging     LoggingConfig     `koanf:"logging"`
}

type ServerConfig struct {
	HTTPAddr        string        `koanf:"http_addr" validate:"required"`
	GRPCAddr        string        `koanf:"grpc_addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes" validate:"gt=0"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

type DatabaseConfig struct {
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

type AuthConfig struct {
	Secret   string        `koanf:"secret" validate:"required,min=16"`
	Issuer   string        `koanf:"issuer" validate:"required"`
	TokenTTL time.Duration `koanf:"token_ttl" validate:"gt=0"`
	// AdminEmail and AdminPassword bootstrap the first administrator when
	// the user table is empty.
	AdminEmail    string `koanf:"admin_email" validate:"omitempty,email"`
	AdminPassword string `koanf:"admin_password" validate:"omitempty,min=8,max=72"`
}

type PermissionsConfig struct {
	LookupTimeout   time.Duration `koanf:"lookup_timeout" validate:"gt=0"`
	CacheEnabled    bool          `koanf:"cache_enabled"`
	CacheTTL        time.Duration `koanf:"cache_ttl" validate:"gt=0"`
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"gte=1"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown" validate:"gt=0"`
}

type AuditConfig struct {
	BufferSize   int           `koanf:"buffer_size" validate:"gte=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gt=0"`
	// LogEntries mirrors every audit entry to the application log.
	LogEntries bool `koanf:"log_entries"`
}

type RateLimitConfig struct {
	Requests       int           `koanf:"requests" validate:"gte=0"`
	Window         time.Duration `koanf:"window" validate:"gt=0"`
	LoginBurst     int           `koanf:"login_burst" validate:"gte=1"`
	LoginPerSecond float64       `koanf:"login_per_second" validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Auth: AuthConfig{
			Issuer:   "assetdesk",
			TokenTTL: 24 * time.Hour,
		},
		Permissions: PermissionsConfig{
			LookupTimeout:   3 * time.Second,
			CacheEnabled:    true,
			CacheTTL:        5 * time.Minute,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Audit: AuditConfig{
			BufferSize:   1024,
			WriteTimeout: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Requests:       300,
			Window:         time.Minute,
			LoginBurst:     5,
			LoginPerSecond: 1,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load layers defaults, the config file and the environment, then validates.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := splitList(k, "server.cors_origins"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate applies struct rules and cross-field checks.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}
	if c.Environment == "production" {
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("database.dsn is required in production")
		}
		for _, o := range c.Server.CORSOrigins {
			if o == "*" {
				return errors.New("server.cors_origins must not contain * in production")
			}
		}
	}
	if (c.Auth.AdminEmail == "") != (c.Auth.AdminPassword == "") {
		return errors.New("auth.admin_email and auth.admin_password must be set together")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return errors.New("database.max_idle_conns must not exceed max_open_conns")
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.Environment == "production" }

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnv); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envKey maps ASSETDESK_SERVER_HTTP_ADDR to server.http_addr. The first
// segment after the prefix names the section.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if s == "config" {
		return ""
	}
	section, rest, ok := strings.Cut(s, "_")
	if !ok {
		return section
	}
	return section + "." + rest
}

func splitList(k *koanf.Koanf, path string) error {
	raw, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if err := k.Set(path, out); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}
