package config

import (
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Errors     ErrorsConfig     `yaml:"errors"`
	Versioning VersioningConfig `yaml:"versioning"`
	Doctor     DoctorConfig     `yaml:"doctor"`
	Authz      AuthzConfig      `yaml:"authz"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + strconv.Itoa(d.Port) + "/" + d.Name + "?sslmode=disable"
}

type RedisConfig struct {
	// Enabled selects the redis backends for rate limiting and caching;
	// when false the in-process backends are used.
	Enabled   bool     `yaml:"enabled"`
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

// ErrorsConfig controls the app-level error surface. The three switches are
// independent; disabling the envelope does not disable redaction.
type ErrorsConfig struct {
	Envelope       bool `yaml:"envelope"`
	IncludeDetails bool `yaml:"include_details"`
	Redact         bool `yaml:"redact"`
}

type VersioningConfig struct {
	// Strict rejects requests missing the version header on gated routes.
	Strict bool `yaml:"strict"`
}

type DoctorConfig struct {
	// FailOn is the severity threshold at which a doctor run exits non-zero.
	FailOn string `yaml:"fail_on"`
}

type AuthzConfig struct {
	// PolicyDir, when set, loads rego policies and evaluates role and scope
	// checks through them instead of the built-in key metadata matcher.
	PolicyDir string `yaml:"policy_dir"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "interlock",
			User:            "interlock",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:   false,
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
		},
		Errors: ErrorsConfig{
			Envelope:       true,
			IncludeDetails: true,
			Redact:         true,
		},
		Versioning: VersioningConfig{
			Strict: false,
		},
		Doctor: DoctorConfig{
			FailOn: "error",
		},
	}
}
