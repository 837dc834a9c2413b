package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"safesaviour/observability/logging"
)

const (
	envListen        = "RESCUED_LISTEN"
	envBootstrap     = "RESCUED_BOOTSTRAP"
	envAuthSecret    = "RESCUED_AUTH_SECRET"
	envAllowInsecure = "RESCUED_ALLOW_INSECURE"
	envTLSCert       = "RESCUED_TLS_CERT"
	envTLSKey        = "RESCUED_TLS_KEY"
	envOTLPEndpoint  = "RESCUED_OTLP_ENDPOINT"
	envOTLPHeaders   = "RESCUED_OTLP_HEADERS"
	envLogLevel      = "RESCUED_LOG_LEVEL"

	defaultListen      = "127.0.0.1:8547"
	defaultBootstrap   = "rescue.toml"
	defaultEventBuffer = 256
	minSecretLength    = 16
)

var ErrMissingSecret = errors.New("auth.hmacSecret is required")

type AuthConfig struct {
	HMACSecret string        `yaml:"hmacSecret"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	ClockSkew  time.Duration `yaml:"clockSkew"`
}

type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requestsPerMinute"`
	Burst             int     `yaml:"burst"`
}

type TLSConfig struct {
	CertFile      string `yaml:"certFile"`
	KeyFile       string `yaml:"keyFile"`
	AllowInsecure bool   `yaml:"allowInsecure"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

type ObservabilityConfig struct {
	ServiceName string  `yaml:"serviceName"`
	Environment string  `yaml:"environment"`
	Endpoint    string  `yaml:"endpoint"`
	Headers     string  `yaml:"headers"`
	Insecure    bool    `yaml:"insecure"`
	Metrics     bool    `yaml:"metrics"`
	Tracing     bool    `yaml:"tracing"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

// Config is the runtime configuration of the rescue daemon.
type Config struct {
	ListenAddress string              `yaml:"listen"`
	ReadTimeout   time.Duration       `yaml:"readTimeout"`
	WriteTimeout  time.Duration       `yaml:"writeTimeout"`
	IdleTimeout   time.Duration       `yaml:"idleTimeout"`
	Bootstrap     string              `yaml:"bootstrap"`
	EventBuffer   int                 `yaml:"eventBuffer"`
	Auth          AuthConfig          `yaml:"auth"`
	RateLimit     RateLimitConfig     `yaml:"rateLimit"`
	TLS           TLSConfig           `yaml:"tls"`
	Log           LogConfig           `yaml:"log"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		ListenAddress: defaultListen,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		Bootstrap:     defaultBootstrap,
		EventBuffer:   defaultEventBuffer,
		Auth: AuthConfig{
			Issuer:    "safesaviour",
			Audience:  "rescued",
			ClockSkew: 2 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
			Burst:             20,
		},
		Log: LogConfig{Level: "info"},
		Observability: ObservabilityConfig{
			ServiceName: "rescued",
			Environment: "dev",
			Metrics:     true,
		},
	}
}

// Load reads a YAML file, applies RESCUED_* overrides and validates the
// result. An empty path yields the defaults plus overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() error {
	setString(&cfg.ListenAddress, envListen)
	setString(&cfg.Bootstrap, envBootstrap)
	setString(&cfg.Auth.HMACSecret, envAuthSecret)
	setString(&cfg.TLS.CertFile, envTLSCert)
	setString(&cfg.TLS.KeyFile, envTLSKey)
	setString(&cfg.Observability.Endpoint, envOTLPEndpoint)
	setString(&cfg.Observability.Headers, envOTLPHeaders)
	setString(&cfg.Log.Level, envLogLevel)
	if raw := strings.TrimSpace(os.Getenv(envAllowInsecure)); raw != "" {
		allow, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", envAllowInsecure, err)
		}
		cfg.TLS.AllowInsecure = allow
	}
	return nil
}

func (cfg *Config) normalize() {
	defaults := Default()
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaults.ListenAddress
	}
	cfg.Bootstrap = strings.TrimSpace(cfg.Bootstrap)
	if cfg.Bootstrap == "" {
		cfg.Bootstrap = defaults.Bootstrap
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaults.IdleTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaults.EventBuffer
	}
	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	cfg.Auth.Issuer = strings.TrimSpace(cfg.Auth.Issuer)
	cfg.Auth.Audience = strings.TrimSpace(cfg.Auth.Audience)
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = defaults.Auth.ClockSkew
	}
	if cfg.RateLimit.RequestsPerMinute > 0 && cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 1
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	cfg.Observability.ServiceName = strings.TrimSpace(cfg.Observability.ServiceName)
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = defaults.Observability.ServiceName
	}
	if strings.TrimSpace(cfg.Observability.Environment) == "" {
		cfg.Observability.Environment = defaults.Observability.Environment
	}
}

// Validate ensures the configuration is internally consistent.
func (cfg Config) Validate() error {
	if cfg.Auth.HMACSecret == "" {
		return ErrMissingSecret
	}
	if len(cfg.Auth.HMACSecret) < minSecretLength {
		return fmt.Errorf("auth.hmacSecret must be at least %d bytes", minSecretLength)
	}
	if !cfg.TLS.AllowInsecure {
		if strings.TrimSpace(cfg.TLS.CertFile) == "" || strings.TrimSpace(cfg.TLS.KeyFile) == "" {
			return fmt.Errorf("tls credentials required unless tls.allowInsecure is true")
		}
	}
	if cfg.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("rateLimit.requestsPerMinute must be non-negative")
	}
	if cfg.Observability.SampleRatio < 0 || cfg.Observability.SampleRatio > 1 {
		return fmt.Errorf("observability.sampleRatio must be within [0,1]")
	}
	if cfg.Log.MaxSizeMB < 0 || cfg.Log.MaxBackups < 0 || cfg.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation settings must be non-negative")
	}
	return nil
}

// Sanitized returns a copy of the Config with secrets masked for logging.
func (cfg Config) Sanitized() Config {
	clone := cfg
	clone.Auth.HMACSecret = logging.MaskSecret(clone.Auth.HMACSecret)
	if clone.Observability.Headers != "" {
		clone.Observability.Headers = logging.MaskValue(clone.Observability.Headers)
	}
	return clone
}

func setString(target *string, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*target = value
	}
}
