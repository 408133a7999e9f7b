package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config holds all application configuration.
type Config struct {
	Transport string

	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxBodyBytes   int64
	RateLimitRPS   float64
	RateLimitBurst int

	// OpsAddr is the ops listener address. Unless set explicitly it is
	// only used with the HTTP transport; see OpsListenAddr.
	OpsAddr    string
	opsAddrSet bool

	LogLevel  string
	LogFormat string

	ShutdownTimeout time.Duration
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Transport:       TransportStdio,
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		MaxBodyBytes:    1 << 20,
		RateLimitRPS:    30,
		RateLimitBurst:  60,
		OpsAddr:         "127.0.0.1:9090",
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 30 * time.Second,
	}
}

type fileConfig struct {
	Transport string `yaml:"transport"`
	HTTP      struct {
		Port         int           `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"readTimeout"`
		WriteTimeout time.Duration `yaml:"writeTimeout"`
		MaxBodyBytes int64         `yaml:"maxBodyBytes"`
		RateLimit    struct {
			RPS   *float64 `yaml:"rps"`
			Burst int      `yaml:"burst"`
		} `yaml:"rateLimit"`
	} `yaml:"http"`
	Ops struct {
		Addr *string `yaml:"addr"`
	} `yaml:"ops"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and environment variables, in that order, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s not found", path)
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var parsed fileConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	merge(cfg, parsed)
	return nil
}

func merge(dst *Config, src fileConfig) {
	if src.Transport != "" {
		dst.Transport = src.Transport
	}
	if src.HTTP.Port != 0 {
		dst.Port = src.HTTP.Port
	}
	if src.HTTP.ReadTimeout != 0 {
		dst.ReadTimeout = src.HTTP.ReadTimeout
	}
	if src.HTTP.WriteTimeout != 0 {
		dst.WriteTimeout = src.HTTP.WriteTimeout
	}
	if src.HTTP.MaxBodyBytes != 0 {
		dst.MaxBodyBytes = src.HTTP.MaxBodyBytes
	}
	if src.HTTP.RateLimit.RPS != nil {
		dst.RateLimitRPS = *src.HTTP.RateLimit.RPS
	}
	if src.HTTP.RateLimit.Burst != 0 {
		dst.RateLimitBurst = src.HTTP.RateLimit.Burst
	}
	if src.Ops.Addr != nil {
		dst.OpsAddr = *src.Ops.Addr
		dst.opsAddrSet = true
	}
	if src.Log.Level != "" {
		dst.LogLevel = src.Log.Level
	}
	if src.Log.Format != "" {
		dst.LogFormat = src.Log.Format
	}
	if src.ShutdownTimeout != 0 {
		dst.ShutdownTimeout = src.ShutdownTimeout
	}
}

func applyEnv(cfg *Config) error {
	var err error

	cfg.Transport = getEnv("RF_TRANSPORT", cfg.Transport)

	if cfg.Port, err = getEnvInt("PORT", cfg.Port); err != nil {
		return fmt.Errorf("parse PORT: %w", err)
	}
	if cfg.ReadTimeout, err = getEnvDuration("RF_READ_TIMEOUT", cfg.ReadTimeout); err != nil {
		return fmt.Errorf("parse RF_READ_TIMEOUT: %w", err)
	}
	if cfg.WriteTimeout, err = getEnvDuration("RF_WRITE_TIMEOUT", cfg.WriteTimeout); err != nil {
		return fmt.Errorf("parse RF_WRITE_TIMEOUT: %w", err)
	}

	maxBody, err := getEnvInt("RF_MAX_BODY_BYTES", int(cfg.MaxBodyBytes))
	if err != nil {
		return fmt.Errorf("parse RF_MAX_BODY_BYTES: %w", err)
	}
	cfg.MaxBodyBytes = int64(maxBody)

	if v := os.Getenv("RF_RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse RF_RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimitRPS = rps
	}
	if cfg.RateLimitBurst, err = getEnvInt("RF_RATE_LIMIT_BURST", cfg.RateLimitBurst); err != nil {
		return fmt.Errorf("parse RF_RATE_LIMIT_BURST: %w", err)
	}

	// An explicitly empty RF_OPS_ADDR disables the ops listener.
	if v, ok := os.LookupEnv("RF_OPS_ADDR"); ok {
		cfg.OpsAddr = strings.TrimSpace(v)
		cfg.opsAddrSet = true
	}

	cfg.LogLevel = getEnv("RF_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("RF_LOG_FORMAT", cfg.LogFormat)

	if cfg.ShutdownTimeout, err = getEnvDuration("RF_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("parse RF_SHUTDOWN_TIMEOUT: %w", err)
	}
	return nil
}

// OpsListenAddr returns the address the ops listener should bind, or "" when
// it is disabled. The default address applies to the HTTP transport only, so
// stdio instances spawned per client do not contend for one port.
func (c Config) OpsListenAddr() string {
	if c.opsAddrSet || c.Transport == TransportHTTP {
		return c.OpsAddr
	}
	return ""
}

// Validate checks the configuration for unusable values.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("transport must be %q or %q, got %q", TransportStdio, TransportHTTP, c.Transport)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("rate limit rps must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// ParseLevel maps a configured level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", name, err)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(v)
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(v)
}
