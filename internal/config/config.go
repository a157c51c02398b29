package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/advisor/pkg/adapters/process"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of the advisor binary.
type Config struct {
	LogLevel string `yaml:"log_level"`

	API      APIConfig      `yaml:"api"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
}

// APIConfig describes the remote scoring service.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	// Process, when its command is set, answers scoring calls with a local
	// program instead of the HTTP service. Health and market status still
	// go to BaseURL.
	Process process.Config `yaml:"process"`
}

type AnalysisConfig struct {
	Period          string        `yaml:"period"`
	CashSymbols     []string      `yaml:"cash_symbols"`
	StepMinDuration time.Duration `yaml:"step_min_duration"`
	SettleDelay     time.Duration `yaml:"settle_delay"`
	PlanFile        string        `yaml:"plan_file"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type StoreConfig struct {
	// Driver is one of memory, file or redis.
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	Redis  RedisConfig `yaml:"redis"`
	// EncryptionKey is a base64 AES-256 key; empty disables encryption.
	EncryptionKey string   `yaml:"encryption_key"`
	FallbackKeys  []string `yaml:"fallback_keys"`
	// Redact drops invested amounts from persisted snapshots.
	Redact bool `yaml:"redact"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
	// Lock enables the distributed session lock.
	Lock bool `yaml:"lock"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		API: APIConfig{
			BaseURL:    "http://localhost:8000",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			BaseDelay:  time.Second,
			MaxDelay:   5 * time.Second,
		},
		Analysis: AnalysisConfig{
			Period:          "1y",
			CashSymbols:     []string{"현금", "CASH"},
			StepMinDuration: 2 * time.Second,
			SettleDelay:     2 * time.Second,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Store: StoreConfig{
			Driver: "memory",
			Path:   ".advisor/sessions",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "advisor:session:",
			},
		},
	}
}

// LoadFile reads path over the defaults. Unknown keys are rejected.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// Load is LoadFile when path is set, then ApplyEnv and Validate.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides the file values with ADVISOR_* variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("ADVISOR_API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("ADVISOR_API_TOKEN"); v != "" {
		c.API.Token = v
	}
	if v := os.Getenv("ADVISOR_API_TIMEOUT"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ADVISOR_API_TIMEOUT must be milliseconds: %w", err)
		}
		c.API.Timeout = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("ADVISOR_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ADVISOR_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("ADVISOR_STORE"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("ADVISOR_REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("ADVISOR_REDIS_PASSWORD"); v != "" {
		c.Store.Redis.Password = v
	}
	if v := os.Getenv("ADVISOR_ENCRYPTION_KEY"); v != "" {
		c.Store.EncryptionKey = v
	}
	if v := os.Getenv("ADVISOR_ENCRYPTION_FALLBACK_KEYS"); v != "" {
		c.Store.FallbackKeys = strings.Split(v, ",")
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("api.timeout must be positive, got %v", c.API.Timeout))
	}
	if c.API.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("api.max_retries must be at least 1, got %d", c.API.MaxRetries))
	}
	if c.API.BaseDelay < 0 || c.API.MaxDelay < c.API.BaseDelay {
		errs = append(errs, fmt.Errorf("api delays out of range: base %v, max %v", c.API.BaseDelay, c.API.MaxDelay))
	}
	if c.API.Process.Enabled() {
		if err := c.API.Process.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("api.process: %w", err))
		}
	}
	if c.Analysis.StepMinDuration < 0 || c.Analysis.SettleDelay < 0 {
		errs = append(errs, errors.New("analysis durations must not be negative"))
	}
	switch c.Store.Driver {
	case "memory", "file", "redis":
	default:
		errs = append(errs, fmt.Errorf("store.driver must be memory, file or redis, got %q", c.Store.Driver))
	}
	if c.Store.EncryptionKey != "" {
		if _, _, err := c.Store.Keys(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Keys decodes the active and fallback encryption keys.
func (s StoreConfig) Keys() ([]byte, [][]byte, error) {
	active, err := decodeKey(s.EncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("store.encryption_key: %w", err)
	}
	var fallback [][]byte
	for i, k := range s.FallbackKeys {
		if strings.TrimSpace(k) == "" {
			continue
		}
		b, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("store.fallback_keys[%d]: %w", i, err)
		}
		fallback = append(fallback, b)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("not valid base64: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("must decode to 32 bytes, got %d", len(b))
	}
	return b, nil
}
