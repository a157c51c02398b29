package config_test

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/advisor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "advisor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func key(b byte) string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat(string(rune(b)), 32)))
}

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.API.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, "1y", cfg.Analysis.Period)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
log_level: debug
api:
  base_url: https://scoring.example.com
  timeout: 10s
  process:
    command: python3
    args: [scorer.py]
    env:
      MODEL_DIR: /models
analysis:
  period: 3y
store:
  driver: redis
  redis:
    addr: redis:6379
    ttl: 24h
`)
	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://scoring.example.com", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 3, cfg.API.MaxRetries, "defaults survive partial files")
	assert.True(t, cfg.API.Process.Enabled())
	assert.Equal(t, []string{"scorer.py"}, cfg.API.Process.Args)
	assert.Equal(t, "/models", cfg.API.Process.Env["MODEL_DIR"])
	assert.Equal(t, "3y", cfg.Analysis.Period)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Store.Redis.TTL)
	assert.Equal(t, "advisor:session:", cfg.Store.Redis.Prefix)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.LoadFile(writeFile(t, "api:\n  base_uri: x\n"))
	assert.Error(t, err, "unknown keys are rejected")

	cfg, err := config.LoadFile(writeFile(t, ""))
	require.NoError(t, err, "an empty file means defaults")
	assert.Equal(t, config.Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ADVISOR_API_BASE_URL", "http://env:9000")
	t.Setenv("ADVISOR_API_TIMEOUT", "1500")
	t.Setenv("ADVISOR_API_TOKEN", "secret")
	t.Setenv("ADVISOR_REDIS_ADDR", "cache:6379")
	t.Setenv("ADVISOR_ENCRYPTION_KEY", key('a'))

	cfg := config.Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "http://env:9000", cfg.API.BaseURL)
	assert.Equal(t, 1500*time.Millisecond, cfg.API.Timeout)
	assert.Equal(t, "secret", cfg.API.Token)
	assert.Equal(t, "cache:6379", cfg.Store.Redis.Addr)
	require.NoError(t, cfg.Validate())

	t.Setenv("ADVISOR_API_TIMEOUT", "soon")
	assert.Error(t, cfg.ApplyEnv())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "api:\n  base_url: http://file\n")
	t.Setenv("ADVISOR_API_BASE_URL", "http://env")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env", cfg.API.BaseURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"no base url", func(c *config.Config) { c.API.BaseURL = "" }},
		{"zero timeout", func(c *config.Config) { c.API.Timeout = 0 }},
		{"no attempts", func(c *config.Config) { c.API.MaxRetries = 0 }},
		{"max below base delay", func(c *config.Config) { c.API.MaxDelay = time.Millisecond }},
		{"negative settle", func(c *config.Config) { c.Analysis.SettleDelay = -time.Second }},
		{"unknown driver", func(c *config.Config) { c.Store.Driver = "etcd" }},
		{"reserved process env", func(c *config.Config) {
			c.API.Process.Command = "python3"
			c.API.Process.Env = map[string]string{"ADVISOR_ENDPOINT": "/predict"}
		}},
		{"short key", func(c *config.Config) { c.Store.EncryptionKey = base64.StdEncoding.EncodeToString([]byte("short")) }},
		{"bad fallback", func(c *config.Config) {
			c.Store.EncryptionKey = key('a')
			c.Store.FallbackKeys = []string{"%%%"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestKeys(t *testing.T) {
	s := config.StoreConfig{EncryptionKey: key('a'), FallbackKeys: []string{key('b'), " "}}
	active, fallback, err := s.Keys()
	require.NoError(t, err)
	assert.Len(t, active, 32)
	assert.Len(t, fallback, 1)
}
