// File: config_test.go
package activebody

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runtime.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
max_tag_lease = "5s"
exit_on_empty = true
tracing = true
termination_workers = 2
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.MaxTagLease.Duration)
	assert.True(t, cfg.ExitOnEmpty)
	assert.True(t, cfg.Tracing)
	assert.Equal(t, 2, cfg.TerminationWorkers)
	assert.Equal(t, DefaultConfig().HookBuffer, cfg.HookBuffer, "unset keys keep their defaults")
	assert.Equal(t, time.Second, cfg.HalfBodyGCInterval.Duration)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, `max_tag_lease = "soon"`))
	assert.ErrorContains(t, err, "invalid duration")

	_, err = LoadConfig(writeConfig(t, `termination_workers = 0`))
	assert.ErrorContains(t, err, "termination_workers")
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cases := map[string]func(*Config){
		"max_tag_lease":         func(c *Config) { c.MaxTagLease.Duration = 0 },
		"half_body_gc_interval": func(c *Config) { c.HalfBodyGCInterval.Duration = -time.Second },
		"termination_workers":   func(c *Config) { c.TerminationWorkers = 0 },
		"hook_buffer":           func(c *Config) { c.HookBuffer = -1 },
	}
	for key, mutate := range cases {
		t.Run(key, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), key)
		})
	}
}

func TestNewRuntime_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TerminationWorkers = 0
	_, err := NewRuntime(cfg)
	assert.ErrorContains(t, err, "invalid configuration")
}
