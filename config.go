// File: config.go
package activebody

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/tliron/commonlog"
)

// Duration is a time.Duration that reads from TOML strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", string(text))
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds the knobs a Runtime reads at start.
type Config struct {
	// MaxTagLease bounds the lease of any tag memory.
	MaxTagLease Duration `toml:"max_tag_lease"`
	// ExitOnEmpty makes the runtime call its exit function when the last
	// user body is unregistered.
	ExitOnEmpty bool `toml:"exit_on_empty"`
	// Tracing forces a correlation tag on every outgoing request.
	Tracing bool `toml:"tracing"`
	// HalfBodyGCInterval is the minimum delay between two half body
	// collections triggered by half body creation.
	HalfBodyGCInterval Duration `toml:"half_body_gc_interval"`
	// TerminationWorkers bounds the goroutines that reply to requests left
	// in the queue of a terminated body.
	TerminationWorkers int `toml:"termination_workers"`
	// HookBuffer is the capacity of the notification buffer; notifications
	// beyond it are dropped.
	HookBuffer   int `toml:"hook_buffer"`
	LogVerbosity int `toml:"log_verbosity"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		MaxTagLease:        Duration{30 * time.Second},
		ExitOnEmpty:        false,
		Tracing:            false,
		HalfBodyGCInterval: Duration{time.Second},
		TerminationWorkers: 4,
		HookBuffer:         256,
		LogVerbosity:       0,
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "cannot read %s", path)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse error in %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid configuration in %s", path)
	}
	return cfg, nil
}

// Validate checks the knobs for values the runtime cannot work with.
func (c Config) Validate() error {
	if c.MaxTagLease.Duration <= 0 {
		return errors.New("max_tag_lease must be positive")
	}
	if c.HalfBodyGCInterval.Duration < 0 {
		return errors.New("half_body_gc_interval must not be negative")
	}
	if c.TerminationWorkers < 1 {
		return errors.New("termination_workers must be at least 1")
	}
	if c.HookBuffer < 0 {
		return errors.New("hook_buffer must not be negative")
	}
	return nil
}

// ConfigureLogging applies LogVerbosity to the commonlog backend.
func (c Config) ConfigureLogging() {
	commonlog.Configure(c.LogVerbosity, nil)
}
