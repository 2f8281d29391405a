// Package config loads process configuration from a TOML file, decoded
// with BurntSushi/toml, with environment-variable overrides applied on
// top through an affixed-environment-variable feeder. Errors use a
// sentinel-error-plus-%w-wrap convention throughout.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/triton-robotics/onboard/pid"
	"github.com/triton-robotics/onboard/topics"
)

// ErrInvalidFrequency is returned by Validate when Frequency is not
// strictly positive.
var ErrInvalidFrequency = errors.New("config: frequency must be positive")

// ErrInvalidOutputCap is returned by Validate when OutputCap is not
// strictly positive.
var ErrInvalidOutputCap = errors.New("config: output cap must be positive")

// Config is the process-wide configuration, loaded once at startup by
// Load and never mutated directly afterward — the gains sub-document is
// instead refreshed live through the broker by the file watcher in
// watch.go, never by re-reading this struct.
type Config struct {
	// Frequency is CTRL_FREQUENCY in Hz.
	Frequency float64 `toml:"frequency" env:"FREQUENCY"`
	// OutputCap is the control cascade's output norm cap M.
	OutputCap float64 `toml:"output_cap" env:"OUTPUT_CAP"`
	// InitDelayMS is the control subsystem's startup grace period in
	// milliseconds.
	InitDelayMS int `toml:"init_delay_ms" env:"INIT_DELAY_MS"`
	// BindRetryIntervalMS is the startup barrier's retry poll interval in
	// milliseconds.
	BindRetryIntervalMS int `toml:"bind_retry_interval_ms" env:"BIND_RETRY_INTERVAL_MS"`

	// TelemetryQueueCapacity is a capacity setting for the raw-telemetry
	// queue the motion estimator drains. Nothing in this module reads it:
	// the queue's capacity is set by whichever module binds the telemetry
	// publisher.
	TelemetryQueueCapacity int `toml:"telemetry_queue_capacity" env:"TELEMETRY_QUEUE_CAPACITY"`

	// WorkerPoolSize is the thread pool's preallocated goroutine count.
	WorkerPoolSize int `toml:"worker_pool_size" env:"WORKER_POOL_SIZE"`

	// Gains is the startup default gain set, decoded from the `gains`
	// table of the file passed to Load. GainsFile is not read at startup;
	// the watcher republishes from it only when it changes on disk.
	Gains GainSet5 `toml:"gains"`
	// GainsFile is the path the fsnotify watcher follows for live gain
	// updates.
	GainsFile string `toml:"gains_file" env:"GAINS_FILE"`

	// DiagnosticsAddr is the listen address for the read-only diagnostics
	// HTTP surface (empty disables it).
	DiagnosticsAddr string `toml:"diagnostics_addr" env:"DIAGNOSTICS_ADDR"`
	// DiagnosticsCron is the cron spec the low-rate diagnostics reporter
	// runs on.
	DiagnosticsCron string `toml:"diagnostics_cron" env:"DIAGNOSTICS_CRON"`
}

// GainSet5 mirrors topics.GainSet5 with TOML tags; Load converts it into
// the wire type once after decoding so the rest of the system only ever
// deals with topics.GainSet5.
type GainSet5 struct {
	RotatDisp Gains `toml:"rotat_disp"`
	RotatVel  Gains `toml:"rotat_vel"`
	TransDisp Gains `toml:"trans_disp"`
	TransVel  Gains `toml:"trans_vel"`
	Direction Gains `toml:"direction"`
}

// Gains mirrors pid.Gains with TOML tags.
type Gains struct {
	Kp float64 `toml:"kp"`
	Ki float64 `toml:"ki"`
	Kd float64 `toml:"kd"`
}

// ToWire converts the TOML-shaped gain set into the broker wire type.
func (g GainSet5) ToWire() topics.GainSet5 {
	return topics.GainSet5{
		RotatDisp: g.RotatDisp.toWire(),
		RotatVel:  g.RotatVel.toWire(),
		TransDisp: g.TransDisp.toWire(),
		TransVel:  g.TransVel.toWire(),
		Direction: g.Direction.toWire(),
	}
}

func (g Gains) toWire() pid.Gains {
	return pid.Gains{Kp: g.Kp, Ki: g.Ki, Kd: g.Kd}
}

// InitDelay returns InitDelayMS as a time.Duration.
func (c *Config) InitDelay() time.Duration {
	return time.Duration(c.InitDelayMS) * time.Millisecond
}

// BindRetryInterval returns BindRetryIntervalMS as a time.Duration.
func (c *Config) BindRetryInterval() time.Duration {
	return time.Duration(c.BindRetryIntervalMS) * time.Millisecond
}

// defaults returns a Config with every knob set to a safe, conservative
// value, applied before the TOML file and environment overrides.
func defaults() Config {
	return Config{
		Frequency:              100,
		OutputCap:              4,
		InitDelayMS:            200,
		BindRetryIntervalMS:    50,
		TelemetryQueueCapacity: 64,
		WorkerPoolSize:         8,
		GainsFile:              "",
		DiagnosticsAddr:        "127.0.0.1:8080",
		DiagnosticsCron:        "@every 5s",
	}
}

// Load reads path as TOML over top of defaults(), then applies
// ROBOT_-prefixed environment variable overrides, then validates. An
// empty path skips the file read and starts from defaults alone, which
// is convenient for tests and for the gains-only deployments where every
// other knob is left at its default.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if err := NewAffixedEnvFeeder("ROBOT").Feed(&cfg); err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the invariants the control cascade and broker rely on.
func (c *Config) Validate() error {
	if c.Frequency <= 0 {
		return ErrInvalidFrequency
	}
	if c.OutputCap <= 0 {
		return ErrInvalidOutputCap
	}
	return nil
}
