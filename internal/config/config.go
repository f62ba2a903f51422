// Package config loads and validates the runtime configuration: worker
// count, progress broadcast mode, device geometry, and benchmark knobs.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration struct for tidalflow.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Runtime RuntimeConfig `mapstructure:"runtime" yaml:"runtime"`
	Device  DeviceConfig  `mapstructure:"device"  yaml:"device"`
	Bench   BenchConfig   `mapstructure:"bench"   yaml:"bench"`
}

// RuntimeConfig holds worker and progress knobs.
type RuntimeConfig struct {
	// Workers is the number of event loops to spawn.
	Workers int `mapstructure:"workers" yaml:"workers"`
	// ProgressMode selects eager or demand progress broadcasting; it seeds
	// the DEFAULT_PROGRESS_MODE environment variable unless that is already
	// set.
	ProgressMode string `mapstructure:"progress_mode" yaml:"progress_mode"`
	// DiagnosticsAddr serves /healthz and /metrics when non-empty.
	DiagnosticsAddr string `mapstructure:"diagnostics_addr" yaml:"diagnostics_addr"`
	// EventLogPath persists the scheduling event log when non-empty.
	EventLogPath string `mapstructure:"event_log_path" yaml:"event_log_path"`
}

// DeviceConfig holds the accelerator geometry.
type DeviceConfig struct {
	// Profile names a device profile JSON file. The benchmark does not read
	// it: it always runs the built-in simulator, sized by DataChunks and
	// FrontierChunks.
	Profile string `mapstructure:"profile" yaml:"profile"`
	// DataChunks sizes the input record window, in 8-slot chunks.
	DataChunks int `mapstructure:"data_chunks" yaml:"data_chunks"`
	// FrontierChunks sizes the frontier window, in 8-slot chunks.
	FrontierChunks int `mapstructure:"frontier_chunks" yaml:"frontier_chunks"`
}

// BenchConfig holds the per-run benchmark parameters.
type BenchConfig struct {
	// Rounds is the number of epochs to run.
	Rounds int `mapstructure:"rounds" yaml:"rounds"`
	// Data is the number of records sent per epoch.
	Data int `mapstructure:"data" yaml:"data"`
	// Operators is the length of the fused chain.
	Operators int `mapstructure:"operators" yaml:"operators"`
	// ReportPath receives the JSON latency report when non-empty.
	ReportPath string `mapstructure:"report_path" yaml:"report_path"`
}

// Default returns the configuration used when no file or flags override it.
func Default() Config {
	return Config{
		Runtime: RuntimeConfig{
			Workers:      1,
			ProgressMode: "EAGER",
		},
		Device: DeviceConfig{
			DataChunks:     500,
			FrontierChunks: 2,
		},
		Bench: BenchConfig{
			Rounds:    1000,
			Data:      32,
			Operators: 1,
		},
	}
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Runtime.Workers <= 0 {
		return fmt.Errorf("config: workers must be positive, have %d", c.Runtime.Workers)
	}

	if c.Bench.Operators <= 0 {
		return fmt.Errorf("config: operators must be positive, have %d", c.Bench.Operators)
	}

	if c.Device.DataChunks <= 0 || c.Device.FrontierChunks <= 0 {
		return fmt.Errorf("config: device chunks must be positive, have %d/%d",
			c.Device.DataChunks, c.Device.FrontierChunks)
	}

	if 1+c.Bench.Operators > c.Device.FrontierChunks*8 {
		return fmt.Errorf("config: frontier window of %d slots cannot hold %d operators",
			c.Device.FrontierChunks*8, c.Bench.Operators)
	}

	if c.Bench.Data > c.Device.DataChunks*8 {
		return fmt.Errorf("config: %d records per epoch exceed the input window of %d slots",
			c.Bench.Data, c.Device.DataChunks*8)
	}

	return nil
}

// Render returns the configuration as YAML, for the `config` command.
func (c Config) Render() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("config: render: %w", err)
	}

	return string(out), nil
}
