package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// envPrefix namespaces the environment overrides: TIDALFLOW_RUNTIME_WORKERS
// and friends.
const envPrefix = "TIDALFLOW"

// Load reads the configuration from environment overrides, the given file
// (optional), and defaults, in descending priority.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := Default()
	v.SetDefault("runtime.workers", defaults.Runtime.Workers)
	v.SetDefault("runtime.progress_mode", defaults.Runtime.ProgressMode)
	v.SetDefault("device.data_chunks", defaults.Device.DataChunks)
	v.SetDefault("device.frontier_chunks", defaults.Device.FrontierChunks)
	v.SetDefault("bench.rounds", defaults.Bench.Rounds)
	v.SetDefault("bench.data", defaults.Bench.Data)
	v.SetDefault("bench.operators", defaults.Bench.Operators)

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
