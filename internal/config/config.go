// Package config loads the process-level backend configuration using
// viper: listen address, worker limits, and logging/metrics settings that
// apply regardless of any particular scene or view.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/povbackend/tracebackend/internal/logging"
)

// Config is the top-level backend configuration (spec.md §5's resource
// model, plus the logging/metrics ambient settings).
type Config struct {
	Listen           string         `mapstructure:"listen"`
	MaxScenes        int            `mapstructure:"max_scenes"`
	MaxViewsPerScene int            `mapstructure:"max_views_per_scene"`
	MaxWorkers       int            `mapstructure:"max_workers"` // 0 = GOMAXPROCS
	Log              logging.Config `mapstructure:"log"`
	Metrics          MetricsConfig  `mapstructure:"metrics"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from path (if non-empty), layering environment
// variable overrides under the POVBACKEND_ prefix, and applies defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("povbackend")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":9420")
	v.SetDefault("max_scenes", 16)
	v.SetDefault("max_views_per_scene", 8)
	v.SetDefault("max_workers", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen", ":9421")
	v.SetDefault("metrics.path", "/metrics")
}

func (c *Config) validate() error {
	if c.MaxScenes < 1 {
		return fmt.Errorf("max_scenes must be >= 1, got %d", c.MaxScenes)
	}
	if c.MaxViewsPerScene < 1 {
		return fmt.Errorf("max_views_per_scene must be >= 1, got %d", c.MaxViewsPerScene)
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("max_workers must be >= 0, got %d", c.MaxWorkers)
	}
	return nil
}
