// Package config loads the configuration of the demo binaries: defaults,
// overlaid by an optional YAML file, overlaid by UTP_* environment variables.
package config

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// ListenAddress is where the server binds its datagram socket.
	ListenAddress string `yaml:"listenAddress" env:"UTP_LISTEN_ADDRESS,overwrite"`

	// ServerAddress is where the client binaries connect to.
	ServerAddress string `yaml:"serverAddress" env:"UTP_SERVER_ADDRESS,overwrite"`

	// MetricsAddress is where the server serves /metrics. Empty disables it.
	MetricsAddress string `yaml:"metricsAddress" env:"UTP_METRICS_ADDRESS,overwrite"`

	LogLevel string `yaml:"logLevel" env:"UTP_LOG_LEVEL,overwrite"`
}

func defaults() Config {
	return Config{
		ListenAddress: ":9005",
		ServerAddress: "127.0.0.1:9005",
		LogLevel:      "info",
	}
}

// Load reads the YAML file when path is non-empty and the file exists, then
// applies the environment. Environment wins over file, file over defaults.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, errors.Wrapf(err, "parse %s", path)
			}
		case os.IsNotExist(err):
			// fine, env and defaults only
		default:
			return nil, errors.Wrapf(err, "read %s", path)
		}
	}
	if err := envconfig.ProcessWith(ctx, &cfg, envconfig.OsLookuper()); err != nil {
		return nil, errors.Wrap(err, "process environment")
	}
	return &cfg, nil
}
