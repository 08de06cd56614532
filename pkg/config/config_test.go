package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, ":9005", cfg.ListenAddress)
	assert.Equal(t, "127.0.0.1:9005", cfg.ServerAddress)
	assert.Equal(t, "", cfg.MetricsAddress)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "utp.yml")
	require.NoError(t, os.WriteFile(path, []byte("listenAddress: :7000\nlogLevel: debug\n"), 0o644))

	t.Setenv("UTP_LOG_LEVEL", "trace")

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.ListenAddress, "file overrides default")
	assert.Equal(t, "trace", cfg.LogLevel, "environment overrides file")
	assert.Equal(t, "127.0.0.1:9005", cfg.ServerAddress, "default survives")
}

func TestLoadMissingFileIsFine(t *testing.T) {
	cfg, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, ":9005", cfg.ListenAddress)
}

func TestLoadBadYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("listenAddress: [oops\n"), 0o644))
	_, err := Load(context.Background(), path)
	require.Error(t, err)
}
