package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omc-erp/internal/config"
)

func TestNewWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omc.log")
	cfg := &config.Config{Env: config.EnvProduction, Log: config.LogConfig{Level: "info", Format: "json", File: path}}

	logger, err := New(cfg)
	require.NoError(t, err)
	logger.Info("bulk pricing finished")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "bulk pricing finished")
}

func TestNewFallsBackOnBadLevel(t *testing.T) {
	logger, err := New(&config.Config{Env: config.EnvDevelopment, Log: config.LogConfig{Level: "loud"}})
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
