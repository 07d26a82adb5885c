package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, 10000, cfg.Drive.MaxTreeDepth)
	assert.Equal(t, 3, cfg.Storage.RetryAttempts)
	assert.Equal(t, 30*time.Second, cfg.Storage.OpTimeout)
	assert.Equal(t, int64(5)<<30, cfg.Drive.DefaultAllocatedBytes)
	assert.Same(t, cfg, AppConfig)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("GO_DRIVE_STORAGE_TYPE", "minio")
	t.Setenv("GO_DRIVE_DRIVE_MAX_TREE_DEPTH", "64")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "minio", cfg.Storage.Type)
	assert.Equal(t, 64, cfg.Drive.MaxTreeDepth)
}

func TestLoadConfig_RejectsUnknownStorage(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("GO_DRIVE_STORAGE_TYPE", "floppy")

	_, err := LoadConfig()
	assert.Error(t, err)
}
