package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "./data", cfg.DataDir)
	require.Equal(t, 256, cfg.BufferPoolSize)
}

func TestLoad_FromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gopherdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /tmp/gopherdb\nbuffer_pool_size: 64\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/gopherdb", cfg.DataDir)
	require.Equal(t, 64, cfg.BufferPoolSize)
}
