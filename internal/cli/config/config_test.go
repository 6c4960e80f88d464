package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "http://localhost:5080", cfg.DefaultServer)
	assert.Equal(t, "table", cfg.DefaultOutput)
	assert.NotNil(t, cfg.Connections)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, filepath.Join(".pairlink", "cli.yaml"), filepath.Join(filepath.Base(filepath.Dir(path)), filepath.Base(path)))
}

func TestLoad_Missing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cli.yaml")

	cfg := Default()
	cfg.Connections["prod"] = ConnectionConfig{
		Server:   "https://pairlink.example.com",
		APIKeyID: "plak-01",
		APIKey:   "plas_secret",
	}
	cfg.CurrentConnection = "prod"
	require.NoError(t, Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	cur, ok := loaded.Current()
	require.True(t, ok)
	assert.Equal(t, "https://pairlink.example.com", cur.Server)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":         "connections: [",
		"unknown output":   "default_output: xml\n",
		"missing server":   "connections:\n  dev:\n    api_key_id: plak-1\n    api_key: plas_1\n",
		"half key":         "connections:\n  dev:\n    server: localhost:8080\n    api_key_id: plak-1\n",
		"dangling current": "current_connection: prod\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cli.yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestNames(t *testing.T) {
	cfg := Default()
	cfg.Connections["staging"] = ConnectionConfig{Server: "s"}
	cfg.Connections["dev"] = ConnectionConfig{Server: "d"}
	assert.Equal(t, []string{"dev", "staging"}, cfg.Names())

	_, ok := cfg.Current()
	assert.False(t, ok)
}
