package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectmarket/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	ttl, err := cfg.TokenTTL()
	require.NoError(t, err)
	assert.Equal(t, 168*time.Hour, ttl)

	size, err := cfg.MaxUploadBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(50<<20), size)
	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.Equal(t, []string{".zip"}, cfg.Storage.AllowedExtensions)
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := config.FromYAML([]byte("storage:\n  max_upload_size: 10 MB\nauth:\n  token_ttl: 1h\n"))
	require.NoError(t, err)
	size, err := cfg.MaxUploadBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), size)
	ttl, _ := cfg.TokenTTL()
	assert.Equal(t, time.Hour, ttl)
	// untouched keys keep defaults
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}

func TestFromYAMLRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad ttl":       "auth:\n  token_ttl: soon\n",
		"bad size":      "storage:\n  max_upload_size: lots\n",
		"bad extension": "storage:\n  allowed_extensions: [zip]\n",
		"no mime types": "storage:\n  allowed_extensions: [.zip]\n  allowed_mime_types: []\n",
		"bad level":     "log:\n  level: loud\n",
		"bad base path": "server:\n  base_path: api\n",
		"not yaml":      "server: [",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(config.Path(dir))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	_, err = config.Load(config.Path(dir))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(config.GenerateDefault()), 0o644))
	cfg, err = config.Load(config.Path(dir))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}
