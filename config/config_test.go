package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bouwupdate/intake-api/internal/service/phase"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.VoiceLinkWindow)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.RecoverAfter)
	assert.Equal(t, phase.DefaultThresholds(), cfg.Inference.ToThresholds())
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yml := []byte("storage:\n  driver: memory\ninference:\n  window_size: 8\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), yml, 0o600))

	t.Setenv("INTAKE_SERVER_PORT", "9090")
	t.Setenv("INTAKE_GEMINI_API_KEY", "key-from-env")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 8, cfg.Inference.WindowSize)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "key-from-env", cfg.Gemini.APIKey)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	cfg.Inference.WindowSize = 25
	assert.Error(t, cfg.Validate())

	cfg.Inference.WindowSize = 10
	cfg.Auth.Enabled = true
	cfg.Auth.JWTSecret = ""
	assert.Error(t, cfg.Validate())
}
