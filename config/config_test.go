package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.True(t, cfg.Headless)
	assert.Equal(t, DefaultScreenshotDir, cfg.ScreenshotDir)
	assert.Equal(t, DefaultViewport, cfg.Viewport)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("WEBPROBE_BASE_URL", "https://staging.copymill.test")
	t.Setenv("WEBPROBE_EMAIL", "qa@copymill.test")
	t.Setenv("WEBPROBE_PASSWORD", "hunter2")
	t.Setenv("WEBPROBE_HEADLESS", "false")
	t.Setenv("WEBPROBE_TIMEOUT", "90s")
	t.Setenv("WEBPROBE_ATTACH_PORT", "9222")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://staging.copymill.test", cfg.BaseURL)
	assert.Equal(t, "qa@copymill.test", cfg.Email)
	assert.Equal(t, "hunter2", cfg.Password)
	assert.False(t, cfg.Headless)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, 9222, cfg.AttachPort)
}

func TestLoadBadEnv(t *testing.T) {
	t.Setenv("WEBPROBE_HEADLESS", "sometimes")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WEBPROBE_HEADLESS")
}

func TestLoadCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"email":"qa@copymill.test","password":"hunter2"}`), 0o600))

	cfg := &Config{Email: "old@copymill.test"}
	require.NoError(t, cfg.LoadCredentials(path))

	assert.Equal(t, "qa@copymill.test", cfg.Email)
	assert.Equal(t, "hunter2", cfg.Password)
}

func TestLoadCredentialsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"email":"qa@copymill.test"}`), 0o600))

	cfg := &Config{}
	err := cfg.LoadCredentials(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email and password")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "ok",
			cfg:  Config{BaseURL: "https://app.copymill.test", Timeout: time.Minute},
		},
		{
			name:    "empty base URL",
			cfg:     Config{Timeout: time.Minute},
			wantErr: "base URL",
		},
		{
			name:    "bad scheme",
			cfg:     Config{BaseURL: "ftp://app.copymill.test", Timeout: time.Minute},
			wantErr: "http or https",
		},
		{
			name:    "zero timeout",
			cfg:     Config{BaseURL: "https://app.copymill.test"},
			wantErr: "timeout",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
