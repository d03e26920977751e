package main

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(configEnv, "")
	cfg, err := loadConfig(afero.NewMemMapFs(), "")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
	assert.Equal(t, defaultMapFileURL, cfg.MapFileURL)
	assert.Equal(t, defaultTimeout, cfg.Timeout)
}

func TestLoadConfigOverride(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "pmu.yaml", []byte(`
mapfile_url: http://mirror.local/mapfile.csv
timeout: 5s
identifier:
  strategy: builtin
`), 0o644))

	cfg, err := loadConfig(fs, "pmu.yaml")
	require.NoError(t, err)
	assert.Equal(t, "http://mirror.local/mapfile.csv", cfg.MapFileURL)
	assert.Equal(t, defaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, defaultUserAgent, cfg.UserAgent)
	assert.Equal(t, strategyBuiltin, cfg.Identifier.Strategy)
}

func TestLoadConfigFromEnv(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/pmu.yaml", []byte("identifier:\n  command: [cpu-sig, --short]\n"), 0o644))
	t.Setenv(configEnv, "/etc/pmu.yaml")

	cfg, err := loadConfig(fs, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu-sig", "--short"}, cfg.Identifier.Command)
}

func TestLoadConfigErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "empty-url.yaml", []byte("base_url: \"\"\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "negative.yaml", []byte("timeout: -1s\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "broken.yaml", []byte("timeout: [\n"), 0o644))

	tests := []struct {
		path string
		want string
	}{
		{"missing.yaml", "read config"},
		{"empty-url.yaml", "must not be empty"},
		{"negative.yaml", "negative timeout"},
		{"broken.yaml", "parse config broken.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := loadConfig(fs, tt.path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
