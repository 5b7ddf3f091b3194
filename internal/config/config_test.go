package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "servopid.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
target = " /dev/ttyACM0 "
poll_interval = "20ms"
poll_telemetry = false
http_addr = ":9090"
profile = "tuning.json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.Target)
	assert.Equal(t, 20*time.Millisecond, cfg.PollInterval)
	assert.False(t, cfg.PollTelemetry)
	assert.False(t, cfg.PidEnabled)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "tuning.json", cfg.Profile)
	assert.Equal(t, Default().BaudRate, cfg.BaudRate)
}

func TestLoadEmptyFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad duration", `poll_interval = "soon"`},
		{"zero poll", `poll_interval = "0s"`},
		{"bad addr", `http_addr = "localhost"`},
		{"unknown key", `polling = true`},
		{"bad toml", `target = `},
		{"profile without target", "target = \"\"\nprofile = \"p.json\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
