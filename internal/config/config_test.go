package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "ws://localhost:8000/ws/agent", cfg.Controller.URL)
	assert.Equal(t, 10*time.Second, cfg.Controller.HandshakeTimeout)
	assert.Equal(t, time.Second, cfg.Capture.MinInterval)
	assert.Equal(t, 700*time.Millisecond, cfg.Executor.ScrollSettle)
	assert.Equal(t, 300*time.Millisecond, cfg.Executor.ClickSettle)
	assert.Equal(t, 2.0, cfg.Executor.BoundaryTolerance)
	assert.Equal(t, time.Second, cfg.Dispatch.PingTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Dispatch.InjectSettle)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 5*time.Second, cfg.Browser.ActionTimeout)
	assert.Equal(t, uint(800), cfg.Record.MaxWidth)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pagepilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
  format: text
browser:
  headless: false
  width: 1440
capture:
  min_interval: 2s
`), 0o600))

	t.Setenv("PAGEPILOT_CONTROLLER_URL", "wss://controller.example/ws/agent")
	t.Setenv("PAGEPILOT_CAPTURE_MAX_WIDTH", "640")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 1440, cfg.Browser.Width)
	assert.Equal(t, 720, cfg.Browser.Height)
	assert.Equal(t, 2*time.Second, cfg.Capture.MinInterval)
	assert.Equal(t, 640, cfg.Capture.MaxWidth)
	assert.Equal(t, "wss://controller.example/ws/agent", cfg.Controller.URL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad format", "log:\n  format: xml\n"},
		{"zero interval", "capture:\n  min_interval: 0s\n"},
		{"http controller", "controller:\n  url: http://localhost:8000\n"},
		{"malformed yaml", "log: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "pagepilot.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
