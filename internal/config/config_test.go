package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, 44100.0, cfg.Audio.SampleRate)
	assert.Equal(t, 1024, cfg.Audio.BlockSize)
	assert.Equal(t, []string{"pulse", "pipewire"}, cfg.Audio.PreferredDevices)
	assert.Equal(t, 16, cfg.Analyzer.Bins)
	assert.Equal(t, 10*time.Millisecond, cfg.Loop.ReadInterval.Std())
	assert.Equal(t, 100*time.Millisecond, cfg.Loop.ErrorBackoff.Std())
	assert.Equal(t, 50*time.Millisecond, cfg.PollInterval.Std())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
  "log_level": "debug",
  "audio": {"device_id": "Built-in Microphone", "block_size": 2048},
  "poll_interval": "25ms",
  "nats": {"enabled": true}
}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "Built-in Microphone", cfg.Audio.DeviceID)
	assert.Equal(t, 2048, cfg.Audio.BlockSize)
	assert.Equal(t, 44100.0, cfg.Audio.SampleRate, "fields absent from the file keep defaults")
	assert.Equal(t, 25*time.Millisecond, cfg.PollInterval.Std())
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestLoadFromRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"bad_json":       `{"audio": `,
		"bad_duration":   `{"poll_interval": "soon"}`,
		"numeric_dur":    `{"poll_interval": 50}`,
		"zero_bins":      `{"analyzer": {"bins": 0}}`,
		"smoothing":      `{"analyzer": {"smoothing": 1.5}}`,
		"tiny_block":     `{"audio": {"block_size": 1}}`,
		"nats_no_url":    `{"nats": {"enabled": true, "url": ""}}`,
		"web_no_address": `{"web": {"enabled": true, "addr": ""}}`,
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(data), 0644))

			_, err := LoadFrom(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	cfg.Audio.DeviceID = "pulse"
	cfg.Loop.ErrorBackoff = Duration(250 * time.Millisecond)
	require.NoError(t, cfg.Save())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"error_backoff": "250ms"`)

	again, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "pulse", again.Audio.DeviceID)
	assert.Equal(t, 250*time.Millisecond, again.Loop.ErrorBackoff.Std())
}

func TestPathUsesXDG(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout only applies on linux")
	}
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, "/tmp/xdg/spectrum-tray/config.json", Path())
}
