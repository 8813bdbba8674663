package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

const appName = "spectrum-tray"

type Config struct {
	LogLevel     string         `json:"log_level"` // "debug", "info", "warn", "error"
	Audio        AudioConfig    `json:"audio"`
	Analyzer     AnalyzerConfig `json:"analyzer"`
	Loop         LoopConfig     `json:"loop"`
	PollInterval Duration       `json:"poll_interval"`
	NATS         NATSConfig     `json:"nats"`
	Web          WebConfig      `json:"web"`
	Autostart    bool           `json:"autostart"`

	path string
}

type AudioConfig struct {
	DeviceID         string   `json:"device_id"` // exact device name, empty for automatic
	PreferredDevices []string `json:"preferred_devices"`
	SampleRate       float64  `json:"sample_rate"`
	BlockSize        int      `json:"block_size"`
}

type AnalyzerConfig struct {
	Bins        int     `json:"bins"`
	Compression float64 `json:"compression"`
	Smoothing   float64 `json:"smoothing"`
}

type LoopConfig struct {
	ReadInterval Duration `json:"read_interval"`
	ErrorBackoff Duration `json:"error_backoff"`
}

type NATSConfig struct {
	Enabled       bool   `json:"enabled"`
	URL           string `json:"url"`
	SubjectPrefix string `json:"subject_prefix"`
}

type WebConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// Duration is a time.Duration stored as a string such as "50ms".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"50ms\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			DeviceID:         "",
			PreferredDevices: []string{"pulse", "pipewire"},
			SampleRate:       44100,
			BlockSize:        1024,
		},
		Analyzer: AnalyzerConfig{
			Bins:        16,
			Compression: 0.6,
			Smoothing:   0.3,
		},
		Loop: LoopConfig{
			ReadInterval: Duration(10 * time.Millisecond),
			ErrorBackoff: Duration(100 * time.Millisecond),
		},
		PollInterval: Duration(50 * time.Millisecond),
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			SubjectPrefix: "spectrum",
		},
		Web: WebConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8765",
		},
	}
}

// Load reads the config from the platform config dir or returns defaults
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom overlays the file at path onto the defaults. A missing file is
// not an error.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %v", c.Audio.SampleRate)
	}
	if c.Audio.BlockSize < 2 {
		return fmt.Errorf("audio.block_size must be at least 2, got %d", c.Audio.BlockSize)
	}
	if c.Analyzer.Bins <= 0 {
		return fmt.Errorf("analyzer.bins must be positive, got %d", c.Analyzer.Bins)
	}
	if c.Analyzer.Compression <= 0 {
		return fmt.Errorf("analyzer.compression must be positive, got %v", c.Analyzer.Compression)
	}
	if c.Analyzer.Smoothing <= 0 || c.Analyzer.Smoothing > 1 {
		return fmt.Errorf("analyzer.smoothing must be in (0,1], got %v", c.Analyzer.Smoothing)
	}
	if c.Loop.ReadInterval < 0 {
		return fmt.Errorf("loop.read_interval must not be negative, got %v", c.Loop.ReadInterval.Std())
	}
	if c.Loop.ErrorBackoff <= 0 {
		return fmt.Errorf("loop.error_backoff must be positive, got %v", c.Loop.ErrorBackoff.Std())
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval.Std())
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats.url is required when nats is enabled")
	}
	if c.Web.Enabled && c.Web.Addr == "" {
		return errors.New("web.addr is required when web is enabled")
	}
	return nil
}

// Save writes the config back to the file it was loaded from, or to the
// platform path.
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		path = Path()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Path returns the platform-specific config file path
func Path() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, appName, "config.json")
}
