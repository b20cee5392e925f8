package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// DeviceCommand is the argv of a capture tool that writes a container stream
// to stdout until it is killed.
type DeviceCommand struct {
	Command []string `yaml:"command"`
	Label   string   `yaml:"label"`
}

type DevicesConfig struct {
	Camera  DeviceCommand `yaml:"camera"`
	Display DeviceCommand `yaml:"display"`
	// StartupGraceMS is how long a capture tool must stay alive before the
	// device counts as acquired.
	StartupGraceMS int `yaml:"startup_grace_ms"`
}

type RecordingConfig struct {
	OutputDir string `yaml:"output_dir"`
	MediaType string `yaml:"media_type"`
}

type PlaybackConfig struct {
	DriftThresholdSeconds float64 `yaml:"drift_threshold_seconds"`
	StartPrimary          string  `yaml:"start_primary"` // "camera" | "screen"
}

type ServerConfig struct {
	ListenAddr         string `yaml:"listen_addr"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

type LogConfig struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

// Config is the daemon configuration.
type Config struct {
	Devices   DevicesConfig   `yaml:"devices"`
	Recording RecordingConfig `yaml:"recording"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// MediaTypes maps the supported container types to artifact extensions.
var MediaTypes = map[string]string{
	"video/webm":       ".webm",
	"video/x-matroska": ".mkv",
	"video/mp4":        ".mp4",
}

// Default returns the built-in configuration. Device commands use ffmpeg on
// Linux (v4l2 + pulse for the camera, x11grab for the display).
func Default() *Config {
	home := os.Getenv("HOME")
	return &Config{
		Devices: DevicesConfig{
			Camera: DeviceCommand{
				Label: "camera",
				Command: []string{"ffmpeg", "-hide_banner", "-loglevel", "error",
					"-f", "v4l2", "-i", "/dev/video0", "-f", "pulse", "-i", "default",
					"-c:v", "libvpx", "-deadline", "realtime", "-c:a", "libopus", "-f", "webm", "pipe:1"},
			},
			Display: DeviceCommand{
				Label: "display",
				Command: []string{"ffmpeg", "-hide_banner", "-loglevel", "error",
					"-f", "x11grab", "-i", ":0.0",
					"-c:v", "libvpx", "-deadline", "realtime", "-f", "webm", "pipe:1"},
			},
			StartupGraceMS: 300,
		},
		Recording: RecordingConfig{
			OutputDir: filepath.Join(home, "Videos", "dualcap"),
			MediaType: "video/webm",
		},
		Playback: PlaybackConfig{
			DriftThresholdSeconds: 0.3,
			StartPrimary:          "camera",
		},
		Server: ServerConfig{
			ListenAddr:         "127.0.0.1:7455",
			RateLimitPerMinute: 600,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// UserConfigPath returns ~/.config/dualcap/config.yaml.
func UserConfigPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "dualcap", "config.yaml")
}

// StateDir returns ~/.cache/dualcap, where the command file, the status
// snapshot and the pid file live.
func StateDir() string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "dualcap")
}

const defaultConfigPath = "configs/default-config.yaml"

// Load reads path, or the user config and then configs/default-config.yaml
// when path is empty. Missing files fall through to Default(). Values in the
// file override the defaults field by field.
func Load(path string) (*Config, error) {
	candidates := []string{path}
	if path == "" {
		candidates = []string{UserConfigPath(), defaultConfigPath}
	}

	cfg := Default()
	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && path == "" {
				continue
			}
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", p, err)
		}
		break
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0644)
}

// Validate checks Config for validity
func (c *Config) Validate() error {
	if len(c.Devices.Camera.Command) == 0 {
		return fmt.Errorf("devices.camera.command must not be empty")
	}
	if len(c.Devices.Display.Command) == 0 {
		return fmt.Errorf("devices.display.command must not be empty")
	}
	if c.Devices.StartupGraceMS < 0 {
		return fmt.Errorf("devices.startup_grace_ms must be >= 0")
	}
	if c.Recording.OutputDir == "" {
		return fmt.Errorf("recording.output_dir must not be empty")
	}
	if _, ok := MediaTypes[c.Recording.MediaType]; !ok {
		return fmt.Errorf("recording.media_type %q is not supported", c.Recording.MediaType)
	}
	if c.Playback.DriftThresholdSeconds <= 0 {
		return fmt.Errorf("playback.drift_threshold_seconds must be > 0, got %v", c.Playback.DriftThresholdSeconds)
	}
	switch c.Playback.StartPrimary {
	case "camera", "screen":
	default:
		return fmt.Errorf("playback.start_primary must be camera or screen, got %q", c.Playback.StartPrimary)
	}
	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("server.rate_limit_per_minute must be >= 0")
	}
	return nil
}
