package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Thumbnails ThumbnailsConfig `yaml:"thumbnails"`
	Editor     EditorConfig     `yaml:"editor"`
	Playback   PlaybackConfig   `yaml:"playback"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// AllowedOrigins gates CORS and WebSocket upgrades. Empty allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ThumbnailsConfig struct {
	OutputDir     string        `yaml:"output_dir"`
	CacheCapacity int           `yaml:"cache_capacity"`
	CacheMaxSize  int64         `yaml:"cache_max_size"` // bytes
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	Concurrency   int           `yaml:"concurrency"`
	// StillURLTemplate resolves a segment id to its still image; "{id}" is
	// replaced with the segment id. Empty disables segment stills.
	StillURLTemplate string `yaml:"still_url_template"`
}

type EditorConfig struct {
	PxPerSecond         float64 `yaml:"px_per_second"`
	SnapPx              float64 `yaml:"snap_px"`
	DragOutPx           float64 `yaml:"drag_out_px"`
	TrimHandlePx        float64 `yaml:"trim_handle_px"`
	OverscanSeconds     float64 `yaml:"overscan_seconds"`
	MinVisible          float64 `yaml:"min_visible"`
	DefaultClipDuration float64 `yaml:"default_clip_duration"`
	OverlapPolicy       string  `yaml:"overlap_policy"` // block | push
}

type PlaybackConfig struct {
	RetryDelays     []time.Duration `yaml:"retry_delays"`
	PlaceholderTick time.Duration   `yaml:"placeholder_tick"`
	DriftThreshold  float64         `yaml:"drift_threshold"` // seconds
	AdvanceGuard    time.Duration   `yaml:"advance_guard"`
	BufferingRetry  time.Duration   `yaml:"buffering_retry"`
	// SaveInterval is how often a playing session persists its playhead.
	SaveInterval time.Duration `yaml:"save_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         6540,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0,
		},
		Database: DatabaseConfig{
			Path: "data/storyreel.db",
		},
		Thumbnails: ThumbnailsConfig{
			OutputDir:     "data/stills",
			CacheCapacity: 1000,
			CacheMaxSize:  256 * 1024 * 1024, // 256 MB
			FetchTimeout:  10 * time.Second,
			Concurrency:   4,
		},
		Editor: EditorConfig{
			PxPerSecond:         50,
			SnapPx:              8,
			DragOutPx:           22,
			TrimHandlePx:        8,
			OverscanSeconds:     2,
			MinVisible:          0.1,
			DefaultClipDuration: 5,
			OverlapPolicy:       "block",
		},
		Playback: PlaybackConfig{
			RetryDelays: []time.Duration{
				0,
				200 * time.Millisecond,
				400 * time.Millisecond,
				700 * time.Millisecond,
				1100 * time.Millisecond,
			},
			PlaceholderTick: 100 * time.Millisecond,
			DriftThreshold:  0.25,
			AdvanceGuard:    300 * time.Millisecond,
			BufferingRetry:  1500 * time.Millisecond,
			SaveInterval:    5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Editor.PxPerSecond <= 0 {
		return fmt.Errorf("editor.px_per_second must be positive")
	}
	if c.Editor.MinVisible <= 0 {
		return fmt.Errorf("editor.min_visible must be positive")
	}
	switch c.Editor.OverlapPolicy {
	case "", "block", "push":
	default:
		return fmt.Errorf("editor.overlap_policy must be block or push, got %q", c.Editor.OverlapPolicy)
	}
	if len(c.Playback.RetryDelays) == 0 {
		return fmt.Errorf("playback.retry_delays must not be empty")
	}
	if c.Thumbnails.Concurrency < 1 {
		return fmt.Errorf("thumbnails.concurrency must be at least 1")
	}
	return nil
}
