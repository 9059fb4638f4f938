// Package config holds lullaby's settings.
//
// Settings come from Default, then the config file (through viper), then
// LULLABY_* environment variables. Command line flags are applied last by
// the CLI.
package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains all lullaby settings.
type Config struct {
	Voice    string  `yaml:"voice" mapstructure:"voice" env:"LULLABY_VOICE"`
	Speed    float64 `yaml:"speed" mapstructure:"speed" env:"LULLABY_SPEED"`
	LogLevel string  `yaml:"log_level" mapstructure:"log_level" env:"LULLABY_LOG_LEVEL"`

	// SectionMarker overrides the pattern matching section headers.
	SectionMarker string `yaml:"section_marker" mapstructure:"section_marker" env:"LULLABY_SECTION_MARKER"`

	Remote RemoteConfig `yaml:"remote" mapstructure:"remote"`
	Local  LocalConfig  `yaml:"local" mapstructure:"local"`
	Audio  AudioConfig  `yaml:"audio" mapstructure:"audio"`
	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
}

// RemoteConfig configures the remote synthesis strategy.
type RemoteConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled" env:"LULLABY_REMOTE_ENABLED"`
	Endpoint          string        `yaml:"endpoint" mapstructure:"endpoint" env:"LULLABY_REMOTE_ENDPOINT"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout" env:"LULLABY_REMOTE_TIMEOUT"`
	RequestsPerMinute int           `yaml:"requests_per_minute" mapstructure:"requests_per_minute" env:"LULLABY_REMOTE_REQUESTS_PER_MINUTE"`
}

// LocalConfig configures the on-device speech engine.
type LocalConfig struct {
	// Binary is the engine executable. Empty searches PATH for espeak-ng,
	// then espeak.
	Binary    string        `yaml:"binary" mapstructure:"binary" env:"LULLABY_LOCAL_BINARY"`
	Voice     string        `yaml:"voice" mapstructure:"voice" env:"LULLABY_LOCAL_VOICE"`
	VoiceWait time.Duration `yaml:"voice_wait" mapstructure:"voice_wait" env:"LULLABY_LOCAL_VOICE_WAIT"`
	Volume    int           `yaml:"volume" mapstructure:"volume" env:"LULLABY_LOCAL_VOLUME"`
}

// AudioConfig configures buffer playback.
type AudioConfig struct {
	SampleRate int           `yaml:"sample_rate" mapstructure:"sample_rate" env:"LULLABY_AUDIO_SAMPLE_RATE"`
	Channels   int           `yaml:"channels" mapstructure:"channels" env:"LULLABY_AUDIO_CHANNELS"`
	Volume     float64       `yaml:"volume" mapstructure:"volume" env:"LULLABY_AUDIO_VOLUME"`
	Buffer     time.Duration `yaml:"buffer" mapstructure:"buffer" env:"LULLABY_AUDIO_BUFFER"`
}

// CacheConfig configures the clip cache.
type CacheConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled" env:"LULLABY_CACHE_ENABLED"`
	Dir         string `yaml:"dir" mapstructure:"dir" env:"LULLABY_CACHE_DIR"`
	MemoryMB    int    `yaml:"memory_mb" mapstructure:"memory_mb" env:"LULLABY_CACHE_MEMORY_MB"`
	DiskMB      int    `yaml:"disk_mb" mapstructure:"disk_mb" env:"LULLABY_CACHE_DISK_MB"`
	Compression int    `yaml:"compression" mapstructure:"compression" env:"LULLABY_CACHE_COMPRESSION"`
}

// ServerConfig configures `lullaby serve`.
type ServerConfig struct {
	Addr    string        `yaml:"addr" mapstructure:"addr" env:"LULLABY_SERVER_ADDR"`
	Model   string        `yaml:"model" mapstructure:"model" env:"LULLABY_SERVER_MODEL"`
	BaseURL string        `yaml:"base_url" mapstructure:"base_url" env:"LULLABY_SERVER_BASE_URL"`
	APIKey  string        `yaml:"api_key" mapstructure:"api_key" env:"GEMINI_API_KEY"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" env:"LULLABY_SERVER_TIMEOUT"`
}

var (
	logLevels   = []string{"debug", "info", "warn", "error"}
	sampleRates = []int{8000, 16000, 22050, 24000, 44100, 48000}
)

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Voice:    "Kore",
		Speed:    0.9,
		LogLevel: "info",
		Remote: RemoteConfig{
			Enabled:           true,
			Endpoint:          "http://localhost:8787/api/generate-audio",
			Timeout:           30 * time.Second,
			RequestsPerMinute: 30,
		},
		Local: LocalConfig{
			VoiceWait: time.Second,
			Volume:    100,
		},
		Audio: AudioConfig{
			SampleRate: 24000,
			Channels:   1,
			Volume:     1.0,
		},
		Cache: CacheConfig{
			Enabled:     true,
			MemoryMB:    64,
			DiskMB:      512,
			Compression: 3,
		},
		Server: ServerConfig{
			Addr:    ":8787",
			Model:   "gemini-2.0-flash",
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			Timeout: time.Minute,
		},
	}
}

// FromEnv returns Default overridden by environment variables.
func FromEnv() (Config, error) {
	cfg := Default()
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing environment: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid. Log level is normalized to
// lower case.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Voice) == "" {
		return fmt.Errorf("voice cannot be empty")
	}
	if c.Speed < 0.25 || c.Speed > 4.0 {
		return fmt.Errorf("speed must be between 0.25 and 4.0, got %g", c.Speed)
	}

	c.LogLevel = strings.ToLower(c.LogLevel)
	if !slices.Contains(logLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level '%s': must be one of %v", c.LogLevel, logLevels)
	}

	if err := c.Remote.Validate(); err != nil {
		return fmt.Errorf("remote config: %w", err)
	}
	if err := c.Local.Validate(); err != nil {
		return fmt.Errorf("local config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	return nil
}

// Validate checks the remote settings. A disabled remote is always valid.
func (c *RemoteConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid endpoint '%s'", c.Endpoint)
	}
	if c.Timeout < time.Second {
		return fmt.Errorf("timeout must be at least 1 second, got %v", c.Timeout)
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute cannot be negative")
	}
	return nil
}

// Validate checks the local engine settings.
func (c *LocalConfig) Validate() error {
	if c.VoiceWait < 0 {
		return fmt.Errorf("voice_wait cannot be negative")
	}
	if c.Volume < 0 || c.Volume > 200 {
		return fmt.Errorf("volume must be between 0 and 200, got %d", c.Volume)
	}
	return nil
}

// Validate checks the audio settings.
func (c *AudioConfig) Validate() error {
	if !slices.Contains(sampleRates, c.SampleRate) {
		return fmt.Errorf("invalid sample rate %d: must be one of %v", c.SampleRate, sampleRates)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.Channels)
	}
	if c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %g", c.Volume)
	}
	if c.Buffer < 0 {
		return fmt.Errorf("buffer cannot be negative")
	}
	return nil
}

// Validate checks the cache settings.
func (c *CacheConfig) Validate() error {
	if c.MemoryMB < 0 || c.DiskMB < 0 {
		return fmt.Errorf("cache sizes cannot be negative")
	}
	if c.Compression < 0 || c.Compression > 4 {
		return fmt.Errorf("compression must be between 0 and 4, got %d", c.Compression)
	}
	return nil
}

// Validate checks the server settings.
func (c *ServerConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.Timeout < time.Second {
		return fmt.Errorf("timeout must be at least 1 second, got %v", c.Timeout)
	}
	return nil
}
