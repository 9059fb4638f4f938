package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// Load builds the configuration from v over Default, applies environment
// overrides and validates the result.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SetDefaults registers the defaults with v so that they show up in
// v.AllSettings and the generated config file.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("voice", d.Voice)
	v.SetDefault("speed", d.Speed)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("section_marker", d.SectionMarker)

	v.SetDefault("remote.enabled", d.Remote.Enabled)
	v.SetDefault("remote.endpoint", d.Remote.Endpoint)
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("remote.requests_per_minute", d.Remote.RequestsPerMinute)

	v.SetDefault("local.binary", d.Local.Binary)
	v.SetDefault("local.voice", d.Local.Voice)
	v.SetDefault("local.voice_wait", d.Local.VoiceWait)
	v.SetDefault("local.volume", d.Local.Volume)

	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.channels", d.Audio.Channels)
	v.SetDefault("audio.volume", d.Audio.Volume)
	v.SetDefault("audio.buffer", d.Audio.Buffer)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.memory_mb", d.Cache.MemoryMB)
	v.SetDefault("cache.disk_mb", d.Cache.DiskMB)
	v.SetDefault("cache.compression", d.Cache.Compression)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.model", d.Server.Model)
	v.SetDefault("server.base_url", d.Server.BaseURL)
	v.SetDefault("server.timeout", d.Server.Timeout)
}
