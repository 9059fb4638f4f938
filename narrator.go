package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/lullaby/internal/audio"
	"github.com/dgnsrekt/lullaby/internal/cache"
	"github.com/dgnsrekt/lullaby/internal/config"
	"github.com/dgnsrekt/lullaby/internal/pcm"
	"github.com/dgnsrekt/lullaby/internal/playback"
	"github.com/dgnsrekt/lullaby/internal/segment"
	"github.com/dgnsrekt/lullaby/internal/speech"
	"github.com/dgnsrekt/lullaby/internal/synth"
	"github.com/dgnsrekt/lullaby/internal/voice"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
)

// narrator is the assembled playback pipeline.
type narrator struct {
	ctrl     *playback.Controller
	strategy *synth.Fallback
	cache    *cache.Manager
	sink     *audio.OtoSink
}

// unavailableSink stands in for an audio device that could not be opened.
type unavailableSink struct{ err error }

func (s unavailableSink) Play(*pcm.Buffer, func(error)) (audio.Stream, error) {
	return nil, s.err
}

func newNarrator(c config.Config) (*narrator, error) {
	n := &narrator{}

	var opts []playback.Option
	if c.SectionMarker != "" {
		re, err := regexp.Compile(c.SectionMarker)
		if err != nil {
			return nil, fmt.Errorf("invalid section marker: %w", err)
		}
		opts = append(opts, playback.WithSegmenter(segment.Options{Marker: re}))
	}

	var sink audio.Sink
	otoSink, err := audio.NewOtoSink(audio.Config{
		SampleRate: c.Audio.SampleRate,
		Channels:   c.Audio.Channels,
		Buffer:     c.Audio.Buffer,
		Volume:     c.Audio.Volume,
	})
	if err != nil {
		// without a device only the local engine can speak
		log.Warn("Audio output unavailable, using local speech only", "err", err)
		sink = unavailableSink{err: err}
		c.Remote.Enabled = false
	} else {
		n.sink = otoSink
		sink = otoSink
	}

	var primary synth.Strategy
	if c.Remote.Enabled {
		rc := synth.RemoteConfig{
			Endpoint:          c.Remote.Endpoint,
			Timeout:           c.Remote.Timeout,
			RequestsPerMinute: c.Remote.RequestsPerMinute,
		}
		if c.Cache.Enabled {
			n.cache, err = openCache(c.Cache)
			if err != nil {
				log.Warn("Clip cache unavailable", "err", err)
			} else {
				rc.Cache = n.cache
			}
		}
		remote, err := synth.NewRemote(rc)
		if err != nil {
			return nil, fmt.Errorf("unable to set up remote synthesis: %w", err)
		}
		primary = remote
	}

	n.strategy = synth.NewFallback(primary, synth.NewLocal(localEngine(c.Local), synth.LocalConfig{
		Voice:     c.Local.Voice,
		VoiceWait: c.Local.VoiceWait,
	}))
	n.ctrl = playback.New(n.strategy, sink, opts...)
	log.Debug("Narrator ready", "strategy", n.strategy.Name())
	return n, nil
}

func localEngine(c config.LocalConfig) speech.Engine {
	es, err := speech.FindESpeak(c.Binary)
	if err != nil {
		log.Warn("Local speech engine unavailable", "binary", c.Binary, "err", err)
		return speech.Unavailable{Err: err}
	}
	es.SetVolume(c.Volume)
	return es
}

func defaultCacheDir() (string, error) {
	dir, err := gap.NewScope(gap.User, "lullaby").CacheDir()
	if err != nil {
		return "", err //nolint:wrapcheck
	}
	return filepath.Join(dir, "clips"), nil
}

func cacheDir(c config.CacheConfig) (string, error) {
	if c.Dir == "" {
		return defaultCacheDir()
	}
	return homedir.Expand(c.Dir) //nolint:wrapcheck
}

func openCache(c config.CacheConfig) (*cache.Manager, error) {
	dir, err := cacheDir(c)
	if err != nil {
		return nil, err
	}
	return cache.NewManager(cache.Config{ //nolint:wrapcheck
		MemoryCapacity:   int64(c.MemoryMB) << 20,
		DiskCapacity:     int64(c.DiskMB) << 20,
		DiskPath:         dir,
		CompressionLevel: c.Compression,
	})
}

// resolveVoice finds the configured narrator and applies the configured
// speed to it.
func resolveVoice(c config.Config) (voice.Voice, error) {
	v, err := voice.DefaultCatalog().Find(c.Voice)
	if err != nil {
		return v, fmt.Errorf("%w: %s (see lullaby voices)", err, c.Voice)
	}
	v.Rate = c.Speed
	return v, nil
}

func (n *narrator) Close() error {
	var errs []error
	errs = append(errs, n.ctrl.Close())
	if fb := n.strategy.Fallbacks(); fb > 0 {
		log.Info("Session used local speech", "fallbacks", fb)
	}
	if n.cache != nil {
		errs = append(errs, n.cache.Close())
	}
	if n.sink != nil {
		errs = append(errs, n.sink.Close())
	}
	return errors.Join(errs...)
}
