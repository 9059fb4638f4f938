// Package audio plays decoded narration buffers.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/lullaby/internal/pcm"
	"github.com/ebitengine/oto/v3"
)

// ErrSinkClosed is returned by Play after Close.
var ErrSinkClosed = errors.New("audio sink is closed")

// Sink plays buffers on an output device.
//
// done is invoked exactly once, from another goroutine, when playback ends on
// its own or fails. It is not invoked after Stop.
type Sink interface {
	Play(buf *pcm.Buffer, done func(error)) (Stream, error)
}

// Stream controls one buffer being played.
type Stream interface {
	Pause() error
	Resume() error
	Stop() error
	// Pausable reports whether Pause is supported.
	Pausable() bool
}

// Config describes the output device format.
type Config struct {
	SampleRate int
	Channels   int
	Buffer     time.Duration
	Volume     float64
}

// DefaultConfig matches remote synthesis output.
func DefaultConfig() Config {
	return Config{
		SampleRate: pcm.DefaultSampleRate,
		Channels:   1,
		Buffer:     defaultBuffer(),
		Volume:     1,
	}
}

func defaultBuffer() time.Duration {
	// macOS benefits from larger buffers
	if runtime.GOOS == "darwin" {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", c.Channels)
	}
	if c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %.2f", c.Volume)
	}
	return nil
}

// oto allows a single context per process.
var (
	otoOnce    sync.Once
	otoContext *oto.Context
	otoFormat  Config
	otoErr     error
)

func sharedContext(cfg Config) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: cfg.Channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   cfg.Buffer,
		})
		if err != nil {
			otoErr = fmt.Errorf("unable to create audio context: %w", err)
			return
		}
		<-ready
		otoContext, otoFormat = ctx, cfg
		log.Debug("Audio context ready", "rate", cfg.SampleRate, "channels", cfg.Channels)
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoFormat.SampleRate != cfg.SampleRate || otoFormat.Channels != cfg.Channels {
		log.Warn("Audio context already open with a different format",
			"rate", otoFormat.SampleRate, "channels", otoFormat.Channels)
	}
	return otoContext, nil
}

// OtoSink plays buffers through the system audio device. Buffers are
// resampled and remixed to the device format.
type OtoSink struct {
	ctx    *oto.Context
	format Config

	mu     sync.Mutex
	active *otoStream
	closed bool
}

// NewOtoSink opens the audio device.
func NewOtoSink(cfg Config) (*OtoSink, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid audio config: %w", err)
	}
	ctx, err := sharedContext(cfg)
	if err != nil {
		return nil, err
	}
	format := otoFormat
	format.Volume = cfg.Volume
	return &OtoSink{ctx: ctx, format: format}, nil
}

// Play stops any active stream and starts buf.
func (s *OtoSink) Play(buf *pcm.Buffer, done func(error)) (Stream, error) {
	data, err := s.prepare(buf)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSinkClosed
	}
	if s.active != nil {
		_ = s.active.Stop()
	}

	// data stays referenced by the stream until playback ends
	p := s.ctx.NewPlayer(bytes.NewReader(data))
	p.SetVolume(s.format.Volume)

	st := &otoStream{
		player: p,
		data:   data,
		stop:   make(chan struct{}),
	}
	s.active = st
	p.Play()
	go st.monitor(done)

	log.Debug("Playing buffer", "duration", buf.Duration(), "bytes", len(data))
	return st, nil
}

func (s *OtoSink) prepare(buf *pcm.Buffer) ([]byte, error) {
	if buf == nil || buf.Frames() == 0 {
		return nil, errors.New("audio buffer is empty")
	}
	out, err := buf.Resample(s.format.SampleRate)
	if err != nil {
		return nil, err
	}
	out, err = out.Remix(s.format.Channels)
	if err != nil {
		return nil, err
	}
	return out.Float32LE(), nil
}

// Close stops playback. The device itself stays open for the process.
func (s *OtoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.active != nil {
		return s.active.Stop()
	}
	return nil
}

type otoStream struct {
	player *oto.Player
	data   []byte

	mu       sync.Mutex
	paused   bool
	stopped  bool
	stop     chan struct{}
	stopOnce sync.Once
}

const pollInterval = 20 * time.Millisecond

func (st *otoStream) monitor(done func(error)) {
	t := time.NewTicker(pollInterval)
	defer t.Stop()

	for {
		select {
		case <-st.stop:
			return
		case <-t.C:
		}

		st.mu.Lock()
		if st.stopped {
			st.mu.Unlock()
			return
		}
		if st.paused || st.player.IsPlaying() {
			st.mu.Unlock()
			continue
		}
		err := st.player.Err()
		st.release()
		st.mu.Unlock()

		if done != nil {
			done(err)
		}
		return
	}
}

func (st *otoStream) Pausable() bool { return true }

func (st *otoStream) Pause() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.stopped || st.paused {
		return nil
	}
	st.paused = true
	st.player.Pause()
	return nil
}

func (st *otoStream) Resume() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.stopped || !st.paused {
		return nil
	}
	st.paused = false
	st.player.Play()
	return nil
}

func (st *otoStream) Stop() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.stopped {
		return nil
	}
	st.player.Pause()
	st.release()
	return nil
}

// must be called with mu held
func (st *otoStream) release() {
	st.stopped = true
	st.stopOnce.Do(func() { close(st.stop) })
	if err := st.player.Close(); err != nil {
		log.Debug("Closing player", "err", err)
	}
	st.data = nil
}
