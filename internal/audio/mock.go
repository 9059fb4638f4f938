package audio

import (
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/lullaby/internal/pcm"
)

// MockSink simulates playback without touching an audio device.
//
// With Manual set, streams only finish when Finish is called. Otherwise they
// finish after the buffer duration scaled by Speedup.
type MockSink struct {
	Manual     bool
	Speedup    float64 // 0 means finish immediately
	Unpausable bool
	PlayErr    error

	mu      sync.Mutex
	streams []*MockStream
}

// NewMockSink returns a sink whose streams finish immediately.
func NewMockSink() *MockSink {
	return &MockSink{}
}

// Play records buf and starts a simulated stream.
func (m *MockSink) Play(buf *pcm.Buffer, done func(error)) (Stream, error) {
	if m.PlayErr != nil {
		return nil, m.PlayErr
	}
	if buf == nil {
		return nil, errors.New("audio buffer is empty")
	}

	st := &MockStream{Buffer: buf, pausable: !m.Unpausable, done: done}

	m.mu.Lock()
	if n := len(m.streams); n > 0 {
		_ = m.streams[n-1].Stop()
	}
	m.streams = append(m.streams, st)
	m.mu.Unlock()

	log.Debug("Mock play", "frames", buf.Frames())

	if !m.Manual {
		var d time.Duration
		if m.Speedup > 0 {
			d = time.Duration(float64(buf.Duration()) / m.Speedup)
		}
		st.mu.Lock()
		st.timer = time.AfterFunc(d, func() { st.Finish(nil) })
		st.mu.Unlock()
	}
	return st, nil
}

// Plays returns how many buffers were started.
func (m *MockSink) Plays() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// Last returns the most recent stream, or nil.
func (m *MockSink) Last() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

// MockStream is a simulated stream.
type MockStream struct {
	Buffer *pcm.Buffer

	mu       sync.Mutex
	pausable bool
	paused   bool
	stopped  bool
	finished bool
	timer    *time.Timer
	done     func(error)
}

// Finish ends the stream as if the buffer ran out. It is a no-op after Stop.
func (s *MockStream) Finish(err error) {
	s.mu.Lock()
	if s.stopped || s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	done := s.done
	s.mu.Unlock()

	if done != nil {
		go done(err)
	}
}

func (s *MockStream) Pausable() bool { return s.pausable }

func (s *MockStream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pausable {
		return errors.New("stream cannot pause")
	}
	s.paused = true
	return nil
}

func (s *MockStream) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	return nil
}

func (s *MockStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
	return nil
}

// Paused reports whether the stream is paused.
func (s *MockStream) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Stopped reports whether Stop was called.
func (s *MockStream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
