package speech

import (
	"context"
	"sync"
	"time"
)

// MockEngine records utterances without producing sound.
//
// With Manual set, utterances end only when End or Fail is called on them.
// Otherwise they end right away.
type MockEngine struct {
	Manual     bool
	SpeakErr   error
	VoiceList  []Voice
	VoiceDelay time.Duration
	Unpausable bool

	mu     sync.Mutex
	spoken []*MockUtterance
}

// Speak records the utterance.
func (m *MockEngine) Speak(_ context.Context, text string, opts Options, onEnd func(), onError func(error)) (Utterance, error) {
	if m.SpeakErr != nil {
		return nil, m.SpeakErr
	}
	u := &MockUtterance{Text: text, Options: opts, pausable: !m.Unpausable, onEnd: onEnd, onError: onError}

	m.mu.Lock()
	m.spoken = append(m.spoken, u)
	m.mu.Unlock()

	if !m.Manual {
		u.End()
	}
	return u, nil
}

// Voices returns VoiceList after VoiceDelay.
func (m *MockEngine) Voices(ctx context.Context) ([]Voice, error) {
	if m.VoiceDelay > 0 {
		select {
		case <-time.After(m.VoiceDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.VoiceList, nil
}

// Spoken returns the utterances started so far.
func (m *MockEngine) Spoken() []*MockUtterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockUtterance, len(m.spoken))
	copy(out, m.spoken)
	return out
}

// MockUtterance is a recorded utterance.
type MockUtterance struct {
	Text    string
	Options Options

	mu       sync.Mutex
	pausable bool
	paused   bool
	stopped  bool
	finished bool
	onEnd    func()
	onError  func(error)
}

// End finishes the utterance successfully.
func (u *MockUtterance) End() {
	if u.finish() && u.onEnd != nil {
		go u.onEnd()
	}
}

// Fail finishes the utterance with err.
func (u *MockUtterance) Fail(err error) {
	if u.finish() && u.onError != nil {
		go u.onError(err)
	}
}

func (u *MockUtterance) finish() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.stopped || u.finished {
		return false
	}
	u.finished = true
	return true
}

func (u *MockUtterance) Pausable() bool { return u.pausable }

func (u *MockUtterance) Pause() error {
	if !u.pausable {
		return ErrPauseUnsupported
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paused = true
	return nil
}

func (u *MockUtterance) Resume() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paused = false
	return nil
}

func (u *MockUtterance) Stop() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stopped = true
	return nil
}

// Paused reports whether the utterance is paused.
func (u *MockUtterance) Paused() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.paused
}

// Stopped reports whether Stop was called.
func (u *MockUtterance) Stopped() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stopped
}
