package synth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/lullaby/internal/speech"
	"github.com/dgnsrekt/lullaby/internal/voice"
)

// DefaultVoiceWait bounds how long the first local attempt waits for the
// engine's voice list.
const DefaultVoiceWait = time.Second

// LocalConfig configures a Local strategy.
type LocalConfig struct {
	// Voice forces an engine voice ID. Empty picks the preferred voice.
	Voice     string
	VoiceWait time.Duration
}

// Local hands section text to an on-device speech engine.
type Local struct {
	engine speech.Engine
	voices *speech.VoiceList
	forced string
	wait   time.Duration

	mu     sync.Mutex
	waited bool // a bounded wait ran out before the voices loaded
	logged bool
}

// NewLocal creates a Local strategy and starts loading the engine voices.
func NewLocal(engine speech.Engine, cfg LocalConfig) *Local {
	if cfg.VoiceWait <= 0 {
		cfg.VoiceWait = DefaultVoiceWait
	}
	return &Local{
		engine: engine,
		voices: speech.LoadVoices(context.Background(), engine),
		forced: cfg.Voice,
		wait:   cfg.VoiceWait,
	}
}

// Name implements Strategy.
func (l *Local) Name() string { return "local" }

// Synthesize implements Strategy. The returned utterance speaks at the voice's
// preferred rate.
func (l *Local) Synthesize(ctx context.Context, text string, v voice.Voice) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := l.engineVoice(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Result{
		Backend: BackendLocal,
		Pending: &Pending{
			engine: l.engine,
			text:   text,
			opts:   speech.Options{Voice: id, Rate: v.Speed()},
		},
	}, nil
}

// engineVoice picks the engine voice. Until the voice list loads the engine
// default is used; only one call waits for the list, and a wait cut short by
// ctx does not count.
func (l *Local) engineVoice(ctx context.Context) string {
	if l.forced != "" {
		return l.forced
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.voices.Ready() {
		if l.waited {
			return ""
		}
		l.voices.Wait(ctx, l.wait)
		if ctx.Err() != nil {
			return ""
		}
		if !l.voices.Ready() {
			l.waited = true
			return ""
		}
	}

	v, ok := speech.Prefer(l.voices.Voices())
	if !ok {
		return ""
	}
	if !l.logged {
		l.logged = true
		log.Debug("Using speech voice", "voice", v.Name, "id", v.Key())
	}
	return v.Key()
}
