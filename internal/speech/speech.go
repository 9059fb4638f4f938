// Package speech drives an on-device speech engine.
//
// Unlike remote synthesis, a local engine produces no buffer: it speaks the
// text directly and reports completion through callbacks.
package speech

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// ErrEngineNotFound is returned when no engine binary is installed.
	ErrEngineNotFound = errors.New("speech engine not found")

	// ErrPauseUnsupported is returned by Pause on platforms without job
	// control signals.
	ErrPauseUnsupported = errors.New("pause not supported by speech engine")
)

// Voice is an engine voice.
type Voice struct {
	Name     string
	Language string
	Gender   string // "M", "F" or empty
	ID       string // value passed back to the engine
}

// English reports whether the voice speaks any variant of English.
func (v Voice) English() bool {
	lang := strings.ToLower(v.Language)
	return lang == "en" || strings.HasPrefix(lang, "en-") || strings.HasPrefix(lang, "en_")
}

// Female reports whether the voice is described as female.
func (v Voice) Female() bool {
	return strings.EqualFold(v.Gender, "F") || strings.Contains(strings.ToLower(v.Name), "female")
}

// Key is the value to pass as Options.Voice. Engines that list voices by
// language only are addressed by the language.
func (v Voice) Key() string {
	if v.ID != "" {
		return v.ID
	}
	return v.Language
}

// Options configure one utterance.
type Options struct {
	Voice string  // engine voice ID, empty for the engine default
	Rate  float64 // multiplier, 1 is the engine's normal rate
}

// Utterance is text being spoken.
type Utterance interface {
	Pause() error
	Resume() error
	Stop() error
	Pausable() bool
}

// Engine speaks text aloud.
//
// Speak returns once speaking has started. Exactly one of onEnd or onError is
// invoked from another goroutine when the utterance finishes, unless Stop was
// called first.
type Engine interface {
	Speak(ctx context.Context, text string, opts Options, onEnd func(), onError func(error)) (Utterance, error)
	Voices(ctx context.Context) ([]Voice, error)
}

// Prefer picks the preferred narrator voice: an English voice described as
// female, then any English voice.
func Prefer(voices []Voice) (Voice, bool) {
	var english *Voice
	for i := range voices {
		v := voices[i]
		if !v.English() {
			continue
		}
		if v.Female() {
			return v, true
		}
		if english == nil {
			english = &voices[i]
		}
	}
	if english != nil {
		return *english, true
	}
	return Voice{}, false
}

// VoiceList loads the engine's voices in the background.
type VoiceList struct {
	ready  chan struct{}
	voices []Voice
	err    error
}

// LoadVoices starts listing the voices of e.
func LoadVoices(ctx context.Context, e Engine) *VoiceList {
	l := &VoiceList{ready: make(chan struct{})}
	go func() {
		defer close(l.ready)
		l.voices, l.err = e.Voices(ctx)
		if l.err != nil {
			log.Debug("Unable to list speech voices", "err", l.err)
			return
		}
		log.Debug("Speech voices loaded", "count", len(l.voices))
	}()
	return l
}

// Wait blocks until the voices are loaded, timeout elapses or ctx is done.
// It returns whatever is loaded by then, possibly nothing.
func (l *VoiceList) Wait(ctx context.Context, timeout time.Duration) []Voice {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-l.ready:
		return l.voices
	case <-t.C:
		log.Debug("Speech voices not ready, using engine default", "waited", timeout)
	case <-ctx.Done():
	}
	return nil
}

// Voices returns the loaded voices, or nil while they are still loading.
func (l *VoiceList) Voices() []Voice {
	if !l.Ready() {
		return nil
	}
	return l.voices
}

// Ready reports whether loading has finished.
func (l *VoiceList) Ready() bool {
	select {
	case <-l.ready:
		return true
	default:
		return false
	}
}

// Unavailable stands in for a missing engine. Every utterance fails with Err.
type Unavailable struct {
	Err error
}

// Speak implements Engine.
func (u Unavailable) Speak(context.Context, string, Options, func(), func(error)) (Utterance, error) {
	if u.Err == nil {
		return nil, ErrEngineNotFound
	}
	return nil, u.Err
}

// Voices implements Engine.
func (Unavailable) Voices(context.Context) ([]Voice, error) {
	return nil, nil
}
