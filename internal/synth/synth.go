// Package synth turns section text into something playable.
//
// Two strategies share one interface: Remote returns an encoded PCM payload
// from a synthesis service, Local returns a pending utterance for the on-device
// speech engine. Fallback tries Remote first and quietly switches to Local.
package synth

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgnsrekt/lullaby/internal/speech"
	"github.com/dgnsrekt/lullaby/internal/voice"
)

var (
	// ErrFallback is returned by a strategy that explicitly asks the caller to
	// use another backend.
	ErrFallback = errors.New("synthesis backend requested fallback")

	// ErrEmptyText is returned when there is nothing to synthesize.
	ErrEmptyText = errors.New("text cannot be empty")
)

// Backend identifies the strategy that produced a result.
type Backend int

const (
	BackendRemote Backend = iota
	BackendLocal
)

func (b Backend) String() string {
	switch b {
	case BackendRemote:
		return "remote"
	case BackendLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Result is the output of a strategy. Remote results carry Audio; local
// results carry a Pending utterance that has not started speaking yet.
type Result struct {
	Backend Backend

	Audio      []byte // signed 16-bit little-endian PCM
	SampleRate int
	Channels   int

	Pending *Pending
}

// Strategy synthesizes one section.
type Strategy interface {
	Name() string
	Synthesize(ctx context.Context, text string, v voice.Voice) (*Result, error)
}

// Pending is a local utterance waiting to be spoken.
type Pending struct {
	engine speech.Engine
	text   string
	opts   speech.Options
}

// Options returns the engine options the utterance will be spoken with.
func (p *Pending) Options() speech.Options {
	return p.opts
}

// Speak starts the utterance. ctx bounds the engine process.
func (p *Pending) Speak(ctx context.Context, onEnd func(), onError func(error)) (speech.Utterance, error) {
	return p.engine.Speak(ctx, p.text, p.opts, onEnd, onError)
}

// BackendError describes a failed request to a synthesis backend.
type BackendError struct {
	Backend    Backend
	Op         string
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s synthesis %s: HTTP %d: %v", e.Backend, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s synthesis %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
