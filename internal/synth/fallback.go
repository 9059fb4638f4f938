package synth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/lullaby/internal/voice"
)

// Fallback tries a primary strategy and switches to a secondary one when the
// primary fails or asks for fallback. Every call starts with the primary
// again; there is no sticky switch.
type Fallback struct {
	primary   Strategy
	secondary Strategy

	mu        sync.Mutex
	failures  int
	fallbacks int
}

// NewFallback wraps primary with secondary. A nil primary always uses the
// secondary.
func NewFallback(primary, secondary Strategy) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

// Name implements Strategy.
func (f *Fallback) Name() string {
	if f.primary == nil {
		return f.secondary.Name()
	}
	return f.primary.Name() + "+" + f.secondary.Name()
}

// Synthesize implements Strategy.
func (f *Fallback) Synthesize(ctx context.Context, text string, v voice.Voice) (*Result, error) {
	if f.primary != nil {
		res, err := f.primary.Synthesize(ctx, text, v)
		if err == nil {
			f.mu.Lock()
			if f.failures > 0 {
				log.Info("Primary synthesis recovered", "backend", f.primary.Name(), "failures", f.failures)
				f.failures = 0
			}
			f.mu.Unlock()
			return res, nil
		}
		if errors.Is(err, ErrEmptyText) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		f.mu.Lock()
		f.failures++
		f.fallbacks++
		f.mu.Unlock()

		if errors.Is(err, ErrFallback) {
			log.Debug("Primary synthesis requested fallback", "backend", f.primary.Name(), "next", f.secondary.Name())
		} else {
			log.Warn("Primary synthesis failed, falling back", "backend", f.primary.Name(), "next", f.secondary.Name(), "err", err)
		}
	}

	res, err := f.secondary.Synthesize(ctx, text, v)
	if err != nil {
		return nil, fmt.Errorf("%s synthesis failed: %w", f.secondary.Name(), err)
	}
	return res, nil
}

// Fallbacks returns how many calls were handed to the secondary strategy
// after a primary failure.
func (f *Fallback) Fallbacks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fallbacks
}
