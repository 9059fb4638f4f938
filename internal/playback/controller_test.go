package playback

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/lullaby/internal/audio"
	"github.com/dgnsrekt/lullaby/internal/speech"
	"github.com/dgnsrekt/lullaby/internal/synth"
	"github.com/dgnsrekt/lullaby/internal/voice"
)

var kore = voice.Voice{ID: "Kore", Rate: 0.9}

// scripted is a remote-like strategy returning a tiny PCM clip.
type scripted struct {
	err        error
	block      chan struct{}
	sampleRate int

	mu    sync.Mutex
	texts []string
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Synthesize(_ context.Context, text string, _ voice.Voice) (*synth.Result, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()

	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return nil, s.err
	}
	rate := s.sampleRate
	if rate == 0 {
		rate = 24000
	}
	return &synth.Result{Backend: synth.BackendRemote, Audio: []byte{0, 0, 0, 0x40}, SampleRate: rate, Channels: 1}, nil
}

func (s *scripted) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type counting struct {
	synth.Strategy
	calls atomic.Int32
}

func (c *counting) Synthesize(ctx context.Context, text string, v voice.Voice) (*synth.Result, error) {
	c.calls.Add(1)
	return c.Strategy.Synthesize(ctx, text, v)
}

type recorder struct {
	mu       sync.Mutex
	statuses []Status
}

func record(c *Controller) *recorder {
	r := &recorder{}
	c.Subscribe(func(s Status) {
		r.mu.Lock()
		r.statuses = append(r.statuses, s)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) all() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func (r *recorder) waitFor(t *testing.T, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if slices.Contains(r.all(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("never observed %v, got %v", want, r.all())
}

func newController(t *testing.T, s synth.Strategy, sink audio.Sink) *Controller {
	t.Helper()
	c := New(s, sink)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPlayThroughStory(t *testing.T) {
	strategy := &scripted{}
	c := newController(t, strategy, audio.NewMockSink())
	rec := record(c)

	if err := c.Play("", kore, []string{"one", "two", "three"}); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, Status{Kind: Playing, Section: 2})
	rec.waitFor(t, Status{Kind: Idle})

	want := []Status{
		{Kind: Loading, Section: 0}, {Kind: Playing, Section: 0},
		{Kind: Loading, Section: 1}, {Kind: Playing, Section: 1},
		{Kind: Loading, Section: 2}, {Kind: Playing, Section: 2},
		{Kind: Idle},
	}
	if got := rec.all(); !slices.Equal(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
	if got := strategy.Texts(); !slices.Equal(got, []string{"one", "two", "three"}) {
		t.Errorf("synthesized %v", got)
	}
}

func TestPlaySplitsText(t *testing.T) {
	strategy := &scripted{}
	c := newController(t, strategy, audio.NewMockSink())
	rec := record(c)

	text := "[SECTION 1: A] a [SECTION 2: B] b [SECTION 3: C] c [SECTION 4: D] d [SECTION 5: E] e"
	if err := c.Play(text, kore, nil); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, Status{Kind: Playing, Section: 4})
	rec.waitFor(t, Status{Kind: Idle})

	if got := strategy.Texts(); !slices.Equal(got, []string{"a", "b", "c", "d", "e"}) {
		t.Errorf("synthesized %v", got)
	}
	if len(c.Sections()) != 5 {
		t.Errorf("Sections() = %v", c.Sections())
	}
}

func TestStopDiscardsLateResolution(t *testing.T) {
	strategy := &scripted{block: make(chan struct{})}
	sink := audio.NewMockSink()
	c := newController(t, strategy, sink)

	if err := c.Play("", kore, []string{"one", "two"}); err != nil {
		t.Fatal(err)
	}
	// Wait until synthesis is in flight.
	for len(strategy.Texts()) == 0 {
		time.Sleep(time.Millisecond)
	}
	c.Stop()
	close(strategy.block)

	time.Sleep(50 * time.Millisecond)
	if got := c.Status(); got.Kind != Idle {
		t.Errorf("Status() = %v, want idle", got)
	}
	if sink.Plays() != 0 {
		t.Errorf("sink played %d buffers after stop", sink.Plays())
	}
	if got := strategy.Texts(); len(got) != 1 {
		t.Errorf("synthesized %v, want only the first section", got)
	}
}

func TestSkipToSection(t *testing.T) {
	strategy := &scripted{}
	sink := &audio.MockSink{Manual: true}
	c := newController(t, strategy, sink)
	rec := record(c)

	sections := []string{"s0", "s1", "s2", "s3", "s4"}
	if err := c.Play("", kore, sections); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, Status{Kind: Playing, Section: 0})
	first := sink.Last()

	if err := c.SkipToSection(3); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, Status{Kind: Playing, Section: 3})

	if !first.Stopped() {
		t.Error("section 0 output was not stopped")
	}
	if got := strategy.Texts(); !slices.Equal(got, []string{"s0", "s3"}) {
		t.Errorf("synthesized %v, want [s0 s3]", got)
	}
	for _, s := range rec.all() {
		if s.Kind != Idle && (s.Section == 1 || s.Section == 2) {
			t.Errorf("passed through %v", s)
		}
	}

	// The stopped stream finishing late must not advance the story.
	first.Finish(nil)
	time.Sleep(20 * time.Millisecond)
	if got := c.Status(); got != (Status{Kind: Playing, Section: 3}) {
		t.Errorf("Status() = %v, want playing(3)", got)
	}
}

func TestPlayFrom(t *testing.T) {
	strategy := &scripted{}
	c := newController(t, strategy, audio.NewMockSink())
	rec := record(c)

	if err := c.PlayFrom("", kore, []string{"a", "b", "c"}, 1); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, Status{Kind: Idle})
	if got := strategy.Texts(); !slices.Equal(got, []string{"b", "c"}) {
		t.Errorf("synthesized %v", got)
	}
	if first := rec.all()[0]; first != (Status{Kind: Loading, Section: 1}) {
		t.Errorf("first status = %v, want loading(1)", first)
	}
}

func TestSkipAfterStopReusesStory(t *testing.T) {
	strategy := &scripted{}
	c := newController(t, strategy, &audio.MockSink{Manual: true})
	rec := record(c)

	if err := c.Play("", kore, []string{"a", "b", "c"}); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, Status{Kind: Playing, Section: 0})
	c.Stop()

	if err := c.SkipToSection(2); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, Status{Kind: Playing, Section: 2})
	if got := strategy.Texts(); !slices.Equal(got, []string{"a", "c"}) {
		t.Errorf("synthesized %v", got)
	}
}

func TestSkipOutOfRangeIgnored(t *testing.T) {
	c := newController(t, &scripted{}, &audio.MockSink{Manual: true})
	rec := record(c)

	if err := c.SkipToSection(0); err != nil {
		t.Fatal(err)
	}
	if err := c.Play("", kore, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, Status{Kind: Playing, Section: 0})

	for _, i := range []int{-1, 2, 10} {
		if err := c.SkipToSection(i); err != nil {
			t.Errorf("SkipToSection(%d) error = %v", i, err)
		}
	}
	if got := c.Status(); got != (Status{Kind: Playing, Section: 0}) {
		t.Errorf("Status() = %v, want playing(0)", got)
	}
}

func TestRemoteFallbackPlaysLocally(t *testing.T) {
	remote := &scripted{err: synth.ErrFallback}
	engine := &speech.MockEngine{VoiceList: []speech.Voice{{Name: "English", Language: "en", Gender: "F"}}}
	local := &counting{Strategy: synth.NewLocal(engine, synth.LocalConfig{})}

	sink := audio.NewMockSink()
	c := newController(t, synth.NewFallback(remote, local), sink)
	rec := record(c)

	if err := c.Play("", kore, []string{"first", "second"}); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, Status{Kind: Playing, Section: 1})
	rec.waitFor(t, Status{Kind: Idle})

	if n := local.calls.Load(); n != 2 {
		t.Errorf("local attempts = %d, want 2", n)
	}
	if n := len(remote.Texts()); n != 2 {
		t.Errorf("remote attempts = %d, want 2", n)
	}
	spoken := engine.Spoken()
	if len(spoken) != 2 || spoken[0].Text != "first" || spoken[1].Text != "second" {
		t.Errorf("spoken = %v", spoken)
	}
	if spoken[0].Options.Rate != 0.9 {
		t.Errorf("rate = %v, want 0.9", spoken[0].Options.Rate)
	}
	if sink.Plays() != 0 {
		t.Errorf("sink played %d buffers for local speech", sink.Plays())
	}
}

func TestLocalFailureHalts(t *testing.T) {
	engine := &speech.MockEngine{Manual: true}
	strategy := synth.NewFallback(&scripted{err: synth.ErrFallback}, synth.NewLocal(engine, synth.LocalConfig{Voice: "en"}))
	c := newController(t, strategy, audio.NewMockSink())
	rec := record(c)

	if err := c.Play("", kore, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, Status{Kind: Playing, Section: 0})
	engine.Spoken()[0].Fail(errors.New("audio unavailable"))
	rec.waitFor(t, Status{Kind: Error, Message: "audio unavailable"})

	time.Sleep(20 * time.Millisecond)
	if n := len(engine.Spoken()); n != 1 {
		t.Errorf("spoke %d utterances, want 1", n)
	}
}

func TestSynthesisErrors(t *testing.T) {
	tests := []struct {
		name     string
		strategy *scripted
	}{
		{name: "strategy failure", strategy: &scripted{err: errors.New("local engine failed")}},
		{name: "decode failure", strategy: &scripted{sampleRate: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newController(t, tt.strategy, audio.NewMockSink())
			if err := c.Play("", kore, []string{"a", "b"}); err != nil {
				t.Fatal(err)
			}

			deadline := time.Now().Add(2 * time.Second)
			for c.Status().Kind != Error && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			if got := c.Status(); got.Kind != Error || got.Message == "" {
				t.Fatalf("Status() = %v, want error", got)
			}
			if n := len(tt.strategy.Texts()); n != 1 {
				t.Errorf("synthesis attempts = %d, want 1", n)
			}

			// Play restarts from error.
			tt.strategy.err = nil
			tt.strategy.sampleRate = 0
			rec := record(c)
			if err := c.Play("", kore, []string{"again"}); err != nil {
				t.Fatal(err)
			}
			rec.waitFor(t, Status{Kind: Idle})
		})
	}
}

func TestPauseResume(t *testing.T) {
	sink := &audio.MockSink{Manual: true}
	c := newController(t, &scripted{}, sink)
	rec := record(c)

	if err := c.Play("", kore, []string{"a"}); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, Status{Kind: Playing, Section: 0})

	if err := c.Pause(); err != nil {
		t.Fatal(err)
	}
	if got := c.Status(); got != (Status{Kind: Paused, Section: 0}) {
		t.Errorf("Status() = %v, want paused(0)", got)
	}
	if !sink.Last().Paused() {
		t.Error("stream not paused")
	}

	if err := c.Resume(); err != nil {
		t.Fatal(err)
	}
	if got := c.Status(); got != (Status{Kind: Playing, Section: 0}) {
		t.Errorf("Status() = %v, want playing(0)", got)
	}

	sink.Last().Finish(nil)
	rec.waitFor(t, Status{Kind: Idle})
}

func TestPauseUnsupported(t *testing.T) {
	sink := &audio.MockSink{Manual: true, Unpausable: true}
	c := newController(t, &scripted{}, sink)
	rec := record(c)

	if err := c.Play("", kore, []string{"a"}); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, Status{Kind: Playing, Section: 0})

	if err := c.Pause(); !errors.Is(err, ErrPauseUnsupported) {
		t.Errorf("Pause() error = %v, want ErrPauseUnsupported", err)
	}
	if got := c.Status(); got != (Status{Kind: Playing, Section: 0}) {
		t.Errorf("Status() = %v, want playing(0)", got)
	}
}

func TestInvalidCallsAreNoops(t *testing.T) {
	strategy := &scripted{}
	c := newController(t, strategy, &audio.MockSink{Manual: true})
	rec := record(c)

	if err := c.Pause(); err != nil {
		t.Errorf("Pause() while idle = %v", err)
	}
	if err := c.Resume(); err != nil {
		t.Errorf("Resume() while idle = %v", err)
	}
	c.Stop()

	if err := c.Play("", kore, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, Status{Kind: Playing, Section: 0})

	if err := c.Resume(); err != nil {
		t.Errorf("Resume() while playing = %v", err)
	}
	if err := c.Play("", kore, []string{"other"}); err != nil {
		t.Errorf("Play() while playing = %v", err)
	}
	if got := strategy.Texts(); !slices.Equal(got, []string{"a"}) {
		t.Errorf("synthesized %v", got)
	}
	if err := c.Play("", kore, []string{}); !errors.Is(err, ErrNoSections) {
		t.Errorf("Play(no sections) error = %v", err)
	}
}

func TestEmptySectionsSkipped(t *testing.T) {
	strategy := &scripted{}
	c := newController(t, strategy, audio.NewMockSink())
	rec := record(c)

	if err := c.Play("", kore, []string{"", "a", "  \n", "b", ""}); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, Status{Kind: Playing, Section: 3})
	rec.waitFor(t, Status{Kind: Idle})

	if got := strategy.Texts(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("synthesized %v", got)
	}
}

func TestSubscriberMayCallController(t *testing.T) {
	c := newController(t, &scripted{}, &audio.MockSink{Manual: true})
	rec := record(c)
	c.Subscribe(func(s Status) {
		if s.Kind == Playing {
			c.Stop()
		}
	})

	if err := c.Play("", kore, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, Status{Kind: Playing, Section: 0})
	rec.waitFor(t, Status{Kind: Idle})
}

func TestUnsubscribe(t *testing.T) {
	c := newController(t, &scripted{}, audio.NewMockSink())
	rec := record(c)

	var calls atomic.Int32
	unsubscribe := c.Subscribe(func(Status) { calls.Add(1) })
	unsubscribe()

	if err := c.Play("", kore, []string{"a"}); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, Status{Kind: Idle})
	if calls.Load() != 0 {
		t.Errorf("unsubscribed callback called %d times", calls.Load())
	}
}

func TestClose(t *testing.T) {
	sink := &audio.MockSink{Manual: true}
	c := New(&scripted{}, sink)
	rec := record(c)

	if err := c.Play("", kore, []string{"a"}); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, Status{Kind: Playing, Section: 0})

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if !sink.Last().Stopped() {
		t.Error("output not stopped on close")
	}
	if got := rec.all(); got[len(got)-1].Kind != Idle {
		t.Errorf("last status = %v, want idle", got[len(got)-1])
	}
	if err := c.Play("", kore, []string{"a"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Play() after Close = %v, want ErrClosed", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to Kind
		want     bool
	}{
		{Idle, Loading, true},
		{Idle, Playing, false},
		{Loading, Playing, true},
		{Playing, Paused, true},
		{Paused, Playing, true},
		{Error, Paused, false},
		{Error, Loading, true},
		{Paused, Idle, true},
	}
	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("canTransition(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatusString(t *testing.T) {
	tests := map[Status]string{
		{Kind: Idle}:                   "idle",
		{Kind: Loading, Section: 1}:    "loading(1)",
		{Kind: Playing, Section: 2}:    "playing(2)",
		{Kind: Paused, Section: 0}:     "paused(0)",
		{Kind: Error, Message: "oops"}: "error(oops)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%#v.String() = %q, want %q", s, got, want)
		}
	}
}
