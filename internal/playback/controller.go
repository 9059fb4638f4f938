// Package playback narrates a story section by section.
//
// The Controller owns the single live session: the story's sections, the
// voice, the current section and a token that invalidates work started by an
// earlier session. All state changes go through the controller's mutex.
// Synthesis and output completion happen on other goroutines and are
// discarded when their token or section no longer matches.
package playback

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/lullaby/internal/audio"
	"github.com/dgnsrekt/lullaby/internal/pcm"
	"github.com/dgnsrekt/lullaby/internal/segment"
	"github.com/dgnsrekt/lullaby/internal/speech"
	"github.com/dgnsrekt/lullaby/internal/synth"
	"github.com/dgnsrekt/lullaby/internal/voice"
)

var (
	// ErrPauseUnsupported is returned by Pause when the active output cannot
	// be paused. Playback continues.
	ErrPauseUnsupported = errors.New("pause not supported by the active output")

	// ErrClosed is returned by calls on a closed controller.
	ErrClosed = errors.New("playback controller is closed")

	// ErrNoSections is returned by Play when there is nothing to narrate.
	ErrNoSections = errors.New("story has no sections")
)

// output is an active buffer stream or utterance.
type output interface {
	Pause() error
	Resume() error
	Stop() error
	Pausable() bool
}

type session struct {
	token    uint64
	sections []string
	voice    voice.Voice
	index    int

	ctx    context.Context
	cancel context.CancelFunc
	output output
}

type subscriber struct {
	id int
	fn func(Status)
}

// Option configures a Controller.
type Option func(*Controller)

// WithSegmenter sets how raw story text is split into sections.
func WithSegmenter(opts segment.Options) Option {
	return func(c *Controller) {
		c.split = opts.Split
	}
}

// Controller plays stories through a synthesis strategy and an audio sink.
type Controller struct {
	synth synth.Strategy
	sink  audio.Sink
	split func(string) []string

	mu      sync.Mutex
	status  Status
	token   uint64
	session *session
	last    *session
	closed  bool

	subs   []subscriber
	nextID int
	queue  []Status
	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
}

// New returns an idle controller.
func New(strategy synth.Strategy, sink audio.Sink, opts ...Option) *Controller {
	c := &Controller{
		synth:  strategy,
		sink:   sink,
		split:  segment.Split,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.dispatch()
	return c
}

// Status returns the current playback status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Sections returns the sections of the most recent story.
func (c *Controller) Sections() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	out := make([]string, len(c.last.sections))
	copy(out, c.last.sections)
	return out
}

// Subscribe registers fn to receive every status change in order. fn runs on
// the controller's dispatcher goroutine and may call back into the
// controller. The returned function unsubscribes.
func (c *Controller) Subscribe(fn func(Status)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscriber{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// Play starts narrating a story. When sections is nil, text is split with the
// controller's segmenter. Play while a story is loading or playing does
// nothing.
func (c *Controller) Play(text string, v voice.Voice, sections []string) error {
	return c.PlayFrom(text, v, sections, 0)
}

// PlayFrom is Play starting at section from. An out of range start begins at
// the first section.
func (c *Controller) PlayFrom(text string, v voice.Voice, sections []string, from int) error {
	if sections == nil {
		sections = c.split(text)
	}
	if len(sections) == 0 {
		return ErrNoSections
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.status.Kind == Loading || c.status.Kind == Playing {
		log.Debug("Ignoring play while busy", "status", c.status)
		return nil
	}

	if from < 0 || from >= len(sections) {
		from = 0
	}
	c.startLocked(sections, v, from)
	return nil
}

// SkipToSection stops the current section and starts the most recent story
// from section i. Out of range requests are ignored.
func (c *Controller) SkipToSection(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	src := c.session
	if src == nil {
		src = c.last
	}
	if src == nil || i < 0 || i >= len(src.sections) {
		log.Debug("Ignoring skip", "section", i)
		return nil
	}

	c.startLocked(src.sections, src.voice, i)
	return nil
}

// Pause pauses the playing section.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	sess := c.session
	if c.status.Kind != Playing || sess == nil || sess.output == nil {
		return nil
	}
	if !sess.output.Pausable() {
		return ErrPauseUnsupported
	}
	if err := sess.output.Pause(); err != nil {
		if errors.Is(err, speech.ErrPauseUnsupported) {
			return ErrPauseUnsupported
		}
		return err
	}
	c.setLocked(Status{Kind: Paused, Section: sess.index})
	return nil
}

// Resume continues a paused section.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	sess := c.session
	if c.status.Kind != Paused || sess == nil || sess.output == nil {
		return nil
	}
	if err := sess.output.Resume(); err != nil {
		return err
	}
	c.setLocked(Status{Kind: Playing, Section: sess.index})
	return nil
}

// Stop abandons the current story and returns to idle. Results still in
// flight are discarded when they arrive.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLocked()
	c.setLocked(Status{Kind: Idle})
}

// Close stops playback and the status dispatcher. Pending notifications are
// delivered before Close returns, so Close must not be called from a
// subscriber.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.endLocked()
	c.setLocked(Status{Kind: Idle})
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	<-c.exited
	return nil
}

func (c *Controller) startLocked(sections []string, v voice.Voice, from int) {
	c.endLocked()

	c.token++
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		token:    c.token,
		sections: append([]string(nil), sections...),
		voice:    v,
		ctx:      ctx,
		cancel:   cancel,
	}
	c.session = sess
	c.last = sess

	log.Debug("Starting story", "token", sess.token, "sections", len(sections), "from", from, "voice", v.ID)
	c.playSectionLocked(sess, from)
}

// playSectionLocked dispatches synthesis for section i, skipping empty
// sections. Past the last section the session ends.
func (c *Controller) playSectionLocked(sess *session, i int) {
	for i < len(sess.sections) && strings.TrimSpace(sess.sections[i]) == "" {
		log.Debug("Skipping empty section", "section", i)
		i++
	}
	if i >= len(sess.sections) {
		log.Debug("Story finished", "token", sess.token)
		c.endLocked()
		c.setLocked(Status{Kind: Idle})
		return
	}

	sess.index = i
	sess.output = nil
	c.setLocked(Status{Kind: Loading, Section: i})
	go c.synthesize(sess, i, sess.sections[i])
}

func (c *Controller) synthesize(sess *session, i int, text string) {
	c.mu.Lock()
	ok := c.currentLocked(sess, i, Loading)
	c.mu.Unlock()
	if !ok {
		return
	}

	res, err := c.synth.Synthesize(sess.ctx, text, sess.voice)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(sess, i, Loading) {
		log.Debug("Discarding stale synthesis", "token", sess.token, "section", i)
		return
	}
	if err != nil {
		c.failLocked(err)
		return
	}
	c.startOutputLocked(sess, i, res)
}

func (c *Controller) startOutputLocked(sess *session, i int, res *synth.Result) {
	var (
		out output
		err error
	)
	if res.Pending != nil {
		out, err = res.Pending.Speak(sess.ctx,
			func() { c.completed(sess, i, nil) },
			func(err error) { c.completed(sess, i, err) },
		)
	} else {
		channels := res.Channels
		if channels == 0 {
			channels = 1
		}
		var buf *pcm.Buffer
		buf, err = pcm.Decode(res.Audio, res.SampleRate, channels)
		if err == nil {
			out, err = c.sink.Play(buf, func(err error) { c.completed(sess, i, err) })
		}
	}
	if err != nil {
		c.failLocked(err)
		return
	}

	sess.output = out
	log.Debug("Playing section", "section", i, "backend", res.Backend)
	c.setLocked(Status{Kind: Playing, Section: i})
}

func (c *Controller) completed(sess *session, i int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(sess, i, Playing, Paused) {
		return
	}
	sess.output = nil
	if err != nil {
		c.failLocked(err)
		return
	}
	c.playSectionLocked(sess, i+1)
}

func (c *Controller) currentLocked(sess *session, i int, kinds ...Kind) bool {
	if c.session == nil || c.session.token != sess.token || sess.index != i {
		return false
	}
	for _, k := range kinds {
		if c.status.Kind == k {
			return true
		}
	}
	return false
}

func (c *Controller) failLocked(err error) {
	log.Error("Playback failed", "err", err)
	c.endLocked()
	c.setLocked(Status{Kind: Error, Message: err.Error()})
}

// endLocked invalidates the session and stops its output.
func (c *Controller) endLocked() {
	sess := c.session
	if sess == nil {
		return
	}
	c.session = nil
	sess.cancel()
	if sess.output != nil {
		if err := sess.output.Stop(); err != nil {
			log.Debug("Unable to stop output", "err", err)
		}
		sess.output = nil
	}
	sess.index = 0
}

func (c *Controller) setLocked(s Status) {
	if s == c.status {
		return
	}
	if !canTransition(c.status.Kind, s.Kind) {
		log.Debug("Ignoring invalid transition", "from", c.status, "to", s)
		return
	}
	c.status = s
	if c.closed {
		return
	}
	c.queue = append(c.queue, s)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) dispatch() {
	defer close(c.exited)
	for {
		select {
		case <-c.wake:
			c.flush()
		case <-c.done:
			c.flush()
			return
		}
	}
}

func (c *Controller) flush() {
	c.mu.Lock()
	batch := c.queue
	c.queue = nil
	subs := append([]subscriber(nil), c.subs...)
	c.mu.Unlock()

	for _, s := range batch {
		for _, sub := range subs {
			sub.fn(s)
		}
	}
}
