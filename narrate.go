package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/lullaby/internal/playback"
	"github.com/dgnsrekt/lullaby/internal/story"
	"github.com/dgnsrekt/lullaby/internal/voice"
	"github.com/fsnotify/fsnotify"
)

type narrateOptions struct {
	From        int // zero based
	Watch       bool
	Interactive bool
	Width       int
}

type action int

const (
	actNone action = iota
	actToggle
	actNext
	actPrev
	actJump
	actStop
	actQuit
)

// keyAction maps a key to a player action. For actJump the section index is
// returned as well.
func keyAction(key string) (action, int) {
	switch key {
	case " ":
		return actToggle, 0
	case "n", "right":
		return actNext, 0
	case "p", "left":
		return actPrev, 0
	case "1", "2", "3", "4", "5":
		return actJump, int(key[0] - '1')
	case "s":
		return actStop, 0
	case "q", "ctrl+c", "ctrl+d":
		return actQuit, 0
	}
	return actNone, 0
}

// player drives a controller from key presses and status changes. Transcript
// lines are collected until the model flushes them.
type player struct {
	ctrl  *playback.Controller
	story story.Story
	voice voice.Voice
	width int
	lines []string

	sections []string
	current  int
	printed  int
	finished bool

	// pendingStops counts Idle notifications caused by our own Stop calls,
	// which must not be mistaken for the end of the story.
	pendingStops int
}

func newPlayer(ctrl *playback.Controller, st story.Story, v voice.Voice, width int) *player {
	return &player{ctrl: ctrl, story: st, voice: v, width: width, printed: -1}
}

func (p *player) say(line string) {
	p.lines = append(p.lines, line)
}

func (p *player) flush() []string {
	lines := p.lines
	p.lines = nil
	return lines
}

func (p *player) start(from int) error {
	p.finished = false
	p.printed = -1
	if err := p.ctrl.PlayFrom(p.story.Text, p.voice, nil, from); err != nil {
		return err //nolint:wrapcheck
	}
	p.sections = p.ctrl.Sections()
	return nil
}

func (p *player) stop() {
	if p.ctrl.Status().Kind != playback.Idle {
		p.pendingStops++
	}
	p.ctrl.Stop()
}

// handle applies a key action. It reports whether the player should quit.
func (p *player) handle(a action, arg int) (bool, error) {
	switch a {
	case actToggle:
		switch p.ctrl.Status().Kind {
		case playback.Playing:
			err := p.ctrl.Pause()
			if errors.Is(err, playback.ErrPauseUnsupported) {
				p.say(helpStyle.Render("pause is not available for this voice"))
				return false, nil
			}
			return false, err //nolint:wrapcheck
		case playback.Paused:
			return false, p.ctrl.Resume() //nolint:wrapcheck
		case playback.Idle, playback.Error:
			if p.finished {
				return false, p.start(0)
			}
			return false, p.skip(p.current)
		}
	case actNext:
		return false, p.skip(p.current + 1)
	case actPrev:
		return false, p.skip(max(p.current-1, 0))
	case actJump:
		return false, p.skip(arg)
	case actStop:
		p.stop()
	case actQuit:
		return true, nil
	}
	return false, nil
}

func (p *player) skip(i int) error {
	if i < 0 || i >= len(p.sections) {
		return nil
	}
	p.finished = false
	p.printed = -1
	return p.ctrl.SkipToSection(i) //nolint:wrapcheck
}

// observe records a status change. It reports whether narration has ended,
// either because the story finished or because it failed.
func (p *player) observe(s playback.Status) bool {
	n := len(p.sections)
	switch s.Kind {
	case playback.Loading:
		p.current = s.Section
		if s.Section != p.printed && s.Section < n {
			p.printed = s.Section
			p.say("\n" + renderSection(s.Section, n, p.sections[s.Section], p.width))
		}
	case playback.Idle:
		if p.pendingStops > 0 {
			p.pendingStops--
			p.say(renderStatus(s, n, p.width))
			return false
		}
		p.finished = true
		p.say(renderStatus(s, n, p.width) + helpStyle.Render(" · sweet dreams"))
		return true
	case playback.Error:
		p.say(renderStatus(s, n, p.width))
		return true
	}
	return false
}

type statusMsg playback.Status

type storyChangedMsg string

func waitForStatus(ch <-chan playback.Status) tea.Cmd {
	return func() tea.Msg {
		return statusMsg(<-ch)
	}
}

func waitForChange(ch <-chan string) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		return storyChangedMsg(<-ch)
	}
}

// model is the bubbletea program narrating one story. It runs inline so the
// transcript scrolls above the live status line.
type model struct {
	player   *player
	opts     narrateOptions
	statuses <-chan playback.Status
	changes  <-chan string
	out      io.Writer
	spinner  spinner.Model

	status playback.Status
	done   bool
	err    error
}

func newModel(p *player, opts narrateOptions, statuses <-chan playback.Status, changes <-chan string) *model {
	return &model{
		player:   p,
		opts:     opts,
		statuses: statuses,
		changes:  changes,
		out:      os.Stdout,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(statusStyle)),
	}
}

func (m *model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.print(), waitForStatus(m.statuses), waitForChange(m.changes)}
	if m.opts.Interactive {
		cmds = append(cmds, m.spinner.Tick)
	}
	return tea.Batch(cmds...)
}

// print flushes the transcript. Without a renderer lines are written
// directly.
func (m *model) print() tea.Cmd {
	lines := m.player.flush()
	if len(lines) == 0 {
		return nil
	}
	text := strings.Join(lines, "\n")
	if m.opts.Interactive {
		return tea.Println(text)
	}
	_, _ = fmt.Fprintln(m.out, text)
	return nil
}

func (m *model) quit() (tea.Model, tea.Cmd) {
	m.done = true
	return m, tea.Sequence(m.print(), tea.Quit)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.player.width = min(msg.Width, 120)

	case tea.KeyMsg:
		a, arg := keyAction(msg.String())
		quit, err := m.player.handle(a, arg)
		if err != nil {
			log.Error("Unable to handle key", "key", msg.String(), "err", err)
			m.player.say(errorStyle.Render(err.Error()))
		}
		if quit {
			m.player.stop()
			return m.quit()
		}
		return m, m.print()

	case statusMsg:
		s := playback.Status(msg)
		m.status = s
		if m.player.observe(s) && !m.opts.Watch {
			switch {
			case s.Kind != playback.Error:
				return m.quit()
			case !m.opts.Interactive:
				m.err = errors.New(s.Message)
				return m.quit()
			}
		}
		return m, tea.Batch(m.print(), waitForStatus(m.statuses))

	case storyChangedMsg:
		path := string(msg)
		next, err := story.Load(path, nil)
		if err != nil {
			log.Warn("Unable to reload story", "path", path, "err", err)
		} else {
			log.Info("Story changed, restarting", "path", path)
			m.player.story = *next
			m.player.stop()
			if err := m.player.start(0); err != nil {
				m.player.say(errorStyle.Render(err.Error()))
			}
		}
		return m, tea.Batch(m.print(), waitForChange(m.changes))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) View() string {
	if !m.opts.Interactive || m.done {
		return ""
	}
	line := renderStatus(m.status, len(m.player.sections), m.player.width)
	if m.status.Kind == playback.Loading {
		line = m.spinner.View() + line
	}
	return line + "\n" + helpStyle.Render(helpText)
}

// narrate plays a story until it ends or the user quits.
func narrate(n *narrator, st story.Story, v voice.Voice, opts narrateOptions) error {
	quit := make(chan struct{})
	defer close(quit)

	statuses := make(chan playback.Status, 16)
	unsubscribe := n.ctrl.Subscribe(func(s playback.Status) {
		select {
		case statuses <- s:
		case <-quit:
		}
	})
	defer unsubscribe()

	var changes <-chan string
	if opts.Watch {
		w, err := watchStory(st.Source, quit)
		if err != nil {
			return err
		}
		changes = w
	}

	p := newPlayer(n.ctrl, st, v, opts.Width)
	if st.Title != "" {
		p.say(titleStyle.Render(st.Title))
	}
	if err := p.start(opts.From); err != nil {
		return err
	}

	var progOpts []tea.ProgramOption
	if !opts.Interactive {
		progOpts = append(progOpts, tea.WithInput(nil), tea.WithoutRenderer())
	}
	final, err := tea.NewProgram(newModel(p, opts, statuses, changes), progOpts...).Run()
	p.stop()
	if errors.Is(err, tea.ErrInterrupted) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("unable to run player: %w", err)
	}
	return final.(*model).err //nolint:forcetypeassert
}

const watchDebounce = 250 * time.Millisecond

// watchStory reports path whenever the file is written. Editors often replace
// the file, so the parent directory is watched.
func watchStory(path string, quit <-chan struct{}) (<-chan string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("unable to watch story: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("unable to watch story: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("unable to watch story: %w", err)
	}

	changes := make(chan string)
	go func() {
		defer w.Close() //nolint:errcheck
		var (
			timer *time.Timer
			fire  <-chan time.Time
		)
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(watchDebounce)
				} else {
					timer.Reset(watchDebounce)
				}
				fire = timer.C
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("Watch error", "err", err)
			case <-fire:
				fire = nil
				select {
				case changes <- abs:
				case <-quit:
					return
				}
			case <-quit:
				return
			}
		}
	}()
	return changes, nil
}
