package speech

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// baseWPM is espeak's default speaking rate in words per minute.
const baseWPM = 175

// ESpeak speaks through the espeak-ng (or espeak) command.
type ESpeak struct {
	binary string
	volume int // 0-200
}

// FindESpeak locates espeak-ng or espeak on PATH. A non-empty binary is used
// as-is.
func FindESpeak(binary string) (*ESpeak, error) {
	candidates := []string{"espeak-ng", "espeak"}
	if binary != "" {
		candidates = []string{binary}
	}
	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			return &ESpeak{binary: path, volume: 100}, nil
		}
	}
	return nil, fmt.Errorf("%w: tried %s", ErrEngineNotFound, strings.Join(candidates, ", "))
}

// SetVolume sets the amplitude, 0 to 200. Out of range values are clamped.
func (e *ESpeak) SetVolume(v int) {
	e.volume = max(0, min(v, 200))
}

// Binary returns the resolved engine path.
func (e *ESpeak) Binary() string {
	return e.binary
}

func (e *ESpeak) args(opts Options) []string {
	rate := opts.Rate
	if rate <= 0 {
		rate = 1
	}
	args := []string{
		"-s", strconv.Itoa(int(baseWPM * rate)),
		"-a", strconv.Itoa(e.volume),
	}
	if opts.Voice != "" {
		args = append(args, "-v", opts.Voice)
	}
	return args
}

// Speak starts an espeak process reading text from stdin.
func (e *ESpeak) Speak(ctx context.Context, text string, opts Options, onEnd func(), onError func(error)) (Utterance, error) {
	cmd := exec.CommandContext(ctx, e.binary, e.args(opts)...) //nolint:gosec
	// stdin is set before start so the engine never races an empty pipe
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("unable to start %s: %w", e.binary, err)
	}
	log.Debug("Speaking", "engine", e.binary, "pid", cmd.Process.Pid, "chars", len(text), "voice", opts.Voice)

	u := &process{cmd: cmd}
	go func() {
		err := cmd.Wait()

		u.mu.Lock()
		stopped := u.stopped
		u.exited = true
		u.mu.Unlock()

		switch {
		case stopped:
		case err != nil:
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				err = fmt.Errorf("%w: %s", err, msg)
			}
			if onError != nil {
				onError(fmt.Errorf("speech synthesis failed: %w", err))
			}
		default:
			if onEnd != nil {
				onEnd()
			}
		}
	}()
	return u, nil
}

// Voices runs "espeak --voices" and parses its table.
func (e *ESpeak) Voices(ctx context.Context) ([]Voice, error) {
	out, err := exec.CommandContext(ctx, e.binary, "--voices").Output() //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("unable to list voices: %w", err)
	}
	return parseVoices(out), nil
}

// parseVoices reads rows of the form
//
//	Pty Language  Age/Gender VoiceName  File  Other Languages
func parseVoices(out []byte) []Voice {
	var voices []Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		gender := ""
		if _, g, ok := strings.Cut(fields[2], "/"); ok && g != "-" {
			gender = g
		}
		voices = append(voices, Voice{
			Name:     strings.ReplaceAll(fields[3], "_", " "),
			Language: fields[1],
			Gender:   gender,
			ID:       fields[1],
		})
	}
	return voices
}

type process struct {
	cmd *exec.Cmd

	mu      sync.Mutex
	paused  bool
	stopped bool
	exited  bool
}

func (p *process) Pausable() bool { return canSuspend }

func (p *process) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || p.exited || p.paused {
		return nil
	}
	if err := suspend(p.cmd.Process); err != nil {
		return err
	}
	p.paused = true
	return nil
}

func (p *process) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || p.exited || !p.paused {
		return nil
	}
	if err := resume(p.cmd.Process); err != nil {
		return err
	}
	p.paused = false
	return nil
}

func (p *process) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || p.exited {
		p.stopped = true
		return nil
	}
	p.stopped = true
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("unable to stop speech: %w", err)
	}
	return nil
}
