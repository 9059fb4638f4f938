package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/lullaby/internal/cache"
	"github.com/dgnsrekt/lullaby/internal/pcm"
	"github.com/dgnsrekt/lullaby/internal/voice"
	"golang.org/x/time/rate"
)

// Request is the body sent to a remote synthesis service.
type Request struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed,omitempty"`
}

// Response is the body returned by a remote synthesis service. Either Audio
// is set or Fallback is true.
type Response struct {
	Audio      string `json:"audio,omitempty"`
	Format     string `json:"format,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Fallback   bool   `json:"fallback,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

// RemoteConfig configures a Remote strategy.
type RemoteConfig struct {
	Endpoint          string
	Timeout           time.Duration
	RequestsPerMinute int
	Client            *http.Client
	Cache             cache.Store // optional
}

// Remote posts section text to a synthesis service.
type Remote struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
	limiter  *rate.Limiter
	cache    cache.Store
}

// NewRemote creates a Remote strategy.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("remote endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &Remote{
		endpoint: cfg.Endpoint,
		timeout:  cfg.Timeout,
		client:   cfg.Client,
		limiter:  rate.NewLimiter(limit, 1),
		cache:    cfg.Cache,
	}, nil
}

// Name implements Strategy.
func (r *Remote) Name() string { return "remote" }

// Synthesize implements Strategy. A {fallback: true} response yields
// ErrFallback.
func (r *Remote) Synthesize(ctx context.Context, text string, v voice.Voice) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	key := cache.Key(text, v.ID, v.Speed())
	if r.cache != nil {
		if data, ok := r.cache.Get(key); ok {
			if res, err := unpackClip(data); err == nil {
				log.Debug("Clip cache hit", "voice", v.ID, "bytes", len(res.Audio))
				return res, nil
			}
			_ = r.cache.Delete(key)
		}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	res, err := r.request(ctx, Request{Text: text, Voice: v.ID, Speed: v.Speed()})
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Put(key, packClip(res)); err != nil {
			log.Debug("Unable to cache clip", "err", err)
		}
	}
	return res, nil
}

func (r *Remote) request(ctx context.Context, body Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, &BackendError{Backend: BackendRemote, Op: "request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &BackendError{Backend: BackendRemote, Op: "request", Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &BackendError{
			Backend:    BackendRemote,
			Op:         "request",
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(msg))),
		}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &BackendError{Backend: BackendRemote, Op: "decode response", Err: err}
	}
	if out.Fallback {
		return nil, fmt.Errorf("%w: %s", ErrFallback, out.Message)
	}
	if out.Audio == "" {
		return nil, &BackendError{Backend: BackendRemote, Op: "decode response", Err: errors.New("no audio in response")}
	}

	audio, err := base64.StdEncoding.DecodeString(out.Audio)
	if err != nil {
		return nil, &BackendError{Backend: BackendRemote, Op: "decode audio", Err: err}
	}
	sampleRate := out.SampleRate
	if sampleRate == 0 {
		sampleRate = pcm.DefaultSampleRate
	}

	log.Debug("Remote synthesis complete", "bytes", len(audio), "rate", sampleRate, "took", time.Since(start))
	return &Result{Backend: BackendRemote, Audio: audio, SampleRate: sampleRate, Channels: 1}, nil
}

// Cached clips are stored as a 4-byte sample rate, a 2-byte channel count and
// the PCM payload.
func packClip(res *Result) []byte {
	out := make([]byte, 6+len(res.Audio))
	binary.LittleEndian.PutUint32(out, uint32(res.SampleRate)) //nolint:gosec
	binary.LittleEndian.PutUint16(out[4:], uint16(res.Channels)) //nolint:gosec
	copy(out[6:], res.Audio)
	return out
}

func unpackClip(data []byte) (*Result, error) {
	if len(data) < 6 {
		return nil, errors.New("clip header truncated")
	}
	return &Result{
		Backend:    BackendRemote,
		SampleRate: int(binary.LittleEndian.Uint32(data)),
		Channels:   int(binary.LittleEndian.Uint16(data[4:])),
		Audio:      data[6:],
	}, nil
}
