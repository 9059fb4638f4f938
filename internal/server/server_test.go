package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dgnsrekt/lullaby/internal/synth"
	"github.com/dgnsrekt/lullaby/internal/voice"
)

// appTransport routes client requests straight into the fiber app.
type appTransport struct{ s *Server }

func (a appTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return a.s.App().Test(r, -1)
}

type fakeSpeaker struct {
	audio string
	err   error

	text, voice string
}

func (f *fakeSpeaker) Speech(_ context.Context, text, voice string) (string, error) {
	f.text, f.voice = text, voice
	return f.audio, f.err
}

func do(t *testing.T, s *Server, method, body string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, Path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestGenerateAudio(t *testing.T) {
	tests := []struct {
		name       string
		speaker    Speaker
		method     string
		body       string
		wantStatus int
		wantKey    string
	}{
		{name: "success", speaker: &fakeSpeaker{audio: "AAEC"}, method: http.MethodPost, body: `{"text":"hi","voice":"Puck"}`, wantStatus: 200, wantKey: "audio"},
		{name: "upstream failure falls back", speaker: &fakeSpeaker{err: errors.New("quota")}, method: http.MethodPost, body: `{"text":"hi"}`, wantStatus: 200, wantKey: "fallback"},
		{name: "options", speaker: &fakeSpeaker{}, method: http.MethodOptions, wantStatus: 200},
		{name: "wrong method", speaker: &fakeSpeaker{}, method: http.MethodGet, wantStatus: 405, wantKey: "error"},
		{name: "missing text", speaker: &fakeSpeaker{}, method: http.MethodPost, body: `{"voice":"Kore"}`, wantStatus: 400, wantKey: "error"},
		{name: "bad body", speaker: &fakeSpeaker{}, method: http.MethodPost, body: `{`, wantStatus: 400, wantKey: "error"},
		{name: "no api key", method: http.MethodPost, body: `{"text":"hi"}`, wantStatus: 500, wantKey: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := do(t, New(tt.speaker, Config{}), tt.method, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantKey != "" {
				if _, ok := out[tt.wantKey]; !ok {
					t.Errorf("response %v missing %q", out, tt.wantKey)
				}
			}
			if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
				t.Error("missing CORS header")
			}
			if resp.Header.Get("X-Request-ID") == "" {
				t.Error("missing request id")
			}
		})
	}
}

func TestGenerateAudioResponse(t *testing.T) {
	speaker := &fakeSpeaker{audio: "AAEC"}
	s := New(speaker, Config{})

	req := httptest.NewRequest(http.MethodPost, Path, strings.NewReader(`{"text":"Goodnight."}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var out synth.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Audio != "AAEC" || out.Format != "base64" || out.SampleRate != 24000 || out.Fallback {
		t.Errorf("response = %+v", out)
	}
	if speaker.voice != "Kore" || speaker.text != "Goodnight." {
		t.Errorf("speaker got %q %q", speaker.text, speaker.voice)
	}
}

func TestFallbackMessage(t *testing.T) {
	_, out := do(t, New(&fakeSpeaker{err: errors.New("x")}, Config{}), http.MethodPost, `{"text":"hi"}`)
	if out["fallback"] != true || out["message"] != "Use client-side speech synthesis" {
		t.Errorf("response = %v", out)
	}
}

func TestRemoteStrategyAgainstServer(t *testing.T) {
	s := New(&fakeSpeaker{err: errors.New("x")}, Config{})
	r, err := synth.NewRemote(synth.RemoteConfig{
		Endpoint: "http://lullaby.test" + Path,
		Client:   &http.Client{Transport: appTransport{s}},
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.Synthesize(context.Background(), "hi", voice.Voice{ID: "Kore"})
	if !errors.Is(err, synth.ErrFallback) {
		t.Errorf("error = %v, want ErrFallback", err)
	}
}
