// Package server exposes a remote synthesis endpoint for lullaby clients.
//
// The endpoint never fails a well-formed request because of the upstream
// model: when speech cannot be produced it answers with a fallback signal so
// the client narrates locally instead.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/lullaby/internal/pcm"
	"github.com/dgnsrekt/lullaby/internal/synth"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Path is the synthesis route.
const Path = "/api/generate-audio"

const (
	defaultVoice    = "Kore"
	fallbackMessage = "Use client-side speech synthesis"
)

// Speaker produces base64 encoded PCM speech.
type Speaker interface {
	Speech(ctx context.Context, text, voice string) (string, error)
}

// Config configures a Server.
type Config struct {
	Timeout time.Duration
}

// Server serves synthesis requests. A nil Speaker means no API key is
// configured.
type Server struct {
	app     *fiber.App
	speaker Speaker
	timeout time.Duration
}

// New creates a Server.
func New(speaker Speaker, cfg Config) *Server {
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               "lullaby",
			DisableStartupMessage: true,
		}),
		speaker: speaker,
		timeout: cfg.Timeout,
	}

	s.app.Use(requestID, cors)
	s.app.All(Path, s.generateAudio)
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	log.Info("Serving synthesis", "addr", addr, "path", Path)
	return s.app.Listen(addr)
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func requestID(c *fiber.Ctx) error {
	id := c.Get(fiber.HeaderXRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	c.Locals("requestID", id)
	c.Set(fiber.HeaderXRequestID, id)
	return c.Next()
}

func cors(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	c.Set(fiber.HeaderAccessControlAllowMethods, "POST, OPTIONS")
	c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type")
	return c.Next()
}

func (s *Server) generateAudio(c *fiber.Ctx) error {
	switch c.Method() {
	case fiber.MethodOptions:
		return c.SendStatus(http.StatusOK)
	case fiber.MethodPost:
	default:
		return c.Status(http.StatusMethodNotAllowed).JSON(fiber.Map{"error": "Method not allowed"})
	}

	if s.speaker == nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "API key not configured"})
	}

	var req synth.Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Text is required"})
	}
	if req.Voice == "" {
		req.Voice = defaultVoice
	}

	id, _ := c.Locals("requestID").(string)
	ctx, cancel := context.WithTimeout(c.UserContext(), s.timeout)
	defer cancel()

	start := time.Now()
	audio, err := s.speaker.Speech(ctx, req.Text, req.Voice)
	if err != nil {
		log.Warn("Speech unavailable, asking client to fall back", "request", id, "voice", req.Voice, "err", err)
		return c.JSON(synth.Response{Fallback: true, Message: fallbackMessage})
	}

	log.Info("Generated audio", "request", id, "voice", req.Voice, "chars", len(req.Text), "took", time.Since(start))
	return c.JSON(synth.Response{
		Audio:      audio,
		Format:     "base64",
		SampleRate: pcm.DefaultSampleRate,
	})
}
