package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/lullaby/internal/gemini"
	"github.com/dgnsrekt/lullaby/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve remote speech synthesis",
	Long: paragraph(fmt.Sprintf("\n%s the synthesis endpoint used by remote narration. Requests are forwarded to Gemini using GEMINI_API_KEY; without a key every request asks clients to fall back to local speech.",
		keyword("Serve"))),
	Example: paragraph("GEMINI_API_KEY=... lullaby serve --addr :8787"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		addr := cfg.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}

		var speaker server.Speaker
		client, err := gemini.New(gemini.Config{
			APIKey:  cfg.Server.APIKey,
			Model:   cfg.Server.Model,
			BaseURL: cfg.Server.BaseURL,
			Timeout: cfg.Server.Timeout,
		})
		switch {
		case errors.Is(err, gemini.ErrMissingAPIKey):
			log.Warn("GEMINI_API_KEY is not set, clients will use local speech")
		case err != nil:
			return err //nolint:wrapcheck
		default:
			speaker = client
		}

		srv := server.New(speaker, server.Config{Timeout: cfg.Server.Timeout})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errc := make(chan error, 1)
		go func() { errc <- srv.Listen(addr) }()
		fmt.Printf("Serving on %s%s\n", addr, keyword(server.Path))

		select {
		case err := <-errc:
			return err //nolint:wrapcheck
		case <-ctx.Done():
			log.Info("Shutting down")
			return srv.Shutdown() //nolint:wrapcheck
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}
