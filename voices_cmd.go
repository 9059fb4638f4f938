package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dgnsrekt/lullaby/internal/speech"
	"github.com/dgnsrekt/lullaby/internal/voice"
	"github.com/spf13/cobra"
)

var listLocal bool

var voicesCmd = &cobra.Command{
	Use:     "voices",
	Short:   "List narrator voices",
	Long:    paragraph(fmt.Sprintf("\nList the narrator voices. With %s, list the voices of the local speech engine instead.", keyword("--local"))),
	Example: paragraph("lullaby voices\nlullaby voices --local"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if listLocal {
			return listLocalVoices(cmd.Context())
		}

		current, _ := voice.DefaultCatalog().Find(cfg.Voice)
		for _, v := range voice.DefaultCatalog().All() {
			marker := " "
			if v.ID == current.ID {
				marker = activeMarker
			}
			fmt.Printf("%s %-8s %s\n", marker, v.ID, helpStyle.Render(v.Description))
		}
		return nil
	},
}

func listLocalVoices(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	es, err := speech.FindESpeak(cfg.Local.Binary)
	if err != nil {
		return err //nolint:wrapcheck
	}
	voices, err := es.Voices(ctx)
	if err != nil {
		return fmt.Errorf("unable to list voices: %w", err)
	}

	preferred, _ := speech.Prefer(voices)
	if cfg.Local.Voice != "" {
		preferred = speech.Voice{ID: cfg.Local.Voice}
	}
	for _, v := range voices {
		marker := " "
		if v.Key() == preferred.Key() {
			marker = activeMarker
		}
		fmt.Printf("%s %-12s %-8s %s\n", marker, v.Key(), v.Language, helpStyle.Render(v.Name))
	}
	return nil
}

func init() {
	voicesCmd.Flags().BoolVar(&listLocal, "local", false, "list the local speech engine voices")
}
