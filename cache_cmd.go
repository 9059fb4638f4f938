package main

import (
	"fmt"

	"github.com/dgnsrekt/lullaby/internal/cache"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the clip cache",
	Args:  cobra.NoArgs,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show clip cache usage",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		m, err := openCache(cfg.Cache)
		if err != nil {
			return err
		}
		defer m.Close() //nolint:errcheck

		dir, _ := cacheDir(cfg.Cache)
		fmt.Println(keyword("Clip cache"), helpStyle.Render(dir))
		for _, level := range []cache.Level{cache.LevelMemory, cache.LevelDisk} {
			fmt.Println(formatStats(level.String(), m.LevelStats()[level]))
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached clip",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		m, err := openCache(cfg.Cache)
		if err != nil {
			return err
		}
		defer m.Close() //nolint:errcheck

		before := m.Stats()
		if err := m.Clear(); err != nil {
			return fmt.Errorf("unable to clear cache: %w", err)
		}
		fmt.Printf("Removed %d clips (%s)\n", before.Items, humanize.Bytes(uint64(before.Size))) //nolint:gosec
		return nil
	},
}

func formatStats(name string, s cache.Stats) string {
	last := "never"
	if !s.LastAccess.IsZero() {
		last = humanize.Time(s.LastAccess)
	}
	return fmt.Sprintf("  %-6s %d clips, %s of %s, %.0f%% hits, last used %s",
		name,
		s.Items,
		humanize.Bytes(uint64(s.Size)),     //nolint:gosec
		humanize.Bytes(uint64(s.Capacity)), //nolint:gosec
		s.HitRate()*100,
		last,
	)
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
}
