package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# narrator voice: Kore, Puck, Zephyr, Charon or Fenrir
voice: "Kore"
# speaking rate multiplier
speed: 0.9
# debug, info, warn or error
log_level: "info"
# regular expression matching section headers
# section_marker: '(?i)\[SECTION \d+:.*?\]'

# remote synthesis, see "lullaby serve"
remote:
  enabled: true
  endpoint: "http://localhost:8787/api/generate-audio"
  timeout: "30s"
  requests_per_minute: 30

# on-device speech used when remote synthesis is unavailable
local:
  # engine executable, by default espeak-ng or espeak from PATH
  # binary: "espeak-ng"
  # force an engine voice, otherwise an English female voice is preferred
  # voice: "en-us"
  voice_wait: "1s"
  # 0 to 200
  volume: 100

# output device
audio:
  sample_rate: 24000
  channels: 1
  # 0.0 to 1.0
  volume: 1.0

# synthesized clips are kept so a story can be replayed offline
cache:
  enabled: true
  # dir: "~/.cache/lullaby/clips"
  memory_mb: 64
  disk_mb: 512
  # zstd level 1 to 4, 0 disables compression
  compression: 3

# "lullaby serve" settings; the API key is read from GEMINI_API_KEY
server:
  addr: ":8787"
  model: "gemini-2.0-flash"
  timeout: "1m"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the lullaby config file",
	Long:    paragraph(fmt.Sprintf("\n%s the lullaby config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("lullaby config\nlullaby config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("lullaby", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
	// a broken config file must still be editable
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
