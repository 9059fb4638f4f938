// Package main provides the entry point for the lullaby CLI application.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/lullaby/internal/config"
	"github.com/dgnsrekt/lullaby/internal/story"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile     string
	voiceName      string
	speed          float64
	fromSection    int
	watch          bool
	remoteEndpoint string
	noRemote       bool
	debug          bool

	// cfg is the effective configuration, loaded before any command runs.
	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "lullaby [FILE|-]",
		Short: "Read bedtime stories aloud, section by section",
		Long: paragraph(
			fmt.Sprintf("\nRead bedtime stories aloud, %s.", keyword("one gentle section at a time")),
		),
		Example: paragraph("lullaby story.md\nlullaby --voice puck --from 3 story.txt\ncat story.txt | lullaby"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return []string{"md", "markdown", "txt"}, cobra.ShellCompDirectiveFilterFileExt
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// validateOptions loads the configuration and applies the flags that were
// set explicitly on the command line.
func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	c, err := config.Load(viper.GetViper())
	if err != nil {
		return err //nolint:wrapcheck
	}

	flags := cmd.Flags()
	if flags.Changed("voice") {
		c.Voice = voiceName
	}
	if flags.Changed("speed") {
		c.Speed = speed
	}
	if flags.Changed("remote") {
		c.Remote.Enabled = true
		c.Remote.Endpoint = remoteEndpoint
	}
	if noRemote {
		c.Remote.Enabled = false
	}
	if debug {
		c.LogLevel = "debug"
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	if fromSection < 1 {
		return errors.New("--from must be 1 or greater")
	}

	setLogLevel(c.LogLevel)
	cfg = c
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// storyArg picks the story source: the argument, or stdin when it is a pipe.
func storyArg(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if yes, err := stdinIsPipe(); err != nil {
		return "", err
	} else if yes {
		return "-", nil
	}
	return "", errors.New("missing story: pass a file or pipe one on stdin")
}

func execute(_ *cobra.Command, args []string) error {
	path, err := storyArg(args)
	if err != nil {
		return err
	}
	if watch && path == "-" {
		return errors.New("cannot watch stdin")
	}

	st, err := story.Load(path, os.Stdin)
	if err != nil {
		return err //nolint:wrapcheck
	}

	n, err := newNarrator(cfg)
	if err != nil {
		return err
	}
	defer n.Close() //nolint:errcheck

	v, err := resolveVoice(cfg)
	if err != nil {
		return err
	}

	// key input needs a terminal on stdin, which a piped story occupies
	interactive := path != "-" && term.IsTerminal(int(os.Stdin.Fd())) //nolint:gosec
	return narrate(n, *st, v, narrateOptions{
		From:        max(fromSection-1, 0),
		Watch:       watch,
		Interactive: interactive,
		Width:       terminalWidth(),
	})
}

func terminalWidth() int {
	width := 80
	if term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil { //nolint:gosec
			width = min(w, 120)
		}
	}
	return width
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", configFile, "config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log debug output")
	rootCmd.Flags().StringVarP(&voiceName, "voice", "v", "", "narrator voice (see lullaby voices)")
	rootCmd.Flags().Float64VarP(&speed, "speed", "s", 0, "speaking rate multiplier")
	rootCmd.Flags().IntVarP(&fromSection, "from", "f", 1, "start at section N")
	rootCmd.Flags().BoolVarP(&watch, "watch", "w", false, "restart the story when the file changes")
	rootCmd.Flags().StringVar(&remoteEndpoint, "remote", "", "remote synthesis endpoint")
	rootCmd.Flags().BoolVar(&noRemote, "no-remote", false, "always use the local speech engine")

	config.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(configCmd, manCmd, voicesCmd, serveCmd, cacheCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "lullaby")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "lullaby")}, dirs...)
	}

	if c := os.Getenv("LULLABY_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("lullaby")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("lullaby")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		configFile = used
		return
	}

	configFile = filepath.Join(dirs[0], "lullaby.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
