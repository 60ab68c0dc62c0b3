// Package main is the entry point for the wakeloop CLI. wakeloop listens
// for a wake word, transcribes what follows, answers through a chat model
// and speaks the reply, cutting itself off when interrupted.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/normanking/wakeloop/internal/config"
	"github.com/normanking/wakeloop/internal/logging"
	"github.com/normanking/wakeloop/internal/ui"
)

var (
	version = "0.1.0"

	cfgPath string
	verbose bool
	noColor bool
	monitor bool

	cfg       *config.Config
	cfgErr    error
	logCloser func() error
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wakeloop",
		Short: "wakeloop - hands-free voice assistant loop",
		Long: `wakeloop runs a hands-free voice assistant:
  • Wake word detection (Porcupine or a remote detector)
  • Streaming speech recognition after each wake word
  • Chat with a local or hosted model, with short-term memory
  • Spoken replies that stop as soon as you talk over them

Start listening:     wakeloop run
Watch it live:       wakeloop run --monitor
List audio devices:  wakeloop devices
Configuration:       wakeloop config show`,
		PersistentPreRunE:  initLogging,
		PersistentPostRunE: closeLogging,
		SilenceUsage:       true,
		RunE:               runLoop,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.wakeloop/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.Flags().BoolVar(&monitor, "monitor", false, "show the live monitor")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wakeloop v%s\n", version)
		},
	})

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(devicesCmd())
	rootCmd.AddCommand(sayCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(transcribeCmd())
	rootCmd.AddCommand(journalCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOGGING AND CONFIGURATION
// ═══════════════════════════════════════════════════════════════════════════════

// initLogging loads secrets and configuration, then sets up the global
// logger. A configuration error is kept for the commands that need it, so
// `config path` and `version` work with a broken file.
func initLogging(cmd *cobra.Command, args []string) error {
	if noColor {
		ui.DisableColor()
	}

	envErr := config.LoadEnvFiles()

	cfg, cfgErr = loadConfig()
	if cfgErr != nil {
		cfg = config.Default()
	}

	logCfg := logging.Config{
		Level:   cfg.Logging.Level,
		Dir:     cfg.Logging.Dir,
		Console: !monitor, // the monitor owns the terminal
		NoColor: noColor,
	}
	if verbose {
		logCfg.Level = "debug"
	}
	path, closer, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	logCloser = closer

	if envErr != nil {
		log.Warn().Err(envErr).Msg("failed to load .env file")
	}
	log.Debug().Str("log_file", path).Str("config", configPath()).Str("command", cmd.Name()).Msg("wakeloop session started")
	return nil
}

func closeLogging(cmd *cobra.Command, args []string) error {
	if logCloser != nil {
		return logCloser()
	}
	return nil
}

func configPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	return config.DefaultPath()
}

func loadConfig() (*config.Config, error) {
	c, err := config.LoadFromPath(configPath())
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath(), err)
	}
	return c, nil
}

// requireConfig returns the loaded configuration or the error that
// prevented loading it.
func requireConfig() (*config.Config, error) {
	if cfgErr != nil {
		return nil, cfgErr
	}
	return cfg, nil
}

func theme() ui.Theme {
	if noColor {
		return ui.ThemePlain
	}
	return ui.ThemeDefault
}
