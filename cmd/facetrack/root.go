package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrCodeEU/facetrack/pkg/config"
	"github.com/MrCodeEU/facetrack/pkg/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfg        *config.Config
	configFile string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "facetrack",
	Short: "Face recognition attendance tracking",
	Long: `FaceTrack recognises enrolled people in camera frames and keeps a
check-in/check-out attendance record for each of them.

Configuration is read from /etc/facetrack/facetrack.yaml or
~/.config/facetrack/facetrack.yaml, and FACETRACK_* environment
variables (also read from a .env file) override individual settings.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Close()
	},
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.WithError(err).Debug("Command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

func loadConfig() error {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	var err error
	if configFile != "" {
		cfg, err = config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	} else {
		cfg, err = config.LoadDefault()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	cfg.ApplyEnv()
	cfg.ExpandPaths()
	if debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if err := logging.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}
	logging.SetFormat(cfg.Logging.Format)

	logging.Debugf("FaceTrack %s starting", Version)
	logging.Debugf("Config loaded, storage dir: %s", cfg.Storage.DataDir)
	return nil
}
