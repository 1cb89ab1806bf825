package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrCodeEU/facetrack/pkg/config"
	"github.com/MrCodeEU/facetrack/pkg/logging"
	"github.com/MrCodeEU/facetrack/pkg/tracker"
	"github.com/MrCodeEU/facetrack/pkg/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance web service",
	Long: `Start the FaceTrack HTTP API.

Stored identities are loaded first, then every image in the configured
faces directory is enrolled under a name derived from its file name.
In session mode the people enrolled at this point form the set of
names to be marked.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides config)")
	serveCmd.Flags().String("mode", "", "Attendance mode: ledger or session (overrides config)")
	serveCmd.Flags().String("faces", "", "Directory of face images to enroll at startup (overrides config)")
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	if port := mustGetInt(cmd, "port"); port != 0 {
		cfg.Server.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Server.Host = host
	}
	if mode := mustGetString(cmd, "mode"); mode != "" {
		cfg.Attendance.Mode = mode
	}
	if faces := mustGetString(cmd, "faces"); faces != "" {
		cfg.Roster.FacesDir = config.ExpandPath(faces)
	}
	return cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}
	ctx := cmd.Context()

	ex, err := newExtractor(cfg)
	if err != nil {
		return err
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		_ = ex.Close()
		return err
	}
	defer b.Close()

	r, err := loadRoster(ctx, b, ex)
	if err != nil {
		_ = ex.Close()
		return err
	}

	if cfg.Roster.FacesDir != "" {
		report, err := tracker.ImportDir(ctx, r, cfg.Roster.FacesDir, cfg.Recognition.MaxFrameWidth, nil)
		if err != nil {
			_ = ex.Close()
			return fmt.Errorf("failed to import faces from %s: %w", cfg.Roster.FacesDir, err)
		}
		logging.WithFields(logging.Fields{
			"enrolled": len(report.Enrolled),
			"skipped":  len(report.Skipped),
		}).Infof("Imported faces from %s", cfg.Roster.FacesDir)
	}

	if r.Len() == 0 {
		if cfg.Roster.RequireEnrolled {
			_ = ex.Close()
			return errors.New("no faces enrolled: add images to the faces directory or run 'facetrack enroll'")
		}
		logging.Warn("No faces enrolled; every detected face will be reported as unknown")
	}

	t, err := newTracker(cfg, r, ex, b.sink)
	if err != nil {
		_ = ex.Close()
		return err
	}
	defer func() { _ = t.Close() }()

	server := web.NewServer(cfg, t)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("FaceTrack listening on http://%s (%s mode, %d enrolled)\n", cfg.Addr(), t.Mode(), r.Len())
	fmt.Println("Press Ctrl+C to stop")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	fmt.Println("\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
