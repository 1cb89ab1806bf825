package main

import (
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/MrCodeEU/facetrack/pkg/logging"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// model is a dlib model file published as a bzip2 archive.
type model struct {
	Name string
	URL  string
	// Optional models are only needed with use_cnn.
	Optional bool
}

var dlibModels = []model{
	{
		Name: "shape_predictor_5_face_landmarks.dat",
		URL:  "http://dlib.net/files/shape_predictor_5_face_landmarks.dat.bz2",
	},
	{
		Name: "dlib_face_recognition_resnet_model_v1.dat",
		URL:  "http://dlib.net/files/dlib_face_recognition_resnet_model_v1.dat.bz2",
	},
	{
		Name:     "mmod_human_face_detector.dat",
		URL:      "http://dlib.net/files/mmod_human_face_detector.dat.bz2",
		Optional: true,
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage the dlib face recognition models",
}

var modelsDownloadCmd = &cobra.Command{
	Use:   "download [dir]",
	Short: "Download the dlib models",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runModelsDownload,
}

var modelsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which models are installed",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, m := range dlibModels {
			state := "missing"
			if _, err := os.Stat(filepath.Join(cfg.Recognition.ModelPath, m.Name)); err == nil {
				state = "installed"
			} else if m.Optional {
				state = "missing (optional, needed for use_cnn)"
			}
			fmt.Printf("  %-45s %s\n", m.Name, state)
		}
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsDownloadCmd)
	modelsCmd.AddCommand(modelsStatusCmd)
}

func runModelsDownload(cmd *cobra.Command, args []string) error {
	modelDir := cfg.Recognition.ModelPath
	if len(args) > 0 {
		modelDir = args[0]
	}

	logging.Infof("Downloading models to: %s", modelDir)

	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	for _, m := range dlibModels {
		targetPath := filepath.Join(modelDir, m.Name)
		if _, err := os.Stat(targetPath); err == nil {
			logging.Infof("Model %s already exists, skipping", m.Name)
			continue
		}

		if err := downloadAndExtract(cmd.Context(), m.URL, targetPath, m.Name); err != nil {
			return fmt.Errorf("failed to download %s: %w", m.Name, err)
		}
		logging.Infof("Successfully downloaded %s", m.Name)
	}

	logging.Info("All models downloaded successfully!")
	return nil
}

// downloadAndExtract fetches a bzip2 archive and writes the decompressed
// file to targetPath. A partial download never replaces targetPath.
func downloadAndExtract(ctx context.Context, url, targetPath, label string) error {
	client := &http.Client{
		Timeout: 10 * time.Minute,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	tmpPath := targetPath + ".part"
	out, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmpPath) }()

	bar := progressbar.DefaultBytes(resp.ContentLength, "Downloading "+label)
	bz2Reader := bzip2.NewReader(io.TeeReader(resp.Body, bar))

	if _, err := io.Copy(out, bz2Reader); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, targetPath)
}
