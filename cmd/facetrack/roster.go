package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MrCodeEU/facetrack/pkg/imaging"
	"github.com/MrCodeEU/facetrack/pkg/logging"
	"github.com/MrCodeEU/facetrack/pkg/recognition"
	"github.com/MrCodeEU/facetrack/pkg/roster"
	"github.com/MrCodeEU/facetrack/pkg/tracker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <name> <image>",
	Short: "Enroll a face from an image file",
	Long: `Enroll the first face found in an image under the given name.
Enrolling an existing name replaces its stored face.`,
	Args: cobra.ExactArgs(2),
	RunE: runEnroll,
}

var importCmd = &cobra.Command{
	Use:   "import [dir]",
	Short: "Enroll every image in a directory",
	Long: `Enroll each .jpg, .jpeg and .png file in a directory. The name is the
file name without its extension, underscores become spaces and each word
is capitalised: "john_doe.jpg" enrolls "John Doe". Images without a face
are skipped. The directory defaults to the configured faces directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled people",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var removeCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an enrolled person and their attendance history",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

var matchCmd = &cobra.Command{
	Use:   "match <image>",
	Short: "Show who is recognised in an image without recording attendance",
	Args:  cobra.ExactArgs(1),
	RunE:  runMatch,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(matchCmd)

	importCmd.Flags().Bool("quiet", false, "Disable the progress bar")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	name, path := args[0], args[1]
	ctx := cmd.Context()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	ex, err := newExtractor(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = ex.Close() }()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	r, err := loadRoster(ctx, b, ex)
	if err != nil {
		return err
	}
	t, err := newTracker(cfg, r, ex, b.sink)
	if err != nil {
		return err
	}

	_, existed := r.Get(name)
	id, err := t.Enroll(ctx, name, data)
	if err != nil {
		return err
	}

	if existed {
		fmt.Printf("Face for '%s' has been replaced.\n", id.Name)
	} else {
		fmt.Printf("'%s' has been enrolled.\n", id.Name)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	dir := cfg.Roster.FacesDir
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		return errors.New("no directory given and roster.faces_dir is not configured")
	}
	ctx := cmd.Context()

	files, err := roster.ScanDir(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Printf("No images found in %s\n", dir)
		return nil
	}

	ex, err := newExtractor(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = ex.Close() }()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	r, err := loadRoster(ctx, b, ex)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !mustGetBool(cmd, "quiet") {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Enrolling faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	report, err := tracker.ImportDir(ctx, r, dir, cfg.Recognition.MaxFrameWidth, func(roster.ImportFile, error) {
		if bar != nil {
			_ = bar.Add(1)
		}
	})
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if report != nil {
		fmt.Printf("Enrolled: %d\n", len(report.Enrolled))
		if len(report.Skipped) > 0 {
			fmt.Printf("Skipped (no face found): %d\n", len(report.Skipped))
			for _, p := range report.Skipped {
				fmt.Printf("  - %s\n", filepath.Base(p))
			}
		}
	}
	return err
}

func runList(cmd *cobra.Command, args []string) error {
	logging.Debug("Listing enrolled people")
	ctx := cmd.Context()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	r, err := loadRoster(ctx, b, nil)
	if err != nil {
		return err
	}

	names := r.List()
	if len(names) == 0 {
		fmt.Println("No one enrolled.")
		return nil
	}

	fmt.Println("Enrolled people:")
	for _, name := range names {
		id, _ := r.Get(name)
		fmt.Printf("  - %-30s enrolled %s\n", name, id.EnrolledAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Printf("\nTotal: %d\n", len(names))
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	name := args[0]
	ctx := cmd.Context()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	r, err := loadRoster(ctx, b, nil)
	if err != nil {
		return err
	}
	t, err := newTracker(cfg, r, nil, b.sink)
	if err != nil {
		return err
	}

	logging.Infof("Removing face data for: %s", name)
	removed, err := t.Remove(ctx, name)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Printf("'%s' is not enrolled.\n", name)
		return nil
	}
	fmt.Printf("Face data for '%s' has been removed.\n", name)
	return nil
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	frame, err := imaging.Prepare(data, cfg.Recognition.MaxFrameWidth)
	if err != nil {
		return err
	}

	ex, err := newExtractor(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = ex.Close() }()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	r, err := loadRoster(ctx, b, ex)
	if err != nil {
		return err
	}

	faces, err := ex.DetectAndEncode(frame.JPEG)
	if err != nil {
		return err
	}
	if len(faces) == 0 {
		fmt.Println(tracker.GetErrorMessage(tracker.ErrCodeNoFace))
		return nil
	}

	m := recognition.NewMatcher(cfg.Recognition.Threshold)
	for i, f := range faces {
		res := r.Match(m, f.Descriptor)
		x, y, w, h := frame.ScaleRect(f.BoundingBox.X, f.BoundingBox.Y, f.BoundingBox.Width, f.BoundingBox.Height)
		box := recognition.Rectangle{X: x, Y: y, Width: w, Height: h}.Box()
		if res.Known {
			fmt.Printf("Face %d: %s (distance %.3f) at %v\n", i+1, res.Name, res.Distance, box)
		} else {
			fmt.Printf("Face %d: %s at %v\n", i+1, recognition.Unknown, box)
		}
	}
	return nil
}
