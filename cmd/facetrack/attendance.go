package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/MrCodeEU/facetrack/pkg/config"
	"github.com/MrCodeEU/facetrack/pkg/logging"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [name]",
	Short: "Show recorded attendance",
	Long: `Show recorded attendance events, optionally for a single person.

With the file backend the daily CSV log for --date (default today) is
read. With the postgres backend all stored events are listed, or only
those on --date when it is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all stored attendance events",
	Long: `Delete all attendance events stored in PostgreSQL.
Daily CSV logs are never deleted by facetrack.`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(clearCmd)

	historyCmd.Flags().String("date", "", "Day to show (YYYY-MM-DD)")
	clearCmd.Flags().Bool("yes", false, "Do not ask for confirmation")
}

// parseDay parses a YYYY-MM-DD day in loc. An empty value is today.
func parseDay(value string, loc *time.Location, now time.Time) (time.Time, error) {
	if value == "" {
		y, m, d := now.In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	day, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", value)
	}
	return day, nil
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	var name string
	if len(args) > 0 {
		name = args[0]
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	dateFlag := mustGetString(cmd, "date")
	day, err := parseDay(dateFlag, loc, time.Now())
	if err != nil {
		return err
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if b.events != nil {
		rows, err := b.events.Events(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "NAME\tTYPE\tTIME")
		for _, row := range rows {
			if dateFlag != "" && !sameDay(row.Timestamp, day, loc) {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", row.Name, row.Type, row.Timestamp.In(loc).Format("2006-01-02 15:04:05"))
		}
		return nil
	}

	logging.Debugf("Reading %s", b.csv.PathFor(day))
	rows, err := b.csv.ReadDay(day)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Printf("No attendance recorded on %s.\n", day.Format("2006-01-02"))
		return nil
	}
	fmt.Fprintln(w, "NAME\tTYPE\tTIME")
	for _, row := range rows {
		if len(row) < 3 || (name != "" && row[0] != name) {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s %s\n", row[0], row[1], day.Format("2006-01-02"), row[2])
	}
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	if cfg.Storage.Backend != config.BackendPostgres {
		return fmt.Errorf("nothing to clear: the file backend keeps attendance only in daily CSV logs under %s", cfg.Storage.AttendanceDir)
	}
	if !mustGetBool(cmd, "yes") {
		return errors.New("refusing to delete all attendance events without --yes")
	}
	ctx := cmd.Context()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.events.Clear(ctx); err != nil {
		return err
	}
	logging.Warn("Stored attendance events cleared")
	fmt.Println("All stored attendance events have been deleted.")
	return nil
}
