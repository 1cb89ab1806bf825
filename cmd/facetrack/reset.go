package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MrCodeEU/facetrack/pkg/config"
	"github.com/MrCodeEU/facetrack/pkg/logging"
	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop and recreate the PostgreSQL tables",
	Long: `Drop every FaceTrack table in PostgreSQL, then recreate the empty schema.
This deletes all enrolled identities and all stored attendance events.
Daily CSV logs are not touched.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().Bool("yes", false, "Do not ask for confirmation")
}

func confirm(r io.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := bufio.NewReader(r).ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func runReset(cmd *cobra.Command, args []string) error {
	if cfg.Storage.Backend != config.BackendPostgres {
		return errors.New("reset needs the postgres backend")
	}
	if !mustGetBool(cmd, "yes") && !confirm(os.Stdin, "Drop all FaceTrack tables, including enrolled identities?") {
		fmt.Println("Aborted.")
		return nil
	}
	ctx := cmd.Context()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.pool.Reset(ctx); err != nil {
		return err
	}
	logging.Warn("Database schema reset")
	fmt.Println("Database has been reset.")
	return nil
}
