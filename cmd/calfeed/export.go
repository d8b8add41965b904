package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/calfeed/internal/export"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Write a JSONL snapshot of users and events",
	GroupID: "system",
	Long: `Export reads users and events directly from the database and writes a
JSONL snapshot. The first line carries the change cursor the snapshot is
consistent with; a client can load it and stream from that cursor.

With --out the snapshot goes to a file ("-" for stdout). Without it, the
snapshot is written to the configured export destinations.`,
	PersistentPreRunE: localCommand,
	Args:              cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		logger := newLogger(cfg.LogFormat)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		st, err := openStore(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer st.Close()

		switch out {
		case "-":
			return export.ExportJSONL(ctx, st, os.Stdout)
		case "":
			dests := exportDestinations(ctx, cfg.Export, logger)
			if len(dests) == 0 {
				return fmt.Errorf("no export destinations configured; set CALFEED_EXPORT_S3_BUCKET or CALFEED_EXPORT_FILE, or pass --out")
			}
			return export.NewScheduler(st, dests, 0, logger).RunOnce(ctx)
		default:
			dest := &export.FileDestination{Path: out}
			if err := export.NewScheduler(st, []export.Destination{dest}, 0, logger).RunOnce(ctx); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Snapshot written to %s\n", out)
			return nil
		}
	},
}

func init() {
	exportCmd.Flags().StringP("out", "o", "", `output file ("-" for stdout)`)
}
