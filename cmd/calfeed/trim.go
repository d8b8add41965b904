package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/calfeed/internal/stream"
)

var trimCmd = &cobra.Command{
	Use:     "trim",
	Short:   "Trim the change log to the retention policy",
	GroupID: "system",
	Long: `Trim deletes change records outside the configured retention window
(CALFEED_RETAIN_ROWS, CALFEED_RETAIN_AGE) directly in the database. Stream
sessions already trim on their own; this is for a one-off cleanup.`,
	PersistentPreRunE: localCommand,
	Args:              cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("keep") {
			cfg.Retention.KeepLast, _ = cmd.Flags().GetInt64("keep")
		}
		if cmd.Flags().Changed("max-age") {
			cfg.Retention.MaxAge, _ = cmd.Flags().GetDuration("max-age")
		}
		logger := newLogger(cfg.LogFormat)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		st, err := openStore(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer st.Close()

		pruner := stream.NewPruner(st, cfg.Retention, 1, logger)
		removed, err := pruner.Trim(ctx)
		if err != nil {
			return fmt.Errorf("trimming change log: %w", err)
		}
		latest, err := st.LatestChangeID(ctx)
		if err != nil {
			return fmt.Errorf("reading latest change id: %w", err)
		}

		if jsonOutput {
			printJSON(map[string]any{"removed": removed, "latest": latest, "policy": cfg.Retention})
			return nil
		}
		fmt.Printf("Removed %d change records (keep last %d, max age %s); latest id %d\n",
			removed, cfg.Retention.KeepLast, cfg.Retention.MaxAge, latest)
		return nil
	},
}

func init() {
	trimCmd.Flags().Int64("keep", 0, "keep at least this many newest records (overrides config)")
	trimCmd.Flags().Duration("max-age", 0, "drop records older than this (overrides config)")
}
