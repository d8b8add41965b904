package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/calfeed/internal/ui"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check that the server and its change log are reachable",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		began := time.Now()
		h, err := calClient.Health(ctx)
		if err != nil {
			return fmt.Errorf("%s unreachable: %w", serverURL, err)
		}
		rtt := time.Since(began).Round(time.Millisecond)

		if jsonOutput {
			printJSON(h)
		} else {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 1, ' ', 0)
			fmt.Fprintf(tw, "server:\t%s (%s)\n", serverURL, rtt)
			fmt.Fprintf(tw, "status:\t%s\n", ui.RenderStatus(h.Status))
			fmt.Fprintf(tw, "latest change:\t%d\n", h.Latest)
			fmt.Fprintf(tw, "open sessions:\t%d\n", h.Sessions)
			if err := tw.Flush(); err != nil {
				return err
			}
		}

		if h.Status != "ok" {
			return fmt.Errorf("server reports %s", h.Status)
		}
		return nil
	},
}
