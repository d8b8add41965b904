package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/calfeed/internal/ui"
)

var changesCmd = &cobra.Command{
	Use:     "changes",
	Short:   "Read the change log after a cursor",
	GroupID: "changes",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		after, _ := cmd.Flags().GetInt64("after")
		limit, _ := cmd.Flags().GetInt("limit")

		page, err := calClient.ListChanges(context.Background(), after, limit)
		if err != nil {
			return fmt.Errorf("listing changes: %w", err)
		}
		if jsonOutput {
			printJSON(page)
			return nil
		}
		if len(page.Changes) > 0 {
			printChangeTable(cmd.OutOrStdout(), page.Changes)
			fmt.Println()
		}
		fmt.Printf("%d changes, cursor %d, latest %d\n", len(page.Changes), page.Cursor, page.Latest)
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Short:   "List open stream sessions",
	GroupID: "changes",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := calClient.ListSessions(context.Background())
		if err != nil {
			return fmt.Errorf("listing sessions: %w", err)
		}
		if jsonOutput {
			printJSON(resp)
			return nil
		}
		if len(resp.Sessions) == 0 {
			fmt.Println("no open sessions")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tCLIENT\tCURSOR\tFROM\tFRAMES\tOPEN\tIDLE")
		for _, s := range resp.Sessions {
			client := s.ClientID
			if client == "" {
				client = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
				s.SessionID,
				client,
				s.Cursor,
				s.ResumedFrom,
				s.FramesSent,
				secs(s.SessionDurationSecs),
				ui.RenderMuted(secs(s.IdleSecs)),
			)
		}
		w.Flush()
		if resp.LowestCursor != nil {
			fmt.Printf("\nlowest cursor %d\n", *resp.LowestCursor)
		}
		return nil
	},
}

func secs(s float64) string {
	return (time.Duration(s * float64(time.Second))).Round(time.Second).String()
}

func init() {
	changesCmd.Flags().Int64("after", 0, "return records with id greater than this")
	changesCmd.Flags().Int("limit", 0, "maximum records to return")
}
