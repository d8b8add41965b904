package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/calfeed/internal/client"
)

var notifyCmd = &cobra.Command{
	Use:     "notify <message>",
	Short:   "Broadcast a notification to every open stream",
	GroupID: "calendar",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")
		severity, _ := cmd.Flags().GetString("severity")
		meta, _ := cmd.Flags().GetStringToString("meta")

		resp, err := calClient.Notify(context.Background(), &client.NotifyRequest{
			Type:     typ,
			Message:  strings.Join(args, " "),
			Severity: severity,
			Metadata: meta,
		})
		if err != nil {
			return fmt.Errorf("sending notification: %w", err)
		}
		if jsonOutput {
			printJSON(resp)
			return nil
		}
		if resp.ID == 0 {
			// Accepted, but the change log write failed on the server.
			fmt.Printf("Notification %s accepted but not recorded\n", resp.Type)
			return nil
		}
		fmt.Printf("Notification %s recorded as change %d\n", resp.Type, resp.ID)
		return nil
	},
}

func init() {
	notifyCmd.Flags().String("type", "", `event type (default "notification")`)
	notifyCmd.Flags().String("severity", "", "info, warning or error")
	notifyCmd.Flags().StringToString("meta", nil, "metadata key=value pairs")
}
