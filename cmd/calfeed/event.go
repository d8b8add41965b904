package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/calfeed/internal/client"
)

var eventCmd = &cobra.Command{
	Use:     "event",
	Short:   "Create, change and list calendar events",
	GroupID: "calendar",
}

var eventCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetInt64("owner")
		startStr, _ := cmd.Flags().GetString("start")
		endStr, _ := cmd.Flags().GetString("end")
		desc, _ := cmd.Flags().GetString("description")
		allDay, _ := cmd.Flags().GetBool("all-day")

		start, err := parseTime(startStr)
		if err != nil {
			return fmt.Errorf("--start: %w", err)
		}
		req := &client.CreateEventRequest{
			Title:       args[0],
			Description: desc,
			Start:       start,
			AllDay:      allDay,
			OwnerID:     owner,
		}
		if endStr != "" {
			if req.End, err = parseTime(endStr); err != nil {
				return fmt.Errorf("--end: %w", err)
			}
		}

		v, err := calClient.CreateEvent(context.Background(), req)
		if err != nil {
			return fmt.Errorf("creating event: %w", err)
		}
		if jsonOutput {
			printJSON(v)
		} else {
			fmt.Printf("Created event %d\n", v.ID)
			printEvent(cmd.OutOrStdout(), v)
		}
		return nil
	},
}

var eventUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		req := &client.UpdateEventRequest{}
		flags := cmd.Flags()
		if flags.Changed("title") {
			s, _ := flags.GetString("title")
			req.Title = &s
		}
		if flags.Changed("description") {
			s, _ := flags.GetString("description")
			req.Description = &s
		}
		if flags.Changed("start") {
			s, _ := flags.GetString("start")
			t, err := parseTime(s)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			req.Start = &t
		}
		if flags.Changed("end") {
			s, _ := flags.GetString("end")
			t, err := parseTime(s)
			if err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			req.End = &t
		}
		if flags.Changed("all-day") {
			b, _ := flags.GetBool("all-day")
			req.AllDay = &b
		}
		if flags.Changed("owner") {
			n, _ := flags.GetInt64("owner")
			req.OwnerID = &n
		}

		v, err := calClient.UpdateEvent(context.Background(), id, req)
		if err != nil {
			return fmt.Errorf("updating event %d: %w", id, err)
		}
		if jsonOutput {
			printJSON(v)
		} else {
			printEvent(cmd.OutOrStdout(), v)
		}
		return nil
	},
}

var eventDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := calClient.DeleteEvent(context.Background(), id); err != nil {
			return fmt.Errorf("deleting event %d: %w", id, err)
		}
		if !jsonOutput {
			fmt.Printf("Deleted event %d\n", id)
		}
		return nil
	},
}

var eventShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		v, err := calClient.GetEvent(context.Background(), id)
		if err != nil {
			return fmt.Errorf("getting event %d: %w", id, err)
		}
		if jsonOutput {
			printJSON(v)
		} else {
			printEvent(cmd.OutOrStdout(), v)
		}
		return nil
	},
}

var eventListCmd = &cobra.Command{
	Use:   "list",
	Short: "List events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		owners, _ := cmd.Flags().GetInt64Slice("owner")
		fromStr, _ := cmd.Flags().GetString("from")
		toStr, _ := cmd.Flags().GetString("to")
		limit, _ := cmd.Flags().GetInt("limit")

		req := &client.ListEventsRequest{OwnerIDs: owners, Limit: limit}
		var err error
		if fromStr != "" {
			if req.From, err = parseTime(fromStr); err != nil {
				return fmt.Errorf("--from: %w", err)
			}
		}
		if toStr != "" {
			if req.To, err = parseTime(toStr); err != nil {
				return fmt.Errorf("--to: %w", err)
			}
		}

		views, err := calClient.ListEvents(context.Background(), req)
		if err != nil {
			return fmt.Errorf("listing events: %w", err)
		}
		if jsonOutput {
			printJSON(views)
			return nil
		}
		if len(views) == 0 {
			fmt.Println("no events")
			return nil
		}
		printEventTable(cmd.OutOrStdout(), views)
		return nil
	},
}

// timeLayouts are the accepted --start/--end/--from/--to formats. Layouts
// without a zone are read in local time.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q (want RFC3339, YYYY-MM-DD HH:MM or YYYY-MM-DD)", s)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func init() {
	eventCreateCmd.Flags().Int64("owner", 0, "owning user id (required)")
	eventCreateCmd.Flags().String("start", "", "start time (required)")
	eventCreateCmd.Flags().String("end", "", "end time")
	eventCreateCmd.Flags().StringP("description", "d", "", "event description")
	eventCreateCmd.Flags().Bool("all-day", false, "all-day event")
	_ = eventCreateCmd.MarkFlagRequired("owner")
	_ = eventCreateCmd.MarkFlagRequired("start")

	eventUpdateCmd.Flags().String("title", "", "new title")
	eventUpdateCmd.Flags().StringP("description", "d", "", "new description")
	eventUpdateCmd.Flags().String("start", "", "new start time")
	eventUpdateCmd.Flags().String("end", "", "new end time")
	eventUpdateCmd.Flags().Bool("all-day", false, "all-day event")
	eventUpdateCmd.Flags().Int64("owner", 0, "new owning user id")

	eventListCmd.Flags().Int64Slice("owner", nil, "only events of these user ids")
	eventListCmd.Flags().String("from", "", "only events ending after this time")
	eventListCmd.Flags().String("to", "", "only events starting before this time")
	eventListCmd.Flags().Int("limit", 0, "maximum events to return")

	eventCmd.AddCommand(eventCreateCmd)
	eventCmd.AddCommand(eventUpdateCmd)
	eventCmd.AddCommand(eventDeleteCmd)
	eventCmd.AddCommand(eventShowCmd)
	eventCmd.AddCommand(eventListCmd)
}
