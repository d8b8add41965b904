package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/calfeed/internal/model"
	"github.com/alfredjeanlab/calfeed/internal/ui"
)

const timeLayout = "2006-01-02 15:04"

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printEvent(w io.Writer, v *model.EventView) {
	fmt.Fprintf(w, "ID:          %d\n", v.ID)
	fmt.Fprintf(w, "Title:       %s\n", v.Title)
	fmt.Fprintf(w, "Owner:       %s\n", ui.RenderOwner(v.OwnerColor, v.OwnerName))
	fmt.Fprintf(w, "When:        %s\n", formatSpan(&v.Event))
	if v.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", v.Description)
	}
	if !v.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated At:  %s\n", v.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
}

func printEventTable(w io.Writer, views []*model.EventView) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tOWNER\tTITLE")
	for _, v := range views {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n",
			v.ID,
			formatSpan(&v.Event),
			ui.RenderOwner(v.OwnerColor, v.OwnerName),
			truncate(v.Title, 50),
		)
	}
	tw.Flush()
}

func printUserTable(w io.Writer, users []*model.User) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tCOLOR")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", u.ID, ui.RenderOwner(u.Color, u.Name), u.Email, u.Color)
	}
	tw.Flush()
}

func printChangeTable(w io.Writer, changes []*model.ChangeRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tAT\tPAYLOAD")
	for _, c := range changes {
		at := ""
		if !c.CreatedAt.IsZero() {
			at = c.CreatedAt.Local().Format("15:04:05")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", c.ID, c.EventType, at, truncate(string(c.Payload), 60))
	}
	tw.Flush()
}

// formatSpan renders an event's time range. All-day events show dates only.
func formatSpan(e *model.Event) string {
	start := e.StartAt.Local()
	if e.AllDay {
		end := e.EndAt.Local()
		if e.EndAt.IsZero() || sameDay(start, end) {
			return start.Format("2006-01-02") + " (all day)"
		}
		return start.Format("2006-01-02") + " - " + end.Format("2006-01-02")
	}
	if e.EndAt.IsZero() {
		return start.Format(timeLayout)
	}
	end := e.EndAt.Local()
	if sameDay(start, end) {
		return start.Format(timeLayout) + "-" + end.Format("15:04")
	}
	return start.Format(timeLayout) + " - " + end.Format(timeLayout)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
