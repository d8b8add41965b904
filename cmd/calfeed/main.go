package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/calfeed/internal/client"
	"github.com/alfredjeanlab/calfeed/internal/ui"
)

var (
	serverURL  string
	authToken  string
	jsonOutput bool
	noColor    bool

	calClient client.CalendarClient
)

func defaultServerURL() string {
	if s := os.Getenv("CALFEED_URL"); s != "" {
		return s
	}
	if u := activeRemote().URL; u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultToken() string {
	if s := os.Getenv("CALFEED_TOKEN"); s != "" {
		return s
	}
	return activeRemote().Token
}

// localCommand skips client setup for commands that do not talk to a server.
func localCommand(cmd *cobra.Command, args []string) error {
	if noColor {
		ui.ForceNoColor()
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:          "calfeed <command>",
	Short:        "Calendar server with a resumable change stream",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			ui.ForceNoColor()
		}
		calClient = client.NewHTTPClient(serverURL, authToken)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if calClient != nil {
			calClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", defaultServerURL(), "calfeed server URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(), "bearer token for mutations")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "calendar", Title: "Calendar:"},
		&cobra.Group{ID: "changes", Title: "Change stream:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Calendar
	rootCmd.AddCommand(eventCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(notifyCmd)

	// Change stream
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(changesCmd)
	rootCmd.AddCommand(sessionsCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(trimCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
