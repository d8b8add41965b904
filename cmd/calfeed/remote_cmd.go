package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var remoteCmd = &cobra.Command{
	Use:     "remote",
	Short:   "Manage named calfeed servers",
	GroupID: "system",
	// Remote subcommands only touch the local remotes file.
	PersistentPreRunE: localCommand,
}

// editRemotes loads the remote book, applies fn, and saves the result.
func editRemotes(fn func(*remoteBook) error) error {
	b, err := openRemoteBook()
	if err != nil {
		return err
	}
	if err := fn(b); err != nil {
		return err
	}
	return b.save()
}

func formatOwners(ids []int64) string {
	if len(ids) == 0 {
		return "all"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add or replace a named remote",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		owners, _ := cmd.Flags().GetInt64Slice("owner")
		err := editRemotes(func(b *remoteBook) error {
			return b.add(args[0], args[1], token, owners)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added remote %s -> %s\n", args[0], args[1])
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Forget a named remote",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := editRemotes(func(b *remoteBook) error { return b.remove(args[0]) }); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed remote %s\n", args[0])
		return nil
	},
}

var remoteUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Make a remote the default for other commands",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := editRemotes(func(b *remoteBook) error { return b.use(args[0]) }); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Now using remote %s\n", args[0])
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List remotes, marking the active one",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openRemoteBook()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(b.Remotes) == 0 {
			fmt.Fprintln(out, "No remotes. Add one with 'calfeed remote add <name> <url>'.")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  NAME\tURL\tOWNERS\tTOKEN")
		names := make([]string, 0, len(b.Remotes))
		for name := range b.Remotes {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			r := b.Remotes[name]
			mark := " "
			if name == b.Active {
				mark = "*"
			}
			fmt.Fprintf(tw, "%s %s\t%s\t%s\t%s\n", mark, name, r.URL, formatOwners(r.Owners), maskToken(r.Token, 8, "...", true))
		}
		return tw.Flush()
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show [<name>]",
	Short: "Show one remote (the active one by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openRemoteBook()
		if err != nil {
			return err
		}
		var want string
		if len(args) == 1 {
			want = args[0]
		}
		name, r, err := b.lookup(want)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		if name == b.Active {
			name += " (active)"
		}
		fmt.Fprintf(tw, "name:\t%s\n", name)
		fmt.Fprintf(tw, "url:\t%s\n", r.URL)
		fmt.Fprintf(tw, "owners:\t%s\n", formatOwners(r.Owners))
		if r.Token != "" {
			fmt.Fprintf(tw, "token:\t%s\n", maskToken(r.Token, 8, "*", false))
		}
		return tw.Flush()
	},
}

func init() {
	remoteAddCmd.Flags().String("token", "", "bearer token sent with changes")
	remoteAddCmd.Flags().Int64Slice("owner", nil, "default user ids for watch")

	remoteCmd.AddCommand(remoteAddCmd, remoteRemoveCmd, remoteUseCmd, remoteListCmd, remoteShowCmd)
}
