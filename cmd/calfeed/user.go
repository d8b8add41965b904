package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/calfeed/internal/client"
)

var userCmd = &cobra.Command{
	Use:     "user",
	Short:   "Manage calendar users",
	GroupID: "calendar",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		color, _ := cmd.Flags().GetString("color")

		u, err := calClient.CreateUser(context.Background(), &client.CreateUserRequest{
			Name:  args[0],
			Email: email,
			Color: color,
		})
		if err != nil {
			return fmt.Errorf("creating user: %w", err)
		}
		if jsonOutput {
			printJSON(u)
		} else {
			fmt.Printf("Created user %d (%s)\n", u.ID, u.Name)
		}
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := calClient.ListUsers(context.Background())
		if err != nil {
			return fmt.Errorf("listing users: %w", err)
		}
		if jsonOutput {
			printJSON(users)
			return nil
		}
		printUserTable(cmd.OutOrStdout(), users)
		return nil
	},
}

func init() {
	userCreateCmd.Flags().String("email", "", "email address")
	userCreateCmd.Flags().String("color", "", "calendar color as #rrggbb")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userListCmd)
}
