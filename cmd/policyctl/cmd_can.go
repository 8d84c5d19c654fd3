package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kitloop-backend/internal/engine"
	"kitloop-backend/internal/metadata"
)

func newCanCmd() *cobra.Command {
	var (
		role       string
		unverified bool
		action     string
		resource   string
	)

	cmd := &cobra.Command{
		Use:   "can",
		Short: "Check a single permission",
		Long: `Evaluate the permission gate for one (action, resource) pair.
Prints "allow" or "deny"; a deny exits with status 1.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := userFromFlags(role, unverified)
			if err != nil {
				return err
			}
			act, err := metadata.ParseAction(action)
			if err != nil {
				return err
			}
			res, err := metadata.ParseResource(resource)
			if err != nil {
				return err
			}

			if !engine.Can(user, act, res) {
				fmt.Fprintln(cmd.OutOrStdout(), "deny")
				return errDenied
			}
			fmt.Fprintln(cmd.OutOrStdout(), "allow")
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Role: operator, manager or admin")
	cmd.Flags().BoolVar(&unverified, "unverified", false, "Mark the user as explicitly unverified")
	cmd.Flags().StringVar(&action, "action", "", "Action: create, read, update, delete or override")
	cmd.Flags().StringVar(&resource, "resource", "", "Resource: reservation, inventory, customer or financials")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("resource")
	return cmd
}
