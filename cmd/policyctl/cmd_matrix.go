package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kitloop-backend/internal/engine"
	"kitloop-backend/internal/metadata"
)

func newMatrixCmd() *cobra.Command {
	var (
		role       string
		unverified bool
	)

	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Print the full permission table for a role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := userFromFlags(role, unverified)
			if err != nil {
				return err
			}

			matrix := engine.PermissionMatrix(user)
			actions := metadata.AllActions()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			header := make([]string, 0, len(actions)+1)
			header = append(header, "RESOURCE")
			for _, a := range actions {
				header = append(header, strings.ToUpper(string(a)))
			}
			fmt.Fprintln(w, strings.Join(header, "\t"))

			for _, res := range metadata.AllResources() {
				cells := []string{string(res)}
				for _, a := range actions {
					mark := "-"
					if matrix[res][a] {
						mark = "yes"
					}
					cells = append(cells, mark)
				}
				fmt.Fprintln(w, strings.Join(cells, "\t"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Role: operator, manager or admin")
	cmd.Flags().BoolVar(&unverified, "unverified", false, "Mark the user as explicitly unverified")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
