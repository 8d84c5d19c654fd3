package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kitloop-backend/internal/engine"
)

func newMessageCmd() *cobra.Command {
	var lang string

	cmd := &cobra.Command{
		Use:   "message CODE",
		Short: "Print the localized message for a reason or error code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), engine.Localize(args[0], lang))
			return nil
		},
	}

	cmd.Flags().StringVar(&lang, "lang", "en", "Language (Accept-Language syntax)")
	return cmd
}
