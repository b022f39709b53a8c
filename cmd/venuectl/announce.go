package main

import (
	"context"

	"github.com/spf13/cobra"
)

func announceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "announcements",
		Short: "Show the account's current announcements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Announcements(ctx, app.accountID)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}
