package main

import (
	"context"

	"github.com/spf13/cobra"
)

func takeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "take",
		Short: "Take control of the account session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.TakeControl(ctx, app.accountID)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func releaseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "release",
		Short: "Release control of the account session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.ReleaseControl(ctx, app.accountID)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}
