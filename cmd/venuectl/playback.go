package main

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"venuecast/internal/core"
)

func playCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Resume playback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Play(ctx, app.accountID)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func pauseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause playback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Pause(ctx, app.accountID)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func nextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Skip to the next playlist track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Next(ctx, app.accountID)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func prevCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prev",
		Short: "Step back to the previous playlist track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Previous(ctx, app.accountID)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func seekCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seek <seconds|duration>",
		Short: "Seek within the current track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			seconds, err := parseSeconds(args[0])
			if err != nil {
				return err
			}
			result, err := app.service.Seek(ctx, app.accountID, seconds)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func stopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop playback and clear the session transport",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Stop(ctx, app.accountID)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

// parseSeconds accepts plain seconds ("90"), decimal seconds ("92.5"), or a
// Go duration ("1m30s").
func parseSeconds(arg string) (float64, error) {
	arg = strings.TrimSpace(arg)
	if value, err := strconv.ParseFloat(arg, 64); err == nil {
		return value, nil
	}
	dur, err := time.ParseDuration(arg)
	if err != nil {
		return 0, &core.CLIError{Code: core.ExitUsage, Msg: "invalid position: use seconds or a duration like 1m30s"}
	}
	return dur.Seconds(), nil
}
