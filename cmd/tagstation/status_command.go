package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tagstation/internal/preflight"
	"tagstation/internal/station"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check reader, catalog, and directory readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			mode, err := station.ParseMode(cfg.Station.Mode)
			if err != nil {
				return err
			}
			for _, line := range renderSectionHeader("Station", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Name", statusInfo, cfg.Station.Name, colorize))
			fmt.Fprintln(out, renderStatusLine("Mode", statusInfo, fmt.Sprintf("%s (%s, %s)", mode, mode.Access, mode.Action), colorize))
			fmt.Fprintln(out)

			results := preflight.RunAll(cmd.Context(), cfg)
			for _, line := range renderSectionHeader("Checks", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, result := range results {
				fmt.Fprintln(out, renderStatusLine(result.Name, preflightKind(result), result.Detail, colorize))
			}
			if failed := preflight.Failed(results); failed > 0 {
				return fmt.Errorf("%d preflight checks failed", failed)
			}
			return nil
		},
	}
}

func preflightKind(result preflight.Result) statusKind {
	switch {
	case result.Passed:
		return statusOK
	case result.Warning:
		return statusWarn
	default:
		return statusError
	}
}
