package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"tagstation/internal/catalog"
	"tagstation/internal/config"
	"tagstation/internal/label"
	"tagstation/internal/station"
)

func newLabelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "label <bottle-id>",
		Short: "Render the QR label for a bottle without reading a card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id < 0 {
				return fmt.Errorf("invalid bottle id %q", args[0])
			}
			bottle := catalog.BottleID(id)
			return ctx.withCatalog(cmd, func(cfg *config.Config, store *catalog.Store) error {
				if err := os.MkdirAll(cfg.Label.OutputDir, 0o755); err != nil {
					return fmt.Errorf("create label directory: %w", err)
				}
				rendered, err := station.RenderLabel(cmd.Context(), store, label.NewQREncoder(), cfg.Label.OutputDir, bottle)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Label for bottle %d written to %s\n", bottle, rendered.Path)
				return nil
			})
		},
	}
}
