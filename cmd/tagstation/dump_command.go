package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tagstation/internal/card"
	"tagstation/internal/catalog"
	"tagstation/internal/config"
	"tagstation/internal/station"
)

func newDumpCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Wait for a card and print every readable block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer logger.Close()

			return ctx.withCatalog(cmd, func(cfg *config.Config, store *catalog.Store) error {
				if err := waitForReader(cmd.Context(), cfg, logger.Logger); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				progress := newPollProgress(out)
				ctrl, err := station.New(station.Options{
					Name:         "dump",
					Mode:         station.RecipeLookup,
					Transport:    newTransport(cfg, logger.Logger),
					Catalog:      store,
					ReaderLock:   cfg.ReaderLockPath(),
					PollInterval: cfg.PollInterval(),
					Logger:       logger.Logger,
					OnPoll:       progress.tick,
				})
				if err != nil {
					return err
				}
				if err := ctrl.Open(cmd.Context()); err != nil {
					return err
				}
				defer ctrl.Close()

				uid, blocks, err := ctrl.ReadAll(cmd.Context())
				progress.finishLine()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Card %s\n", uid)
				if len(blocks) == 0 {
					fmt.Fprintln(out, "No readable blocks")
					return nil
				}
				rows := make([][]string, 0, len(blocks))
				for _, read := range blocks {
					rows = append(rows, []string{strconv.Itoa(read.Block), read.Data.Hex()})
				}
				caption := fmt.Sprintf("%d of %d blocks readable", len(blocks), card.BlockCount)
				fmt.Fprintln(out, renderCaptionedTable(caption, []string{"Block", "Data"}, rows, []columnAlignment{alignRight, alignLeft}))
				return nil
			})
		},
	}
}
