package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tagstation/internal/catalog"
	"tagstation/internal/config"
	"tagstation/internal/label"
	"tagstation/internal/logging"
	"tagstation/internal/station"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var modeFlag string
	var nameFlag string
	var loopFlag bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the station state machine against the reader",
		Long: `Run initializes the reader, waits for a card, and performs the station's
configured access and reconcile steps. Without --loop the command returns
after the first card; with --loop it keeps serving cards until a cycle fails
or the process is interrupted.

Modes: tag-write, recipe-lookup, label.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			modeName := cfg.Station.Mode
			if cmd.Flags().Changed("mode") {
				modeName = modeFlag
			}
			mode, err := station.ParseMode(modeName)
			if err != nil {
				return err
			}
			name := cfg.Station.Name
			if strings.TrimSpace(nameFlag) != "" {
				name = strings.TrimSpace(nameFlag)
			}
			if mode.Action == station.LookupAndEncodeLabel {
				if err := os.MkdirAll(cfg.Label.OutputDir, 0o755); err != nil {
					return fmt.Errorf("create label directory: %w", err)
				}
			}

			logger, err := ctx.newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer logger.Close()

			return ctx.withCatalog(cmd, func(cfg *config.Config, store *catalog.Store) error {
				runCtx := logging.WithStation(cmd.Context(), name)
				if err := waitForReader(runCtx, cfg, logging.WithContext(runCtx, logger.Logger)); err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				progress := newPollProgress(out)
				opts := station.Options{
					Name:         name,
					Mode:         mode,
					Transport:    newTransport(cfg, logger.Logger),
					Catalog:      store,
					Encoder:      label.NewQREncoder(),
					LabelDir:     cfg.Label.OutputDir,
					ReaderLock:   cfg.ReaderLockPath(),
					History:      store,
					PollInterval: cfg.PollInterval(),
					Logger:       logger.Logger,
					OnPoll:       progress.tick,
					OnTransition: progress.transition,
				}
				if mode.Access == station.ClaimAndWriteBottleID {
					opts.Claims = store.ClaimLock()
				}
				ctrl, err := station.New(opts)
				if err != nil {
					return err
				}

				quantities := newQuantityFormatter(cfg.Display.Locale)
				if loopFlag || cfg.Station.Loop {
					err := ctrl.Loop(runCtx, func(res station.Result) {
						progress.finishLine()
						if res.OK() {
							printResult(out, quantities, res)
						}
					})
					progress.finishLine()
					if errors.Is(err, context.Canceled) {
						return nil
					}
					if err != nil {
						return fmt.Errorf("station %s failed: %w", name, err)
					}
					return nil
				}

				res, err := ctrl.Run(runCtx)
				progress.finishLine()
				if err != nil {
					return err
				}
				if !res.OK() {
					return fmt.Errorf("station %s failed after %s: %w", name, formatTrace(res.Trace), res.Err)
				}
				printResult(out, quantities, res)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&modeFlag, "mode", "", "Station mode (overrides station.mode)")
	cmd.Flags().StringVar(&nameFlag, "name", "", "Station name recorded in history (overrides station.name)")
	cmd.Flags().BoolVar(&loopFlag, "loop", false, "Keep serving cards after each successful cycle")
	return cmd
}

func printResult(out io.Writer, quantities quantityFormatter, res station.Result) {
	session := res.Session
	bottle := formatBottle(session.BottleID)
	switch res.Mode.Action {
	case station.LookupComposition:
		fmt.Fprintf(out, "Bottle %s uses recipe %s\n", bottle, formatRecipe(session.RecipeID))
		rows := make([][]string, 0, len(session.Composition))
		for _, row := range session.Composition {
			rows = append(rows, []string{fmt.Sprintf("%d", row.GranulateID), quantities.format(row.Quantity)})
		}
		fmt.Fprintln(out, renderTable([]string{"Granulat", "Menge"}, rows, []columnAlignment{alignRight, alignRight}))
	case station.LookupAndEncodeLabel:
		fmt.Fprintf(out, "Label for bottle %s written to %s\n", bottle, session.LabelPath)
	case station.PersistTagClaim:
		fmt.Fprintf(out, "Bottle %s tagged on card %s at %s\n", bottle, session.UID, label.FormatTaggedAt(session.TaggedAt))
	}
}

func formatRecipe(id *catalog.RecipeID) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *id)
}

func formatTrace(trace []station.State) string {
	names := make([]string, 0, len(trace))
	for _, state := range trace {
		names = append(names, state.String())
	}
	return strings.Join(names, " > ")
}
