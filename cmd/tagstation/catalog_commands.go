package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tagstation/internal/catalog"
	"tagstation/internal/config"
	"tagstation/internal/label"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Maintain the bottle and recipe catalog",
	}
	cmd.AddCommand(newCatalogMigrateCommand(ctx))
	cmd.AddCommand(newCatalogSeedCommand(ctx))
	cmd.AddCommand(newCatalogListCommand(ctx))
	cmd.AddCommand(newCatalogUntaggedCommand(ctx))
	cmd.AddCommand(newCatalogCompositionCommand(ctx))
	return cmd
}

func newCatalogMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(cmd, func(_ *config.Config, store *catalog.Store) error {
				out := cmd.OutOrStdout()
				for _, version := range store.Applied() {
					fmt.Fprintf(out, "Applied migration %05d\n", version)
				}
				version, err := store.SchemaVersion(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Catalog %s at schema version %d\n", store.Path(), version)
				return nil
			})
		},
	}
}

func newCatalogSeedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Load bottles and recipe compositions from a TOML seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := catalog.LoadSeed(args[0])
			if err != nil {
				return err
			}
			return ctx.withCatalog(cmd, func(_ *config.Config, store *catalog.Store) error {
				result, err := store.ApplySeed(cmd.Context(), seed)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d bottles and %d composition rows\n", result.Bottles, result.Compositions)
				return nil
			})
		},
	}
}

func newCatalogListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List bottles and their tagging status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(cmd, func(_ *config.Config, store *catalog.Store) error {
				bottles, err := store.ListBottles(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(bottles) == 0 {
					fmt.Fprintln(out, "Catalog has no bottles")
					return nil
				}
				rows := make([][]string, 0, len(bottles))
				untagged := 0
				for _, bottle := range bottles {
					tagged := "no"
					if bottle.Tagged() {
						tagged = label.FormatTaggedAt(bottle.TaggedAt)
					} else {
						untagged++
					}
					rows = append(rows, []string{
						strconv.FormatInt(int64(bottle.ID), 10),
						strconv.FormatInt(int64(bottle.RecipeID), 10),
						tagged,
					})
				}
				caption := fmt.Sprintf("%d bottles, %d untagged", len(bottles), untagged)
				fmt.Fprintln(out, renderCaptionedTable(caption, []string{"Bottle", "Recipe", "Tagged"}, rows, []columnAlignment{alignRight, alignRight, alignLeft}))
				return nil
			})
		},
	}
}

func newCatalogUntaggedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "untagged",
		Short: "Show the bottle the next tag-write cycle would claim",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(cmd, func(_ *config.Config, store *catalog.Store) error {
				id, found, err := store.FirstUntaggedBottle(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !found {
					fmt.Fprintln(out, "No untagged bottles")
					return nil
				}
				fmt.Fprintf(out, "Next untagged bottle: %d\n", id)
				return nil
			})
		},
	}
}

func newCatalogCompositionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "composition <recipe-id>",
		Short: "Show the granulate composition of a recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid recipe id %q", args[0])
			}
			return ctx.withCatalog(cmd, func(cfg *config.Config, store *catalog.Store) error {
				rows, err := store.CompositionFor(cmd.Context(), catalog.RecipeID(id))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintf(out, "Recipe %d has no composition rows\n", id)
					return nil
				}
				quantities := newQuantityFormatter(cfg.Display.Locale)
				table := make([][]string, 0, len(rows))
				for _, row := range rows {
					table = append(table, []string{strconv.FormatInt(int64(row.GranulateID), 10), quantities.format(row.Quantity)})
				}
				fmt.Fprintln(out, renderTable([]string{"Granulat", "Menge"}, table, []columnAlignment{alignRight, alignRight}))
				return nil
			})
		},
	}
}
