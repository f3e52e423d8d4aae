package cmd

import (
	"errors"
	"fmt"

	"github.com/raidmeter/encounters/internal/encounter"
	"github.com/spf13/cobra"
)

var ErrPruneSelection = errors.New("choose one of --min-duration, --all or --uncleared")

func optimizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "optimize",
		Short: "Compact the search index and store file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			return withApp(ctx, true, func(app *App) error {
				if errOptimize := app.encounters.Optimize(ctx); errOptimize != nil {
					return errOptimize
				}

				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Optimized")

				return nil
			})
		},
	}
}

func pruneCmd() *cobra.Command {
	var req encounter.PruneRequest

	command := &cobra.Command{
		Use:   "prune",
		Short: "Bulk delete encounters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !req.All && !req.Uncleared && req.MinDuration <= 0 {
				return ErrPruneSelection
			}

			ctx := cmd.Context()

			return withApp(ctx, true, func(app *App) error {
				deleted, errPrune := app.encounters.Prune(ctx, req)
				if errPrune != nil {
					return errPrune
				}

				if deleted > 0 {
					if errVacuum := app.maintenance.Run(ctx, encounter.JobVacuum); errVacuum != nil {
						return errVacuum
					}
				}

				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d encounters\n", deleted)

				return nil
			})
		},
	}

	command.Flags().Int64Var(&req.MinDuration, "min-duration", 0, "Delete encounters shorter than this many seconds")
	command.Flags().BoolVar(&req.All, "all", false, "Delete every encounter")
	command.Flags().BoolVar(&req.Uncleared, "uncleared", false, "Delete every uncleared encounter")
	command.Flags().BoolVar(&req.KeepFavorites, "keep-favorites", true, "Never delete favorites")

	return command
}

func reindexCmd() *cobra.Command {
	var check bool

	command := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild or verify the search index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			return withApp(ctx, true, func(app *App) error {
				if check {
					if errCheck := app.encounters.CheckSearchIndex(ctx); errCheck != nil {
						return errCheck
					}

					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Search index is consistent")

					return nil
				}

				if errRebuild := app.encounters.RebuildSearchIndex(ctx); errRebuild != nil {
					return errRebuild
				}

				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Search index rebuilt")

				return nil
			})
		},
	}

	command.Flags().BoolVar(&check, "check", false, "Only verify the index against the stored previews")

	return command
}
