// Package cmd implements the CLI (Command Line Interface) of the application.
//
// serve - Serve the encounter API and run the maintenance worker
// migrate - Create or update the store schema
// info - Show store size and encounter totals
// optimize - Compact the search index and store file
// prune - Bulk delete encounters
// reindex - Rebuild or verify the search index
package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string //nolint:gochecknoglobals

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{ //nolint:gochecknoglobals
	Use:           "encounters",
	Short:         "Encounter store and search service",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	setupCLI()

	if errExecute := rootCmd.ExecuteContext(context.Background()); errExecute != nil {
		os.Exit(1)
	}
}

func setupCLI() {
	rootCmd.Version = BuildVersion
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(infoCmd())
	rootCmd.AddCommand(optimizeCmd())
	rootCmd.AddCommand(pruneCmd())
	rootCmd.AddCommand(reindexCmd())
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./encounters.yml or $HOME/encounters.yml)")
}
