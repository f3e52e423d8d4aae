package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// migrateCmd creates or upgrades the store schema and lists the steps that ran.
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the store schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			return withApp(ctx, false, func(app *App) error {
				applied, errMigrate := app.database.Migrate(ctx)
				if errMigrate != nil {
					return errMigrate
				}

				out := cmd.OutOrStdout()
				if len(applied) == 0 {
					_, _ = fmt.Fprintln(out, "Schema is up to date")

					return nil
				}

				for _, step := range applied {
					_, _ = fmt.Fprintf(out, "applied %s\n", step)
				}

				return nil
			})
		},
	}
}
