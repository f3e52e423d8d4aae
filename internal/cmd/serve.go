package cmd

import (
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the encounter API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			return withApp(ctx, true, func(app *App) error {
				return app.Serve(ctx)
			})
		},
	}
}
