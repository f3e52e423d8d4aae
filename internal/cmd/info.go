package cmd

import (
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/raidmeter/encounters/internal/encounter"
	"github.com/spf13/cobra"
)

func infoCmd() *cobra.Command {
	var minDuration int64

	command := &cobra.Command{
		Use:   "info",
		Short: "Show store size and encounter totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			return withApp(ctx, true, func(app *App) error {
				info, errInfo := app.encounters.Info(ctx, minDuration)
				if errInfo != nil {
					return errInfo
				}

				bosses, errBosses := app.encounters.Bosses(ctx)
				if errBosses != nil {
					return errBosses
				}

				return renderInfo(cmd.OutOrStdout(), app.database.Path(), minDuration, info, len(bosses))
			})
		},
	}

	command.Flags().Int64Var(&minDuration, "min-duration", 0, "Seconds an encounter must last to be counted as filtered")

	return command
}

func renderInfo(writer io.Writer, path string, minDuration int64, info encounter.DBInfo, bosses int) error {
	table := tablewriter.NewTable(writer)
	table.Header("Field", "Value")

	rows := [][]string{
		{"Path", path},
		{"Size", info.Size},
		{"Free", humanize.Bytes(info.FreeBytes)},
		{"Encounters", strconv.FormatInt(info.TotalEncounters, 10)},
		{"Encounters >= " + strconv.FormatInt(minDuration, 10) + "s", strconv.FormatInt(info.TotalEncountersFiltered, 10)},
		{"Bosses", strconv.Itoa(bosses)},
	}

	for _, row := range rows {
		if errAppend := table.Append(row); errAppend != nil {
			return errAppend
		}
	}

	return table.Render()
}
