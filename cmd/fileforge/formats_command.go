package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newFormatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "formats [category]",
		Short: "List supported formats and their conversion targets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			var category string
			if len(args) == 1 {
				category = args[0]
			}
			formats, err := client.Formats(cmd.Context(), category)
			if err != nil {
				return err
			}
			if len(formats) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No formats found")
				return nil
			}

			rows := make([][]string, 0, len(formats))
			for _, f := range formats {
				rows = append(rows, []string{
					f.ID,
					f.Name,
					f.Category,
					strings.Join(f.ConvertibleTo, ", "),
				})
			}
			table := renderTable(
				[]string{"ID", "Name", "Category", "Converts To"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}
