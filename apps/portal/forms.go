package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trezcool/academia/core/forms"
)

var formsCmd = &cobra.Command{
	Use:   "forms",
	Short: "List the available forms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := forms.Default()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, schema := range reg.List() {
			fmt.Fprintf(out, "%-24s %s (%d sections)\n", schema.Name, schema.Title, schema.Len())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(formsCmd)
}
