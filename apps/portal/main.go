// Command portal fills in and submits admission forms from a terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trezcool/academia/core"
)

var conf *core.Config

var rootCmd = &cobra.Command{
	Use:          "portal",
	Short:        "Admissions portal",
	Long:         "portal walks applicants, agents and staff through the admission forms and submits them to the API.",
	SilenceUsage: true,
}

func main() {
	conf = core.NewConfig()

	if err := rootCmd.Execute(); err != nil {
		if err != errAborted {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
