// Command reaperctl runs the abandoned-work sweep against the database from the
// command line.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "reaperctl",
	Short:         "Inspect and run the wrenchhub reaper",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log := logger()
		log.Error().Err(err).Msg("reaperctl failed")
		os.Exit(1)
	}
}
