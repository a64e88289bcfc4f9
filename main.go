package main

import (
	"os"

	"github.com/spf13/cobra"
)

/*
spoon-trigger is driven by cobra sub-commands:

	spoon-trigger serve             run the webhook receiver, the API and the build worker
	spoon-trigger probe             run `spoon version` with the configured executor and print it
	spoon-trigger check-projects F  validate a projects file without starting anything

every command reads its configuration from the environment (see config.Load).
flags given on the command line win over the environment.
*/
func main() {
	rootCommand := &cobra.Command{
		Use:          "spoon-trigger",
		Short:        "Builds spoon images when a repository is pushed",
		SilenceUsage: true, // a failing server should not print the flag help
	}

	rootCommand.AddCommand(
		newServeCommand(),
		newProbeCommand(),
		newCheckProjectsCommand(),
	)

	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
