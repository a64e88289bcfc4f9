package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sasta-kro/spoon-trigger/config"
	"github.com/sasta-kro/spoon-trigger/models"
	"github.com/sasta-kro/spoon-trigger/spoon"
	"github.com/sasta-kro/spoon-trigger/validation"
)

// newProbeCommand checks that the configured executor can run the tool at all.
// it is the same version probe every build starts with.
func newProbeCommand() *cobra.Command {
	var verbose bool

	command := &cobra.Command{
		Use:   "probe",
		Short: "Run `spoon version` with the configured executor and print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load()
			if err != nil {
				return err
			}
			logger := appConfig.NewLogger()

			launchers, closeLaunchers, err := newLauncherFactory(appConfig, logger)
			if err != nil {
				return err
			}
			defer closeLaunchers()

			workingDirectory, err := os.Getwd()
			if err != nil {
				return err
			}

			// the tool's own output is only shown with --verbose
			var output io.Writer = io.Discard
			if verbose {
				output = cmd.ErrOrStderr()
			}

			launcher := launchers(&models.Project{Workspace: workingDirectory}, workingDirectory)
			client := spoon.NewClient(launcher, output, logger)

			version, err := client.RunAndExtract(cmd.Context(), spoon.NewVersionCommand())
			if err != nil {
				return fmt.Errorf("spoon version probe failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}

	command.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the tool's output to stderr")
	return command
}

// newCheckProjectsCommand validates a projects file the way serve would seed it,
// and fails when any project has an ERROR outcome.
func newCheckProjectsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check-projects FILE",
		Short: "Validate a TOML or YAML projects file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load()
			if err != nil {
				return err
			}

			projects, err := config.LoadProjects(args[0], appConfig.WorkspaceRoot)
			if err != nil {
				return err
			}

			invalid := 0
			out := cmd.OutOrStdout()
			for _, project := range projects {
				report := validation.ValidateProject(project)
				if report.HasErrors() {
					invalid++
				}

				fmt.Fprintf(out, "%s\n", project.Name)
				if len(report) == 0 {
					fmt.Fprintln(out, "  ok")
				}
				for _, fieldOutcome := range report {
					fmt.Fprintf(out, "  %-7s %s: %s\n", fieldOutcome.Level, fieldOutcome.Field, fieldOutcome.Message)
				}
			}

			if invalid > 0 {
				return fmt.Errorf("%d of %d projects have errors", invalid, len(projects))
			}
			return nil
		},
	}
}
