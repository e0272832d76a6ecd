package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file|directory>...",
	Short: "Validate stepwise manifests without running them",
	Long: `Validate manifests against the manifest schema, check their semantic
rules and build their execution trees, without running any step.

Examples:
  stepwise validate checkout.stepwise.yaml
  stepwise validate ./suites/`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}

	if len(files) == 0 {
		return exitWith(ExitUsageError, fmt.Errorf("no stepwise manifests found"))
	}

	hasErrors := false
	for _, file := range files {
		_, reg, report, err := load(file, false)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error in %v\n", err)
			hasErrors = true
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s (%d tests, %d bindings)\n",
			file, len(report.Suite.Children()), reg.Len())
	}

	if hasErrors {
		return exitWith(ExitParseError, fmt.Errorf("validation failed"))
	}

	return nil
}
