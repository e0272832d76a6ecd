package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/stepwise/packages/core/config"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new stepwise project",
	Long: `Initialize a new stepwise project in the current directory.

This creates:
  - .stepwise.yaml           - Configuration file with the defaults
  - example.stepwise.yaml    - Example manifest

Examples:
  stepwise init
  stepwise init --force`,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

const exampleManifest = `name: example
description: A suite showing hooks, tags, captures and BDD steps

vars:
  greeting: hello

environments:
  dev:
    target: world
  ci:
    target: pipeline

before:
  - echo "suite setup"
after:
  - echo "suite teardown"

tests:
  - name: says hello
    tags: ["@smoke"]
    steps:
      - name: build the greeting
        run: echo "{{greeting}} {{target}}"
        capture: message
      - name: check it
        run: test -n "{{message}}"

  - name: reports status
    steps:
      - run: echo '{"status": "ok", "checks": ["db", "cache"]}'
        captures:
          - name: status
            from: json.status
        expect:
          - subject: json.checks
            op: length
            value: 2
          - subject: exitCode
            op: ==
            value: 0

  - name: checkout flow
    style: bdd
    tags: ["@wip", "@owner:payments"]
    steps:
      - keyword: Given
        name: a cart with one item
        run: "true"
      - keyword: When
        name: the customer pays
        action: pending
        message: payments are not wired yet
      - keyword: Then
        name: a receipt is printed
        run: "true"
`

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, ".stepwise.yaml")
	exampleFile := filepath.Join(cwd, "example.stepwise.yaml")

	if !forceInit {
		for _, f := range []string{configFile, exampleFile} {
			if _, err := os.Stat(f); err == nil {
				return exitWith(ExitUsageError, fmt.Errorf("file already exists: %s (use --force to overwrite)", f))
			}
		}
	}

	cfg := config.DefaultConfig()
	cfg.Reporting = &config.Reporting{
		Summary: config.BoolPtr(true),
		Errors:  config.BoolPtr(true),
		Cycle:   config.BoolPtr(false),
	}
	if err := cfg.SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	if err := os.WriteFile(exampleFile, []byte(exampleManifest), 0644); err != nil {
		return fmt.Errorf("failed to create example file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", exampleFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\nstepwise project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'stepwise run example.stepwise.yaml --env dev' to execute the example suite.\n")

	return nil
}
