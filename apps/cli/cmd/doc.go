// Package cmd implements the stepwise CLI commands using Cobra.
//
// Available commands:
//   - run: Execute the test trees of stepwise manifests
//   - validate: Check manifests and build their trees without executing
//   - list: Display the tests, hooks and steps of manifests
//   - init: Create a config file and an example manifest
//   - version: Show stepwise version information
//
// Flags fall back to STEPWISE_* environment variables and override the
// .stepwise config file. Exit codes are listed in exitcodes.go.
package cmd
