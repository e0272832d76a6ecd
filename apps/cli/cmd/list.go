package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/stepwise/packages/core/node"
	"github.com/abdul-hamid-achik/stepwise/packages/tagfilter"
)

var listCmd = &cobra.Command{
	Use:   "list <file|directory>...",
	Short: "List the execution tree of stepwise manifests",
	Long: `List the suites, tests, hooks and steps that a manifest describes,
without running anything. With --tags or --exclude-tags, tests that would
be bypassed are marked.

Examples:
  stepwise list checkout.stepwise.yaml
  stepwise list ./suites/ --tags smoke`,
	Args: cobra.MinimumNArgs(1),
	RunE: listCommand,
}

var (
	listTagsFlag        string
	listExcludeTagsFlag string
)

func init() {
	listCmd.Flags().StringVarP(&listTagsFlag, "tags", "t", "", "Mark tests without any of these tags as bypassed")
	listCmd.Flags().StringVar(&listExcludeTagsFlag, "exclude-tags", "", "Mark tests with any of these tags as bypassed")
}

func listCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}

	if len(files) == 0 {
		return exitWith(ExitUsageError, fmt.Errorf("no stepwise manifests found"))
	}

	filter := tagfilter.NewSet(tagfilter.Parse(listTagsFlag), tagfilter.Parse(listExcludeTagsFlag))
	failed := false
	for _, file := range files {
		_, _, report, err := load(file, false)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error parsing %v\n", err)
			failed = true
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\n%s:\n", file)
		printTree(cmd.OutOrStdout(), report.Suite, filter)
	}

	if failed {
		return exitWith(ExitParseError, nil)
	}
	return nil
}

// printTree writes one line per test and leaf below the suite. Step containers are
// transparent: their hooks and target are listed with the test's other steps.
func printTree(w io.Writer, suite *node.Node, filter tagfilter.Filter) {
	suite.Walk(func(n *node.Node, depth int) bool {
		switch {
		case n == suite, n.Role() == node.RoleStepContainer:
		case n.Role() == node.RoleTestCase, n.Role() == node.RoleTest:
			line := "  - " + n.Name()
			if tags := n.Tags(); len(tags) > 0 {
				line += fmt.Sprintf(" [%s]", strings.Join(tags, ", "))
			}
			if !filter.Filter(n.Tags()) {
				line += " (bypassed)"
			}
			fmt.Fprintln(w, line)
		case n.IsLeaf():
			indent := "  "
			if depth > 1 {
				indent = "      "
			}
			if n.Role() == node.RoleHook {
				indent += "hook: "
			}
			fmt.Fprintf(w, "%s%s\n", indent, n.Name())
		}
		return true
	})
}
