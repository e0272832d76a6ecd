// Package node implements the execution tree walked by the executor.
//
// A Node is one unit of the test hierarchy (suite, test case, test, step container,
// step or hook). Nodes are assembled with a Builder during discovery and are read-only
// afterwards, except for their result which is written exactly once when the node
// finishes executing.
//
// The Mode attached to every node decides how bypass and dry states cascade into its
// hooks, target and children. Presets matching the usual hierarchy are provided:
//   - SuiteMode and TestCaseMode: bypass hooks when bypassed, skip siblings after a failure
//   - BDDTestMode: dry hooks when dry, skip steps after a failure
//   - DryRunMode: force every child dry
//   - StepContainerMode: dry hooks and target when dry
package node
