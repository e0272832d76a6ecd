// Package output provides formatters for executed suites.
//
// Supported output formats:
//   - Console: Human-readable colored tree with a summary and step timing percentiles
//   - JSON: Machine-readable JSON output stamped with a run ID
//   - JUnit: JUnit XML format for CI integration
//   - TAP: Test Anything Protocol format
//   - HTML: Self-contained HTML report
//
// Each formatter implements the Formatter interface and can optionally
// implement Flushable for formats that accumulate results before output.
// CycleReporter is different: it is an event publisher that prints the
// step lifecycle live while the tree executes.
package output
