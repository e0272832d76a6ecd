// Package result defines the outcome model shared by the execution engine.
//
// It provides:
//   - Status, the terminal state of a node (PASSED, FAILED, SKIPPED, PENDING, UNDEFINED)
//   - Outcome, the record written once onto every executed node
//   - Worst, the precedence rule used to roll outcomes up the tree
package result
