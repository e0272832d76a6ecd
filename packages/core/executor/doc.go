// Package executor walks execution trees.
//
// Each test case is walked by its own goroutine (Submit, RunAll, RunSuite); inside one
// tree the walk is strictly sequential and depth-first:
//
//  1. before-hooks
//  2. body: the node's own binding when it is a leaf, then its target if set, otherwise
//     its children in order
//  3. after-hooks, which run whatever the body returned
//
// Bypass and dry states are threaded through every call and never written back onto
// nodes, so concurrent walks of different trees share nothing but the binding registry
// and the event publisher. A bypassed node is walked dry and reports at least SKIPPED.
// The node's Mode decides whether hooks and targets of a bypassed or dry node run dry or
// are skipped outright, whether children are forced dry, and whether siblings are
// skipped after a failure.
//
// The outcome of a node is the worst of its parts, using the precedence
// FAILED > UNDEFINED > PENDING > SKIPPED > PASSED.
package executor
