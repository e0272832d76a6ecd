package output

import (
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/stepwise/packages/core/node"
	"github.com/abdul-hamid-achik/stepwise/packages/core/result"
)

// Report is one executed suite handed to the formatters.
type Report struct {
	File     string
	Suite    *node.Node
	Duration time.Duration
}

// Formatter renders reports. FormatReport is called once per suite.
type Formatter interface {
	FormatReport(report *Report)
	FormatError(err error)
	FormatHeader(version string)
}

// Flushable is implemented by formatters that buffer until the whole run is done.
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

// TestResult is a flattened view of one test case or BDD test.
type TestResult struct {
	Name     string
	Role     string
	Location string
	Tags     []string
	Outcome  *result.Outcome
	Steps    []StepResult
}

// StepResult is a leaf below a test, in execution order.
type StepResult struct {
	Name    string
	Role    string
	Depth   int
	Outcome *result.Outcome
}

// Hook reports whether the leaf is a hook rather than a step.
func (s StepResult) Hook() bool {
	return s.Role == node.RoleHook
}

// Tests flattens the suite's children into test results.
func (r *Report) Tests() []TestResult {
	if r == nil || r.Suite == nil {
		return nil
	}
	children := r.Suite.Children()
	tests := make([]TestResult, 0, len(children))
	for _, c := range children {
		tests = append(tests, flatten(c))
	}
	return tests
}

// SuiteHooks returns the suite level before and after hooks.
func (r *Report) SuiteHooks() []StepResult {
	if r == nil || r.Suite == nil {
		return nil
	}
	var hooks []StepResult
	for _, h := range append(r.Suite.Before(), r.Suite.After()...) {
		hooks = append(hooks, leafResult(h, 0))
	}
	return hooks
}

// Name returns the suite name, falling back to the file.
func (r *Report) Name() string {
	if r.Suite != nil && r.Suite.Name() != "" {
		return r.Suite.Name()
	}
	return r.File
}

// Outcome returns the suite outcome. A suite that never finished reads as UNDEFINED.
func (r *Report) Outcome() *result.Outcome {
	if r.Suite == nil || r.Suite.Result() == nil {
		return result.New(result.Undefined, "not executed")
	}
	return r.Suite.Result()
}

// Counts tallies the test level outcomes.
func (r *Report) Counts() result.Counts {
	var c result.Counts
	for _, t := range r.Tests() {
		c.Add(t.Outcome)
	}
	return c
}

// StepCounts tallies every step leaf below the suite, hooks excluded.
func (r *Report) StepCounts() result.Counts {
	var c result.Counts
	for _, t := range r.Tests() {
		for _, s := range t.Steps {
			if !s.Hook() {
				c.Add(s.Outcome)
			}
		}
	}
	return c
}

func flatten(n *node.Node) TestResult {
	t := TestResult{
		Name:    n.Name(),
		Role:    n.Role(),
		Tags:    n.Tags(),
		Outcome: n.Result(),
	}
	if loc, ok := n.Attribute(node.AttrLocation); ok {
		t.Location = fmt.Sprint(loc)
	}
	n.Walk(func(c *node.Node, depth int) bool {
		if c != n && c.IsLeaf() {
			t.Steps = append(t.Steps, leafResult(c, depth-1))
		}
		return true
	})
	return t
}

func leafResult(n *node.Node, depth int) StepResult {
	return StepResult{
		Name:    n.Name(),
		Role:    n.Role(),
		Depth:   depth,
		Outcome: n.Result(),
	}
}

func statusOf(o *result.Outcome) result.Status {
	if o == nil {
		return result.Undefined
	}
	return o.Status
}

func messageOf(o *result.Outcome) string {
	if o == nil {
		return "not executed"
	}
	return o.Message
}

func durationOf(o *result.Outcome) time.Duration {
	if o == nil {
		return 0
	}
	return o.Duration
}
