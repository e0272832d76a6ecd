package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"pgregory.net/rapid"

	"github.com/abdul-hamid-achik/stepwise/packages/core/classifier"
	"github.com/abdul-hamid-achik/stepwise/packages/core/node"
	"github.com/abdul-hamid-achik/stepwise/packages/core/result"
)

var stepErrors = []error{
	nil,
	errors.New("boom"),
	classifier.Skip("not now"),
	classifier.Pending("todo"),
	&classifier.AssertionError{Message: "mismatch", Expected: 1, Actual: 2},
}

func drawMode(t *rapid.T) node.Mode {
	return node.Mode{
		BypassBeforeWhenBypass:            rapid.Bool().Draw(t, "bypassBefore"),
		BypassAfterWhenBypass:             rapid.Bool().Draw(t, "bypassAfter"),
		BypassChildrenAfterIterationError: rapid.Bool().Draw(t, "cascade"),
		DryBeforesOnDry:                   rapid.Bool().Draw(t, "dryBefores"),
		DryAftersOnDry:                    rapid.Bool().Draw(t, "dryAfters"),
		SwitchToDryForChild:               rapid.Bool().Draw(t, "switchToDry"),
		DryTargetsOnDry:                   rapid.Bool().Draw(t, "dryTargets"),
	}
}

// drawTree builds a random tree whose leaves may fail, skip or panic.
func drawTree(t *rapid.T, f *fixture, depth int, seq *int) *node.Node {
	*seq++
	name := fmt.Sprintf("n%d", *seq)

	if depth == 0 || rapid.IntRange(0, 3).Draw(t, "leafChance") == 0 {
		err := rapid.SampledFrom(stepErrors).Draw(t, "err")
		return f.step(name, err)
	}

	b := node.NewBuilder().WithName(name).WithMode(drawMode(t))
	for i := rapid.IntRange(0, 2).Draw(t, "befores"); i > 0; i-- {
		b.AddBefore(drawTree(t, f, depth-1, seq))
	}
	if rapid.Bool().Draw(t, "hasTarget") {
		b.AddTarget(drawTree(t, f, depth-1, seq))
	} else {
		for i := rapid.IntRange(0, 3).Draw(t, "children"); i > 0; i-- {
			b.AddChild(drawTree(t, f, depth-1, seq))
		}
	}
	for i := rapid.IntRange(0, 2).Draw(t, "afters"); i > 0; i-- {
		b.AddAfter(drawTree(t, f, depth-1, seq))
	}
	return b.Build()
}

func TestProperty_DryNeverInvokes(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture()
		seq := 0
		root := drawTree(t, f, 3, &seq)
		exec, _ := f.executor()

		o := exec.Execute(context.Background(), root, false, true)

		if calls := f.called(); len(calls) != 0 {
			t.Fatalf("dry run invoked %v", calls)
		}
		if o.Status != result.Passed && o.Status != result.Skipped {
			t.Fatalf("dry run produced %s", o.Status)
		}
	})
}

func TestProperty_BypassedRootIsSkipped(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture()
		seq := 0
		root := node.NewBuilder().WithName("root").WithMode(drawMode(t)).
			AddChild(drawTree(t, f, 3, &seq)).
			Build()
		exec, _ := f.executor()

		o := exec.Execute(context.Background(), root, true, false)

		if calls := f.called(); len(calls) != 0 {
			t.Fatalf("bypassed tree invoked %v", calls)
		}
		if o.Status != result.Skipped {
			t.Fatalf("bypassed root is %s, want SKIPPED", o.Status)
		}
	})
}

func TestProperty_EveryNodeGetsAResult(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture()
		seq := 0
		root := drawTree(t, f, 3, &seq)
		exec, _ := f.executor()

		exec.Execute(context.Background(), root,
			rapid.Bool().Draw(t, "bypass"), rapid.Bool().Draw(t, "dry"))

		root.Walk(func(n *node.Node, _ int) bool {
			if n.Result() == nil {
				t.Fatalf("node %s has no result", n.Name())
			}
			return true
		})
	})
}

func TestProperty_RootIsWorstOfItsParts(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture()
		seq := 0
		root := drawTree(t, f, 3, &seq)
		exec, _ := f.executor()

		o := exec.Execute(context.Background(), root, false, false)

		worst := result.Passed
		for _, group := range [][]*node.Node{root.Before(), root.Children(), root.After()} {
			for _, n := range group {
				worst = result.Worst(worst, n.Result().Status)
			}
		}
		if target := root.Target(); target != nil {
			worst = result.Worst(worst, target.Result().Status)
		}
		if !root.IsLeaf() && o.Status != worst {
			t.Fatalf("root is %s, worst part is %s", o.Status, worst)
		}
	})
}

func TestProperty_AfterHooksRunExactlyOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture()
		seq := 0
		after := f.hook("after", nil)
		root := node.NewBuilder().WithName("root").WithMode(drawMode(t)).
			AddBefore(drawTree(t, f, 2, &seq)).
			AddChild(drawTree(t, f, 2, &seq)).
			AddChild(node.NewBuilder().WithName("panics").WithBinding(f.bind("panics", func(context.Context) error {
				panic("step exploded")
			})).Build()).
			AddAfter(after).
			Build()
		exec, _ := f.executor()

		exec.Execute(context.Background(), root, false, false)

		if n := f.count("after"); n != 1 {
			t.Fatalf("after hook ran %d times", n)
		}
	})
}

// With cascade skip, the children after the first failure are never invoked.
func TestProperty_CascadeSkip(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("only children up to the first failure run", prop.ForAll(
		func(failing []bool) bool {
			f := newFixture()
			b := testCase("tc", node.TestCaseMode)
			firstFailure := -1
			for i, fails := range failing {
				var err error
				if fails {
					err = errors.New("boom")
					if firstFailure < 0 {
						firstFailure = i
					}
				}
				b.AddChild(f.step(fmt.Sprintf("s%d", i), err))
			}
			exec, _ := f.executor()
			o := exec.Execute(context.Background(), b.Build(), false, false)

			want := len(failing)
			wantStatus := result.Passed
			if firstFailure >= 0 {
				want = firstFailure + 1
				wantStatus = result.Failed
			}
			return len(f.called()) == want && o.Status == wantStatus
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
