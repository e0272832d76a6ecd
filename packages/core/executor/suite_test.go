package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/stepwise/packages/core/event"
	"github.com/abdul-hamid-achik/stepwise/packages/core/node"
	"github.com/abdul-hamid-achik/stepwise/packages/core/result"
	"github.com/abdul-hamid-achik/stepwise/packages/tagfilter"
)

func suite(mode node.Mode) *node.Builder {
	return node.NewBuilder().WithRole(node.RoleSuite).WithName("suite").WithMode(mode)
}

func TestRunSuite_BoundedConcurrency(t *testing.T) {
	f := newFixture()
	var running, peak atomic.Int32
	s := suite(node.Mode{})
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("slow-%d", i)
		id := f.bind(name, func(context.Context) error {
			n := running.Add(1)
			defer running.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			return nil
		})
		s.AddChild(testCase(name, node.TestCaseMode).
			AddChild(node.NewBuilder().WithName(name + "-step").WithBinding(id).Build()).
			Build())
	}
	exec, rec := f.executor(WithConcurrency(2))

	o := exec.RunSuite(context.Background(), s.Build(), nil, false)

	assert.Equal(t, result.Passed, o.Status)
	assert.Len(t, f.called(), 8)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Len(t, rec.Kinds(event.TestStarted), 8)
	assert.Len(t, rec.Kinds(event.TestFinished), 8)
}

func TestRunSuite_HooksRunOnce(t *testing.T) {
	f := newFixture()
	s := suite(node.SuiteMode).
		AddBefore(f.hook("suite-before", nil)).
		AddChild(testCase("a", node.TestCaseMode).AddChild(f.step("a-step", nil)).Build()).
		AddChild(testCase("b", node.TestCaseMode).AddChild(f.step("b-step", nil)).Build()).
		AddAfter(f.hook("suite-after", nil)).
		Build()
	exec, _ := f.executor()

	o := exec.RunSuite(context.Background(), s, tagfilter.All, false)

	assert.Equal(t, result.Passed, o.Status)
	assert.Same(t, o, s.Result())
	calls := f.called()
	require.Len(t, calls, 4)
	assert.Equal(t, "suite-before", calls[0])
	assert.Equal(t, "suite-after", calls[3])
}

func TestRunSuite_FilteredTestCasesAreBypassed(t *testing.T) {
	f := newFixture()
	smoke := testCase("smoke", node.TestCaseMode).
		WithAttribute(node.AttrTags, []string{"@smoke"}).
		AddBefore(f.hook("smoke-before", nil)).
		AddChild(f.step("smoke-step", nil)).
		Build()
	slow := testCase("slow", node.TestCaseMode).
		WithAttribute(node.AttrTags, []string{"@slow"}).
		AddBefore(f.hook("slow-before", nil)).
		AddChild(f.step("slow-step", nil)).
		Build()
	s := suite(node.Mode{}).AddChild(smoke).AddChild(slow).Build()
	exec, rec := f.executor()

	o := exec.RunSuite(context.Background(), s, tagfilter.NewSet([]string{"smoke"}, nil), false)

	assert.ElementsMatch(t, []string{"smoke-before", "smoke-step"}, f.called())
	assert.Equal(t, result.Passed, smoke.Result().Status)
	assert.Equal(t, result.Skipped, slow.Result().Status)
	assert.Equal(t, result.Skipped, o.Status)
	assert.Equal(t, []event.Kind{event.TestStarted, event.TestFinished}, rec.ForNode(slow))
	assert.Len(t, rec.Kinds(event.DryRun), 1)
}

func TestRunSuite_CascadeIsOrdered(t *testing.T) {
	f := newFixture()
	first := testCase("first", node.TestCaseMode).AddChild(f.step("first-step", errors.New("boom"))).Build()
	second := testCase("second", node.TestCaseMode).AddChild(f.step("second-step", nil)).Build()
	third := testCase("third", node.TestCaseMode).AddChild(f.step("third-step", nil)).Build()
	s := suite(node.SuiteMode).AddChild(first).AddChild(second).AddChild(third).Build()
	exec, _ := f.executor(WithConcurrency(4))

	o := exec.RunSuite(context.Background(), s, nil, false)

	assert.Equal(t, result.Failed, o.Status)
	assert.Equal(t, []string{"first-step"}, f.called())
	assert.Equal(t, result.Skipped, second.Result().Status)
	assert.Equal(t, result.Skipped, third.Result().Status)
}

func TestRunSuite_DryRun(t *testing.T) {
	f := newFixture()
	s := suite(node.DryRunMode).
		AddChild(node.NewBuilder().WithRole(node.RoleTest).WithName("scenario").WithMode(node.BDDTestMode).
			AddChild(node.NewBuilder().WithRole(node.RoleStepContainer).WithName("given").WithMode(node.StepContainerMode).
				AddTarget(f.step("given-step", nil)).Build()).
			Build()).
		Build()
	exec, rec := f.executor()

	o := exec.RunSuite(context.Background(), s, nil, true)

	assert.Equal(t, result.Passed, o.Status)
	assert.True(t, o.Dry)
	assert.Empty(t, f.called())
	assert.Equal(t, []event.Kind{event.DryRun}, rec.Kinds(event.DryRun, event.StepStarted))
}

func TestSubmit(t *testing.T) {
	f := newFixture()
	release := make(chan struct{})
	id := f.bind("blocking", func(context.Context) error {
		<-release
		return nil
	})
	root := testCase("tc", node.Mode{}).AddChild(node.NewBuilder().WithName("blocking").WithBinding(id).Build()).Build()
	exec, _ := f.executor()

	h := exec.Submit(context.Background(), root, false, false)
	assert.Same(t, root, h.Root())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.WaitContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("tree did not finish")
	}
	assert.Equal(t, result.Passed, h.Wait().Status)
}

func TestSubmit_TestTimeout(t *testing.T) {
	f := newFixture()
	first := f.bind("first", func(context.Context) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	second := f.step("second", nil)
	root := testCase("tc", node.Mode{}).
		AddChild(node.NewBuilder().WithName("first").WithBinding(first).Build()).
		AddChild(second).
		Build()
	exec, _ := f.executor(WithTestTimeout(10 * time.Millisecond))

	o := exec.Submit(context.Background(), root, false, false).Wait()

	assert.Equal(t, result.Failed, o.Status)
	assert.Equal(t, ReasonTimedOut, second.Result().Message)
	assert.Equal(t, []string{"first"}, f.called())
}

func TestSubmit_TestTimeoutRunsAfterHooks(t *testing.T) {
	f := newFixture()
	slow := f.bind("slow", func(context.Context) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	next := f.step("next", nil)
	var cleanupErr error
	cleanup := f.bind("cleanup", func(ctx context.Context) error {
		cleanupErr = ctx.Err()
		return nil
	})
	hook := node.NewBuilder().WithRole(node.RoleHook).WithName("cleanup").WithBinding(cleanup).Build()
	root := testCase("tc", node.Mode{}).
		AddChild(node.NewBuilder().WithName("slow").WithBinding(slow).Build()).
		AddChild(next).
		AddAfter(hook).
		Build()
	exec, _ := f.executor(WithTestTimeout(10 * time.Millisecond))

	o := exec.Submit(context.Background(), root, false, false).Wait()

	assert.Equal(t, result.Failed, o.Status)
	assert.Equal(t, ReasonTimedOut, next.Result().Message)
	assert.Equal(t, result.Passed, hook.Result().Status)
	assert.NoError(t, cleanupErr)
	assert.Equal(t, []string{"slow", "cleanup"}, f.called())
}

func TestSubmit_TestTimeoutDoesNotInterruptStep(t *testing.T) {
	f := newFixture()
	var hasDeadline bool
	var stepErr error
	slow := f.bind("slow", func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		select {
		case <-ctx.Done():
		case <-time.After(50 * time.Millisecond):
		}
		stepErr = ctx.Err()
		return nil
	})
	root := testCase("tc", node.Mode{}).AddChild(node.NewBuilder().WithName("slow").WithBinding(slow).Build()).Build()
	exec, _ := f.executor(WithTestTimeout(10 * time.Millisecond))

	o := exec.Submit(context.Background(), root, false, false).Wait()

	assert.Equal(t, result.Passed, o.Status)
	assert.False(t, hasDeadline)
	assert.NoError(t, stepErr)
}

func TestRunAll_StartRate(t *testing.T) {
	f := newFixture()
	var roots []*node.Node
	for i := 0; i < 3; i++ {
		roots = append(roots, testCase(fmt.Sprintf("tc-%d", i), node.Mode{}).
			AddChild(f.step(fmt.Sprintf("step-%d", i), nil)).Build())
	}
	exec, _ := f.executor(WithStartRate(20))

	start := time.Now()
	outcomes := exec.RunAll(context.Background(), roots, nil, false)

	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.Equal(t, result.Passed, o.Status)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
