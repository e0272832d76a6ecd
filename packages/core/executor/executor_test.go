package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/abdul-hamid-achik/stepwise/packages/core/classifier"
	"github.com/abdul-hamid-achik/stepwise/packages/core/event"
	"github.com/abdul-hamid-achik/stepwise/packages/core/node"
	"github.com/abdul-hamid-achik/stepwise/packages/core/result"
)

func TestExecute_SinglePassingStep(t *testing.T) {
	f := newFixture()
	root := testCase("tc", node.TestCaseMode).AddChild(f.step("step", nil)).Build()
	exec, rec := f.executor()

	o := exec.Execute(context.Background(), root, false, false)

	assert.Equal(t, result.Passed, o.Status)
	assert.Same(t, o, root.Result())
	assert.Equal(t, []event.Kind{event.TestStarted, event.StepStarted, event.StepFinished, event.TestFinished}, rec.Kinds())
	assert.Equal(t, []string{"step"}, f.called())
}

func TestExecute_BeforeHookSkipDoesNotStopBody(t *testing.T) {
	f := newFixture()
	before := f.hook("before", classifier.Skip("feature flag off"))
	step := f.step("step", nil)
	root := testCase("tc", node.TestCaseMode).AddBefore(before).AddChild(step).Build()
	exec, rec := f.executor()

	o := exec.Execute(context.Background(), root, false, false)

	assert.Equal(t, result.Skipped, o.Status)
	assert.Contains(t, o.Message, "feature flag off")
	assert.Equal(t, []string{"before", "step"}, f.called())
	assert.Equal(t, result.Passed, step.Result().Status)
	assert.Equal(t, []event.Kind{event.HookStarted, event.HookFinished}, rec.ForNode(before))
}

func TestExecute_CascadeSkipAfterFailure(t *testing.T) {
	f := newFixture()
	first := f.step("first", errors.New("boom"))
	second := f.step("second", nil)
	third := f.step("third", nil)
	root := testCase("tc", node.TestCaseMode).AddChild(first).AddChild(second).AddChild(third).Build()
	exec, rec := f.executor()

	o := exec.Execute(context.Background(), root, false, false)

	assert.Equal(t, result.Failed, o.Status)
	assert.Equal(t, result.Failed, first.Result().Status)
	assert.Equal(t, result.Skipped, second.Result().Status)
	assert.Equal(t, ReasonPreviousFailure, second.Result().Message)
	assert.Equal(t, result.Skipped, third.Result().Status)
	assert.Equal(t, []string{"first"}, f.called())
	assert.Equal(t, []event.Kind{event.Skipped}, rec.ForNode(second))
}

func TestExecute_NoCascadeWithoutFlag(t *testing.T) {
	f := newFixture()
	root := testCase("tc", node.Mode{}).
		AddChild(f.step("first", errors.New("boom"))).
		AddChild(f.step("second", nil)).
		Build()
	exec, _ := f.executor()

	o := exec.Execute(context.Background(), root, false, false)

	assert.Equal(t, result.Failed, o.Status)
	assert.Equal(t, []string{"first", "second"}, f.called())
}

func TestExecute_BypassedNodeWithDryTarget(t *testing.T) {
	f := newFixture()
	before := f.hook("before", nil)
	after := f.hook("after", nil)
	target := f.step("target", nil)
	root := node.NewBuilder().
		WithRole(node.RoleStepContainer).
		WithName("container").
		WithMode(node.Mode{BypassBeforeWhenBypass: true, BypassAfterWhenBypass: true, DryTargetsOnDry: true}).
		AddBefore(before).
		AddTarget(target).
		AddAfter(after).
		Build()
	exec, rec := f.executor()

	o := exec.Execute(context.Background(), root, true, false)

	assert.Equal(t, result.Skipped, o.Status)
	assert.Equal(t, ReasonBypassed, o.Message)
	assert.True(t, o.Dry)
	assert.Equal(t, result.Skipped, before.Result().Status)
	assert.Equal(t, result.Skipped, after.Result().Status)
	assert.Equal(t, result.Passed, target.Result().Status)
	assert.True(t, target.Result().Dry)
	assert.Empty(t, f.called())
	assert.Equal(t, []event.Kind{
		event.TestStarted, event.Skipped, event.DryRun, event.Skipped, event.TestFinished,
	}, rec.Kinds())
}

func TestExecute_DryModeGating(t *testing.T) {
	tests := []struct {
		name       string
		mode       node.Mode
		wantBefore result.Status
		wantTarget result.Status
		wantEvents []event.Kind
	}{
		{
			name:       "hooks and target opted in",
			mode:       node.StepContainerMode,
			wantBefore: result.Passed,
			wantTarget: result.Passed,
			wantEvents: []event.Kind{event.DryRun, event.DryRun, event.DryRun},
		},
		{
			name:       "nothing opted in",
			mode:       node.Mode{},
			wantBefore: result.Skipped,
			wantTarget: result.Skipped,
			wantEvents: []event.Kind{event.Skipped, event.Skipped, event.Skipped},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			before := f.hook("before", nil)
			target := f.step("target", nil)
			root := node.NewBuilder().WithName("container").WithMode(tt.mode).
				AddBefore(before).AddTarget(target).AddAfter(f.hook("after", nil)).Build()
			exec, rec := f.executor()

			exec.Execute(context.Background(), root, false, true)

			assert.Empty(t, f.called())
			assert.Equal(t, tt.wantBefore, before.Result().Status)
			assert.Equal(t, tt.wantTarget, target.Result().Status)
			assert.Equal(t, tt.wantEvents, rec.Kinds(event.DryRun, event.Skipped, event.StepStarted, event.HookStarted))
		})
	}
}

func TestExecute_SwitchToDryForChild(t *testing.T) {
	f := newFixture()
	before := f.hook("before", nil)
	child := node.NewBuilder().WithName("container").WithMode(node.StepContainerMode).
		AddBefore(f.hook("container-before", nil)).
		AddTarget(f.step("step", nil)).
		Build()
	root := node.NewBuilder().WithName("test").WithMode(node.DryRunMode).
		AddBefore(before).
		AddChild(child).
		Build()
	exec, _ := f.executor()

	o := exec.Execute(context.Background(), root, false, false)

	assert.Equal(t, result.Passed, o.Status)
	assert.False(t, o.Dry)
	assert.True(t, child.Result().Dry)
	assert.Equal(t, []string{"before"}, f.called(), "only the parent's own hooks run for real")
}

func TestExecute_ForcedDryChildSkipsHooksWithoutOptIn(t *testing.T) {
	f := newFixture()
	childBefore := f.hook("child-before", nil)
	child := node.NewBuilder().WithName("child").
		AddBefore(childBefore).
		AddChild(f.step("step", nil)).
		Build()
	root := node.NewBuilder().WithName("root").WithMode(node.Mode{SwitchToDryForChild: true}).AddChild(child).Build()
	exec, _ := f.executor()

	exec.Execute(context.Background(), root, false, false)

	assert.Empty(t, f.called())
	assert.Equal(t, result.Skipped, childBefore.Result().Status)
	assert.Equal(t, ReasonDryRun, childBefore.Result().Message)
}

func TestExecute_AfterHooksRunAfterFailure(t *testing.T) {
	f := newFixture()
	after := f.hook("after", nil)
	root := testCase("tc", node.TestCaseMode).
		AddBefore(f.hook("before", errors.New("setup failed"))).
		AddChild(f.step("step", nil)).
		AddAfter(after).
		Build()
	exec, _ := f.executor()

	o := exec.Execute(context.Background(), root, false, false)

	assert.Equal(t, result.Failed, o.Status)
	assert.Contains(t, o.Message, "setup failed")
	assert.Equal(t, []string{"before", "step", "after"}, f.called())
	assert.Equal(t, result.Passed, after.Result().Status)
}

func TestExecute_AggregationPrecedence(t *testing.T) {
	f := newFixture()
	root := testCase("tc", node.Mode{}).
		AddChild(f.step("pending", classifier.Pending("later"))).
		AddChild(f.step("skipped", classifier.Skip("nope"))).
		AddChild(node.NewBuilder().WithName("undefined").WithBinding("missing").Build()).
		Build()
	exec, _ := f.executor()

	o := exec.Execute(context.Background(), root, false, false)

	assert.Equal(t, result.Undefined, o.Status)
	assert.Equal(t, map[string]string{
		"tc":        "UNDEFINED",
		"pending":   "PENDING",
		"skipped":   "SKIPPED",
		"undefined": "UNDEFINED",
	}, resultsOf(t, root))
}

func TestExecute_NestedHookLeavesEmitHookEvents(t *testing.T) {
	f := newFixture()
	inner := f.step("inner", nil)
	hookGroup := node.NewBuilder().WithName("group").AddChild(inner).Build()
	root := testCase("tc", node.Mode{}).AddBefore(hookGroup).Build()
	exec, rec := f.executor()

	exec.Execute(context.Background(), root, false, false)

	assert.Equal(t, []event.Kind{event.HookStarted, event.HookFinished}, rec.ForNode(inner))
}

func TestExecute_Cancelled(t *testing.T) {
	f := newFixture()
	step := f.step("step", nil)
	root := testCase("tc", node.Mode{}).AddChild(step).Build()
	exec, _ := f.executor()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := exec.Execute(ctx, root, false, false)

	assert.Equal(t, result.Skipped, o.Status)
	assert.Equal(t, ReasonCancelled, step.Result().Message)
	assert.Empty(t, f.called())
}

func TestExecute_CancelledStillRunsAfterHooks(t *testing.T) {
	f := newFixture()
	step := f.step("step", nil)
	var cleanupErr error
	cleanup := f.bind("cleanup", func(ctx context.Context) error {
		cleanupErr = ctx.Err()
		return nil
	})
	hook := node.NewBuilder().WithRole(node.RoleHook).WithName("cleanup").WithBinding(cleanup).Build()
	root := testCase("tc", node.Mode{}).AddChild(step).AddAfter(hook).Build()
	exec, _ := f.executor()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := exec.Execute(ctx, root, false, false)

	assert.Equal(t, result.Skipped, o.Status)
	assert.Equal(t, ReasonCancelled, step.Result().Message)
	assert.Equal(t, result.Passed, hook.Result().Status)
	assert.NoError(t, cleanupErr)
	assert.Equal(t, []string{"cleanup"}, f.called())
}

func TestExecute_BypassedLeafRoot(t *testing.T) {
	f := newFixture()
	root := f.step("lonely", nil)
	exec, _ := f.executor()

	o := exec.Execute(context.Background(), root, true, false)

	assert.Equal(t, result.Skipped, o.Status)
	assert.Equal(t, ReasonBypassed, o.Message)
	assert.Same(t, o, root.Result())
	assert.Empty(t, f.called())
}

func TestExecute_WalkedTwice(t *testing.T) {
	f := newFixture()
	shared := f.step("shared", nil)
	root := testCase("tc", node.Mode{}).AddChild(shared).AddChild(shared).Build()
	core, logs := observer.New(zap.WarnLevel)
	exec, _ := f.executor(WithLogger(zap.New(core)))

	o := exec.Execute(context.Background(), root, false, false)

	assert.Equal(t, result.Undefined, o.Status)
	assert.Equal(t, ReasonAlreadyExecuted, o.Message)
	assert.Equal(t, 1, f.count("shared"))
	assert.Equal(t, 1, logs.FilterMessage("node walked twice, build fresh nodes for reruns").Len())
}

func TestExecute_PublisherFailuresAreSwallowed(t *testing.T) {
	f := newFixture()
	root := testCase("tc", node.Mode{}).AddChild(f.step("step", nil)).Build()
	core, logs := observer.New(zap.WarnLevel)

	calls := 0
	pub := event.PublisherFunc(func(_ context.Context, e event.Event) error {
		calls++
		if e.Kind == event.StepStarted {
			panic("subscriber bug")
		}
		return errors.New("subscriber down")
	})
	exec, _ := f.executor(WithPublisher(pub), WithLogger(zap.New(core)))

	o := exec.Execute(context.Background(), root, false, false)

	require.Equal(t, result.Passed, o.Status)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 1, logs.FilterMessage("event publisher panicked").Len())
	assert.Equal(t, 3, logs.FilterMessage("event publisher failed").Len())
}
