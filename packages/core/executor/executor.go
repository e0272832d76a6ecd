package executor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/abdul-hamid-achik/stepwise/packages/core/event"
	"github.com/abdul-hamid-achik/stepwise/packages/core/invoker"
	"github.com/abdul-hamid-achik/stepwise/packages/core/node"
	"github.com/abdul-hamid-achik/stepwise/packages/core/result"
)

const (
	// DefaultConcurrency is the default number of test cases walked at the same time.
	DefaultConcurrency = 5
)

// Skip reasons recorded on nodes that were not walked.
const (
	ReasonBypassed        = "bypassed"
	ReasonDryRun          = "not run in dry mode"
	ReasonPreviousFailure = "skipped after previous failure"
	ReasonCancelled       = "execution cancelled"
	ReasonTimedOut        = "timed out before start"
	ReasonAlreadyExecuted = "node already executed"
)

// Executor walks execution trees. It is safe for concurrent use.
type Executor struct {
	invoker     *invoker.Invoker
	publisher   event.Publisher
	logger      *zap.Logger
	concurrency int
	limiter     *rate.Limiter
	testTimeout time.Duration
	sem         chan struct{}
}

type Option func(*Executor)

func WithPublisher(p event.Publisher) Option {
	return func(e *Executor) {
		e.publisher = p
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithConcurrency bounds how many test cases are walked at the same time.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		e.concurrency = n
	}
}

// WithStartRate throttles how many test cases may start per second. Zero disables it.
func WithStartRate(perSecond float64) Option {
	return func(e *Executor) {
		if perSecond > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithTestTimeout bounds each test case. Steps not started before the deadline fail
// without being invoked; a step already running is never interrupted, and after-hooks
// still run.
func WithTestTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.testTimeout = d
	}
}

func New(inv *invoker.Invoker, opts ...Option) *Executor {
	if inv == nil {
		inv = invoker.New(nil)
	}
	e := &Executor{
		invoker:     inv,
		publisher:   event.Discard,
		logger:      zap.NewNop(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.concurrency <= 0 {
		e.concurrency = DefaultConcurrency
	}
	e.sem = make(chan struct{}, e.concurrency)
	return e
}

// state is what a parent decided for one of its sub-nodes.
type state struct {
	bypass bool
	dry    bool
	// hook is set for every node below a before/after slot.
	hook bool
	// cleanup is set for every node below an after slot. Cleanup leaves ignore the
	// deadline and cancellation so teardown always runs.
	cleanup bool
	// deadline is the test timeout of the task; leaves must start before it.
	deadline time.Time
	// root is set only for the node a walk starts from.
	root bool
}

// childRunner walks the children of a node and returns their outcomes.
type childRunner func(ctx context.Context, parent *node.Node, children []*node.Node, st state) []*result.Outcome

// Execute walks one tree synchronously and returns its root outcome. bypass is usually the
// tag filter's verdict for the root; dry requests a dry run of the whole tree. A bypassed
// root is SKIPPED even when it is itself a leaf.
func (e *Executor) Execute(ctx context.Context, root *node.Node, bypass, dry bool) *result.Outcome {
	return e.execute(ctx, root, state{bypass: bypass, dry: dry, root: true})
}

func (e *Executor) execute(ctx context.Context, root *node.Node, st state) *result.Outcome {
	e.publish(ctx, event.TestStarted, root, nil)
	o := e.walk(ctx, root, st, e.runChildren)
	e.publish(ctx, event.TestFinished, root, o)
	return o
}

func (e *Executor) walk(ctx context.Context, n *node.Node, st state, children childRunner) *result.Outcome {
	if n.Result() != nil {
		e.logger.Warn("node walked twice, build fresh nodes for reruns",
			zap.String("node", n.Name()), zap.String("id", n.ID()))
		return result.New(result.Undefined, ReasonAlreadyExecuted)
	}

	start := time.Now()
	mode := n.Mode()
	dry := st.dry || st.bypass
	leaf := n.IsLeaf()
	kindStarted, kindFinished := event.StepStarted, event.StepFinished
	if st.hook {
		kindStarted, kindFinished = event.HookStarted, event.HookFinished
	}

	if leaf && !dry {
		e.publish(ctx, kindStarted, n, nil)
	}

	var parts []*result.Outcome
	hookState := st
	hookState.dry, hookState.hook, hookState.root = dry, true, false
	parts = append(parts, e.runHooks(ctx, n.Before(), hookState, mode.BypassBeforeWhenBypass, mode.DryBeforesOnDry)...)

	if leaf {
		parts = append(parts, e.invoke(ctx, n, st, dry))
	}

	childState := st
	childState.dry, childState.root = dry || mode.SwitchToDryForChild, false
	if target := n.Target(); target != nil {
		switch {
		case dry && !mode.DryTargetsOnDry:
			parts = append(parts, e.skip(ctx, target, ReasonDryRun))
		default:
			parts = append(parts, e.walk(ctx, target, childState, e.runChildren))
		}
	} else if kids := n.Children(); len(kids) > 0 {
		parts = append(parts, children(ctx, n, kids, childState)...)
	}

	afterState := hookState
	afterState.cleanup = true
	parts = append(parts, e.runHooks(ctx, n.After(), afterState, mode.BypassAfterWhenBypass, mode.DryAftersOnDry)...)

	floor := result.Passed
	if st.bypass && (!leaf || st.root) {
		floor = result.Skipped
	}
	o := result.Aggregate(floor, parts...)
	if o.Status == result.Skipped && o.Message == "" && st.bypass {
		o.Message = ReasonBypassed
	}
	o.Dry = dry
	o.Started = start
	o.Duration = time.Since(start)
	e.store(n, o)

	if leaf {
		if dry {
			e.publish(ctx, event.DryRun, n, o)
		} else {
			e.publish(ctx, kindFinished, n, o)
		}
	}

	e.logger.Debug("node finished",
		zap.String("role", n.Role()),
		zap.String("node", n.Name()),
		zap.Stringer("status", o.Status),
		zap.Bool("bypass", st.bypass),
		zap.Bool("dry", dry))
	return o
}

// runHooks walks before- or after-hooks. bypassGate skips them outright when the node is
// bypassed; dryOptIn lets them run dry, instead of being skipped, when the node is dry.
func (e *Executor) runHooks(ctx context.Context, hooks []*node.Node, st state, bypassGate, dryOptIn bool) []*result.Outcome {
	parts := make([]*result.Outcome, 0, len(hooks))
	for _, h := range hooks {
		switch {
		case st.bypass && bypassGate:
			parts = append(parts, e.skip(ctx, h, ReasonBypassed))
		case st.dry && !dryOptIn:
			parts = append(parts, e.skip(ctx, h, ReasonDryRun))
		default:
			parts = append(parts, e.walk(ctx, h, st, e.runChildren))
		}
	}
	return parts
}

// runChildren walks children in order, skipping the rest after a failure when the parent
// asks for it.
func (e *Executor) runChildren(ctx context.Context, parent *node.Node, children []*node.Node, st state) []*result.Outcome {
	cascade := parent.Mode().BypassChildrenAfterIterationError
	parts := make([]*result.Outcome, 0, len(children))
	failed := false
	for _, c := range children {
		if failed && cascade {
			parts = append(parts, e.skip(ctx, c, ReasonPreviousFailure))
			continue
		}
		o := e.walk(ctx, c, st, e.runChildren)
		parts = append(parts, o)
		if o.Failed() {
			failed = true
		}
	}
	return parts
}

// invoke runs the binding of a leaf, or synthesizes a dry outcome without touching it.
// Cleanup leaves run on a context detached from cancellation.
func (e *Executor) invoke(ctx context.Context, n *node.Node, st state, dry bool) *result.Outcome {
	if dry {
		return result.NewDry()
	}
	if st.cleanup {
		return e.invoker.Invoke(context.WithoutCancel(ctx), n.Binding())
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &result.Outcome{Status: result.Failed, Message: ReasonTimedOut, Err: err}
		}
		return &result.Outcome{Status: result.Skipped, Message: ReasonCancelled, Err: err}
	}
	if !st.deadline.IsZero() && !time.Now().Before(st.deadline) {
		return &result.Outcome{Status: result.Failed, Message: ReasonTimedOut, Err: context.DeadlineExceeded}
	}
	return e.invoker.Invoke(ctx, n.Binding())
}

// skip marks n and its whole subtree SKIPPED without walking it.
func (e *Executor) skip(ctx context.Context, n *node.Node, reason string) *result.Outcome {
	o := result.NewSkipped(reason)
	o.Started = time.Now()
	n.Walk(func(sub *node.Node, _ int) bool {
		if sub == n {
			e.store(sub, o)
		} else {
			e.store(sub, result.NewSkipped(reason))
		}
		return true
	})
	e.publish(ctx, event.Skipped, n, o)
	return o
}

func (e *Executor) store(n *node.Node, o *result.Outcome) {
	if err := n.SetResult(o); err != nil {
		e.logger.Warn("cannot store node result",
			zap.String("node", n.Name()), zap.String("id", n.ID()), zap.Error(err))
	}
}

// publish delivers an event on a best-effort basis; publisher failures never reach the walk.
func (e *Executor) publish(ctx context.Context, kind event.Kind, n *node.Node, o *result.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("event publisher panicked",
				zap.String("event", string(kind)), zap.Any("panic", r))
		}
	}()
	if err := e.publisher.Publish(ctx, event.Event{Kind: kind, Node: n, Outcome: o, Time: time.Now()}); err != nil {
		e.logger.Warn("event publisher failed",
			zap.String("event", string(kind)), zap.String("node", n.Name()), zap.Error(err))
	}
}
