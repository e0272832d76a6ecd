package executor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/stepwise/packages/core/node"
	"github.com/abdul-hamid-achik/stepwise/packages/core/result"
	"github.com/abdul-hamid-achik/stepwise/packages/tagfilter"
)

// Handle is the pending outcome of a submitted tree.
type Handle struct {
	root    *node.Node
	done    chan struct{}
	outcome *result.Outcome
}

func (h *Handle) Root() *node.Node { return h.root }

// Done is closed once the tree has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the tree has finished and returns its root outcome.
func (h *Handle) Wait() *result.Outcome {
	<-h.done
	return h.outcome
}

// WaitContext is Wait bounded by ctx. It does not stop the tree, cancel the context given
// to Submit for that.
func (h *Handle) WaitContext(ctx context.Context) (*result.Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Submit walks root on its own goroutine once a concurrency slot is free and the start
// rate allows it.
func (e *Executor) Submit(ctx context.Context, root *node.Node, bypass, dry bool) *Handle {
	h := &Handle{root: root, done: make(chan struct{})}
	go func() {
		defer close(h.done)

		e.sem <- struct{}{}
		defer func() { <-e.sem }()

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				e.logger.Debug("start rate wait interrupted", zap.String("node", root.Name()), zap.Error(err))
			}
		}

		// The timeout is checked between leaves only; bindings never see it.
		st := state{bypass: bypass, dry: dry, root: true}
		if e.testTimeout > 0 {
			st.deadline = time.Now().Add(e.testTimeout)
		}
		h.outcome = e.execute(ctx, root, st)
	}()
	return h
}

// RunAll submits every root and waits for all of them. Outcomes are returned in the order
// of roots. A nil filter selects everything.
func (e *Executor) RunAll(ctx context.Context, roots []*node.Node, filter tagfilter.Filter, dry bool) []*result.Outcome {
	if filter == nil {
		filter = tagfilter.All
	}
	return e.runTasks(ctx, roots, state{dry: dry}, filter)
}

// RunSuite walks a suite: its before-hooks, one task per child test case, then its
// after-hooks. Test cases rejected by filter are bypassed. When the suite skips siblings
// after a failure, test cases are started one at a time so the skip stays ordered.
func (e *Executor) RunSuite(ctx context.Context, suite *node.Node, filter tagfilter.Filter, dry bool) *result.Outcome {
	if filter == nil {
		filter = tagfilter.All
	}
	e.logger.Info("running suite",
		zap.String("suite", suite.Name()),
		zap.Int("testCases", len(suite.Children())),
		zap.Stringer("mode", suite.Mode()),
		zap.Bool("dry", dry))

	o := e.walk(ctx, suite, state{dry: dry}, func(ctx context.Context, parent *node.Node, children []*node.Node, st state) []*result.Outcome {
		if parent.Mode().BypassChildrenAfterIterationError {
			return e.runTasksInOrder(ctx, children, st, filter)
		}
		return e.runTasks(ctx, children, st, filter)
	})

	e.logger.Info("suite finished",
		zap.String("suite", suite.Name()),
		zap.Stringer("status", o.Status),
		zap.Duration("duration", o.Duration))
	return o
}

func (e *Executor) runTasks(ctx context.Context, children []*node.Node, st state, filter tagfilter.Filter) []*result.Outcome {
	handles := make([]*Handle, len(children))
	for i, c := range children {
		handles[i] = e.Submit(ctx, c, st.bypass || !filter.Filter(c.Tags()), st.dry)
	}
	outcomes := make([]*result.Outcome, len(handles))
	for i, h := range handles {
		outcomes[i] = h.Wait()
	}
	return outcomes
}

func (e *Executor) runTasksInOrder(ctx context.Context, children []*node.Node, st state, filter tagfilter.Filter) []*result.Outcome {
	outcomes := make([]*result.Outcome, 0, len(children))
	failed := false
	for _, c := range children {
		if failed {
			outcomes = append(outcomes, e.skip(ctx, c, ReasonPreviousFailure))
			continue
		}
		o := e.Submit(ctx, c, st.bypass || !filter.Filter(c.Tags()), st.dry).Wait()
		outcomes = append(outcomes, o)
		if o.Failed() {
			failed = true
		}
	}
	return outcomes
}
