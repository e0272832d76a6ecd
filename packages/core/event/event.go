// Package event defines the lifecycle notifications emitted while a tree executes.
//
// Publishers are best-effort: the executor logs and swallows any error or panic a
// publisher raises, so a broken report sink never aborts a run.
package event

import (
	"context"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/stepwise/packages/core/node"
	"github.com/abdul-hamid-achik/stepwise/packages/core/result"
	"github.com/hashicorp/go-multierror"
)

// Kind identifies a lifecycle notification.
type Kind string

const (
	TestStarted  Kind = "testStarted"
	TestFinished Kind = "testFinished"
	StepStarted  Kind = "stepStarted"
	StepFinished Kind = "stepFinished"
	HookStarted  Kind = "hookStarted"
	HookFinished Kind = "hookFinished"
	// DryRun is the structural notification for a leaf walked in dry mode.
	DryRun Kind = "dryRun"
	// Skipped is emitted for a node that was skipped without being walked.
	Skipped Kind = "skipped"
)

// Event carries the node concerned and, for terminal kinds, its outcome.
type Event struct {
	Kind    Kind
	Node    *node.Node
	Outcome *result.Outcome
	Time    time.Time
}

// Publisher receives lifecycle events. Implementations must be safe for concurrent use,
// events from different test cases interleave.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to a Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

// Multi fans an event out to several publishers. Every publisher is called even when an
// earlier one fails; the failures are returned together.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs *multierror.Error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// Recorder keeps every event it receives, in arrival order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of the recorded events, optionally limited to the given kinds.
func (r *Recorder) Kinds(only ...Kind) []Kind {
	keep := make(map[Kind]bool, len(only))
	for _, k := range only {
		keep[k] = true
	}
	var kinds []Kind
	for _, e := range r.Events() {
		if len(keep) == 0 || keep[e.Kind] {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}

// ForNode returns the kinds recorded for a single node.
func (r *Recorder) ForNode(n *node.Node) []Kind {
	var kinds []Kind
	for _, e := range r.Events() {
		if e.Node == n {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
