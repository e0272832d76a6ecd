package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/abdul-hamid-achik/stepwise/packages/core/event"
	"github.com/abdul-hamid-achik/stepwise/packages/core/result"
	"github.com/fatih/color"
)

// CycleReporter prints step and hook lifecycle events as they happen.
// It is safe for concurrent use.
type CycleReporter struct {
	mu     sync.Mutex
	writer io.Writer
	hooks  bool
}

type CycleOption func(*CycleReporter)

func NewCycleReporter(opts ...CycleOption) *CycleReporter {
	r := &CycleReporter{writer: os.Stderr}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func CycleWithWriter(w io.Writer) CycleOption {
	return func(r *CycleReporter) {
		r.writer = w
	}
}

// CycleWithHooks includes hook events, which are omitted by default.
func CycleWithHooks(h bool) CycleOption {
	return func(r *CycleReporter) {
		r.hooks = h
	}
}

func (r *CycleReporter) Publish(_ context.Context, e event.Event) error {
	if e.Node == nil {
		return nil
	}
	line, ok := r.line(e)
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := fmt.Fprintf(r.writer, "%s %s\n", e.Time.Format("15:04:05.000"), line)
	return err
}

func (r *CycleReporter) line(e event.Event) (string, bool) {
	faint := color.New(color.Faint).SprintFunc()
	p := newPalette()
	name := e.Node.Name()

	switch e.Kind {
	case event.TestStarted:
		return p.bold("▶ " + name), true
	case event.TestFinished:
		status := statusOf(e.Outcome)
		return fmt.Sprintf("%s %s %s", p.symbol(status), p.bold(name), faint(status.String())), true
	case event.StepStarted:
		return faint("  … " + name), true
	case event.HookStarted:
		if !r.hooks {
			return "", false
		}
		return faint("  … hook: " + name), true
	case event.StepFinished, event.HookFinished:
		if e.Kind == event.HookFinished && !r.hooks && statusOf(e.Outcome) == result.Passed {
			return "", false
		}
		status := statusOf(e.Outcome)
		s := fmt.Sprintf("  %s %s (%dms)", p.symbol(status), name, durationOf(e.Outcome).Milliseconds())
		if status != result.Passed {
			s += " " + faint(formatMessage(messageOf(e.Outcome), 80))
		}
		return s, true
	case event.DryRun:
		return faint("  ○ " + name + " [dry]"), true
	case event.Skipped:
		return fmt.Sprintf("  %s %s %s", p.symbol(result.Skipped), name, faint(messageOf(e.Outcome))), true
	}
	return "", false
}
