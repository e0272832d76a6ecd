package executor

import (
	"context"
	"sync"
	"testing"

	"github.com/abdul-hamid-achik/stepwise/packages/core/event"
	"github.com/abdul-hamid-achik/stepwise/packages/core/invoker"
	"github.com/abdul-hamid-achik/stepwise/packages/core/node"
)

// fixture registers bindings that record their invocations.
type fixture struct {
	registry *invoker.Registry
	mu       sync.Mutex
	calls    []string
}

func newFixture() *fixture {
	return &fixture{registry: invoker.NewRegistry()}
}

// bind registers a binding named name that records the call and runs fn.
func (f *fixture) bind(name string, fn func(ctx context.Context) error) string {
	f.registry.MustRegister(&invoker.Binding{
		ID:   name,
		Name: name,
		Func: func(ctx context.Context, _ any, _ invoker.Args) error {
			f.mu.Lock()
			f.calls = append(f.calls, name)
			f.mu.Unlock()
			if fn == nil {
				return nil
			}
			return fn(ctx)
		},
	})
	return name
}

func (f *fixture) step(name string, err error) *node.Node {
	return f.leaf(node.RoleStep, name, err)
}

func (f *fixture) hook(name string, err error) *node.Node {
	return f.leaf(node.RoleHook, name, err)
}

func (f *fixture) leaf(role, name string, err error) *node.Node {
	id := f.bind(name, func(context.Context) error { return err })
	return node.NewBuilder().WithRole(role).WithName(name).WithBinding(id).Build()
}

func (f *fixture) executor(opts ...Option) (*Executor, *event.Recorder) {
	rec := event.NewRecorder()
	opts = append([]Option{WithPublisher(rec)}, opts...)
	return New(invoker.New(f.registry), opts...), rec
}

func (f *fixture) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fixture) count(name string) int {
	n := 0
	for _, c := range f.called() {
		if c == name {
			n++
		}
	}
	return n
}

func testCase(name string, mode node.Mode) *node.Builder {
	return node.NewBuilder().WithRole(node.RoleTestCase).WithName(name).WithMode(mode)
}

// resultsOf collects the result of every node of the tree in walk order.
func resultsOf(t *testing.T, root *node.Node) map[string]string {
	t.Helper()
	out := map[string]string{}
	root.Walk(func(n *node.Node, _ int) bool {
		if o := n.Result(); o != nil {
			out[n.Name()] = o.Status.String()
		} else {
			out[n.Name()] = "<none>"
		}
		return true
	})
	return out
}
