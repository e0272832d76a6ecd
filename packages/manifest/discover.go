package manifest

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/abdul-hamid-achik/stepwise/packages/core/classifier"
	"github.com/abdul-hamid-achik/stepwise/packages/core/invoker"
	"github.com/abdul-hamid-achik/stepwise/packages/core/node"
	"github.com/abdul-hamid-achik/stepwise/packages/shell"
)

// Binding styles registered by discovery.
const (
	BindingShell  = "shell"
	BindingWait   = "waitFor"
	BindingAction = "action"
)

// DiscoverOptions tune the tree built from a manifest.
type DiscoverOptions struct {
	// Bail skips the remaining test cases once one has failed.
	Bail bool
}

// Discover builds the execution tree of m and registers one binding per step into reg.
// Every call builds fresh nodes.
func Discover(m *Manifest, reg *invoker.Registry, opts DiscoverOptions) (*node.Node, error) {
	d := &discoverer{reg: reg}
	if m.Path != "" {
		d.baseDir = filepath.Dir(m.Path)
	}

	mode := node.Mode{BypassBeforeWhenBypass: true, BypassAfterWhenBypass: true}
	if opts.Bail {
		mode = node.SuiteMode
	}
	if m.Mode != nil {
		mode = *m.Mode
	}

	name := m.Name
	if name == "" {
		name = m.Path
	}
	suite := node.NewBuilder().
		WithRole(node.RoleSuite).
		WithName(name).
		WithDescription(m.Description).
		WithMode(mode)
	if m.Path != "" {
		suite.WithAttribute(AttrFile, m.Path)
	}

	for i := range m.Before {
		suite.AddBefore(d.leaf(node.RoleHook, fmt.Sprintf("before[%d]", i), &m.Before[i]))
	}

	stepHooks := d.stepHooks(m.StepHooks)
	for i := range m.Tests {
		suite.AddChild(d.test(fmt.Sprintf("tests[%d]", i), &m.Tests[i], stepHooks))
	}

	for i := range m.After {
		suite.AddAfter(d.leaf(node.RoleHook, fmt.Sprintf("after[%d]", i), &m.After[i]))
	}

	if d.err != nil {
		return nil, d.err
	}
	return suite.Build(), nil
}

// AttrFile holds the manifest path on the suite node.
const AttrFile = "file"

type discoverer struct {
	reg     *invoker.Registry
	baseDir string
	err     error
}

// hookTemplate is a step hook registered once and instantiated per container.
type hookTemplate struct {
	id   string
	step *Step
}

type stepHookTemplates struct {
	before []hookTemplate
	after  []hookTemplate
}

func (d *discoverer) stepHooks(h *Hooks) stepHookTemplates {
	var out stepHookTemplates
	if h == nil {
		return out
	}
	for i := range h.Before {
		id := fmt.Sprintf("stepHooks.before[%d]", i)
		d.register(id, &h.Before[i])
		out.before = append(out.before, hookTemplate{id: id, step: &h.Before[i]})
	}
	for i := range h.After {
		id := fmt.Sprintf("stepHooks.after[%d]", i)
		d.register(id, &h.After[i])
		out.after = append(out.after, hookTemplate{id: id, step: &h.After[i]})
	}
	return out
}

func (d *discoverer) test(id string, t *Test, hooks stepHookTemplates) *node.Node {
	bdd := t.Style == StyleBDD

	role, mode := node.RoleTestCase, node.TestCaseMode
	if bdd {
		role, mode = node.RoleTest, node.BDDTestMode
	}
	if t.Mode != nil {
		mode = *t.Mode
	}

	b := node.NewBuilder().
		WithRole(role).
		WithName(t.Name).
		WithDescription(t.Description).
		WithMode(mode).
		WithMeta(node.ParseTagMeta(t.Tags)).
		WithAttribute(node.AttrTags, append([]string(nil), t.Tags...))
	if loc := t.location(); loc != "" {
		b.WithAttribute(node.AttrLocation, loc)
	}

	for i := range t.Before {
		b.AddBefore(d.leaf(node.RoleHook, fmt.Sprintf("%s.before[%d]", id, i), &t.Before[i]))
	}
	for i := range t.Steps {
		stepID := fmt.Sprintf("%s.steps[%d]", id, i)
		step := d.leaf(node.RoleStep, stepID, &t.Steps[i])
		if bdd {
			step = d.container(stepID, &t.Steps[i], step, hooks)
		}
		b.AddChild(step)
	}
	for i := range t.After {
		b.AddAfter(d.leaf(node.RoleHook, fmt.Sprintf("%s.after[%d]", id, i), &t.After[i]))
	}
	return b.Build()
}

// container wraps a step target with fresh instances of the step hooks.
func (d *discoverer) container(id string, s *Step, target *node.Node, hooks stepHookTemplates) *node.Node {
	b := node.NewBuilder().
		WithRole(node.RoleStepContainer).
		WithName(s.DisplayName()).
		WithMode(node.StepContainerMode).
		AddTarget(target)
	for _, h := range hooks.before {
		b.AddBefore(hookNode(h.id, h.step))
	}
	for _, h := range hooks.after {
		b.AddAfter(hookNode(h.id, h.step))
	}
	return b.Build()
}

func hookNode(id string, s *Step) *node.Node {
	b := node.NewBuilder().WithRole(node.RoleHook).WithName(s.DisplayName()).WithBinding(id)
	if loc := s.location(); loc != "" {
		b.WithAttribute(node.AttrLocation, loc)
	}
	return b.Build()
}

func (d *discoverer) leaf(role, id string, s *Step) *node.Node {
	d.register(id, s)
	b := node.NewBuilder().WithRole(role).WithName(s.DisplayName()).WithBinding(id)
	if loc := s.location(); loc != "" {
		b.WithAttribute(node.AttrLocation, loc)
	}
	return b.Build()
}

func (d *discoverer) register(id string, s *Step) {
	b, err := bindingFor(id, s, d.baseDir)
	if err == nil {
		err = d.reg.Register(b)
	}
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("registering %s: %w", id, err)
	}
}

func bindingFor(id string, s *Step, baseDir string) (*invoker.Binding, error) {
	b := &invoker.Binding{
		ID:   id,
		Name: s.DisplayName(),
		Args: invoker.Args{Positional: s.Args, Named: s.Env},
	}

	switch s.Kind() {
	case "run":
		b.Owner, b.Style = shell.Owner, BindingShell
		var opts []shell.StepOption
		if s.Capture != "" {
			opts = append(opts, shell.Capture(s.Capture))
		}
		if len(s.Captures) > 0 {
			opts = append(opts, shell.Captures(s.Captures...))
		}
		if len(s.Expect) > 0 {
			opts = append(opts, shell.Expect(baseDir, s.Expect...))
		}
		b.Func = shell.Step(s.Run, opts...)
	case "waitFor":
		timeout, interval, err := s.WaitFor.durations()
		if err != nil {
			return nil, err
		}
		b.Owner, b.Style = shell.Owner, BindingWait
		b.Func = shell.WaitStep(s.WaitFor.Command, timeout, interval)
	default:
		fn, err := action(s.Action, s.Message)
		if err != nil {
			return nil, err
		}
		b.Style = BindingAction
		b.Func = fn
	}
	return b, nil
}

func action(name, message string) (invoker.Func, error) {
	var err error
	switch name {
	case ActionPass:
	case ActionFail:
		if message == "" {
			message = "failed by manifest"
		}
		err = &classifier.AssertionError{Message: message}
	case ActionSkip:
		err = classifier.Skip("%s", orDefault(message, "skipped by manifest"))
	case ActionPending:
		err = classifier.Pending("%s", orDefault(message, "not implemented yet"))
	default:
		return nil, fmt.Errorf("unknown action %q", name)
	}
	return func(context.Context, any, invoker.Args) error {
		return err
	}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
