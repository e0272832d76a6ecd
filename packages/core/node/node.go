package node

import (
	"errors"
	"maps"
	"slices"
	"sync/atomic"

	"github.com/abdul-hamid-achik/stepwise/packages/core/result"
)

// Roles used by the built-in discovery. Roles are free-form and need not be unique.
const (
	RoleSuite         = "testSuite"
	RoleTestCase      = "testCase"
	RoleTest          = "test"
	RoleStepContainer = "stepContainer"
	RoleStep          = "step"
	RoleHook          = "hook"
)

// Well-known attribute keys.
const (
	AttrTags     = "bddTags"
	AttrLocation = "location"
)

// ErrResultAlreadySet is returned when a node's result is written a second time.
var ErrResultAlreadySet = errors.New("node result already set")

// Node is one unit of the execution hierarchy.
type Node struct {
	id          string
	role        string
	name        string
	description string
	mode        Mode
	binding     string
	attributes  map[string]any
	meta        Meta

	before   []*Node
	after    []*Node
	children []*Node
	target   *Node

	result atomic.Pointer[result.Outcome]
}

// ID returns the node's unique identifier.
func (n *Node) ID() string { return n.id }

// Role returns the role the node was built with, such as RoleStep.
func (n *Node) Role() string { return n.role }

// Name returns the display name.
func (n *Node) Name() string { return n.name }

// Description returns the optional free-text description.
func (n *Node) Description() string { return n.description }

// Mode returns the flags that control bypass and dry propagation below the node.
func (n *Node) Mode() Mode { return n.mode }

// Binding returns the ID of the step binding this node invokes, or "" for containers.
func (n *Node) Binding() string { return n.binding }

// IsLeaf reports whether the node is an invocation unit.
func (n *Node) IsLeaf() bool { return n.binding != "" }

// Attributes returns a copy of the node's attributes.
func (n *Node) Attributes() map[string]any { return maps.Clone(n.attributes) }

// Attribute returns a single attribute value.
func (n *Node) Attribute(key string) (any, bool) {
	v, ok := n.attributes[key]
	return v, ok
}

// Meta returns a copy of the node's meta values.
func (n *Node) Meta() Meta { return n.meta.Clone() }

// Tags returns the tags stored under AttrTags, if any.
func (n *Node) Tags() []string {
	switch tags := n.attributes[AttrTags].(type) {
	case []string:
		return slices.Clone(tags)
	case []any:
		out := make([]string, 0, len(tags))
		for _, t := range tags {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Before returns a copy of the before-hook slot.
func (n *Node) Before() []*Node { return slices.Clone(n.before) }

// After returns a copy of the after-hook slot.
func (n *Node) After() []*Node { return slices.Clone(n.after) }

// Children returns a copy of the ordered children.
func (n *Node) Children() []*Node { return slices.Clone(n.children) }

// Target returns the single delegated node, or nil. A node with a target ignores its children.
func (n *Node) Target() *Node { return n.target }

// Result returns the outcome of the node, or nil if it has not finished executing.
func (n *Node) Result() *result.Outcome {
	return n.result.Load()
}

// SetResult stores the node's outcome. Only the first call succeeds.
func (n *Node) SetResult(o *result.Outcome) error {
	if o == nil {
		return errors.New("nil outcome")
	}
	if !n.result.CompareAndSwap(nil, o) {
		return ErrResultAlreadySet
	}
	return nil
}

// Walk visits n and its subtree depth-first in execution order: before-hooks, target,
// children, after-hooks. Returning false from fn prunes the subtree below that node.
func (n *Node) Walk(fn func(n *Node, depth int) bool) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(n *Node, depth int) bool, depth int) {
	if !fn(n, depth) {
		return
	}
	for _, h := range n.before {
		h.walk(fn, depth+1)
	}
	if n.target != nil {
		n.target.walk(fn, depth+1)
	}
	for _, c := range n.children {
		c.walk(fn, depth+1)
	}
	for _, h := range n.after {
		h.walk(fn, depth+1)
	}
}
