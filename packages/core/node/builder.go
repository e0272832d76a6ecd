package node

import (
	"maps"

	"github.com/google/uuid"
)

// Builder assembles a Node. A builder is not safe for concurrent use.
type Builder struct {
	n *Node
}

func NewBuilder() *Builder {
	return &Builder{
		n: &Node{
			attributes: make(map[string]any),
			meta:       make(Meta),
		},
	}
}

func (b *Builder) WithRole(role string) *Builder {
	b.n.role = role
	return b
}

func (b *Builder) WithName(name string) *Builder {
	b.n.name = name
	return b
}

func (b *Builder) WithDescription(description string) *Builder {
	b.n.description = description
	return b
}

func (b *Builder) WithMode(mode Mode) *Builder {
	b.n.mode = mode
	return b
}

// WithBinding marks the node as a leaf invoking the binding registered under id.
func (b *Builder) WithBinding(id string) *Builder {
	b.n.binding = id
	return b
}

func (b *Builder) WithAttribute(key string, value any) *Builder {
	b.n.attributes[key] = value
	return b
}

func (b *Builder) WithAttributes(attrs map[string]any) *Builder {
	maps.Copy(b.n.attributes, attrs)
	return b
}

// WithMeta merges meta values into the node, later keys overwrite earlier ones.
func (b *Builder) WithMeta(meta Meta) *Builder {
	for k, v := range meta {
		b.n.meta[k] = append([]string(nil), v...)
	}
	return b
}

// AddBefore appends a before-hook. Appends are not deduplicated.
func (b *Builder) AddBefore(hook *Node) *Builder {
	if hook != nil {
		b.n.before = append(b.n.before, hook)
	}
	return b
}

// AddAfter appends an after-hook. Appends are not deduplicated.
func (b *Builder) AddAfter(hook *Node) *Builder {
	if hook != nil {
		b.n.after = append(b.n.after, hook)
	}
	return b
}

// AddChild appends a child. Appends are not deduplicated.
func (b *Builder) AddChild(child *Node) *Builder {
	if child != nil {
		b.n.children = append(b.n.children, child)
	}
	return b
}

// AddTarget sets the single target, replacing any previous one.
func (b *Builder) AddTarget(target *Node) *Builder {
	b.n.target = target
	return b
}

// Build returns the assembled node. The builder must not be used afterwards.
func (b *Builder) Build() *Node {
	n := b.n
	n.id = uuid.NewString()
	b.n = nil
	return n
}
