package env

import (
	"fmt"
	"maps"
	"os"
	"regexp"
	"strings"
	"sync"
)

var variablePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// WarnFunc is a function type for handling warnings
type WarnFunc func(format string, args ...any)

// Resolver expands {{...}} placeholders in step arguments and shell commands. It is safe
// for concurrent use.
//
// A placeholder is resolved, in order, as:
//   - {{$NAME}}: the process environment
//   - {{fn(args)}}: a registered function
//   - {{name}} or {{step.name}}: a value captured by an earlier step
//   - {{name}}: a variable
//
// Unresolved placeholders are left untouched.
type Resolver struct {
	mu        sync.RWMutex
	variables map[string]any
	captures  map[string]any
	funcs     Functions
	warnFunc  WarnFunc
}

func NewResolver() *Resolver {
	return &Resolver{
		variables: make(map[string]any),
		captures:  make(map[string]any),
		funcs:     DefaultFunctions(),
	}
}

// SetWarnFunc sets a function to be called when warnings occur (e.g., unresolved variables)
func (r *Resolver) SetWarnFunc(fn WarnFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnFunc = fn
}

func (r *Resolver) warn(format string, args ...any) {
	r.mu.RLock()
	fn := r.warnFunc
	r.mu.RUnlock()
	if fn != nil {
		fn(format, args...)
	}
}

// RegisterFunc adds or replaces a template function.
func (r *Resolver) RegisterFunc(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

func (r *Resolver) SetVariables(vars map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	maps.Copy(r.variables, vars)
}

func (r *Resolver) SetVariable(name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variables[name] = value
}

// SetCapture records a value produced by a step, reachable as {{step.name}} and {{name}}.
func (r *Resolver) SetCapture(stepName, captureName string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stepName != "" {
		r.captures[stepName+"."+captureName] = value
	}
	r.captures[captureName] = value
}

func (r *Resolver) GetCapture(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.captures[name]
	return v, ok
}

func (r *Resolver) Resolve(input string) string {
	return variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		expr := strings.TrimSpace(match[2 : len(match)-2])
		if v, ok := r.lookup(expr); ok {
			return fmt.Sprintf("%v", v)
		}
		r.warn("unresolved placeholder: %s", expr)
		return match
	})
}

func (r *Resolver) lookup(expr string) (any, bool) {
	if name, ok := strings.CutPrefix(expr, "$"); ok {
		val, ok := os.LookupEnv(name)
		return val, ok
	}

	if strings.Contains(expr, "(") {
		r.mu.RLock()
		funcs := r.funcs
		r.mu.RUnlock()
		v, ok, err := funcs.Call(expr)
		if err != nil {
			r.warn("%v", err)
			return nil, false
		}
		return v, ok
	}

	return r.GetVariable(expr)
}

func (r *Resolver) ResolveAll(values map[string]string) map[string]string {
	result := make(map[string]string, len(values))
	for k, v := range values {
		result[k] = r.Resolve(v)
	}
	return result
}

// HasUnresolvedVariables reports whether input holds a placeholder that cannot be resolved.
func (r *Resolver) HasUnresolvedVariables(input string) bool {
	return len(r.GetUnresolvedVariables(input)) > 0
}

// GetUnresolvedVariables lists the placeholders of input that cannot be resolved, in order.
// Function calls are not evaluated.
func (r *Resolver) GetUnresolvedVariables(input string) []string {
	var missing []string
	for _, m := range variablePattern.FindAllStringSubmatch(input, -1) {
		expr := strings.TrimSpace(m[1])
		switch {
		case strings.HasPrefix(expr, "$"):
			if _, ok := os.LookupEnv(expr[1:]); ok {
				continue
			}
		case strings.Contains(expr, "("):
			continue
		default:
			if r.HasVariable(expr) {
				continue
			}
		}
		missing = append(missing, expr)
	}
	return missing
}

func (r *Resolver) HasVariable(name string) bool {
	_, ok := r.GetVariable(name)
	return ok
}

// GetVariable returns a captured value or a variable, captures first.
func (r *Resolver) GetVariable(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.captures[name]; ok {
		return v, true
	}
	if v, ok := r.variables[name]; ok {
		return v, true
	}
	return nil, false
}

// Clone returns an independent copy, used to give each test case its own captures.
func (r *Resolver) Clone() *Resolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &Resolver{
		variables: maps.Clone(r.variables),
		captures:  maps.Clone(r.captures),
		funcs:     maps.Clone(r.funcs),
		warnFunc:  r.warnFunc,
	}
}
