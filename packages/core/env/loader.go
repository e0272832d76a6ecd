package env

import (
	"fmt"
	"maps"
	"os"
	"sort"
	"strings"
)

// Environment is a named set of variables, selected with --env.
type Environment struct {
	Name      string
	Variables map[string]any
}

// LoadEnvironment picks envName out of the environments declared by a manifest. The empty
// name selects no environment.
func LoadEnvironment(envName string, declared map[string]map[string]any) (*Environment, error) {
	env := &Environment{
		Name:      envName,
		Variables: make(map[string]any),
	}
	if envName == "" {
		return env, nil
	}

	vars, ok := declared[envName]
	if !ok {
		names := make([]string, 0, len(declared))
		for name := range declared {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown environment %q (available: %s)", envName, strings.Join(names, ", "))
	}
	maps.Copy(env.Variables, vars)
	return env, nil
}

// MergeVariables merges the sources in order, later sources winning.
func MergeVariables(sources ...map[string]any) map[string]any {
	result := make(map[string]any)
	for _, src := range sources {
		maps.Copy(result, src)
	}
	return result
}

// LoadSystemEnv returns the process environment variables starting with prefix, with the
// prefix removed. An empty prefix returns everything.
func LoadSystemEnv(prefix string) map[string]any {
	result := make(map[string]any)
	for _, e := range os.Environ() {
		key, value, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		if prefix == "" {
			result[key] = value
		} else if name, ok := strings.CutPrefix(key, prefix); ok && name != "" {
			result[name] = value
		}
	}
	return result
}
