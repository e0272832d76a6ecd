package manifest

import (
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/stepwise/packages/assertions"
	"github.com/abdul-hamid-achik/stepwise/packages/capture"
	"github.com/abdul-hamid-achik/stepwise/packages/core/node"
)

// Step styles.
const (
	StyleClassic = "classic"
	StyleBDD     = "bdd"
)

// Built-in actions.
const (
	ActionPass    = "pass"
	ActionFail    = "fail"
	ActionSkip    = "skip"
	ActionPending = "pending"
)

// Manifest is a parsed manifest file.
type Manifest struct {
	Version      string                    `yaml:"version,omitempty" json:"version,omitempty"`
	Name         string                    `yaml:"name,omitempty" json:"name,omitempty"`
	Description  string                    `yaml:"description,omitempty" json:"description,omitempty"`
	Vars         map[string]any            `yaml:"vars,omitempty" json:"vars,omitempty"`
	Env          map[string]any            `yaml:"env,omitempty" json:"env,omitempty"`
	Environments map[string]map[string]any `yaml:"environments,omitempty" json:"environments,omitempty"`
	Mode         *node.Mode                `yaml:"mode,omitempty" json:"mode,omitempty"`
	Before       []Step                    `yaml:"before,omitempty" json:"before,omitempty"`
	After        []Step                    `yaml:"after,omitempty" json:"after,omitempty"`
	StepHooks    *Hooks                    `yaml:"stepHooks,omitempty" json:"stepHooks,omitempty"`
	Tests        []Test                    `yaml:"tests" json:"tests"`

	// Path is the file the manifest was loaded from, empty when parsed from memory.
	Path string `yaml:"-" json:"-"`
}

// Hooks run around every step of a bdd test.
type Hooks struct {
	Before []Step `yaml:"before,omitempty" json:"before,omitempty"`
	After  []Step `yaml:"after,omitempty" json:"after,omitempty"`
}

// Test is one test case.
type Test struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Style       string     `yaml:"style,omitempty" json:"style,omitempty"`
	Tags        []string   `yaml:"tags,omitempty" json:"tags,omitempty"`
	Mode        *node.Mode `yaml:"mode,omitempty" json:"mode,omitempty"`
	Before      []Step     `yaml:"before,omitempty" json:"before,omitempty"`
	After       []Step     `yaml:"after,omitempty" json:"after,omitempty"`
	Steps       []Step     `yaml:"steps,omitempty" json:"steps,omitempty"`

	Line   int `yaml:"-" json:"-"`
	Column int `yaml:"-" json:"-"`
}

// Step is a single executable step or hook.
type Step struct {
	Name    string         `yaml:"name,omitempty" json:"name,omitempty"`
	Keyword string         `yaml:"keyword,omitempty" json:"keyword,omitempty"`
	Run     string         `yaml:"run,omitempty" json:"run,omitempty"`
	WaitFor *WaitFor       `yaml:"waitFor,omitempty" json:"waitFor,omitempty"`
	Action  string         `yaml:"action,omitempty" json:"action,omitempty"`
	Message string         `yaml:"message,omitempty" json:"message,omitempty"`
	Capture string         `yaml:"capture,omitempty" json:"capture,omitempty"`
	Args    []any          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]any `yaml:"env,omitempty" json:"env,omitempty"`

	// Captures and Expect read the output of a run step.
	Captures []capture.Spec           `yaml:"captures,omitempty" json:"captures,omitempty"`
	Expect   []assertions.Expectation `yaml:"expect,omitempty" json:"expect,omitempty"`

	Line   int `yaml:"-" json:"-"`
	Column int `yaml:"-" json:"-"`
}

// WaitFor polls Command until it exits with code zero.
type WaitFor struct {
	Command  string `yaml:"command" json:"command"`
	Timeout  string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Interval string `yaml:"interval,omitempty" json:"interval,omitempty"`
}

func (w *WaitFor) durations() (timeout, interval time.Duration, err error) {
	if w.Timeout != "" {
		if timeout, err = time.ParseDuration(w.Timeout); err != nil {
			return 0, 0, fmt.Errorf("waitFor timeout: %w", err)
		}
	}
	if w.Interval != "" {
		if interval, err = time.ParseDuration(w.Interval); err != nil {
			return 0, 0, fmt.Errorf("waitFor interval: %w", err)
		}
	}
	return timeout, interval, nil
}

// UnmarshalYAML accepts a bare string as a run step and records the step's position.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*s = Step{Run: value.Value}
	} else {
		type plain Step
		if err := value.Decode((*plain)(s)); err != nil {
			return err
		}
	}
	s.Line, s.Column = value.Line, value.Column
	return nil
}

// UnmarshalJSON accepts a bare string as a run step.
func (s *Step) UnmarshalJSON(data []byte) error {
	var run string
	if err := json.Unmarshal(data, &run); err == nil {
		*s = Step{Run: run}
		return nil
	}
	type plain Step
	return json.Unmarshal(data, (*plain)(s))
}

func (t *Test) UnmarshalYAML(value *yaml.Node) error {
	type plain Test
	if err := value.Decode((*plain)(t)); err != nil {
		return err
	}
	t.Line, t.Column = value.Line, value.Column
	return nil
}

// Kind names what the step does: "run", "waitFor" or "action".
func (s *Step) Kind() string {
	switch {
	case s.Run != "":
		return "run"
	case s.WaitFor != nil:
		return "waitFor"
	default:
		return "action"
	}
}

// DisplayName is the step name, or a description derived from what it does.
func (s *Step) DisplayName() string {
	name := s.Name
	if name == "" {
		switch s.Kind() {
		case "run":
			name = firstLine(s.Run)
		case "waitFor":
			name = "wait for " + firstLine(s.WaitFor.Command)
		default:
			name = s.Action
			if s.Message != "" {
				name += ": " + s.Message
			}
		}
	}
	if s.Keyword != "" {
		return s.Keyword + " " + name
	}
	return name
}

func (s *Step) location() string {
	if s.Line == 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d", s.Line, s.Column)
}

func (t *Test) location() string {
	if t.Line == 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d", t.Line, t.Column)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
