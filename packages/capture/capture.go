package capture

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/tidwall/gjson"
)

// Subjects a value can be read from.
const (
	SubjectOutput   = "output"
	SubjectExitCode = "exitCode"
	SubjectDuration = "duration"
	SubjectLines    = "lines"
	SubjectJSON     = "json"
)

// Output is what a finished command produced.
type Output struct {
	Text     string
	ExitCode int
	Duration time.Duration

	json gjson.Result
}

// NewOutput wraps command output. Output that parses as JSON can be queried with json paths.
func NewOutput(text string, exitCode int, duration time.Duration) *Output {
	o := &Output{Text: text, ExitCode: exitCode, Duration: duration}
	if trimmed := strings.TrimSpace(text); trimmed != "" && gjson.Valid(trimmed) {
		o.json = gjson.Parse(trimmed)
	}
	return o
}

// IsJSON reports whether the output parsed as a JSON document.
func (o *Output) IsJSON() bool {
	return o.json.Exists()
}

var lineSubject = regexp.MustCompile(`^lines?\[(-?\d+)\]$`)

// Lookup resolves subject against the output. A json path that matches nothing yields
// (nil, nil) so absence can be asserted. Unknown subjects and json paths over non-JSON
// output are errors.
//
//	output          trimmed output
//	exitCode        exit code
//	duration        duration in milliseconds
//	lines           non-empty output lines
//	line[N]         Nth line, negative counts from the end
//	json            the whole document
//	json.<path>     a gjson path, [N] is accepted for array indexes
func (o *Output) Lookup(subject string) (any, error) {
	switch {
	case subject == "" || subject == SubjectOutput:
		return strings.TrimSpace(o.Text), nil
	case subject == SubjectExitCode:
		return o.ExitCode, nil
	case subject == SubjectDuration:
		return o.Duration.Milliseconds(), nil
	case subject == SubjectLines:
		lines := o.lines()
		out := make([]any, len(lines))
		for i, l := range lines {
			out[i] = l
		}
		return out, nil
	case lineSubject.MatchString(subject):
		idx, _ := strconv.Atoi(lineSubject.FindStringSubmatch(subject)[1])
		lines := o.lines()
		if idx < 0 {
			idx += len(lines)
		}
		if idx < 0 || idx >= len(lines) {
			return nil, nil
		}
		return lines[idx], nil
	case subject == SubjectJSON || strings.HasPrefix(subject, SubjectJSON+".") || strings.HasPrefix(subject, SubjectJSON+"["):
		if !o.IsJSON() {
			return nil, fmt.Errorf("%s: output is not JSON", subject)
		}
		path := strings.TrimPrefix(strings.TrimPrefix(subject, SubjectJSON), ".")
		if path == "" {
			return o.json.Value(), nil
		}
		res := o.json.Get(convertBracketNotation(path))
		if !res.Exists() {
			return nil, nil
		}
		return res.Value(), nil
	default:
		return nil, fmt.Errorf("unknown subject %q", subject)
	}
}

func (o *Output) lines() []string {
	var out []string
	for _, l := range strings.Split(o.Text, "\n") {
		if l = strings.TrimRight(l, "\r"); strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

var bracketIndex = regexp.MustCompile(`\[(\d+)\]`)

// convertBracketNotation turns "items[0].id" into the gjson path "items.0.id".
func convertBracketNotation(path string) string {
	return strings.TrimPrefix(bracketIndex.ReplaceAllString(path, ".$1"), ".")
}

// Spec names a value to keep from a step's output.
type Spec struct {
	Name string `yaml:"name" json:"name"`
	From string `yaml:"from,omitempty" json:"from,omitempty"`
}

// Source is the subject a spec reads, output when From is empty.
func (s Spec) Source() string {
	if s.From == "" {
		return SubjectOutput
	}
	return s.From
}

// ExtractAll resolves every spec. Values that could not be found are left out and reported
// together in the returned error.
func ExtractAll(o *Output, specs []Spec) (map[string]any, error) {
	values := make(map[string]any, len(specs))
	var errs *multierror.Error
	for _, s := range specs {
		v, err := o.Lookup(s.Source())
		switch {
		case err != nil:
			errs = multierror.Append(errs, fmt.Errorf("capture %q: %w", s.Name, err))
		case v == nil:
			errs = multierror.Append(errs, fmt.Errorf("capture %q: %s not found", s.Name, s.Source()))
		default:
			values[s.Name] = v
		}
	}
	return values, errs.ErrorOrNil()
}
