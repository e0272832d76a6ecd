package output

import (
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/stepwise/packages/core/result"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	RunID    string      `json:"runId"`
	Summary  JSONSummary `json:"summary"`
	Suites   []JSONSuite `json:"suites"`
	Duration float64     `json:"duration"`
	Time     string      `json:"time"`
}

// JSONSummary represents the test summary
type JSONSummary struct {
	Total     int `json:"total"`
	Passed    int `json:"passed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Pending   int `json:"pending"`
	Undefined int `json:"undefined"`
}

// JSONSuite is one executed manifest
type JSONSuite struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	File     string     `json:"file,omitempty"`
	Status   string     `json:"status"`
	Message  string     `json:"message,omitempty"`
	Duration float64    `json:"duration"`
	Hooks    []JSONStep `json:"hooks,omitempty"`
	Tests    []JSONTest `json:"tests"`
}

// JSONTest represents a single test result
type JSONTest struct {
	Name     string     `json:"name"`
	Role     string     `json:"role"`
	Location string     `json:"location,omitempty"`
	Tags     []string   `json:"tags,omitempty"`
	Status   string     `json:"status"`
	Message  string     `json:"message,omitempty"`
	Dry      bool       `json:"dry,omitempty"`
	Duration float64    `json:"duration"`
	Steps    []JSONStep `json:"steps,omitempty"`
}

// JSONStep represents a step or hook leaf
type JSONStep struct {
	Name       string  `json:"name"`
	Role       string  `json:"role"`
	Depth      int     `json:"depth"`
	Status     string  `json:"status"`
	Message    string  `json:"message,omitempty"`
	StackTrace string  `json:"stackTrace,omitempty"`
	Dry        bool    `json:"dry,omitempty"`
	Duration   float64 `json:"duration"`
}

// JSONFormatter formats test results as JSON
type JSONFormatter struct {
	writer      io.Writer
	runID       string
	stackTraces bool
	suites      []JSONSuite
	summary     JSONSummary
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
		runID:  uuid.NewString(),
		suites: make([]JSONSuite, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

// JSONWithRunID overrides the generated run identifier.
func JSONWithRunID(id string) JSONOption {
	return func(f *JSONFormatter) {
		f.runID = id
	}
}

// JSONWithStackTraces includes captured stack traces in step entries.
func JSONWithStackTraces(st bool) JSONOption {
	return func(f *JSONFormatter) {
		f.stackTraces = st
	}
}

// RunID returns the identifier stamped on this run's output.
func (f *JSONFormatter) RunID() string {
	return f.runID
}

func (f *JSONFormatter) FormatReport(report *Report) {
	outcome := report.Outcome()
	suite := JSONSuite{
		Name:     report.Name(),
		File:     report.File,
		Status:   outcome.Status.String(),
		Message:  outcome.Message,
		Duration: float64(report.Duration.Milliseconds()),
		Tests:    make([]JSONTest, 0),
	}
	if report.Suite != nil {
		suite.ID = report.Suite.ID()
	}
	for _, h := range report.SuiteHooks() {
		suite.Hooks = append(suite.Hooks, f.step(h))
	}

	for _, t := range report.Tests() {
		test := JSONTest{
			Name:     t.Name,
			Role:     t.Role,
			Location: t.Location,
			Tags:     t.Tags,
			Status:   statusOf(t.Outcome).String(),
			Message:  messageOf(t.Outcome),
			Duration: float64(durationOf(t.Outcome).Milliseconds()),
		}
		if t.Outcome != nil {
			test.Dry = t.Outcome.Dry
		}
		for _, s := range t.Steps {
			test.Steps = append(test.Steps, f.step(s))
		}
		suite.Tests = append(suite.Tests, test)
		f.count(t.Outcome)
	}

	f.suites = append(f.suites, suite)
}

func (f *JSONFormatter) step(s StepResult) JSONStep {
	step := JSONStep{
		Name:     s.Name,
		Role:     s.Role,
		Depth:    s.Depth,
		Status:   statusOf(s.Outcome).String(),
		Message:  messageOf(s.Outcome),
		Duration: float64(durationOf(s.Outcome).Milliseconds()),
	}
	if s.Outcome != nil {
		step.Dry = s.Outcome.Dry
		if f.stackTraces && s.Outcome.HasStackTrace {
			step.StackTrace = s.Outcome.StackTrace
		}
	}
	return step
}

func (f *JSONFormatter) count(o *result.Outcome) {
	f.summary.Total++
	switch statusOf(o) {
	case result.Passed:
		f.summary.Passed++
	case result.Failed:
		f.summary.Failed++
	case result.Skipped:
		f.summary.Skipped++
	case result.Pending:
		f.summary.Pending++
	default:
		f.summary.Undefined++
	}
}

func (f *JSONFormatter) FormatError(err error) {
	// Errors are included in individual test results
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	output := JSONOutput{
		RunID:    f.runID,
		Summary:  f.summary,
		Suites:   f.suites,
		Duration: float64(totalDuration.Milliseconds()),
		Time:     time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
