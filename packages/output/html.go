package output

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/stepwise/packages/core/result"
)

//go:embed report.html.tmpl
var htmlTemplate string

// HTMLOutput represents the complete HTML output structure
type HTMLOutput struct {
	Version        string
	Summary        result.Counts
	Total          int
	Tests          []HTMLTest
	Duration       float64
	Time           string
	PassedPercent  float64
	FailedPercent  float64
	SkippedPercent float64
}

// HTMLTest represents a single test result for HTML output
type HTMLTest struct {
	Suite       string
	Name        string
	Location    string
	Tags        []string
	Status      string
	StatusClass string
	Message     string
	Duration    float64
	Steps       []HTMLStep
}

// HTMLStep represents one leaf of a test for HTML output
type HTMLStep struct {
	Name        string
	Hook        bool
	Indent      int
	Status      string
	StatusClass string
	Message     string
	Duration    float64
}

// HTMLFormatter formats test results as HTML
type HTMLFormatter struct {
	writer  io.Writer
	results []HTMLTest
	counts  result.Counts
	version string
}

// HTMLOption is a functional option for HTMLFormatter
type HTMLOption func(*HTMLFormatter)

// NewHTMLFormatter creates a new HTML formatter
func NewHTMLFormatter(opts ...HTMLOption) *HTMLFormatter {
	f := &HTMLFormatter{
		writer:  os.Stdout,
		results: make([]HTMLTest, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// HTMLWithWriter sets the output writer
func HTMLWithWriter(w io.Writer) HTMLOption {
	return func(f *HTMLFormatter) {
		f.writer = w
	}
}

// FormatReport accumulates the tests of one suite
func (f *HTMLFormatter) FormatReport(report *Report) {
	for _, t := range report.Tests() {
		status := statusOf(t.Outcome)
		test := HTMLTest{
			Suite:       report.Name(),
			Name:        t.Name,
			Location:    t.Location,
			Tags:        t.Tags,
			Status:      status.String(),
			StatusClass: strings.ToLower(status.String()),
			Message:     messageOf(t.Outcome),
			Duration:    float64(durationOf(t.Outcome).Milliseconds()),
		}
		for _, s := range t.Steps {
			st := statusOf(s.Outcome)
			test.Steps = append(test.Steps, HTMLStep{
				Name:        s.Name,
				Hook:        s.Hook(),
				Indent:      s.Depth * 16,
				Status:      st.String(),
				StatusClass: strings.ToLower(st.String()),
				Message:     messageOf(s.Outcome),
				Duration:    float64(durationOf(s.Outcome).Milliseconds()),
			})
		}
		f.counts.Add(t.Outcome)
		f.results = append(f.results, test)
	}
}

// FormatError handles errors (no-op for HTML, errors are in test results)
func (f *HTMLFormatter) FormatError(err error) {
	// Errors are included in individual test results
}

// FormatHeader captures the version for the HTML report
func (f *HTMLFormatter) FormatHeader(version string) {
	f.version = version
}

// Flush writes the accumulated HTML output
func (f *HTMLFormatter) Flush(totalDuration time.Duration) error {
	total := f.counts.Total()
	var passedPct, failedPct, skippedPct float64
	if total > 0 {
		passedPct = float64(f.counts.Passed) / float64(total) * 100
		failedPct = float64(f.counts.Failed+f.counts.Undefined) / float64(total) * 100
		skippedPct = float64(f.counts.Skipped+f.counts.Pending) / float64(total) * 100
	}

	output := HTMLOutput{
		Version:        f.version,
		Summary:        f.counts,
		Total:          total,
		Tests:          f.results,
		Duration:       float64(totalDuration.Milliseconds()),
		Time:           time.Now().Format("2006-01-02 15:04:05"),
		PassedPercent:  passedPct,
		FailedPercent:  failedPct,
		SkippedPercent: skippedPct,
	}

	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse HTML template: %w", err)
	}

	return tmpl.Execute(f.writer, output)
}
