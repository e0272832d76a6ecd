package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/abdul-hamid-achik/stepwise/packages/core/result"
	"github.com/fatih/color"
)

// formatMessage trims a message for a single console line
func formatMessage(msg string, maxLen int) string {
	msg = strings.TrimSpace(msg)
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i] + " ..."
	}
	if len(msg) > maxLen {
		return msg[:maxLen] + "..."
	}
	return msg
}

type ConsoleFormatter struct {
	writer      io.Writer
	verbose     bool
	noColor     bool
	stackTraces bool
	summary     bool
	errors      bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer:  os.Stdout,
		summary: true,
		errors:  true,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

// WithStackTraces prints captured stack traces below failed nodes.
func WithStackTraces(st bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.stackTraces = st
	}
}

// WithSummary toggles the counts and timing block.
func WithSummary(s bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.summary = s
	}
}

// WithErrors toggles the failure listing printed after the tree.
func WithErrors(e bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.errors = e
	}
}

type palette struct {
	green, red, yellow, magenta, cyan, faint, bold func(a ...any) string
}

func newPalette() palette {
	return palette{
		green:   color.New(color.FgGreen).SprintFunc(),
		red:     color.New(color.FgRed).SprintFunc(),
		yellow:  color.New(color.FgYellow).SprintFunc(),
		magenta: color.New(color.FgMagenta).SprintFunc(),
		cyan:    color.New(color.FgCyan).SprintFunc(),
		faint:   color.New(color.Faint).SprintFunc(),
		bold:    color.New(color.Bold).SprintFunc(),
	}
}

func (p palette) symbol(s result.Status) string {
	switch s {
	case result.Passed:
		return p.green("✓")
	case result.Failed:
		return p.red("✗")
	case result.Skipped:
		return p.yellow("-")
	case result.Pending:
		return p.magenta("?")
	default:
		return p.red("!")
	}
}

func (f *ConsoleFormatter) FormatReport(report *Report) {
	p := newPalette()

	fmt.Fprintf(f.writer, "\n%s\n\n", p.bold("Running: "+report.Name()))

	for _, h := range report.SuiteHooks() {
		if f.verbose || statusOf(h.Outcome) != result.Passed {
			f.printLeaf(p, h, 1)
		}
	}

	tests := report.Tests()
	for _, t := range tests {
		status := statusOf(t.Outcome)
		fmt.Fprintf(f.writer, "  %s %s", p.symbol(status), t.Name)
		if status == result.Passed || status == result.Failed {
			fmt.Fprintf(f.writer, " %s", p.cyan(fmt.Sprintf("(%dms)", durationOf(t.Outcome).Milliseconds())))
		} else if msg := messageOf(t.Outcome); msg != "" {
			fmt.Fprintf(f.writer, " (%s)", formatMessage(msg, 80))
		}
		if t.Outcome != nil && t.Outcome.Dry {
			fmt.Fprintf(f.writer, " %s", p.faint("[dry]"))
		}
		fmt.Fprintln(f.writer)

		if !f.verbose && status == result.Passed {
			continue
		}
		for _, s := range t.Steps {
			if s.Hook() && !f.verbose && statusOf(s.Outcome) == result.Passed {
				continue
			}
			f.printLeaf(p, s, 2)
		}
	}

	if f.errors {
		f.printErrors(p, tests)
	}
	if f.summary {
		f.printSummary(p, report)
	}
	fmt.Fprintln(f.writer)
}

func (f *ConsoleFormatter) printLeaf(p palette, s StepResult, indent int) {
	status := statusOf(s.Outcome)
	name := s.Name
	if s.Hook() {
		name = p.faint("hook: ") + name
	}
	fmt.Fprintf(f.writer, "%s%s %s", strings.Repeat("  ", indent), p.symbol(status), name)
	if msg := messageOf(s.Outcome); msg != "" && status != result.Passed {
		fmt.Fprintf(f.writer, " %s", p.faint("("+formatMessage(msg, 80)+")"))
	}
	fmt.Fprintln(f.writer)
}

func (f *ConsoleFormatter) printErrors(p palette, tests []TestResult) {
	var failed []TestResult
	for _, t := range tests {
		switch statusOf(t.Outcome) {
		case result.Failed, result.Undefined:
			failed = append(failed, t)
		}
	}
	if len(failed) == 0 {
		return
	}

	fmt.Fprintf(f.writer, "\n%s\n", p.bold("Failures:"))
	for i, t := range failed {
		fmt.Fprintf(f.writer, "\n  %d) %s", i+1, t.Name)
		if t.Location != "" {
			fmt.Fprintf(f.writer, " %s", p.faint("at "+t.Location))
		}
		fmt.Fprintln(f.writer)
		for _, s := range t.Steps {
			status := statusOf(s.Outcome)
			if status != result.Failed && status != result.Undefined {
				continue
			}
			fmt.Fprintf(f.writer, "     %s %s\n", p.red("→"), s.Name)
			for _, line := range strings.Split(strings.TrimSpace(messageOf(s.Outcome)), "\n") {
				fmt.Fprintf(f.writer, "       %s\n", line)
			}
			if f.stackTraces && s.Outcome != nil && s.Outcome.HasStackTrace {
				for _, line := range strings.Split(strings.TrimRight(s.Outcome.StackTrace, "\n"), "\n") {
					fmt.Fprintf(f.writer, "       %s\n", p.faint(line))
				}
			}
		}
	}
}

func (f *ConsoleFormatter) printSummary(p palette, report *Report) {
	fmt.Fprintln(f.writer)
	fmt.Fprintf(f.writer, "Tests: %s\n", formatCounts(p, report.Counts()))
	fmt.Fprintf(f.writer, "Steps: %s\n", formatCounts(p, report.StepCounts()))

	if stats, ok := stepLatencies(report); ok {
		fmt.Fprintf(f.writer, "Steps: p50 %s, p90 %s, p99 %s, max %s\n",
			formatDuration(stats.P50), formatDuration(stats.P90),
			formatDuration(stats.P99), formatDuration(stats.Max))
	}
	fmt.Fprintf(f.writer, "Time:  %dms\n", report.Duration.Milliseconds())
}

func formatCounts(p palette, c result.Counts) string {
	var parts []string
	if c.Passed > 0 {
		parts = append(parts, p.green(fmt.Sprintf("%d passed", c.Passed)))
	}
	if c.Failed > 0 {
		parts = append(parts, p.red(fmt.Sprintf("%d failed", c.Failed)))
	}
	if c.Undefined > 0 {
		parts = append(parts, p.red(fmt.Sprintf("%d undefined", c.Undefined)))
	}
	if c.Pending > 0 {
		parts = append(parts, p.magenta(fmt.Sprintf("%d pending", c.Pending)))
	}
	if c.Skipped > 0 {
		parts = append(parts, p.yellow(fmt.Sprintf("%d skipped", c.Skipped)))
	}
	parts = append(parts, fmt.Sprintf("%d total", c.Total()))
	return strings.Join(parts, ", ")
}

// LatencyStats summarizes how long executed steps took.
type LatencyStats struct {
	Count int64
	P50   time.Duration
	P90   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// stepLatencies records the durations of steps that actually ran. Dry and skipped steps
// carry no meaningful timing and are left out.
func stepLatencies(report *Report) (LatencyStats, bool) {
	h := hdrhistogram.New(1, 60_000_000, 3)
	for _, t := range report.Tests() {
		for _, s := range t.Steps {
			o := s.Outcome
			if s.Hook() || o == nil || o.Dry || o.Status == result.Skipped {
				continue
			}
			us := o.Duration.Microseconds()
			if us < 1 {
				us = 1
			}
			_ = h.RecordValue(us)
		}
	}
	if h.TotalCount() == 0 {
		return LatencyStats{}, false
	}
	return LatencyStats{
		Count: h.TotalCount(),
		P50:   time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P90:   time.Duration(h.ValueAtQuantile(90)) * time.Microsecond,
		P99:   time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
		Max:   time.Duration(h.Max()) * time.Microsecond,
	}, true
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("stepwise"), version)
}
