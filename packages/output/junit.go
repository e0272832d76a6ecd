package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/stepwise/packages/core/result"
)

// JUnit XML structures

// JUnitTestSuites is the root element
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Skipped    int              `xml:"skipped,attr"`
	Time       float64          `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite represents a test suite (typically a file)
type JUnitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	TestCases []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase represents a single test case
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
}

// JUnitFailure represents a test failure
type JUnitFailure struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitError represents a test error
type JUnitError struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitSkipped represents a skipped test
type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnitFormatter formats test results as JUnit XML
type JUnitFormatter struct {
	writer      io.Writer
	stackTraces bool
	testSuites  []JUnitTestSuite
}

type JUnitOption func(*JUnitFormatter)

func NewJUnitFormatter(opts ...JUnitOption) *JUnitFormatter {
	f := &JUnitFormatter{
		writer:     os.Stdout,
		testSuites: make([]JUnitTestSuite, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(f *JUnitFormatter) {
		f.writer = w
	}
}

// JUnitWithStackTraces appends captured stack traces to failure bodies.
func JUnitWithStackTraces(st bool) JUnitOption {
	return func(f *JUnitFormatter) {
		f.stackTraces = st
	}
}

// FormatReport maps FAILED to <failure>, UNDEFINED to <error> and PENDING or SKIPPED to <skipped>.
func (f *JUnitFormatter) FormatReport(report *Report) {
	tests := report.Tests()
	suite := JUnitTestSuite{
		Name:      report.Name(),
		Tests:     len(tests),
		Time:      report.Duration.Seconds(),
		Timestamp: time.Now().Format(time.RFC3339),
		TestCases: make([]JUnitTestCase, 0, len(tests)),
	}
	className := report.File
	if className == "" {
		className = report.Name()
	}

	for _, t := range tests {
		tc := JUnitTestCase{
			Name:      t.Name,
			ClassName: className,
			Time:      durationOf(t.Outcome).Seconds(),
		}

		switch statusOf(t.Outcome) {
		case result.Skipped:
			suite.Skipped++
			tc.Skipped = &JUnitSkipped{Message: messageOf(t.Outcome)}
		case result.Pending:
			suite.Skipped++
			tc.Skipped = &JUnitSkipped{Message: "pending: " + messageOf(t.Outcome)}
		case result.Undefined:
			suite.Errors++
			tc.Error = &JUnitError{
				Message: messageOf(t.Outcome),
				Type:    "Undefined",
				Content: f.details(t, result.Undefined),
			}
		case result.Failed:
			suite.Failures++
			tc.Failure = &JUnitFailure{
				Message: messageOf(t.Outcome),
				Type:    "Failure",
				Content: f.details(t, result.Failed),
			}
		}

		suite.TestCases = append(suite.TestCases, tc)
	}

	f.testSuites = append(f.testSuites, suite)
}

// details lists the leaves holding the given status, with stack traces when enabled.
func (f *JUnitFormatter) details(t TestResult, status result.Status) string {
	var b strings.Builder
	for _, s := range t.Steps {
		if statusOf(s.Outcome) != status {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", s.Name, messageOf(s.Outcome))
		if f.stackTraces && s.Outcome != nil && s.Outcome.HasStackTrace {
			b.WriteString(s.Outcome.StackTrace)
			if !strings.HasSuffix(s.Outcome.StackTrace, "\n") {
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

func (f *JUnitFormatter) FormatError(err error) {
	// Errors are included in individual test cases
}

func (f *JUnitFormatter) FormatHeader(version string) {
	// No header needed for JUnit XML
}

// Flush writes the accumulated JUnit XML output
func (f *JUnitFormatter) Flush(totalDuration time.Duration) error {
	var totalTests, totalFailures, totalErrors, totalSkipped int
	for _, suite := range f.testSuites {
		totalTests += suite.Tests
		totalFailures += suite.Failures
		totalErrors += suite.Errors
		totalSkipped += suite.Skipped
	}

	suites := JUnitTestSuites{
		Name:       "stepwise",
		Tests:      totalTests,
		Failures:   totalFailures,
		Errors:     totalErrors,
		Skipped:    totalSkipped,
		Time:       totalDuration.Seconds(),
		Timestamp:  time.Now().Format(time.RFC3339),
		TestSuites: f.testSuites,
	}

	fmt.Fprintf(f.writer, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	encoder := xml.NewEncoder(f.writer)
	encoder.Indent("", "  ")
	return encoder.Encode(suites)
}
