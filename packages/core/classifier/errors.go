package classifier

import (
	"errors"
	"fmt"
)

// Indicators understood by the default table.
const (
	IndicatorSkip    = "skip"
	IndicatorPending = "pending"
)

// Indicated is implemented by errors that name their classification indicator.
type Indicated interface {
	Indicator() string
}

type indicatorError struct {
	indicator string
	msg       string
}

func (e *indicatorError) Error() string     { return e.msg }
func (e *indicatorError) Indicator() string { return e.indicator }

var (
	// ErrSkip marks a step that decided not to run.
	ErrSkip error = &indicatorError{indicator: IndicatorSkip, msg: "skipped"}
	// ErrPending marks a step that is not implemented yet.
	ErrPending error = &indicatorError{indicator: IndicatorPending, msg: "pending"}
)

// Skip returns an error classified as SKIPPED with the given reason.
func Skip(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrSkip)
}

// Pending returns an error classified as PENDING with the given reason.
func Pending(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrPending)
}

// AssertionError is a failed expectation. Its message is reported verbatim.
type AssertionError struct {
	Message  string
	Expected any
	Actual   any
}

func (e *AssertionError) Error() string {
	if e.Expected == nil && e.Actual == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: expected %v, got %v", e.Message, e.Expected, e.Actual)
}

// Assertion marks e as an assertion-style failure.
func (e *AssertionError) Assertion() bool { return true }

// Assert returns an *AssertionError when ok is false, nil otherwise.
func Assert(ok bool, format string, args ...any) error {
	if ok {
		return nil
	}
	return &AssertionError{Message: fmt.Sprintf(format, args...)}
}

// AssertEqual compares with == and reports a mismatch as an *AssertionError.
func AssertEqual[T comparable](expected, actual T, msg string) error {
	if expected == actual {
		return nil
	}
	return &AssertionError{Message: msg, Expected: expected, Actual: actual}
}

type assertion interface {
	Assertion() bool
}

// IsAssertion reports whether err, or anything it wraps, is an assertion failure.
func IsAssertion(err error) bool {
	var a assertion
	return errors.As(err, &a) && a.Assertion()
}

// indicatorsOf collects every indicator advertised along the wrap chain of err.
func indicatorsOf(err error) []string {
	if err == nil {
		return nil
	}
	var out []string
	if ind, ok := err.(Indicated); ok {
		out = append(out, ind.Indicator())
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			out = append(out, indicatorsOf(inner)...)
		}
	case interface{ Unwrap() error }:
		out = append(out, indicatorsOf(u.Unwrap())...)
	}
	return out
}
