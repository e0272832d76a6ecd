package classifier

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/abdul-hamid-achik/stepwise/packages/core/result"
)

// Rule routes failures carrying Indicator to Status.
type Rule struct {
	Indicator string        `json:"indicator" yaml:"indicator"`
	Status    result.Status `json:"status" yaml:"status"`
}

// Policy controls what is attached to failed outcomes.
type Policy struct {
	StackTraces bool
}

// DefaultRules is the table used when no configuration is given.
var DefaultRules = []Rule{
	{Indicator: IndicatorSkip, Status: result.Skipped},
	{Indicator: IndicatorPending, Status: result.Pending},
}

// Classifier converts errors into outcomes. It is immutable and safe for concurrent use.
type Classifier struct {
	table  map[string]result.Status
	policy Policy
}

// New builds a classifier from a rule table. Later rules override earlier ones for the
// same indicator.
func New(rules []Rule, policy Policy) *Classifier {
	table := make(map[string]result.Status, len(rules))
	for _, r := range rules {
		table[r.Indicator] = r.Status
	}
	return &Classifier{table: table, policy: policy}
}

// Default returns a classifier using DefaultRules with stack traces off.
func Default() *Classifier {
	return New(DefaultRules, Policy{})
}

// FromIndicators builds the table from plain skip and pending indicator sets.
func FromIndicators(skip, pending []string, policy Policy) *Classifier {
	rules := make([]Rule, 0, len(skip)+len(pending))
	for _, ind := range skip {
		rules = append(rules, Rule{Indicator: ind, Status: result.Skipped})
	}
	for _, ind := range pending {
		rules = append(rules, Rule{Indicator: ind, Status: result.Pending})
	}
	return New(rules, policy)
}

func (c *Classifier) Policy() Policy {
	return c.policy
}

// Classify maps err to an outcome. A nil error is PASSED.
func (c *Classifier) Classify(err error) *result.Outcome {
	if err == nil {
		return result.NewPassed()
	}

	o := &result.Outcome{Err: err}
	switch status, ok := c.lookup(err); {
	case ok:
		o.Status = status
		o.Message = err.Error()
	case IsAssertion(err):
		o.Status = result.Failed
		o.Message = err.Error()
	default:
		o.Status = result.Failed
		o.Message = fmt.Sprintf("unexpected failure: %v", err)
	}

	if c.policy.StackTraces {
		if trace := StackTrace(err); trace != "" {
			o.HasStackTrace = true
			o.StackTrace = trace
		}
	}
	return o
}

func (c *Classifier) lookup(err error) (result.Status, bool) {
	for _, ind := range indicatorsOf(err) {
		if status, ok := c.table[ind]; ok {
			return status, true
		}
	}
	return result.Passed, false
}

// PanicError wraps a value recovered from a panicking binding.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes a panicking error value to errors.Is and errors.As.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// StackTrace returns the deepest stack trace recorded in err's chain, or "".
func StackTrace(err error) string {
	var p *PanicError
	if errors.As(err, &p) && len(p.Stack) > 0 {
		return string(p.Stack)
	}
	var deepest stackTracer
	for e := err; e != nil; e = errors.Unwrap(e) {
		if st, ok := e.(stackTracer); ok {
			deepest = st
		}
	}
	if deepest == nil {
		return ""
	}
	return fmt.Sprintf("%+v", deepest.StackTrace())
}
