package result

import "time"

// Outcome is the result record of a single node.
type Outcome struct {
	Status        Status `json:"status"`
	Message       string `json:"message,omitempty"`
	HasStackTrace bool   `json:"hasStackTrace,omitempty"`
	StackTrace    string `json:"stackTrace,omitempty"`

	// Dry marks a synthetic outcome produced without invoking anything.
	Dry bool `json:"dry,omitempty"`

	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// New returns an outcome with the given status and message.
func New(status Status, message string) *Outcome {
	return &Outcome{Status: status, Message: message}
}

func NewPassed() *Outcome {
	return New(Passed, "")
}

func NewSkipped(reason string) *Outcome {
	return New(Skipped, reason)
}

// NewDry returns the synthetic outcome used for dry leaves.
func NewDry() *Outcome {
	return &Outcome{Status: Passed, Dry: true}
}

// Passed reports whether the outcome is PASSED.
func (o *Outcome) Passed() bool {
	return o != nil && o.Status == Passed
}

// Failed reports whether the outcome is FAILED.
func (o *Outcome) Failed() bool {
	return o != nil && o.Status == Failed
}

// Aggregate folds the given outcomes into a new one carrying the worst status. The message
// and stack trace come from the first outcome holding that status. Nil entries are ignored.
func Aggregate(floor Status, parts ...*Outcome) *Outcome {
	agg := &Outcome{Status: floor}
	var source *Outcome
	for _, p := range parts {
		if p == nil {
			continue
		}
		if p.Status.WorseThan(agg.Status) || (source == nil && p.Status == agg.Status && p.Status != Passed) {
			agg.Status = p.Status
			source = p
		}
	}
	if source != nil {
		agg.Message = source.Message
		agg.HasStackTrace = source.HasStackTrace
		agg.StackTrace = source.StackTrace
		agg.Err = source.Err
	}
	return agg
}

// Counts tallies outcomes per status.
type Counts struct {
	Passed    int `json:"passed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Pending   int `json:"pending"`
	Undefined int `json:"undefined"`
}

// Add records one outcome. Nil outcomes count as UNDEFINED, they were never executed.
func (c *Counts) Add(o *Outcome) {
	if o == nil {
		c.Undefined++
		return
	}
	switch o.Status {
	case Passed:
		c.Passed++
	case Failed:
		c.Failed++
	case Skipped:
		c.Skipped++
	case Pending:
		c.Pending++
	default:
		c.Undefined++
	}
}

func (c Counts) Total() int {
	return c.Passed + c.Failed + c.Skipped + c.Pending + c.Undefined
}
