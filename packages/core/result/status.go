package result

import (
	"fmt"
	"strings"
)

// Status is the terminal state of an executed node.
type Status int

const (
	Passed Status = iota
	Skipped
	Pending
	Undefined
	Failed
)

var statusNames = map[Status]string{
	Passed:    "PASSED",
	Skipped:   "SKIPPED",
	Pending:   "PENDING",
	Undefined: "UNDEFINED",
	Failed:    "FAILED",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(s string) (Status, error) {
	for status, name := range statusNames {
		if strings.EqualFold(name, s) {
			return status, nil
		}
	}
	return Passed, fmt.Errorf("unknown status %q", s)
}

// MarshalText implements encoding.TextMarshaler so statuses read well in JSON and YAML.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Severity orders statuses: FAILED > UNDEFINED > PENDING > SKIPPED > PASSED.
func (s Status) Severity() int {
	return int(s)
}

// WorseThan reports whether s takes precedence over other during aggregation.
func (s Status) WorseThan(other Status) bool {
	return s.Severity() > other.Severity()
}

// Worst returns the status with the highest precedence. An empty list is PASSED.
func Worst(statuses ...Status) Status {
	worst := Passed
	for _, s := range statuses {
		if s.WorseThan(worst) {
			worst = s
		}
	}
	return worst
}
