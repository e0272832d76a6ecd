// Package notify posts run summaries to chat webhooks.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-multierror"

	"github.com/abdul-hamid-achik/stepwise/packages/core/result"
	"github.com/abdul-hamid-achik/stepwise/packages/output"
)

// On decides which runs are announced.
type On string

const (
	OnAlways  On = "always"
	OnFailure On = "failure"
	OnSuccess On = "success"
	// OnRecovery announces failures and the first passing run after them.
	OnRecovery On = "recovery"
)

// ParseOn validates a --notify-on value.
func ParseOn(s string) (On, error) {
	switch on := On(strings.ToLower(strings.TrimSpace(s))); on {
	case OnAlways, OnFailure, OnSuccess, OnRecovery:
		return on, nil
	case "":
		return OnFailure, nil
	default:
		return "", fmt.Errorf("unknown notify policy %q (use always, failure, success or recovery)", s)
	}
}

// Summary is one run over every manifest.
type Summary struct {
	Files       int
	Counts      result.Counts
	Duration    time.Duration
	Environment string
	Failures    []Failure
	Recovery    bool
}

// Failure is a test that failed or could not be executed.
type Failure struct {
	Name    string
	File    string
	Status  result.Status
	Message string
}

// Failing reports whether the run should count as broken.
func (s *Summary) Failing() bool {
	return s.Counts.Failed > 0 || s.Counts.Undefined > 0
}

// Title is the one-line headline shared by every notifier.
func (s *Summary) Title() string {
	switch {
	case s.Failing():
		return fmt.Sprintf("%d of %d test(s) failed", s.Counts.Failed+s.Counts.Undefined, s.Counts.Total())
	case s.Recovery:
		return "Tests recovered"
	default:
		return fmt.Sprintf("All %d test(s) passed", s.Counts.Total())
	}
}

// NewSummary collects the outcome of reports.
func NewSummary(reports []*output.Report, environment string, duration time.Duration) *Summary {
	s := &Summary{Files: len(reports), Environment: environment, Duration: duration}
	for _, r := range reports {
		for _, t := range r.Tests() {
			s.Counts.Add(t.Outcome)
			f := Failure{Name: t.Name, File: r.File, Status: result.Undefined, Message: "not executed"}
			if t.Outcome != nil {
				f.Status, f.Message = t.Outcome.Status, t.Outcome.Message
			}
			if f.Status != result.Failed && f.Status != result.Undefined {
				continue
			}
			for _, step := range t.Steps {
				if step.Outcome != nil && step.Outcome.Status == f.Status && step.Outcome.Message != "" {
					f.Message = step.Name + ": " + step.Outcome.Message
					break
				}
			}
			s.Failures = append(s.Failures, f)
		}
	}
	return s
}

// Notifier delivers a summary to one service.
type Notifier interface {
	Notify(ctx context.Context, summary *Summary) error
	Name() string
}

// Manager applies the policy and fans out to notifiers. It remembers the previous run so
// watch mode can announce recoveries.
type Manager struct {
	notifiers []Notifier
	on        On
	lastOK    bool
}

func NewManager(on On, notifiers ...Notifier) *Manager {
	return &Manager{notifiers: notifiers, on: on, lastOK: true}
}

// Notify sends summary to every notifier when the policy allows it. Delivery errors are
// collected, one failing notifier does not stop the others.
func (m *Manager) Notify(ctx context.Context, summary *Summary) error {
	ok := !summary.Failing()
	send := false

	switch m.on {
	case OnAlways:
		send = true
	case OnFailure:
		send = !ok
	case OnSuccess:
		send = ok
	case OnRecovery:
		summary.Recovery = ok && !m.lastOK
		send = !ok || summary.Recovery
	}
	m.lastOK = ok

	if !send {
		return nil
	}

	var errs *multierror.Error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, summary); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errs.ErrorOrNil()
}

const defaultTimeout = 10 * time.Second

// postJSON sends payload to url and expects a 2xx answer.
func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// New builds a notifier by service name.
func New(service, webhookURL string) (Notifier, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("%s notifications need a webhook URL", service)
	}
	switch strings.ToLower(service) {
	case "slack":
		return NewSlackNotifier(webhookURL), nil
	case "teams":
		return NewTeamsNotifier(webhookURL), nil
	default:
		return nil, fmt.Errorf("unknown notifier %q (use slack or teams)", service)
	}
}
