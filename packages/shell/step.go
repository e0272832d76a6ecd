package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/stepwise/packages/assertions"
	"github.com/abdul-hamid-achik/stepwise/packages/capture"
	"github.com/abdul-hamid-achik/stepwise/packages/core/invoker"
)

// ExitError is a command that exited with a non-zero code.
type ExitError struct {
	Command string
	Code    int
	Output  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command %q exited with code %d", e.Command, e.Code)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + tail(out, 20)
	}
	return msg
}

// Indicator is "exit:<code>".
func (e *ExitError) Indicator() string {
	return fmt.Sprintf("exit:%d", e.Code)
}

// StepOption configures a shell step.
type StepOption func(*step)

type step struct {
	command  string
	capture  string
	captures []capture.Spec
	expect   []assertions.Expectation
	baseDir  string
}

// Capture stores the trimmed output of the command under name in the runner's resolver,
// for later steps to use as {{name}}.
func Capture(name string) StepOption {
	return func(s *step) {
		s.capture = name
	}
}

// Captures stores values read from the finished command, see package capture.
func Captures(specs ...capture.Spec) StepOption {
	return func(s *step) {
		s.captures = append(s.captures, specs...)
	}
}

// Expect checks the finished command against expectations. Schema files resolve against
// baseDir. When an expectation reads the exit code, a non-zero exit no longer fails the step
// by itself.
func Expect(baseDir string, expectations ...assertions.Expectation) StepOption {
	return func(s *step) {
		s.expect = append(s.expect, expectations...)
		s.baseDir = baseDir
	}
}

func (s *step) checksExitCode() bool {
	for _, x := range s.expect {
		if x.Subject == capture.SubjectExitCode {
			return true
		}
	}
	return false
}

// Step returns a binding function running command with the *Runner instance it is invoked
// with.
func Step(command string, opts ...StepOption) invoker.Func {
	s := &step{command: command}
	for _, opt := range opts {
		opt(s)
	}
	return func(ctx context.Context, instance any, args invoker.Args) error {
		r, err := runnerOf(instance)
		if err != nil {
			return err
		}

		cmd := s.command
		for _, a := range args.Positional {
			cmd += " " + Quote(r.resolve(fmt.Sprint(a)))
		}
		extra := make(map[string]string, len(args.Named))
		for k, v := range args.Named {
			extra[k] = r.resolve(fmt.Sprint(v))
		}

		res, err := r.Run(ctx, cmd, extra)
		var exitErr *ExitError
		if err != nil && !(errors.As(err, &exitErr) && s.checksExitCode()) {
			return err
		}

		out := capture.NewOutput(res.Output, res.ExitCode, res.Duration)
		if len(s.expect) > 0 {
			if err := assertions.Check(out, s.expect, assertions.WithBaseDir(s.baseDir)); err != nil {
				return err
			}
		}
		return s.store(r, out)
	}
}

func (s *step) store(r *Runner, out *capture.Output) error {
	if r.resolver == nil {
		return nil
	}
	if s.capture != "" {
		r.resolver.SetCapture("", s.capture, strings.TrimSpace(out.Text))
	}
	if len(s.captures) == 0 {
		return nil
	}
	values, err := capture.ExtractAll(out, s.captures)
	for name, v := range values {
		r.resolver.SetCapture("", name, v)
	}
	return err
}

func runnerOf(instance any) (*Runner, error) {
	r, ok := instance.(*Runner)
	if !ok || r == nil {
		return nil, fmt.Errorf("shell steps need a *shell.Runner instance, got %T", instance)
	}
	return r, nil
}

// Quote quotes s for a POSIX shell.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuoting) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuoting(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("-_./=:,@%+", r):
		return false
	}
	return true
}

func tail(s string, lines int) string {
	parts := strings.Split(s, "\n")
	if len(parts) <= lines {
		return s
	}
	return "...\n" + strings.Join(parts[len(parts)-lines:], "\n")
}
