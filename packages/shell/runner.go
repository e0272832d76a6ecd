package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/stepwise/packages/core/env"
)

// Owner is the owner name under which the Runner instance is resolved.
const Owner = "shell"

// Runner executes commands with "<shell> -c" in a base directory.
type Runner struct {
	shell    string
	dir      string
	env      map[string]string
	resolver *env.Resolver
	logger   *zap.Logger
	output   io.Writer
}

type Option func(*Runner)

// WithShell sets the shell binary, "sh" by default.
func WithShell(shell string) Option {
	return func(r *Runner) {
		if shell != "" {
			r.shell = shell
		}
	}
}

// WithDir sets the working directory; relative scripts are looked up there too.
func WithDir(dir string) Option {
	return func(r *Runner) {
		r.dir = dir
	}
}

// WithEnv adds variables to the environment of every command.
func WithEnv(vars map[string]string) Option {
	return func(r *Runner) {
		for k, v := range vars {
			r.env[k] = v
		}
	}
}

// WithResolver expands {{...}} placeholders in commands before running them.
func WithResolver(res *env.Resolver) Option {
	return func(r *Runner) {
		r.resolver = res
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithOutput copies the output of every command to w.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		r.output = w
	}
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		shell:  "sh",
		env:    make(map[string]string),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolver returns the placeholder resolver, nil when none is configured.
func (r *Runner) Resolver() *env.Resolver {
	return r.resolver
}

func (r *Runner) resolve(s string) string {
	if r.resolver == nil {
		return s
	}
	return r.resolver.Resolve(s)
}

// Result is a finished command.
type Result struct {
	Command  string
	Output   string
	ExitCode int
	Duration time.Duration
}

// Run executes command with extra environment variables. A command prefixed with "-"
// never fails on a non-zero exit.
func (r *Runner) Run(ctx context.Context, command string, extraEnv map[string]string) (*Result, error) {
	cmdStr := strings.TrimSpace(r.resolve(command))

	res := &Result{Command: cmdStr}
	if cmdStr == "" {
		return res, nil
	}

	ignoreError := strings.HasPrefix(cmdStr, "-")
	if ignoreError {
		cmdStr = strings.TrimSpace(strings.TrimPrefix(cmdStr, "-"))
	}
	cmdStr = r.resolveExecutable(cmdStr)

	cmd := exec.CommandContext(ctx, r.shell, "-c", cmdStr)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(), r.environ(extraEnv)...)

	var buf bytes.Buffer
	if r.output != nil {
		cmd.Stdout = io.MultiWriter(&buf, r.output)
	} else {
		cmd.Stdout = &buf
	}
	cmd.Stderr = cmd.Stdout

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Output = buf.String()

	r.logger.Debug("shell command finished",
		zap.String("command", cmdStr),
		zap.Duration("duration", res.Duration),
		zap.Error(err))

	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		res.ExitCode = -1
		return res, fmt.Errorf("running %q: %w", cmdStr, err)
	}
	res.ExitCode = exitErr.ExitCode()
	if ignoreError {
		return res, nil
	}
	return res, &ExitError{Command: cmdStr, Code: res.ExitCode, Output: res.Output}
}

// resolveExecutable makes "./script" and scripts found in the base directory absolute.
func (r *Runner) resolveExecutable(cmdStr string) string {
	if r.dir == "" {
		return cmdStr
	}
	executable, rest, _ := strings.Cut(cmdStr, " ")
	switch {
	case strings.HasPrefix(executable, "./") || strings.HasPrefix(executable, "../"):
		executable = filepath.Join(r.dir, executable)
	case !filepath.IsAbs(executable) && !isInPath(executable):
		candidate := filepath.Join(r.dir, executable)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			executable = candidate
		}
	default:
		return cmdStr
	}
	if rest == "" {
		return executable
	}
	return executable + " " + rest
}

func (r *Runner) environ(extra map[string]string) []string {
	merged := make(map[string]string, len(r.env)+len(extra))
	for k, v := range r.env {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+merged[k])
	}
	return out
}

// isInPath checks if a command is available in the system PATH
func isInPath(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}
