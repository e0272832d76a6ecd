package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/stepwise/packages/core/config"
	"github.com/abdul-hamid-achik/stepwise/packages/core/env"
	"github.com/abdul-hamid-achik/stepwise/packages/core/event"
	"github.com/abdul-hamid-achik/stepwise/packages/core/executor"
	"github.com/abdul-hamid-achik/stepwise/packages/core/invoker"
	"github.com/abdul-hamid-achik/stepwise/packages/manifest"
	"github.com/abdul-hamid-achik/stepwise/packages/notify"
	"github.com/abdul-hamid-achik/stepwise/packages/output"
	"github.com/abdul-hamid-achik/stepwise/packages/shell"
	"github.com/abdul-hamid-achik/stepwise/packages/tagfilter"
)

// VarPrefix marks process environment variables exposed to manifests as {{name}}.
const VarPrefix = "STEPWISE_VAR_"

// session runs manifests with one resolved configuration.
type session struct {
	cfg       *config.Config
	envName   string
	logger    *zap.Logger
	publisher event.Publisher
	// commandOutput receives the output of every shell command, nil discards it.
	commandOutput io.Writer
	notifier      *notify.Manager
}

// ParseError marks a manifest that could not be loaded or turned into a tree.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("%s: %v", e.File, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// load parses a manifest and builds its tree and bindings. Every call builds fresh nodes,
// so a tree can be rerun in watch mode.
func load(path string, bail bool) (*manifest.Manifest, *invoker.Registry, *output.Report, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return nil, nil, nil, &ParseError{File: path, Err: err}
	}
	reg := invoker.NewRegistry()
	suite, err := manifest.Discover(m, reg, manifest.DiscoverOptions{Bail: bail})
	if err != nil {
		return nil, nil, nil, &ParseError{File: path, Err: err}
	}
	reg.Seal()
	return m, reg, &output.Report{File: path, Suite: suite}, nil
}

// variables merges, later winning: STEPWISE_VAR_* from the process, manifest vars, the
// selected environment, then the dotenv file.
func (s *session) variables(m *manifest.Manifest) (map[string]any, error) {
	environment, err := env.LoadEnvironment(s.envName, m.Environments)
	if err != nil {
		return nil, err
	}

	dotenv := map[string]any{}
	if s.cfg.EnvFile != "" {
		values, err := env.LoadDotEnv(s.cfg.EnvFile)
		if err != nil {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
		for k, v := range values {
			dotenv[k] = v
		}
	}

	return env.MergeVariables(env.LoadSystemEnv(VarPrefix), m.Vars, environment.Variables, dotenv), nil
}

func (s *session) executorOptions() []executor.Option {
	concurrency := 1
	if s.cfg.GetParallel() {
		concurrency = s.cfg.Concurrency
	}
	opts := []executor.Option{
		executor.WithLogger(s.logger),
		executor.WithConcurrency(concurrency),
	}
	if s.publisher != nil {
		opts = append(opts, executor.WithPublisher(s.publisher))
	}
	if s.cfg.StartRate > 0 {
		opts = append(opts, executor.WithStartRate(s.cfg.StartRate))
	}
	if s.cfg.TestTimeout > 0 {
		opts = append(opts, executor.WithTestTimeout(time.Duration(s.cfg.TestTimeout)*time.Millisecond))
	}
	return opts
}

// runFile loads, discovers and executes one manifest.
func (s *session) runFile(ctx context.Context, path string) (*output.Report, error) {
	m, reg, report, err := load(path, s.cfg.GetBail())
	if err != nil {
		return nil, err
	}

	vars, err := s.variables(m)
	if err != nil {
		return nil, &ParseError{File: path, Err: err}
	}

	resolver := env.NewResolver()
	resolver.SetVariables(vars)
	resolver.SetWarnFunc(func(format string, args ...any) {
		s.logger.Warn(fmt.Sprintf(format, args...), zap.String("file", path))
	})

	runnerOpts := []shell.Option{
		shell.WithShell(s.cfg.Shell),
		shell.WithDir(filepath.Dir(path)),
		shell.WithEnv(stringValues(m.Env)),
		shell.WithResolver(resolver),
		shell.WithLogger(s.logger.Named("shell")),
	}
	if s.commandOutput != nil {
		runnerOpts = append(runnerOpts, shell.WithOutput(s.commandOutput))
	}
	runner := shell.NewRunner(runnerOpts...)

	inv := invoker.New(reg,
		invoker.WithResolver(invoker.Instances{shell.Owner: runner}),
		invoker.WithClassifier(s.cfg.Classifier()),
		invoker.WithLogger(s.logger.Named("invoker")),
	)
	exec := executor.New(inv, s.executorOptions()...)

	start := time.Now()
	exec.RunSuite(ctx, report.Suite, tagfilter.NewSet(s.cfg.Tags, s.cfg.ExcludeTags), s.cfg.GetDryRun())
	report.Duration = time.Since(start)
	return report, nil
}

func stringValues(values map[string]any) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func collectFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			err := filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && isManifestFile(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else {
			files = append(files, arg)
		}
	}

	return files, nil
}

// isManifestFile matches *.stepwise.{yaml,yml,json} when walking directories. Files named
// explicitly on the command line are taken whatever their name.
func isManifestFile(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	if slices.Contains(config.ConfigFilenames, base) {
		return false
	}
	for _, ext := range []string{".stepwise.yaml", ".stepwise.yml", ".stepwise.json"} {
		if strings.HasSuffix(base, ext) {
			return true
		}
	}
	return false
}
