package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/stepwise/packages/core/config"
	"github.com/abdul-hamid-achik/stepwise/packages/core/result"
	"github.com/abdul-hamid-achik/stepwise/packages/notify"
	"github.com/abdul-hamid-achik/stepwise/packages/output"
	"github.com/abdul-hamid-achik/stepwise/packages/tagfilter"
)

var runCmd = &cobra.Command{
	Use:   "run <file|directory>...",
	Short: "Run stepwise manifests",
	Long: `Run the test trees described by stepwise manifests.

Directories are searched for *.stepwise.yaml, *.stepwise.yml and *.stepwise.json files.

Examples:
  stepwise run checkout.stepwise.yaml
  stepwise run ./suites/ --tags smoke --exclude-tags wip
  stepwise run ./suites/ --parallel --concurrency 8 --rate 2
  stepwise run checkout.stepwise.yaml --dry-run -o json --output-file report.json
  stepwise run ./suites/ --watch
  stepwise run ./suites/ --notify-slack $SLACK_WEBHOOK --notify-on recovery`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	envFlag         string
	envFileFlag     string
	configFlag      string
	tagsFlag        string
	excludeTagsFlag string
	verboseFlag     int
	noColorFlag     bool
	bailFlag        bool
	dryRunFlag      bool
	outputFlag      string
	outputFileFlag  string
	parallelFlag    bool
	concurrencyFlag int
	rateFlag        float64
	timeoutFlag     string
	stackTracesFlag bool
	cycleFlag       bool
	watchFlag       bool
	shellFlag       string
	logFileFlag     string
	slackFlag       string
	teamsFlag       string
	notifyOnFlag    string
)

func init() {
	// Core flags
	runCmd.Flags().StringVarP(&envFlag, "env", "e", getEnvString("STEPWISE_ENV", ""), "Manifest environment to use (env: STEPWISE_ENV)")
	runCmd.Flags().StringVar(&envFileFlag, "env-file", getEnvString("STEPWISE_ENV_FILE", ""), "Path to .env file for variable interpolation (env: STEPWISE_ENV_FILE)")
	runCmd.Flags().StringVar(&configFlag, "config", getEnvString("STEPWISE_CONFIG", ""), "Path to config file (env: STEPWISE_CONFIG)")
	runCmd.Flags().StringVarP(&tagsFlag, "tags", "t", getEnvString("STEPWISE_TAGS", ""), "Run only tests with any of these tags, globs allowed (env: STEPWISE_TAGS)")
	runCmd.Flags().StringVar(&excludeTagsFlag, "exclude-tags", getEnvString("STEPWISE_EXCLUDE_TAGS", ""), "Bypass tests with any of these tags (env: STEPWISE_EXCLUDE_TAGS)")

	// Output flags
	runCmd.Flags().CountVarP(&verboseFlag, "verbose", "v", "Verbose output (-v shows every step and info logs, -vv adds debug logs)")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("STEPWISE_NO_COLOR", false), "Disable colored output (env: STEPWISE_NO_COLOR)")
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("STEPWISE_OUTPUT", "console"), "Output format: console, json, junit, tap, html (env: STEPWISE_OUTPUT)")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("STEPWISE_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: STEPWISE_OUTPUT_FILE)")
	runCmd.Flags().BoolVar(&stackTracesFlag, "stack-traces", getEnvBool("STEPWISE_STACK_TRACES", false), "Capture and print stack traces of failed steps (env: STEPWISE_STACK_TRACES)")
	runCmd.Flags().BoolVar(&cycleFlag, "cycle", getEnvBool("STEPWISE_CYCLE", false), "Print step lifecycle events live on stderr (env: STEPWISE_CYCLE)")
	runCmd.Flags().StringVar(&logFileFlag, "log-file", getEnvString("STEPWISE_LOG_FILE", ""), "Also write debug logs to a rotating file (env: STEPWISE_LOG_FILE)")

	// Execution flags
	runCmd.Flags().BoolVar(&bailFlag, "bail", getEnvBool("STEPWISE_BAIL", false), "Skip remaining tests after the first failure (env: STEPWISE_BAIL)")
	runCmd.Flags().BoolVar(&dryRunFlag, "dry-run", getEnvBool("STEPWISE_DRY_RUN", false), "Walk the trees without invoking any step (env: STEPWISE_DRY_RUN)")
	runCmd.Flags().BoolVarP(&parallelFlag, "parallel", "p", getEnvBool("STEPWISE_PARALLEL", false), "Run test cases concurrently (env: STEPWISE_PARALLEL)")
	runCmd.Flags().IntVar(&concurrencyFlag, "concurrency", getEnvInt("STEPWISE_CONCURRENCY", 5), "Maximum test cases running at once with --parallel (env: STEPWISE_CONCURRENCY)")
	runCmd.Flags().Float64Var(&rateFlag, "rate", getEnvFloat("STEPWISE_RATE", 0), "Maximum test cases started per second, 0 is unlimited (env: STEPWISE_RATE)")
	runCmd.Flags().StringVar(&timeoutFlag, "test-timeout", getEnvString("STEPWISE_TEST_TIMEOUT", ""), "Deadline per test case (e.g., 30s, 1m) (env: STEPWISE_TEST_TIMEOUT)")
	runCmd.Flags().StringVar(&shellFlag, "shell", getEnvString("STEPWISE_SHELL", ""), "Shell used to run step commands (env: STEPWISE_SHELL)")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch files for changes and re-run tests")

	// Notification flags
	runCmd.Flags().StringVar(&slackFlag, "notify-slack", getEnvString("STEPWISE_SLACK_WEBHOOK", ""), "Post run summaries to this Slack webhook (env: STEPWISE_SLACK_WEBHOOK)")
	runCmd.Flags().StringVar(&teamsFlag, "notify-teams", getEnvString("STEPWISE_TEAMS_WEBHOOK", ""), "Post run summaries to this Teams webhook (env: STEPWISE_TEAMS_WEBHOOK)")
	runCmd.Flags().StringVar(&notifyOnFlag, "notify-on", getEnvString("STEPWISE_NOTIFY_ON", "failure"), "When to notify: always, failure, success, recovery (env: STEPWISE_NOTIFY_ON)")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// flagSet reports whether a flag was given on the command line or through its environment
// variable, in which case it overrides the config file.
func flagSet(cmd *cobra.Command, name, envKey string) bool {
	return cmd.Flags().Changed(name) || os.Getenv(envKey) != ""
}

// resolveConfig loads the config file and applies command line overrides.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	fileConfig, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, err
	}

	overrides := &config.Config{}
	if flagSet(cmd, "tags", "STEPWISE_TAGS") {
		overrides.Tags = tagfilter.Parse(tagsFlag)
	}
	if flagSet(cmd, "exclude-tags", "STEPWISE_EXCLUDE_TAGS") {
		overrides.ExcludeTags = tagfilter.Parse(excludeTagsFlag)
	}
	if flagSet(cmd, "env-file", "STEPWISE_ENV_FILE") {
		overrides.EnvFile = envFileFlag
	}
	if flagSet(cmd, "output", "STEPWISE_OUTPUT") {
		overrides.Reporters = []string{strings.ToLower(outputFlag)}
	}
	if flagSet(cmd, "output-file", "STEPWISE_OUTPUT_FILE") {
		overrides.OutputFile = outputFileFlag
	}
	if flagSet(cmd, "shell", "STEPWISE_SHELL") {
		overrides.Shell = shellFlag
	}
	if flagSet(cmd, "concurrency", "STEPWISE_CONCURRENCY") {
		overrides.Concurrency = concurrencyFlag
	}
	if flagSet(cmd, "rate", "STEPWISE_RATE") {
		overrides.StartRate = rateFlag
	}
	if timeoutFlag != "" {
		d, err := time.ParseDuration(timeoutFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid test timeout %q: %w (use format like 30s, 1m, 500ms)", timeoutFlag, err)
		}
		overrides.TestTimeout = int(d.Milliseconds())
	}
	if verboseFlag > 0 {
		overrides.Verbose = config.BoolPtr(true)
	}
	if flagSet(cmd, "no-color", "STEPWISE_NO_COLOR") {
		overrides.NoColor = config.BoolPtr(noColorFlag)
	}
	if flagSet(cmd, "bail", "STEPWISE_BAIL") {
		overrides.Bail = config.BoolPtr(bailFlag)
	}
	if flagSet(cmd, "dry-run", "STEPWISE_DRY_RUN") {
		overrides.DryRun = config.BoolPtr(dryRunFlag)
	}
	if flagSet(cmd, "parallel", "STEPWISE_PARALLEL") {
		overrides.Parallel = config.BoolPtr(parallelFlag)
	}
	if flagSet(cmd, "stack-traces", "STEPWISE_STACK_TRACES") {
		overrides.StackTraces = config.BoolPtr(stackTracesFlag)
	}
	if flagSet(cmd, "cycle", "STEPWISE_CYCLE") {
		overrides.Reporting = &config.Reporting{Cycle: config.BoolPtr(cycleFlag)}
	}

	cfg := fileConfig.Merge(overrides)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newFormatter creates the formatter for the first configured reporter.
func newFormatter(cfg *config.Config, w io.Writer) (output.Formatter, error) {
	reporter := "console"
	if len(cfg.Reporters) > 0 {
		reporter = strings.ToLower(cfg.Reporters[0])
	}

	switch reporter {
	case "json":
		return output.NewJSONFormatter(output.JSONWithWriter(w), output.JSONWithStackTraces(cfg.GetStackTraces())), nil
	case "junit":
		return output.NewJUnitFormatter(output.JUnitWithWriter(w), output.JUnitWithStackTraces(cfg.GetStackTraces())), nil
	case "tap":
		return output.NewTAPFormatter(output.TAPWithWriter(w)), nil
	case "html":
		return output.NewHTMLFormatter(output.HTMLWithWriter(w)), nil
	case "console":
		return output.NewConsoleFormatter(
			output.WithWriter(w),
			output.WithVerbose(cfg.GetVerbose()),
			output.WithNoColor(cfg.GetNoColor()),
			output.WithStackTraces(cfg.GetStackTraces()),
			output.WithSummary(cfg.GetReportSummary()),
			output.WithErrors(cfg.GetReportErrors()),
		), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (use console, json, junit, tap or html)", reporter)
	}
}

// runTotals summarizes one pass over all files.
type runTotals struct {
	tests       result.Counts
	parseErrors int
	duration    time.Duration
	reports     []*output.Report
}

func (t runTotals) exitCode() int {
	switch {
	case t.parseErrors > 0:
		return ExitParseError
	case t.tests.Failed > 0 || t.tests.Undefined > 0:
		return ExitTestFailure
	}
	return ExitSuccess
}

// runFiles runs every file once and feeds the formatter.
func (s *session) runFiles(ctx context.Context, files []string, formatter output.Formatter) (runTotals, error) {
	var totals runTotals
	start := time.Now()

	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		report, err := s.runFile(ctx, file)
		if err != nil {
			formatter.FormatError(err)
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				return totals, err
			}
			totals.parseErrors++
			if s.cfg.GetBail() {
				break
			}
			continue
		}

		formatter.FormatReport(report)
		totals.reports = append(totals.reports, report)
		counts := report.Counts()
		totals.tests.Passed += counts.Passed
		totals.tests.Failed += counts.Failed
		totals.tests.Skipped += counts.Skipped
		totals.tests.Pending += counts.Pending
		totals.tests.Undefined += counts.Undefined

		if s.cfg.GetBail() && (counts.Failed > 0 || counts.Undefined > 0) {
			break
		}
	}

	totals.duration = time.Since(start)
	if flushable, ok := formatter.(output.Flushable); ok {
		if err := flushable.Flush(totals.duration); err != nil {
			return totals, fmt.Errorf("error writing output: %w", err)
		}
	}
	return totals, nil
}

// newNotifier returns nil when no webhook is configured.
func newNotifier() (*notify.Manager, error) {
	on, err := notify.ParseOn(notifyOnFlag)
	if err != nil {
		return nil, err
	}
	var notifiers []notify.Notifier
	for service, url := range map[string]string{"slack": slackFlag, "teams": teamsFlag} {
		if url == "" {
			continue
		}
		n, err := notify.New(service, url)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	if len(notifiers) == 0 {
		return nil, nil
	}
	return notify.NewManager(on, notifiers...), nil
}

// announce posts the run summary. Delivery problems never change the exit code.
func (s *session) announce(ctx context.Context, totals runTotals) {
	if s.notifier == nil {
		return
	}
	summary := notify.NewSummary(totals.reports, s.envName, totals.duration)
	if err := s.notifier.Notify(ctx, summary); err != nil {
		s.logger.Warn("notification failed", zap.Error(err))
	}
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return exitWith(ExitConfigError, err)
	}

	logger := newLogger(verboseFlag, logFileFlag)
	defer func() { _ = logger.Sync() }()

	files, err := collectFiles(args)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}
	if len(files) == 0 {
		return exitWith(ExitUsageError, fmt.Errorf("no stepwise manifests found"))
	}

	var out io.Writer = cmd.OutOrStdout()
	if cfg.OutputFile != "" {
		f, err := os.Create(cfg.OutputFile)
		if err != nil {
			return exitWith(ExitConfigError, fmt.Errorf("cannot create output file: %w", err))
		}
		defer f.Close()
		out = f
	}

	notifier, err := newNotifier()
	if err != nil {
		return exitWith(ExitConfigError, err)
	}

	s := &session{cfg: cfg, envName: envFlag, logger: logger, notifier: notifier}
	if cfg.GetReportCycle() {
		s.publisher = output.NewCycleReporter(output.CycleWithWriter(cmd.ErrOrStderr()), output.CycleWithHooks(cfg.GetVerbose()))
	}
	if cfg.GetVerbose() {
		s.commandOutput = cmd.ErrOrStderr()
	}

	// Set up signal handling for graceful shutdown
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nReceived interrupt, skipping remaining steps and running cleanup hooks...")
			cancel()
			// A second interrupt falls back to the default handler and kills the process.
			signal.Stop(sigCh)
		case <-ctx.Done():
		}
	}()

	formatter, err := newFormatter(cfg, out)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}
	formatter.FormatHeader(version)

	totals, err := s.runFiles(ctx, files, formatter)
	if err != nil {
		return err
	}
	s.announce(ctx, totals)

	if !watchFlag {
		if code := totals.exitCode(); code != ExitSuccess {
			return exitWith(code, nil)
		}
		return nil
	}

	return watch(ctx, cmd, s, args, files, out)
}

// watch re-runs every file when a manifest or the env file changes, until ctx is done.
func watch(ctx context.Context, cmd *cobra.Command, s *session, args, files []string, out io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	watchedDirs := make(map[string]bool)
	addDir := func(dir string) {
		if watchedDirs[dir] {
			return
		}
		if err := watcher.Add(dir); err != nil {
			s.logger.Warn("cannot watch directory", zap.String("dir", dir), zap.Error(err))
		}
		watchedDirs[dir] = true
	}
	for _, file := range files {
		addDir(filepath.Dir(file))
	}
	if s.cfg.EnvFile != "" {
		addDir(filepath.Dir(s.cfg.EnvFile))
	}

	// Also watch the original args if they're directories
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err == nil && info.IsDir() {
			_ = filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if info.IsDir() {
					addDir(path)
				}
				return nil
			})
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	rerun := make(chan string, 1)
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil

		case changed := <-rerun:
			fmt.Fprintf(cmd.OutOrStdout(), "\n\nFile changed: %s\nRe-running tests...\n\n", changed)

			current, err := collectFiles(args)
			if err != nil {
				s.logger.Warn("cannot collect manifests", zap.Error(err))
				continue
			}
			// Formatters accumulate, so each pass needs a fresh one.
			formatter, err := newFormatter(s.cfg, out)
			if err != nil {
				return err
			}
			totals, err := s.runFiles(ctx, current, formatter)
			if err != nil {
				formatter.FormatError(err)
			} else {
				s.announce(ctx, totals)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n")

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			relevant := isManifestFile(ev.Name) || slicesContainsPath(files, ev.Name) ||
				(s.cfg.EnvFile != "" && filepath.Clean(ev.Name) == filepath.Clean(s.cfg.EnvFile))
			if !relevant || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			// Debounce: reset timer on each event
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := ev.Name
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				select {
				case rerun <- name:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func slicesContainsPath(paths []string, name string) bool {
	name = filepath.Clean(name)
	for _, p := range paths {
		if filepath.Clean(p) == name {
			return true
		}
	}
	return false
}

