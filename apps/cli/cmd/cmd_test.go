package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/stepwise/packages/core/config"
	"github.com/abdul-hamid-achik/stepwise/packages/core/executor"
	"github.com/abdul-hamid-achik/stepwise/packages/core/invoker"
	"github.com/abdul-hamid-achik/stepwise/packages/core/result"
	"github.com/abdul-hamid-achik/stepwise/packages/manifest"
	"github.com/abdul-hamid-achik/stepwise/packages/notify"
	"github.com/abdul-hamid-achik/stepwise/packages/output"
	"github.com/abdul-hamid-achik/stepwise/packages/tagfilter"
)

const filesManifest = `name: files
vars:
  greeting: hello
environments:
  dev:
    target: world
tests:
  - name: writes a file
    tags: ["@smoke"]
    steps:
      - run: echo "{{greeting}} {{target}}" > out.txt
  - name: fails
    tags: ["@broken"]
    steps:
      - run: exit 3
`

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newSession(cfg *config.Config) *session {
	return &session{cfg: cfg, envName: "dev", logger: zap.NewNop()}
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.stepwise.yaml"), filesManifest)
	writeFile(t, filepath.Join(dir, "notes.yaml"), "x: 1")
	writeFile(t, filepath.Join(dir, ".stepwise.yaml"), "concurrency: 2")
	writeFile(t, filepath.Join(dir, "sub", "c.stepwise.json"), `{"tests": []}`)
	explicit := writeFile(t, filepath.Join(dir, "plain.yaml"), filesManifest)

	files, err := collectFiles([]string{dir, explicit})
	require.NoError(t, err)
	sort.Strings(files)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.stepwise.yaml"),
		filepath.Join(dir, "plain.yaml"),
		filepath.Join(dir, "sub", "c.stepwise.json"),
	}, files)

	_, err = collectFiles([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestSession_RunFile(t *testing.T) {
	t.Run("runs steps in the manifest directory", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, filepath.Join(dir, "files.stepwise.yaml"), filesManifest)
		cfg := config.DefaultConfig()
		cfg.ExcludeTags = []string{"broken"}

		report, err := newSession(cfg).runFile(context.Background(), path)
		require.NoError(t, err)

		assert.Equal(t, result.Counts{Passed: 1, Skipped: 1}, report.Counts())
		data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
		require.NoError(t, err)
		assert.Equal(t, "hello world\n", string(data))
	})

	t.Run("failing step fails the test", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, filepath.Join(dir, "files.stepwise.yaml"), filesManifest)

		report, err := newSession(config.DefaultConfig()).runFile(context.Background(), path)
		require.NoError(t, err)

		tests := report.Tests()
		require.Len(t, tests, 2)
		assert.Equal(t, result.Failed, tests[1].Outcome.Status)
		assert.Contains(t, tests[1].Steps[0].Outcome.Message, "exit")
	})

	t.Run("dry run invokes nothing", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, filepath.Join(dir, "files.stepwise.yaml"), filesManifest)
		cfg := config.DefaultConfig()
		cfg.DryRun = config.BoolPtr(true)

		report, err := newSession(cfg).runFile(context.Background(), path)
		require.NoError(t, err)

		assert.Equal(t, result.Counts{Passed: 2}, report.Counts())
		assert.NoFileExists(t, filepath.Join(dir, "out.txt"))
	})

	t.Run("unknown environment", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, filepath.Join(dir, "files.stepwise.yaml"), filesManifest)
		s := newSession(config.DefaultConfig())
		s.envName = "prod"

		_, err := s.runFile(context.Background(), path)
		var parseErr *ParseError
		require.True(t, errors.As(err, &parseErr))
		assert.Contains(t, err.Error(), `unknown environment "prod"`)
	})

	t.Run("dotenv wins over manifest vars", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, filepath.Join(dir, "files.stepwise.yaml"), filesManifest)
		cfg := config.DefaultConfig()
		cfg.ExcludeTags = []string{"broken"}
		cfg.EnvFile = writeFile(t, filepath.Join(dir, ".env"), "greeting=hi\n")

		_, err := newSession(cfg).runFile(context.Background(), path)
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
		require.NoError(t, err)
		assert.Equal(t, "hi world\n", string(data))
	})
}

const outputManifest = `name: output
tests:
  - name: reads json
    steps:
      - run: echo '{"version": "1.4.2", "checks": ["db", "cache"]}'
        captures:
          - name: version
            from: json.version
        expect:
          - subject: json.checks
            op: length
            value: 2
      - run: test "{{version}}" = 1.4.2
  - name: wrong status
    steps:
      - run: echo degraded
        expect:
          - op: ==
            value: ok
`

func TestSession_OutputChecks(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, filepath.Join(dir, "output.stepwise.yaml"), outputManifest)

	report, err := newSession(config.DefaultConfig()).runFile(context.Background(), path)
	require.NoError(t, err)

	tests := report.Tests()
	require.Len(t, tests, 2)
	assert.Equal(t, result.Passed, tests[0].Outcome.Status)
	assert.Equal(t, result.Failed, tests[1].Outcome.Status)
	assert.Equal(t, "output == ok: expected ok, got degraded", tests[1].Steps[0].Outcome.Message)
}

const slowManifest = `name: slow
tests:
  - name: outlives its timeout
    steps:
      - run: sleep 0.3 && touch finished.txt
      - run: touch late.txt
    after:
      - run: touch cleaned.txt
`

func TestSession_TestTimeout(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, filepath.Join(dir, "slow.stepwise.yaml"), slowManifest)
	cfg := config.DefaultConfig()
	cfg.TestTimeout = 100

	report, err := newSession(cfg).runFile(context.Background(), path)
	require.NoError(t, err)

	tests := report.Tests()
	require.Len(t, tests, 1)
	assert.Equal(t, result.Failed, tests[0].Outcome.Status)
	assert.Equal(t, executor.ReasonTimedOut, tests[0].Outcome.Message)
	assert.FileExists(t, filepath.Join(dir, "finished.txt"), "running step is not interrupted")
	assert.NoFileExists(t, filepath.Join(dir, "late.txt"))
	assert.FileExists(t, filepath.Join(dir, "cleaned.txt"), "after-hooks run after a timeout")
}

func TestSession_RunFiles(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, filepath.Join(dir, "files.stepwise.yaml"), filesManifest)
	bad := writeFile(t, filepath.Join(dir, "bad.stepwise.yaml"), "tests: 3\n")

	var buf bytes.Buffer
	f := output.NewJSONFormatter(output.JSONWithWriter(&buf))
	totals, err := newSession(config.DefaultConfig()).runFiles(context.Background(), []string{bad, good}, f)
	require.NoError(t, err)

	assert.Equal(t, 1, totals.parseErrors)
	assert.Equal(t, result.Counts{Passed: 1, Failed: 1}, totals.tests)
	assert.Equal(t, ExitParseError, totals.exitCode())

	out := buf.String()
	assert.Equal(t, int64(2), gjson.Get(out, "summary.total").Int())
	assert.Equal(t, "files", gjson.Get(out, "suites.0.name").String())
}

func TestSession_Bail(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, filepath.Join(dir, "a.stepwise.yaml"), filesManifest)
	second := writeFile(t, filepath.Join(dir, "b.stepwise.yaml"), filesManifest)
	cfg := config.DefaultConfig()
	cfg.Bail = config.BoolPtr(true)

	var buf bytes.Buffer
	f := output.NewJSONFormatter(output.JSONWithWriter(&buf))
	totals, err := newSession(cfg).runFiles(context.Background(), []string{first, second}, f)
	require.NoError(t, err)

	assert.Equal(t, int64(1), gjson.Get(buf.String(), "suites.#").Int(), "second file is not run")
	assert.Equal(t, ExitTestFailure, totals.exitCode())
}

func TestSession_Announce(t *testing.T) {
	posts := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		posts <- string(data)
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := writeFile(t, filepath.Join(dir, "files.stepwise.yaml"), filesManifest)
	s := newSession(config.DefaultConfig())
	s.notifier = notify.NewManager(notify.OnFailure, notify.NewSlackNotifier(srv.URL))

	totals, err := s.runFiles(context.Background(), []string{path}, output.NewTAPFormatter(output.TAPWithWriter(io.Discard)))
	require.NoError(t, err)
	require.Len(t, totals.reports, 1)
	s.announce(context.Background(), totals)

	body := <-posts
	assert.Equal(t, ":x: 1 of 2 test(s) failed", gjson.Get(body, "attachments.0.title").String())
	assert.Equal(t, "dev", gjson.Get(body, `attachments.0.fields.#(title=="Environment").value`).String())
}

func TestNewNotifier(t *testing.T) {
	defer func() { slackFlag, teamsFlag, notifyOnFlag = "", "", "failure" }()

	slackFlag, teamsFlag, notifyOnFlag = "", "", "failure"
	m, err := newNotifier()
	require.NoError(t, err)
	assert.Nil(t, m)

	slackFlag = "http://example.invalid"
	m, err = newNotifier()
	require.NoError(t, err)
	assert.NotNil(t, m)

	notifyOnFlag = "never"
	_, err = newNotifier()
	assert.Error(t, err)
}

func TestRunTotals_ExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, runTotals{tests: result.Counts{Passed: 2, Skipped: 1, Pending: 1}}.exitCode())
	assert.Equal(t, ExitTestFailure, runTotals{tests: result.Counts{Undefined: 1}}.exitCode())
	assert.Equal(t, ExitParseError, runTotals{parseErrors: 1, tests: result.Counts{Failed: 1}}.exitCode())
}

func TestSession_ExecutorOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Len(t, newSession(cfg).executorOptions(), 2)

	cfg.Parallel = config.BoolPtr(true)
	cfg.StartRate = 2
	cfg.TestTimeout = 1000
	assert.Len(t, newSession(cfg).executorOptions(), 4)
}

func TestNewFormatter(t *testing.T) {
	for _, name := range []string{"console", "json", "junit", "tap", "html", "JSON"} {
		cfg := config.DefaultConfig()
		cfg.Reporters = []string{name}
		f, err := newFormatter(cfg, &bytes.Buffer{})
		require.NoError(t, err, name)
		assert.NotNil(t, f)
	}

	cfg := config.DefaultConfig()
	cfg.Reporters = []string{"xml"}
	_, err := newFormatter(cfg, &bytes.Buffer{})
	assert.ErrorContains(t, err, `unknown output format "xml"`)
}

func TestPrintTree(t *testing.T) {
	path := filepath.Join("..", "..", "..", "packages", "manifest", "testdata", "checkout.yaml")
	_, _, report, err := load(path, false)
	require.NoError(t, err)

	var buf bytes.Buffer
	printTree(&buf, report.Suite, tagfilter.NewSet(nil, []string{"wip"}))
	out := buf.String()

	assert.Contains(t, out, "  hook: echo suite setup\n")
	assert.Contains(t, out, "  - pays with card [@smoke, @owner:payments,qa]\n")
	assert.Contains(t, out, "  - refund [@wip] (bypassed)\n")
	assert.Contains(t, out, "      hook: log step\n")
}

func TestExampleManifest(t *testing.T) {
	m, err := manifest.Parse([]byte(exampleManifest), manifest.FormatYAML)
	require.NoError(t, err)

	_, err = manifest.Discover(m, invoker.NewRegistry(), manifest.DiscoverOptions{})
	require.NoError(t, err)
}

func TestExitError(t *testing.T) {
	err := exitWith(ExitConfigError, errors.New("bad config"))
	assert.EqualError(t, err, "bad config")

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, ExitConfigError, exitErr.Code)
	assert.EqualError(t, exitWith(ExitTestFailure, nil), "exit status 1")
}
