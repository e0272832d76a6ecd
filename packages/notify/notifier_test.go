package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/abdul-hamid-achik/stepwise/packages/core/node"
	"github.com/abdul-hamid-achik/stepwise/packages/core/result"
	"github.com/abdul-hamid-achik/stepwise/packages/output"
)

func testCase(t *testing.T, name string, step, test *result.Outcome) *node.Node {
	t.Helper()
	s := node.NewBuilder().WithRole(node.RoleStep).WithName(name + " step").WithBinding(name).Build()
	require.NoError(t, s.SetResult(step))
	tc := node.NewBuilder().WithRole(node.RoleTestCase).WithName(name).AddChild(s).Build()
	require.NoError(t, tc.SetResult(test))
	return tc
}

func report(t *testing.T, failing bool) *output.Report {
	t.Helper()
	b := node.NewBuilder().WithRole(node.RoleSuite).WithName("shop").
		AddChild(testCase(t, "login", result.NewPassed(), result.NewPassed()))
	if failing {
		failed := result.New(result.Failed, "card declined\nexit 1")
		b.AddChild(testCase(t, "checkout", failed, result.New(result.Failed, "exit 1")))
	}
	return &output.Report{File: "shop.yaml", Suite: b.Build()}
}

// recorder is a notifier that keeps what it was sent.
type recorder struct {
	sent []*Summary
	err  error
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Notify(_ context.Context, s *Summary) error {
	r.sent = append(r.sent, s)
	return r.err
}

func TestNewSummary(t *testing.T) {
	s := NewSummary([]*output.Report{report(t, true)}, "staging", time.Second)

	assert.Equal(t, 1, s.Files)
	assert.Equal(t, result.Counts{Passed: 1, Failed: 1}, s.Counts)
	assert.True(t, s.Failing())
	assert.Equal(t, "1 of 2 test(s) failed", s.Title())
	require.Len(t, s.Failures, 1)
	assert.Equal(t, Failure{Name: "checkout", File: "shop.yaml", Status: result.Failed, Message: "checkout step: card declined\nexit 1"}, s.Failures[0])

	s = NewSummary([]*output.Report{report(t, false)}, "", 0)
	assert.False(t, s.Failing())
	assert.Equal(t, "All 1 test(s) passed", s.Title())
}

func TestParseOn(t *testing.T) {
	on, err := ParseOn("")
	require.NoError(t, err)
	assert.Equal(t, OnFailure, on)

	on, err = ParseOn("Recovery")
	require.NoError(t, err)
	assert.Equal(t, OnRecovery, on)

	_, err = ParseOn("sometimes")
	assert.ErrorContains(t, err, `unknown notify policy "sometimes"`)
}

func TestManager_Policies(t *testing.T) {
	ctx := context.Background()
	pass := func() *Summary { return NewSummary([]*output.Report{report(t, false)}, "", 0) }
	fail := func() *Summary { return NewSummary([]*output.Report{report(t, true)}, "", 0) }

	t.Run("failure", func(t *testing.T) {
		r := &recorder{}
		m := NewManager(OnFailure, r)
		require.NoError(t, m.Notify(ctx, pass()))
		require.NoError(t, m.Notify(ctx, fail()))
		assert.Len(t, r.sent, 1)
	})

	t.Run("success", func(t *testing.T) {
		r := &recorder{}
		m := NewManager(OnSuccess, r)
		require.NoError(t, m.Notify(ctx, pass()))
		require.NoError(t, m.Notify(ctx, fail()))
		assert.Len(t, r.sent, 1)
	})

	t.Run("recovery", func(t *testing.T) {
		r := &recorder{}
		m := NewManager(OnRecovery, r)
		require.NoError(t, m.Notify(ctx, pass()))
		require.NoError(t, m.Notify(ctx, fail()))
		require.NoError(t, m.Notify(ctx, pass()))
		require.NoError(t, m.Notify(ctx, pass()))
		require.Len(t, r.sent, 2)
		assert.True(t, r.sent[1].Recovery)
		assert.Equal(t, "Tests recovered", r.sent[1].Title())
	})

	t.Run("errors are collected", func(t *testing.T) {
		broken := &recorder{err: assert.AnError}
		ok := &recorder{}
		err := NewManager(OnAlways, broken, ok).Notify(ctx, pass())
		assert.ErrorContains(t, err, "recorder: "+assert.AnError.Error())
		assert.Len(t, ok.sent, 1)
	})
}

func webhook(t *testing.T, status int) (*httptest.Server, *string) {
	t.Helper()
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(status)
		_, _ = w.Write([]byte("nope"))
	}))
	t.Cleanup(srv.Close)
	return srv, &body
}

func TestSlackNotifier(t *testing.T) {
	srv, body := webhook(t, http.StatusOK)
	s := NewSummary([]*output.Report{report(t, true)}, "staging", 1500*time.Millisecond)

	n := NewSlackNotifier(srv.URL, WithSlackChannel("#ci"), WithSlackClient(srv.Client()))
	require.NoError(t, n.Notify(context.Background(), s))

	assert.Equal(t, "#ci", gjson.Get(*body, "channel").String())
	assert.Equal(t, "stepwise", gjson.Get(*body, "username").String())
	assert.Equal(t, "danger", gjson.Get(*body, "attachments.0.color").String())
	assert.Equal(t, ":x: 1 of 2 test(s) failed", gjson.Get(*body, "attachments.0.title").String())
	assert.Contains(t, gjson.Get(*body, "attachments.0.text").String(), "• `checkout` (shop.yaml)\n  checkout step: card declined\n")
	assert.Equal(t, "staging", gjson.Get(*body, `attachments.0.fields.#(title=="Environment").value`).String())
	assert.Equal(t, "1.5s", gjson.Get(*body, `attachments.0.fields.#(title=="Duration").value`).String())
}

func TestTeamsNotifier(t *testing.T) {
	srv, body := webhook(t, http.StatusAccepted)
	s := NewSummary([]*output.Report{report(t, false)}, "", time.Second)

	require.NoError(t, NewTeamsNotifier(srv.URL, WithTeamsClient(srv.Client())).Notify(context.Background(), s))

	assert.Equal(t, "message", gjson.Get(*body, "type").String())
	card := gjson.Get(*body, "attachments.0.content")
	assert.Equal(t, "AdaptiveCard", card.Get("type").String())
	assert.Equal(t, "All 1 test(s) passed", card.Get("body.0.text").String())
	assert.Equal(t, "good", card.Get("body.0.color").String())
	assert.Equal(t, "1", card.Get("body.1.columns.0.items.1.text").String())
}

func TestWebhookError(t *testing.T) {
	srv, _ := webhook(t, http.StatusForbidden)
	err := NewSlackNotifier(srv.URL).Notify(context.Background(), &Summary{})
	assert.EqualError(t, err, "webhook returned status 403: nope")
}

func TestNew(t *testing.T) {
	n, err := New("Slack", "http://example.invalid")
	require.NoError(t, err)
	assert.Equal(t, "slack", n.Name())

	n, err = New("teams", "http://example.invalid")
	require.NoError(t, err)
	assert.Equal(t, "teams", n.Name())

	_, err = New("discord", "http://example.invalid")
	assert.ErrorContains(t, err, `unknown notifier "discord"`)

	_, err = New("slack", "")
	assert.EqualError(t, err, "slack notifications need a webhook URL")
}
