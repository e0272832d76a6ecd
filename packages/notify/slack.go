package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SlackNotifier posts to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	channel    string
	username   string
	iconEmoji  string
	client     *http.Client
}

type SlackOption func(*SlackNotifier)

func WithSlackChannel(channel string) SlackOption {
	return func(s *SlackNotifier) {
		s.channel = channel
	}
}

func WithSlackUsername(username string) SlackOption {
	return func(s *SlackNotifier) {
		s.username = username
	}
}

// WithSlackClient replaces the default client, which times out after ten seconds.
func WithSlackClient(client *http.Client) SlackOption {
	return func(s *SlackNotifier) {
		s.client = client
	}
}

func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	s := &SlackNotifier{
		webhookURL: webhookURL,
		username:   "stepwise",
		iconEmoji:  ":test_tube:",
		client:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SlackNotifier) Name() string {
	return "slack"
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	TS     int64        `json:"ts,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func (s *SlackNotifier) Notify(ctx context.Context, summary *Summary) error {
	color, emoji := "good", ":white_check_mark:"
	switch {
	case summary.Failing():
		color, emoji = "danger", ":x:"
	case summary.Recovery:
		emoji = ":tada:"
	}

	fields := []slackField{
		{Title: "Tests", Value: fmt.Sprintf("%d", summary.Counts.Total()), Short: true},
		{Title: "Passed", Value: fmt.Sprintf("%d", summary.Counts.Passed), Short: true},
		{Title: "Failed", Value: fmt.Sprintf("%d", summary.Counts.Failed+summary.Counts.Undefined), Short: true},
		{Title: "Skipped", Value: fmt.Sprintf("%d", summary.Counts.Skipped+summary.Counts.Pending), Short: true},
		{Title: "Duration", Value: summary.Duration.Round(time.Millisecond).String(), Short: true},
	}
	if summary.Environment != "" {
		fields = append(fields, slackField{Title: "Environment", Value: summary.Environment, Short: true})
	}

	var text strings.Builder
	if len(summary.Failures) > 0 {
		text.WriteString("*Failed tests:*\n")
		for _, f := range summary.Failures {
			fmt.Fprintf(&text, "• `%s` (%s)\n", f.Name, f.File)
			if f.Message != "" {
				fmt.Fprintf(&text, "  %s\n", firstLine(f.Message))
			}
		}
	}

	msg := slackMessage{
		Channel:   s.channel,
		Username:  s.username,
		IconEmoji: s.iconEmoji,
		Attachments: []slackAttachment{{
			Color:  color,
			Title:  emoji + " " + summary.Title(),
			Text:   text.String(),
			Fields: fields,
			Footer: "stepwise",
			TS:     time.Now().Unix(),
		}},
	}
	return postJSON(ctx, s.client, s.webhookURL, msg)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
