package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SlackChannel delivers alerts through an incoming webhook as one colored
// attachment per alert. An empty webhook URL disables the channel.
type SlackChannel struct {
	webhookURL string
	client     *http.Client
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title"`
	Text      string       `json:"text"`
	Fields    []slackField `json:"fields,omitempty"`
	Footer    string       `json:"footer"`
	Timestamp int64        `json:"ts"`
}

type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

func NewSlackChannel(webhookURL string) *SlackChannel {
	return &SlackChannel{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *SlackChannel) Name() string {
	return "slack"
}

func (s *SlackChannel) Send(ctx context.Context, alert Payload) error {
	if s.webhookURL == "" {
		return nil
	}

	att := slackAttachment{
		Color:     levelColor(alert.Level),
		Title:     fmt.Sprintf("%s: %s", alert.Level, alert.Title),
		Text:      alert.Message,
		Footer:    "margin_maker",
		Timestamp: alert.Timestamp.Unix(),
	}
	for _, k := range sortedFieldKeys(alert.Fields) {
		att.Fields = append(att.Fields, slackField{Title: k, Value: alert.Fields[k], Short: true})
	}

	body, err := json.Marshal(slackPayload{Attachments: []slackAttachment{att}})
	if err != nil {
		return fmt.Errorf("slack: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// levelColor maps alert severity to the attachment sidebar color.
func levelColor(level Level) string {
	switch level {
	case Critical:
		return "#8b0000"
	case Error:
		return "#d00000"
	case Warning:
		return "#e8b339"
	default:
		return "#2eb67d"
	}
}
