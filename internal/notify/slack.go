package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SlackNotifier posts workspace alerts to a Slack incoming webhook
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string `json:"color"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Footer string `json:"footer,omitempty"`
}

// NewSlackNotifier creates a new Slack notifier. An empty webhook URL
// disables it.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SlackColor returns the attachment color for a severity
func SlackColor(s Severity) string {
	switch s {
	case SeverityRecovered:
		return "good"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "danger"
	default:
		return "#439FE0"
	}
}

// Send posts the alert to the webhook
func (s *SlackNotifier) Send(n Notification) error {
	if s.webhookURL == "" {
		return nil
	}

	msg := slackMessage{
		Text: n.Title,
		Attachments: []slackAttachment{
			{
				Color:  SlackColor(n.Severity),
				Title:  n.WorkspaceID,
				Text:   n.Message,
				Footer: "agent-conductor",
			},
		},
	}

	payload, err := json.Marshal(&msg)
	if err != nil {
		return err
	}

	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned %d", resp.StatusCode)
	}

	return nil
}
