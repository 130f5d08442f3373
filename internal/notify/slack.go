package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// SlackNotifier sends ingestion notifications to a Slack webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a SlackNotifier with the given webhook URL.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

// slackText represents a text object in Slack Block Kit.
type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// slackPayload is the top-level Slack message payload.
type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

// BuildSlackPayload creates the Slack Block Kit message for an ingestion report.
func BuildSlackPayload(report Report) slackPayload {
	name := report.ProjectName
	if name == "" {
		name = report.ProjectID
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: "Repository Indexed"},
		},
		{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf(":package: Project: *<%s|%s>*", report.RepoURL, name),
			},
		},
		{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*Processed:* %s in %s", FormatProgress(report.Processed, report.Total), FormatDuration(report.Duration)),
			},
		},
	}

	if len(report.Failed) > 0 {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*Skipped files:*\n%s", FormatFailed(report.Failed)),
			},
		})
	}

	return slackPayload{Blocks: blocks}
}

// Notify sends a Slack notification for the given report.
// Retries once on failure.
func (s *SlackNotifier) Notify(ctx context.Context, report Report) error {
	body, err := json.Marshal(BuildSlackPayload(report))
	if err != nil {
		return fmt.Errorf("marshaling slack payload: %w", err)
	}

	if err := s.post(ctx, body); err != nil {
		slog.Warn("slack notify failed, retrying", "error", err)
		if err := s.post(ctx, body); err != nil {
			return fmt.Errorf("slack notify failed after retry: %w", err)
		}
	}
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
