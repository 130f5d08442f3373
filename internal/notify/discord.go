package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	discordColorSuccess = 3066993  // green
	discordColorPartial = 15105570 // orange
)

// DiscordNotifier sends ingestion notifications to a Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordNotifier creates a DiscordNotifier with the given webhook URL.
func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type discordEmbed struct {
	Title     string         `json:"title"`
	URL       string         `json:"url,omitempty"`
	Color     int            `json:"color"`
	Fields    []discordField `json:"fields"`
	Footer    *discordFooter `json:"footer,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// BuildDiscordPayload creates the Discord embed message for an ingestion report.
func BuildDiscordPayload(report Report) discordPayload {
	name := report.ProjectName
	if name == "" {
		name = report.ProjectID
	}

	color := discordColorSuccess
	if len(report.Failed) > 0 {
		color = discordColorPartial
	}

	fields := []discordField{
		{Name: "Processed", Value: FormatProgress(report.Processed, report.Total), Inline: true},
		{Name: "Duration", Value: FormatDuration(report.Duration), Inline: true},
	}
	if len(report.Failed) > 0 {
		fields = append(fields, discordField{Name: "Skipped files", Value: FormatFailed(report.Failed)})
	}

	embed := discordEmbed{
		Title:  fmt.Sprintf("Indexed %s", name),
		URL:    report.RepoURL,
		Color:  color,
		Fields: fields,
		Footer: &discordFooter{Text: "codebrief - " + report.ProjectID},
	}
	if !report.FinishedAt.IsZero() {
		embed.Timestamp = report.FinishedAt.UTC().Format(time.RFC3339)
	}

	return discordPayload{Embeds: []discordEmbed{embed}}
}

// Notify sends a Discord notification for the given report.
// Callers are expected to wrap this with retry logic if needed.
func (d *DiscordNotifier) Notify(ctx context.Context, report Report) error {
	body, err := json.Marshal(BuildDiscordPayload(report))
	if err != nil {
		return fmt.Errorf("marshaling discord payload: %w", err)
	}
	return d.post(ctx, body)
}

func (d *DiscordNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("discord webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
