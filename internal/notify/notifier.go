package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Report describes a finished repository ingestion.
type Report struct {
	ProjectID   string
	ProjectName string
	RepoURL     string
	Processed   int
	Total       int
	Failed      []string
	Duration    time.Duration
	FinishedAt  time.Time
}

// Notifier announces finished ingestions.
type Notifier interface {
	Notify(ctx context.Context, report Report) error
}

// MultiNotifier sends notifications to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewMultiNotifier creates a MultiNotifier from the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers, logger: slog.Default()}
}

// Notify sends the report to every notifier, continuing past failures.
// The returned error joins every failure.
func (m *MultiNotifier) Notify(ctx context.Context, report Report) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, report); err != nil {
			m.logger.Warn("notifier failed", "project", report.ProjectID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewNotifier creates a Notifier based on the notifyType.
// Supported types: "slack", "discord", "both".
func NewNotifier(notifyType string, slackURL, discordURL string) (Notifier, error) {
	switch notifyType {
	case "slack":
		if slackURL == "" {
			return nil, fmt.Errorf("slack webhook URL is required for slack notifier")
		}
		return NewSlackNotifier(slackURL), nil
	case "discord":
		if discordURL == "" {
			return nil, fmt.Errorf("discord webhook URL is required for discord notifier")
		}
		return NewDiscordNotifier(discordURL), nil
	case "both":
		if slackURL == "" {
			return nil, fmt.Errorf("slack webhook URL is required for 'both' notifier")
		}
		if discordURL == "" {
			return nil, fmt.Errorf("discord webhook URL is required for 'both' notifier")
		}
		return NewMultiNotifier(
			NewSlackNotifier(slackURL),
			NewDiscordNotifier(discordURL),
		), nil
	default:
		return nil, fmt.Errorf("unsupported notifier type: %q", notifyType)
	}
}
