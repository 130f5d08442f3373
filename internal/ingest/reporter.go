package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jacklau/codebrief/internal/pubsub"
	"github.com/jacklau/codebrief/internal/store"
)

// Progress is one ingestion status update.
type Progress struct {
	ProjectID string              `json:"projectId"`
	Status    store.ProjectStatus `json:"status"`
	Message   string              `json:"message"`
	Processed int                 `json:"processed"`
	Total     int                 `json:"total"`
	Percent   int                 `json:"percent"`
}

// Reporter receives the lifecycle of an ingestion.
type Reporter interface {
	Report(ctx context.Context, p Progress) error
	// Done is called once the results are stored.
	Done(ctx context.Context, projectID string, result *Result) error
	// Fail is called when the ingestion ends without storing anything.
	Fail(ctx context.Context, projectID string, err error) error
}

// StoreReporter keeps the project's process status record current and
// removes it once the ingestion is done.
type StoreReporter struct {
	Store store.Store
}

func (r StoreReporter) Report(ctx context.Context, p Progress) error {
	err := r.Store.UpdateProcessStatus(ctx, p.ProjectID, p.Status, p.Message)
	if errors.Is(err, store.ErrNotFound) {
		err = r.Store.CreateProcessStatus(ctx, p.ProjectID, p.Status, p.Message)
	}
	if err != nil {
		return fmt.Errorf("writing process status: %w", err)
	}
	return nil
}

func (r StoreReporter) Done(ctx context.Context, projectID string, _ *Result) error {
	return r.Store.DeleteProcessStatus(ctx, projectID)
}

// Fail leaves the status record in place so the last message stays visible.
func (r StoreReporter) Fail(context.Context, string, error) error {
	return nil
}

// BrokerReporter publishes updates to in-process subscribers such as the
// status stream endpoint.
type BrokerReporter struct {
	Broker *pubsub.Broker[Progress]
}

func (r BrokerReporter) Report(_ context.Context, p Progress) error {
	r.Broker.Publish(pubsub.Progress, p)
	return nil
}

func (r BrokerReporter) Done(_ context.Context, projectID string, result *Result) error {
	r.Broker.Publish(pubsub.Completed, Progress{
		ProjectID: projectID,
		Status:    store.StatusCompleted,
		Message:   "Ingestion complete",
		Processed: result.Processed,
		Total:     result.Total,
		Percent:   percent(result.Processed, result.Total),
	})
	return nil
}

func (r BrokerReporter) Fail(_ context.Context, projectID string, err error) error {
	r.Broker.Publish(pubsub.Failed, Progress{
		ProjectID: projectID,
		Status:    store.StatusProcessing,
		Message:   err.Error(),
	})
	return nil
}

// MultiReporter fans out to several reporters. A failing reporter is logged
// and does not stop the others.
type MultiReporter struct {
	Reporters []Reporter
	Logger    *slog.Logger
}

func (m MultiReporter) each(fn func(Reporter) error) error {
	var errs []error
	for _, r := range m.Reporters {
		if err := fn(r); err != nil {
			if m.Logger != nil {
				m.Logger.Warn("progress reporter failed", "error", err)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiReporter) Report(ctx context.Context, p Progress) error {
	return m.each(func(r Reporter) error { return r.Report(ctx, p) })
}

func (m MultiReporter) Done(ctx context.Context, projectID string, result *Result) error {
	return m.each(func(r Reporter) error { return r.Done(ctx, projectID, result) })
}

func (m MultiReporter) Fail(ctx context.Context, projectID string, err error) error {
	return m.each(func(r Reporter) error { return r.Fail(ctx, projectID, err) })
}

var (
	_ Reporter = StoreReporter{}
	_ Reporter = BrokerReporter{}
	_ Reporter = MultiReporter{}
)
