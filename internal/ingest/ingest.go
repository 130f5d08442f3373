// Package ingest loads a repository, summarizes and embeds every document in
// rate-limited batches and stores the results for similarity search.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jacklau/codebrief/internal/github"
	"github.com/jacklau/codebrief/internal/notify"
	"github.com/jacklau/codebrief/internal/provider"
	"github.com/jacklau/codebrief/internal/retry"
	"github.com/jacklau/codebrief/internal/store"
)

// ErrNoResults is returned when no document could be summarized and embedded.
var ErrNoResults = errors.New("no documents were processed successfully")

const (
	MsgLoading = "Loading documents from GitHub"
	MsgLoaded  = "Documents successfully loaded! Preparing for summarizing and embedding"
)

// ProgressMessage renders the per-batch status message.
func ProgressMessage(processed, total int) string {
	return fmt.Sprintf("Processing: %d%% complete. Processed: %d/%d", percent(processed, total), processed, total)
}

func percent(processed, total int) int {
	if total <= 0 {
		return 0
	}
	pct := int(math.Round(float64(processed) / float64(total) * 100))
	if pct == 100 && processed < total {
		return 99
	}
	return pct
}

// Config tunes batching and per-document retries.
type Config struct {
	BatchSize     int
	Timeout       time.Duration // per summarize+embed attempt
	BatchDelay    time.Duration
	MinBatchDelay time.Duration
	Policy        retry.Policy

	// SaveConcurrency bounds the concurrent vector updates after the
	// rows are inserted.
	SaveConcurrency int
}

// DefaultConfig returns batches of 3, a 30s attempt timeout, a 10s pause
// between batches (at least 1s), the default retry policy and up to 8
// concurrent vector updates.
func DefaultConfig() Config {
	return Config{
		BatchSize:       3,
		Timeout:         30 * time.Second,
		BatchDelay:      10 * time.Second,
		MinBatchDelay:   time.Second,
		Policy:          retry.DefaultPolicy(),
		SaveConcurrency: 8,
	}
}

// Loader fetches the documents of a repository.
type Loader interface {
	Load(ctx context.Context, repoURL, token string) ([]github.Document, error)
}

// CodeSummarizer summarizes one source file.
type CodeSummarizer interface {
	Code(ctx context.Context, path, source string) (string, error)
}

// Deps holds the collaborators of a Pipeline.
type Deps struct {
	Store      store.Store
	Loader     Loader
	Summarizer CodeSummarizer
	Embedder   provider.Embedder
	Reporter   Reporter        // nil reports to Store only
	Notifier   notify.Notifier // nil disables notifications
	Config     Config
	Logger     *slog.Logger
}

// Result summarizes a finished ingestion.
type Result struct {
	ProjectID string
	Total     int
	Processed int
	Failed    []string
	Stored    int
	Duration  time.Duration
}

// Pipeline runs repository ingestions.
type Pipeline struct {
	deps  Deps
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Pipeline, filling unset dependencies and config with defaults.
func New(deps Deps) *Pipeline {
	def := DefaultConfig()
	if deps.Config.BatchSize <= 0 {
		deps.Config.BatchSize = def.BatchSize
	}
	if deps.Config.Timeout <= 0 {
		deps.Config.Timeout = def.Timeout
	}
	if deps.Config.SaveConcurrency <= 0 {
		deps.Config.SaveConcurrency = def.SaveConcurrency
	}
	if deps.Config.BatchDelay < 0 {
		deps.Config.BatchDelay = 0
	}
	if deps.Config.MinBatchDelay < 0 {
		deps.Config.MinBatchDelay = 0
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Reporter == nil {
		deps.Reporter = StoreReporter{Store: deps.Store}
	}
	if deps.Config.Policy.OnRetry == nil {
		logger := deps.Logger
		deps.Config.Policy.OnRetry = func(attempt int, kind retry.Kind, delay time.Duration, err error) {
			logger.Warn("document attempt failed, retrying", "attempt", attempt, "kind", kind.String(), "delay", delay, "error", err)
		}
	}
	return &Pipeline{deps: deps, sleep: sleepCtx}
}

// embedded is one document that made it through summarize and embed.
type embedded struct {
	doc       github.Document
	summary   string
	embedding []float32
}

// Ingest loads the repository behind repoURL and stores a summary and
// summary embedding for every document that can be processed. Documents
// that fail are dropped and listed in the result. When nothing succeeds
// ErrNoResults is returned and the project stays in PROCESSING.
func (p *Pipeline) Ingest(ctx context.Context, projectID, repoURL, token string) (*Result, error) {
	start := time.Now()
	logger := p.deps.Logger.With("project", projectID)

	p.report(ctx, Progress{ProjectID: projectID, Status: store.StatusProcessing, Message: MsgLoading})

	docs, err := p.deps.Loader.Load(ctx, repoURL, token)
	if err != nil {
		err = fmt.Errorf("loading documents: %w", err)
		p.fail(ctx, projectID, err)
		return nil, err
	}
	logger.Info("documents loaded", "count", len(docs))

	p.report(ctx, Progress{ProjectID: projectID, Status: store.StatusProcessing, Message: MsgLoaded, Total: len(docs)})

	results, failed, err := p.process(ctx, projectID, docs)
	if err != nil {
		p.fail(ctx, projectID, err)
		return nil, err
	}

	result := &Result{
		ProjectID: projectID,
		Total:     len(docs),
		Processed: len(results),
		Failed:    failed,
	}

	if len(results) == 0 {
		logger.Warn("no documents processed successfully, nothing stored", "total", len(docs))
		p.fail(ctx, projectID, ErrNoResults)
		result.Duration = time.Since(start)
		return result, ErrNoResults
	}

	stored, err := p.save(ctx, projectID, results, logger)
	if err != nil {
		p.fail(ctx, projectID, err)
		return nil, err
	}
	result.Stored = stored
	result.Duration = time.Since(start)

	if err := p.deps.Reporter.Done(ctx, projectID, result); err != nil {
		logger.Warn("clearing process status failed", "error", err)
	}

	logger.Info("ingestion complete",
		"processed", result.Processed,
		"total", result.Total,
		"failed", len(result.Failed),
		"duration", result.Duration,
	)

	p.notify(ctx, result, repoURL, logger)
	return result, nil
}

// process runs every document through summarize and embed in batches,
// returning the successes in document order and the failed paths.
func (p *Pipeline) process(ctx context.Context, projectID string, docs []github.Document) ([]embedded, []string, error) {
	cfg := p.deps.Config
	var (
		results []embedded
		failed  []string
	)

	for startIdx := 0; startIdx < len(docs); startIdx += cfg.BatchSize {
		batchStart := time.Now()
		end := min(startIdx+cfg.BatchSize, len(docs))
		batch := docs[startIdx:end]

		out := make([]*embedded, len(batch))
		var g errgroup.Group
		for i, doc := range batch {
			g.Go(func() error {
				e, err := p.processDocument(ctx, doc)
				if err != nil {
					p.deps.Logger.Warn("dropping document", "project", projectID, "path", doc.Path, "error", err)
					return nil
				}
				out[i] = e
				return nil
			})
		}
		g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		for i, e := range out {
			if e == nil {
				failed = append(failed, batch[i].Path)
				continue
			}
			results = append(results, *e)
		}

		status := store.StatusProcessing
		if len(results) == len(docs) {
			status = store.StatusCompleted
		}
		p.report(ctx, Progress{
			ProjectID: projectID,
			Status:    status,
			Message:   ProgressMessage(len(results), len(docs)),
			Processed: len(results),
			Total:     len(docs),
			Percent:   percent(len(results), len(docs)),
		})

		if end < len(docs) {
			wait := max(cfg.BatchDelay-time.Since(batchStart), cfg.MinBatchDelay)
			if err := p.sleep(ctx, wait); err != nil {
				return nil, nil, err
			}
		}
	}

	return results, failed, nil
}

// processDocument summarizes and embeds one document, retrying the pair
// as a unit under the configured policy.
func (p *Pipeline) processDocument(ctx context.Context, doc github.Document) (*embedded, error) {
	var out *embedded
	err := p.deps.Config.Policy.Do(ctx, provider.Classify, func(ctx context.Context) error {
		e, err := p.attempt(ctx, doc)
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

// attempt runs one summarize+embed try raced against the attempt timeout.
// When the timeout wins the work is abandoned, not awaited.
func (p *Pipeline) attempt(ctx context.Context, doc github.Document) (*embedded, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.deps.Config.Timeout)
	defer cancel()

	type outcome struct {
		e   *embedded
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		summary, err := p.deps.Summarizer.Code(attemptCtx, doc.Path, doc.Content)
		if err != nil {
			done <- outcome{err: fmt.Errorf("summarizing %s: %w", doc.Path, err)}
			return
		}
		vec, err := p.deps.Embedder.Embed(attemptCtx, summary)
		if err != nil {
			done <- outcome{err: fmt.Errorf("embedding %s: %w", doc.Path, err)}
			return
		}
		done <- outcome{e: &embedded{doc: doc, summary: summary, embedding: vec}}
	}()

	select {
	case o := <-done:
		return o.e, o.err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("processing %s after %s: %w", doc.Path, p.deps.Config.Timeout, provider.ErrTimeout)
	}
}

// save bulk-inserts the rows, attaches their vectors concurrently and marks
// the project completed. Vector failures are logged and leave the row
// without a vector.
func (p *Pipeline) save(ctx context.Context, projectID string, results []embedded, logger *slog.Logger) (int, error) {
	rows := make([]store.SourceEmbedding, len(results))
	for i, r := range results {
		rows[i] = store.SourceEmbedding{
			FileName:   r.doc.Path,
			SourceCode: r.doc.Content,
			Summary:    r.summary,
		}
	}

	ids, err := p.deps.Store.InsertEmbeddings(ctx, projectID, rows)
	if err != nil {
		return 0, fmt.Errorf("storing embeddings: %w", err)
	}

	var stored atomic.Int64
	var g errgroup.Group
	g.SetLimit(p.deps.Config.SaveConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := p.deps.Store.SetSummaryEmbedding(ctx, id, results[i].embedding); err != nil {
				logger.Warn("attaching summary embedding failed", "path", results[i].doc.Path, "error", err)
				return nil
			}
			stored.Add(1)
			return nil
		})
	}
	g.Wait()

	if err := p.deps.Store.SetProjectStatus(ctx, projectID, store.StatusCompleted); err != nil {
		return int(stored.Load()), fmt.Errorf("marking project completed: %w", err)
	}
	return int(stored.Load()), nil
}

func (p *Pipeline) report(ctx context.Context, pr Progress) {
	if err := p.deps.Reporter.Report(ctx, pr); err != nil {
		p.deps.Logger.Warn("reporting progress failed", "project", pr.ProjectID, "error", err)
	}
}

func (p *Pipeline) fail(ctx context.Context, projectID string, err error) {
	if rerr := p.deps.Reporter.Fail(ctx, projectID, err); rerr != nil {
		p.deps.Logger.Warn("reporting failure failed", "project", projectID, "error", rerr)
	}
}

func (p *Pipeline) notify(ctx context.Context, result *Result, repoURL string, logger *slog.Logger) {
	if p.deps.Notifier == nil {
		return
	}
	report := notify.Report{
		ProjectID:  result.ProjectID,
		RepoURL:    repoURL,
		Processed:  result.Processed,
		Total:      result.Total,
		Failed:     result.Failed,
		Duration:   result.Duration,
		FinishedAt: time.Now(),
	}
	if project, err := p.deps.Store.GetProject(ctx, result.ProjectID); err == nil {
		report.ProjectName = project.Name
	}
	if err := p.deps.Notifier.Notify(ctx, report); err != nil {
		logger.Warn("ingestion notification failed", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
