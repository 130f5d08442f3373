// Package server exposes projects, ingestion progress, commits and question
// answering over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/jacklau/codebrief/internal/github"
	"github.com/jacklau/codebrief/internal/ingest"
	"github.com/jacklau/codebrief/internal/pubsub"
	"github.com/jacklau/codebrief/internal/qa"
	"github.com/jacklau/codebrief/internal/store"
)

// Ingester runs a repository ingestion.
type Ingester interface {
	Ingest(ctx context.Context, projectID, repoURL, token string) (*ingest.Result, error)
}

// CommitPoller records a project's new commits.
type CommitPoller interface {
	PollCommits(ctx context.Context, projectID string) ([]store.Commit, error)
}

// QuestionAnswerer retrieves context for a question and streams an answer.
type QuestionAnswerer interface {
	Retrieve(ctx context.Context, projectID, question string) (*qa.Retrieval, error)
	Answer(ctx context.Context, r *qa.Retrieval, onDelta func(string) error) (string, error)
}

// Deps holds the collaborators of a Server.
type Deps struct {
	Store    store.Store
	Ingester Ingester
	Poller   CommitPoller
	QA       QuestionAnswerer
	Broker   *pubsub.Broker[ingest.Progress]
	Logger   *slog.Logger

	// StreamTimeout bounds a single SSE response.
	StreamTimeout time.Duration
}

// Server is the HTTP API. Background ingestions started through it stop
// when Shutdown is called.
type Server struct {
	deps   Deps
	app    *fiber.App
	ctx    context.Context
	cancel context.CancelFunc
	jobs   sync.WaitGroup
}

// New builds the fiber app and registers every route.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Broker == nil {
		deps.Broker = pubsub.NewBroker[ingest.Progress]()
	}
	if deps.StreamTimeout <= 0 {
		deps.StreamTimeout = 30 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{deps: deps, ctx: ctx, cancel: cancel}

	s.app = fiber.New(fiber.Config{
		AppName:      "codebrief",
		ErrorHandler: s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(s.requestLogger)

	s.app.Get("/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.register(s.app.Group("/api"))
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves HTTP on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.deps.Logger.Info("http server listening", "addr", addr)
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting requests, cancels background jobs and waits for
// them until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

// Wait blocks until every background job has returned.
func (s *Server) Wait() {
	s.jobs.Wait()
}

func (s *Server) requestLogger(c fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	s.deps.Logger.Debug("http request",
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"duration", time.Since(start),
	)
	return err
}

// handleError renders errors returned from handlers as JSON with a status
// derived from the error.
func (s *Server) handleError(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, store.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, github.ErrInvalidRepoURL), errors.Is(err, qa.ErrEmptyQuestion):
		code = fiber.StatusBadRequest
	}
	if code >= fiber.StatusInternalServerError {
		s.deps.Logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// runJob runs fn in the background under the server's lifetime context.
func (s *Server) runJob(fn func(ctx context.Context)) {
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		fn(s.ctx)
	}()
}
