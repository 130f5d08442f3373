// Package qa answers questions about an ingested repository by retrieving
// similar file summaries and streaming a grounded completion.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jacklau/codebrief/internal/provider"
	"github.com/jacklau/codebrief/internal/retry"
	"github.com/jacklau/codebrief/internal/store"
)

const (
	// DefaultThreshold is the minimum cosine similarity of a retrieved file.
	DefaultThreshold = 0.5

	// DefaultTopK is the maximum number of retrieved files.
	DefaultTopK = 10

	// DefaultMaxContextChars bounds the context block sent to the model.
	DefaultMaxContextChars = 100_000
)

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

// Config tunes retrieval.
type Config struct {
	Threshold       float64
	TopK            int
	MaxContextChars int
	Policy          retry.Policy
}

// Deps holds the collaborators of a Service.
type Deps struct {
	Store     store.Store
	Embedder  provider.Embedder
	Completer provider.StreamCompleter
	Config    Config
	Logger    *slog.Logger
}

// Retrieval is the ranked context for one question.
type Retrieval struct {
	ProjectID string
	Question  string
	Matches   []store.Match
	Context   string
}

// Answer is a completed answer with the files it was grounded on.
type Answer struct {
	Question   string
	Text       string
	References []store.Match
}

// Service answers questions about projects.
type Service struct {
	deps Deps
}

// New creates a Service, filling unset config with defaults.
func New(deps Deps) *Service {
	if deps.Config.Threshold <= 0 {
		deps.Config.Threshold = DefaultThreshold
	}
	if deps.Config.TopK <= 0 {
		deps.Config.TopK = DefaultTopK
	}
	if deps.Config.MaxContextChars <= 0 {
		deps.Config.MaxContextChars = DefaultMaxContextChars
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.Policy.OnRetry == nil {
		logger := deps.Logger
		deps.Config.Policy.OnRetry = func(attempt int, kind retry.Kind, delay time.Duration, err error) {
			logger.Warn("question step failed, retrying", "attempt", attempt, "kind", kind.String(), "delay", delay, "error", err)
		}
	}
	return &Service{deps: deps}
}

// Retrieve embeds the question and collects the project's most similar
// files into a context block. No hits is not an error; the model is then
// expected to refuse.
func (s *Service) Retrieve(ctx context.Context, projectID, question string) (*Retrieval, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	var vec []float32
	err := s.deps.Config.Policy.Do(ctx, provider.Classify, func(ctx context.Context) error {
		v, err := s.deps.Embedder.Embed(ctx, question)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	matches, err := s.deps.Store.SearchSimilar(ctx, projectID, vec, s.deps.Config.Threshold, s.deps.Config.TopK)
	if err != nil {
		return nil, fmt.Errorf("searching similar files: %w", err)
	}

	s.deps.Logger.Debug("retrieved context", "project", projectID, "matches", len(matches))

	return &Retrieval{
		ProjectID: projectID,
		Question:  question,
		Matches:   matches,
		Context:   BuildContext(matches, s.deps.Config.MaxContextChars),
	}, nil
}

// Answer streams a completion grounded on r, calling onDelta for each
// fragment, and returns the full text. A failure before the first fragment
// is retried; once output has been delivered the error is returned as is.
func (s *Service) Answer(ctx context.Context, r *Retrieval, onDelta func(string) error) (string, error) {
	prompt, err := BuildAnswerPrompt(r.Context, r.Question)
	if err != nil {
		return "", err
	}
	if onDelta == nil {
		onDelta = func(string) error { return nil }
	}

	started := false
	classify := func(err error) retry.Kind {
		if started {
			return retry.Unknown
		}
		return provider.Classify(err)
	}

	var text string
	err = s.deps.Config.Policy.Do(ctx, classify, func(ctx context.Context) error {
		out, err := s.deps.Completer.Stream(ctx, prompt, func(delta string) error {
			started = true
			return onDelta(delta)
		})
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}
	return text, nil
}

// Ask retrieves context and streams an answer in one call.
func (s *Service) Ask(ctx context.Context, projectID, question string, onDelta func(string) error) (*Answer, error) {
	r, err := s.Retrieve(ctx, projectID, question)
	if err != nil {
		return nil, err
	}
	text, err := s.Answer(ctx, r, onDelta)
	if err != nil {
		return nil, err
	}
	return &Answer{Question: r.Question, Text: text, References: r.Matches}, nil
}

// Save stores an answered question with its references.
func (s *Service) Save(ctx context.Context, projectID string, a *Answer) (*store.Question, error) {
	q := &store.Question{
		ProjectID:      projectID,
		Question:       a.Question,
		Answer:         a.Text,
		FileReferences: a.References,
	}
	if err := s.deps.Store.SaveQuestion(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}
