package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/jacklau/codebrief/internal/ingest"
	"github.com/jacklau/codebrief/internal/pubsub"
	"github.com/jacklau/codebrief/internal/store"
)

// writeEvent writes one server-sent event and flushes it.
func writeEvent(w *bufio.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}

func setSSEHeaders(c fiber.Ctx) {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
}

// streamStatus streams ingestion progress for one project until the
// ingestion completes or fails. A project with nothing in flight gets a
// single event describing its current state.
func (s *Server) streamStatus(c fiber.Ctx) error {
	id := c.Params("id")
	if _, err := s.deps.Store.GetProject(c.Context(), id); err != nil {
		return err
	}

	// The subscription must exist before the status record is read: an
	// ingestion finishing after the read publishes into this channel.
	ctx, cancel := context.WithTimeout(s.ctx, s.deps.StreamTimeout)
	events := s.deps.Broker.SubscribeFunc(ctx, func(p ingest.Progress) bool { return p.ProjectID == id })

	current, err := s.deps.Store.GetProcessStatus(c.Context(), id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		cancel()
		return err
	}

	if current == nil {
		cancel()
		project, err := s.deps.Store.GetProject(c.Context(), id)
		if err != nil {
			return err
		}
		setSSEHeaders(c)
		event := string(pubsub.Completed)
		if project.Status != store.StatusCompleted {
			event = string(pubsub.Failed)
		}
		snapshot := ingest.Progress{ProjectID: id, Status: project.Status}
		return c.SendStreamWriter(func(w *bufio.Writer) {
			writeEvent(w, event, snapshot)
		})
	}

	setSSEHeaders(c)
	snapshot := ingest.Progress{ProjectID: id, Status: current.Status, Message: current.Message}

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		if err := writeEvent(w, string(pubsub.Progress), snapshot); err != nil {
			return
		}
		for evt := range events {
			if err := writeEvent(w, string(evt.Type), evt.Payload); err != nil {
				s.deps.Logger.Debug("status stream closed", "project", id, "error", err)
				return
			}
			if evt.Type.Terminal() {
				return
			}
		}
	})
}

type askRequest struct {
	Question string `json:"question"`
}

// ask answers a question as a stream of events: one "references" event
// with the retrieved files, a "delta" per answer fragment and a final
// "done" carrying the full answer, or "error" if generation fails.
func (s *Server) ask(c fiber.Ctx) error {
	var req askRequest
	if err := c.Bind().JSON(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "question is required")
	}
	if s.deps.QA == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "question answering is not configured")
	}

	id := c.Params("id")
	if _, err := s.deps.Store.GetProject(c.Context(), id); err != nil {
		return err
	}

	retrieval, err := s.deps.QA.Retrieve(c.Context(), id, req.Question)
	if err != nil {
		return err
	}

	setSSEHeaders(c)
	ctx, cancel := context.WithTimeout(s.ctx, s.deps.StreamTimeout)

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		refs := retrieval.Matches
		if refs == nil {
			refs = []store.Match{}
		}
		if err := writeEvent(w, "references", refs); err != nil {
			return
		}

		answer, err := s.deps.QA.Answer(ctx, retrieval, func(delta string) error {
			return writeEvent(w, "delta", fiber.Map{"text": delta})
		})
		if err != nil {
			s.deps.Logger.Warn("answer stream failed", "project", id, "error", err)
			writeEvent(w, "error", fiber.Map{"error": err.Error()})
			return
		}
		writeEvent(w, "done", fiber.Map{"answer": answer})
	})
}
