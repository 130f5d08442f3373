package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/jacklau/codebrief/internal/github"
	"github.com/jacklau/codebrief/internal/store"
)

func (s *Server) register(api fiber.Router) {
	projects := api.Group("/projects")
	projects.Get("/", s.listProjects)
	projects.Post("/", s.createProject)
	projects.Get("/:id", s.getProject)
	projects.Delete("/:id", s.deleteProject)
	projects.Post("/:id/archive", s.archiveProject)
	projects.Get("/:id/status", s.getStatus)
	projects.Get("/:id/status/stream", s.streamStatus)
	projects.Get("/:id/commits", s.listCommits)
	projects.Post("/:id/ask", s.ask)
	projects.Get("/:id/questions", s.listQuestions)
	projects.Post("/:id/questions", s.saveQuestion)
}

type projectJSON struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	GitHubURL string     `json:"githubUrl"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

func toProjectJSON(p *store.Project) projectJSON {
	return projectJSON{
		ID:        p.ID,
		Name:      p.Name,
		GitHubURL: p.GitHubURL,
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt,
		DeletedAt: p.DeletedAt,
	}
}

type statusJSON struct {
	ProjectID string    `json:"projectId"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type commitJSON struct {
	ID           string    `json:"id"`
	Hash         string    `json:"commitHash"`
	Message      string    `json:"commitMessage"`
	AuthorName   string    `json:"commitAuthorName"`
	AuthorAvatar string    `json:"commitAuthorAvatar"`
	Date         time.Time `json:"commitDate"`
	Summary      string    `json:"summary"`
}

type questionJSON struct {
	ID             string        `json:"id"`
	Question       string        `json:"question"`
	Answer         string        `json:"answer"`
	FileReferences []store.Match `json:"fileReferences"`
	CreatedAt      time.Time     `json:"createdAt"`
}

func toQuestionJSON(q *store.Question) questionJSON {
	refs := q.FileReferences
	if refs == nil {
		refs = []store.Match{}
	}
	return questionJSON{
		ID:             q.ID,
		Question:       q.Question,
		Answer:         q.Answer,
		FileReferences: refs,
		CreatedAt:      q.CreatedAt,
	}
}

func (s *Server) listProjects(c fiber.Ctx) error {
	projects, err := s.deps.Store.ListProjects(c.Context(), c.Query("archived") == "true")
	if err != nil {
		return err
	}
	out := make([]projectJSON, len(projects))
	for i := range projects {
		out[i] = toProjectJSON(&projects[i])
	}
	return c.JSON(fiber.Map{"projects": out, "count": len(out)})
}

type createProjectRequest struct {
	Name        string `json:"name"`
	GitHubURL   string `json:"githubUrl"`
	GitHubToken string `json:"githubToken"`
}

// createProject stores the project and starts its ingestion and first
// commit poll in the background.
func (s *Server) createProject(c fiber.Ctx) error {
	var req createProjectRequest
	if err := c.Bind().JSON(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name is required")
	}
	if _, err := github.ParseRepoURL(req.GitHubURL); err != nil {
		return err
	}

	p := &store.Project{Name: req.Name, GitHubURL: req.GitHubURL, Status: store.StatusProcessing}
	if err := s.deps.Store.CreateProject(c.Context(), p); err != nil {
		return err
	}

	token := req.GitHubToken
	s.runJob(func(ctx context.Context) {
		logger := s.deps.Logger.With("project", p.ID)
		if s.deps.Ingester != nil {
			if _, err := s.deps.Ingester.Ingest(ctx, p.ID, p.GitHubURL, token); err != nil {
				logger.Error("ingestion failed", "error", err)
			}
		}
		if s.deps.Poller != nil {
			if _, err := s.deps.Poller.PollCommits(ctx, p.ID); err != nil {
				logger.Error("initial commit poll failed", "error", err)
			}
		}
	})

	return c.Status(fiber.StatusCreated).JSON(toProjectJSON(p))
}

func (s *Server) getProject(c fiber.Ctx) error {
	p, err := s.deps.Store.GetProject(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(toProjectJSON(p))
}

func (s *Server) archiveProject(c fiber.Ctx) error {
	if err := s.deps.Store.ArchiveProject(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) deleteProject(c fiber.Ctx) error {
	if err := s.deps.Store.DeleteProject(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// getStatus returns the in-flight status record, or null when no
// ingestion is running.
func (s *Server) getStatus(c fiber.Ctx) error {
	ps, err := s.deps.Store.GetProcessStatus(c.Context(), c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(nil)
	}
	if err != nil {
		return err
	}
	return c.JSON(statusJSON{
		ProjectID: ps.ProjectID,
		Status:    string(ps.Status),
		Message:   ps.Message,
		UpdatedAt: ps.UpdatedAt,
	})
}

// listCommits polls for new commits and returns everything stored. A poll
// failure is logged and the stored commits are still returned.
func (s *Server) listCommits(c fiber.Ctx) error {
	id := c.Params("id")
	if _, err := s.deps.Store.GetProject(c.Context(), id); err != nil {
		return err
	}
	if s.deps.Poller != nil {
		if _, err := s.deps.Poller.PollCommits(c.Context(), id); err != nil {
			s.deps.Logger.Warn("commit poll failed", "project", id, "error", err)
		}
	}

	commits, err := s.deps.Store.ListCommits(c.Context(), id)
	if err != nil {
		return err
	}
	out := make([]commitJSON, len(commits))
	for i, cm := range commits {
		out[i] = commitJSON{
			ID:           cm.ID,
			Hash:         cm.Hash,
			Message:      cm.Message,
			AuthorName:   cm.AuthorName,
			AuthorAvatar: cm.AuthorAvatar,
			Date:         cm.Date,
			Summary:      cm.Summary,
		}
	}
	return c.JSON(fiber.Map{"commits": out, "count": len(out)})
}

func (s *Server) listQuestions(c fiber.Ctx) error {
	questions, err := s.deps.Store.ListQuestions(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	out := make([]questionJSON, len(questions))
	for i := range questions {
		out[i] = toQuestionJSON(&questions[i])
	}
	return c.JSON(fiber.Map{"questions": out, "count": len(out)})
}

type saveQuestionRequest struct {
	Question       string        `json:"question"`
	Answer         string        `json:"answer"`
	FileReferences []store.Match `json:"fileReferences"`
}

func (s *Server) saveQuestion(c fiber.Ctx) error {
	var req saveQuestionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.Answer) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "question and answer are required")
	}

	id := c.Params("id")
	if _, err := s.deps.Store.GetProject(c.Context(), id); err != nil {
		return err
	}

	q := &store.Question{
		ProjectID:      id,
		Question:       req.Question,
		Answer:         req.Answer,
		FileReferences: req.FileReferences,
	}
	if err := s.deps.Store.SaveQuestion(c.Context(), q); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toQuestionJSON(q))
}
