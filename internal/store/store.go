package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ProjectStatus is the lifecycle state shared by projects and status records.
type ProjectStatus string

const (
	StatusProcessing ProjectStatus = "PROCESSING"
	StatusCompleted  ProjectStatus = "COMPLETED"
)

// Project is a linked GitHub repository.
type Project struct {
	ID        string
	Name      string
	GitHubURL string
	Status    ProjectStatus
	CreatedAt time.Time
	DeletedAt *time.Time
}

// ProcessStatus is the mutable, human-readable ingestion progress record.
// Its presence means an ingestion is in flight.
type ProcessStatus struct {
	ProjectID string
	Status    ProjectStatus
	Message   string
	UpdatedAt time.Time
}

// SourceEmbedding is one summarized source file. The vector is attached
// separately through SetSummaryEmbedding.
type SourceEmbedding struct {
	ID         string
	ProjectID  string
	FileName   string
	SourceCode string
	Summary    string
	CreatedAt  time.Time
}

// Match is a similarity search hit.
type Match struct {
	ID         string  `json:"id"`
	FileName   string  `json:"fileName"`
	SourceCode string  `json:"sourceCode"`
	Summary    string  `json:"summary"`
	Similarity float64 `json:"similarity"`
}

// Commit is a summarized repository commit.
type Commit struct {
	ID           string
	ProjectID    string
	Hash         string
	Message      string
	AuthorName   string
	AuthorAvatar string
	Date         time.Time
	Summary      string
	CreatedAt    time.Time
}

// Question is a saved question/answer pair with the files it cited.
type Question struct {
	ID             string
	ProjectID      string
	Question       string
	Answer         string
	FileReferences []Match
	CreatedAt      time.Time
}

// Store defines the storage operations used by ingestion, commit polling,
// question answering and the API. It is satisfied by *DB and by the
// Postgres store, and can be replaced with a fake for testing.
type Store interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context, includeArchived bool) ([]Project, error)
	SetProjectStatus(ctx context.Context, id string, status ProjectStatus) error
	ArchiveProject(ctx context.Context, id string) error
	DeleteProject(ctx context.Context, id string) error

	// CreateProcessStatus creates or replaces the project's status record.
	CreateProcessStatus(ctx context.Context, projectID string, status ProjectStatus, message string) error
	UpdateProcessStatus(ctx context.Context, projectID string, status ProjectStatus, message string) error
	GetProcessStatus(ctx context.Context, projectID string) (*ProcessStatus, error)
	DeleteProcessStatus(ctx context.Context, projectID string) error

	// InsertEmbeddings bulk-inserts rows and returns their IDs in input order.
	InsertEmbeddings(ctx context.Context, projectID string, rows []SourceEmbedding) ([]string, error)
	SetSummaryEmbedding(ctx context.Context, id string, embedding []float32) error
	// SearchSimilar returns rows of the project whose cosine similarity to
	// query is above threshold, best first, at most limit rows.
	SearchSimilar(ctx context.Context, projectID string, query []float32, threshold float64, limit int) ([]Match, error)
	CountEmbeddings(ctx context.Context, projectID string) (int, error)

	CommitHashes(ctx context.Context, projectID string) (map[string]struct{}, error)
	InsertCommits(ctx context.Context, projectID string, commits []Commit) error
	ListCommits(ctx context.Context, projectID string) ([]Commit, error)

	SaveQuestion(ctx context.Context, q *Question) error
	ListQuestions(ctx context.Context, projectID string) ([]Question, error)

	Close() error
}

// Compile-time check that *DB satisfies the Store interface.
var _ Store = (*DB)(nil)
