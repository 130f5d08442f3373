// Package postgres implements store.Store on PostgreSQL with the pgvector
// extension, ranking similarity inside the database.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/jacklau/codebrief/internal/store"
)

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to databaseURL, verifies the connection and applies the schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			github_url TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PROCESSING',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS source_code_embeddings (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			file_name TEXT NOT NULL,
			source_code TEXT NOT NULL,
			summary TEXT NOT NULL,
			summary_embedding vector,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_embeddings_project ON source_code_embeddings(project_id)`,
		`CREATE TABLE IF NOT EXISTS commits (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			commit_hash TEXT NOT NULL,
			commit_message TEXT NOT NULL,
			commit_author_name TEXT NOT NULL,
			commit_author_avatar TEXT NOT NULL,
			commit_date TIMESTAMPTZ NOT NULL,
			summary TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (project_id, commit_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS project_process_status (
			project_id TEXT PRIMARY KEY REFERENCES projects(id) ON DELETE CASCADE,
			status TEXT NOT NULL,
			message TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS questions (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			file_references JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_project ON questions(project_id, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing migration statement: %w", err)
		}
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("scan %s: %w", what, err)
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}

// --- Projects ---

const projectColumns = `id, name, github_url, status, created_at, deleted_at`

func (s *Store) CreateProject(ctx context.Context, p *store.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = store.StatusProcessing
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, github_url, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, p.GitHubURL, string(p.Status), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*store.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

func (s *Store) ListProjects(ctx context.Context, includeArchived bool) ([]store.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	if !includeArchived {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []store.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func (s *Store) SetProjectStatus(ctx context.Context, id string, status store.ProjectStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("set project status: %w", err)
	}
	return requireAffected(res, "set project status")
}

func (s *Store) ArchiveProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("archive project: %w", err)
	}
	return requireAffected(res, "archive project")
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return requireAffected(res, "delete project")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(r rowScanner) (*store.Project, error) {
	var p store.Project
	var status string
	var deletedAt sql.NullTime
	if err := r.Scan(&p.ID, &p.Name, &p.GitHubURL, &status, &p.CreatedAt, &deletedAt); err != nil {
		return nil, notFound(err, "project")
	}
	p.Status = store.ProjectStatus(status)
	if deletedAt.Valid {
		t := deletedAt.Time
		p.DeletedAt = &t
	}
	return &p, nil
}

// --- Process status ---

func (s *Store) CreateProcessStatus(ctx context.Context, projectID string, status store.ProjectStatus, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO project_process_status (project_id, status, message, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (project_id) DO UPDATE SET
			status = EXCLUDED.status,
			message = EXCLUDED.message,
			updated_at = NOW()`,
		projectID, string(status), message,
	)
	if err != nil {
		return fmt.Errorf("create process status: %w", err)
	}
	return nil
}

func (s *Store) UpdateProcessStatus(ctx context.Context, projectID string, status store.ProjectStatus, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE project_process_status SET status = $1, message = $2, updated_at = NOW() WHERE project_id = $3`,
		string(status), message, projectID,
	)
	if err != nil {
		return fmt.Errorf("update process status: %w", err)
	}
	return requireAffected(res, "update process status")
}

func (s *Store) GetProcessStatus(ctx context.Context, projectID string) (*store.ProcessStatus, error) {
	var ps store.ProcessStatus
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT project_id, status, message, updated_at FROM project_process_status WHERE project_id = $1`,
		projectID,
	).Scan(&ps.ProjectID, &status, &ps.Message, &ps.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "process status")
	}
	ps.Status = store.ProjectStatus(status)
	return &ps, nil
}

func (s *Store) DeleteProcessStatus(ctx context.Context, projectID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM project_process_status WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("delete process status: %w", err)
	}
	return nil
}

// --- Embeddings ---

func (s *Store) InsertEmbeddings(ctx context.Context, projectID string, rows []store.SourceEmbedding) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO source_code_embeddings (id, project_id, file_name, source_code, summary)
		 VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, len(rows))
	for i, r := range rows {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, id, projectID, r.FileName, r.SourceCode, r.Summary); err != nil {
			return nil, fmt.Errorf("insert embedding row %s: %w", r.FileName, err)
		}
		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

func (s *Store) SetSummaryEmbedding(ctx context.Context, id string, embedding []float32) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE source_code_embeddings SET summary_embedding = $1 WHERE id = $2`,
		pgvector.NewVector(embedding), id,
	)
	if err != nil {
		return fmt.Errorf("set summary embedding: %w", err)
	}
	return requireAffected(res, "set summary embedding")
}

// SearchSimilar ranks with the cosine distance operator; similarity is 1 - distance.
func (s *Store) SearchSimilar(ctx context.Context, projectID string, query []float32, threshold float64, limit int) ([]store.Match, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_name, source_code, summary, 1 - (summary_embedding <=> $1::vector) AS similarity
		 FROM source_code_embeddings
		 WHERE project_id = $2
		   AND summary_embedding IS NOT NULL
		   AND 1 - (summary_embedding <=> $1::vector) > $3
		 ORDER BY similarity DESC
		 LIMIT $4`,
		pgvector.NewVector(query), projectID, threshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}
	defer rows.Close()

	var matches []store.Match
	for rows.Next() {
		var m store.Match
		if err := rows.Scan(&m.ID, &m.FileName, &m.SourceCode, &m.Summary, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan similar: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *Store) CountEmbeddings(ctx context.Context, projectID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM source_code_embeddings WHERE project_id = $1`, projectID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return n, nil
}

// --- Commits ---

func (s *Store) CommitHashes(ctx context.Context, projectID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT commit_hash FROM commits WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list commit hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan commit hash: %w", err)
		}
		hashes[h] = struct{}{}
	}
	return hashes, rows.Err()
}

func (s *Store) InsertCommits(ctx context.Context, projectID string, commits []store.Commit) error {
	if len(commits) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO commits (id, project_id, commit_hash, commit_message, commit_author_name,
			commit_author_avatar, commit_date, summary, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range commits {
		c := &commits[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.ProjectID = projectID
		c.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		if _, err := stmt.ExecContext(ctx, c.ID, projectID, c.Hash, c.Message, c.AuthorName,
			c.AuthorAvatar, c.Date, c.Summary, c.CreatedAt); err != nil {
			return fmt.Errorf("insert commit %s: %w", c.Hash, err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListCommits(ctx context.Context, projectID string) ([]store.Commit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, commit_hash, commit_message, commit_author_name, commit_author_avatar,
			commit_date, summary, created_at
		 FROM commits WHERE project_id = $1 ORDER BY commit_date DESC, created_at ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	defer rows.Close()

	var commits []store.Commit
	for rows.Next() {
		var c store.Commit
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Hash, &c.Message, &c.AuthorName,
			&c.AuthorAvatar, &c.Date, &c.Summary, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

// --- Questions ---

func (s *Store) SaveQuestion(ctx context.Context, q *store.Question) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	refs, err := json.Marshal(q.FileReferences)
	if err != nil {
		return fmt.Errorf("encode file references: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO questions (id, project_id, question, answer, file_references, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		q.ID, q.ProjectID, q.Question, q.Answer, refs, q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save question: %w", err)
	}
	return nil
}

func (s *Store) ListQuestions(ctx context.Context, projectID string) ([]store.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, question, answer, file_references, created_at
		 FROM questions WHERE project_id = $1 ORDER BY created_at DESC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []store.Question
	for rows.Next() {
		var q store.Question
		var refs []byte
		if err := rows.Scan(&q.ID, &q.ProjectID, &q.Question, &q.Answer, &refs, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if len(refs) > 0 {
			if err := json.Unmarshal(refs, &q.FileReferences); err != nil {
				return nil, fmt.Errorf("decode file references: %w", err)
			}
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
