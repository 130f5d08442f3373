package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SaveQuestion stores a question with its answer and cited files.
func (d *DB) SaveQuestion(ctx context.Context, q *Question) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}

	refs, err := json.Marshal(q.FileReferences)
	if err != nil {
		return fmt.Errorf("encoding file references: %w", err)
	}

	_, err = d.db.ExecContext(ctx,
		`INSERT INTO questions (id, project_id, question, answer, file_references, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		q.ID, q.ProjectID, q.Question, q.Answer, string(refs), formatTime(q.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving question: %w", err)
	}
	return nil
}

// ListQuestions returns a project's saved questions newest first.
func (d *DB) ListQuestions(ctx context.Context, projectID string) ([]Question, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, project_id, question, answer, file_references, created_at
		 FROM questions WHERE project_id = ? ORDER BY created_at DESC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing questions: %w", err)
	}
	defer rows.Close()

	var questions []Question
	for rows.Next() {
		var q Question
		var refs sql.NullString
		var createdAt string
		if err := rows.Scan(&q.ID, &q.ProjectID, &q.Question, &q.Answer, &refs, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning question: %w", err)
		}
		if refs.Valid && refs.String != "" {
			if err := json.Unmarshal([]byte(refs.String), &q.FileReferences); err != nil {
				return nil, fmt.Errorf("decoding file references: %w", err)
			}
		}
		q.CreatedAt = parseTime(createdAt)
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
