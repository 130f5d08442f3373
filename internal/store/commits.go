package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CommitHashes returns the set of commit hashes already stored for a project.
func (d *DB) CommitHashes(ctx context.Context, projectID string) (map[string]struct{}, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT commit_hash FROM commits WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing commit hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning commit hash: %w", err)
		}
		hashes[h] = struct{}{}
	}
	return hashes, rows.Err()
}

// InsertCommits inserts all commits in one transaction, in slice order.
func (d *DB) InsertCommits(ctx context.Context, projectID string, commits []Commit) error {
	if len(commits) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning commit insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO commits (id, project_id, commit_hash, commit_message, commit_author_name,
			commit_author_avatar, commit_date, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing commit insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range commits {
		c := &commits[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.ProjectID = projectID
		// Offset by index so created_at preserves insertion order.
		c.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		_, err := stmt.ExecContext(ctx, c.ID, projectID, c.Hash, c.Message, c.AuthorName,
			c.AuthorAvatar, formatTime(c.Date), c.Summary, formatTime(c.CreatedAt))
		if err != nil {
			return fmt.Errorf("inserting commit %s: %w", c.Hash, err)
		}
	}

	return tx.Commit()
}

// ListCommits returns a project's commits newest first by commit date.
func (d *DB) ListCommits(ctx context.Context, projectID string) ([]Commit, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, project_id, commit_hash, commit_message, commit_author_name, commit_author_avatar,
			commit_date, summary, created_at
		 FROM commits WHERE project_id = ? ORDER BY commit_date DESC, created_at ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing commits: %w", err)
	}
	defer rows.Close()

	var commits []Commit
	for rows.Next() {
		var c Commit
		var date, createdAt string
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Hash, &c.Message, &c.AuthorName,
			&c.AuthorAvatar, &date, &c.Summary, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning commit: %w", err)
		}
		c.Date = parseTime(date)
		c.CreatedAt = parseTime(createdAt)
		commits = append(commits, c)
	}
	return commits, rows.Err()
}
