package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const projectColumns = `id, name, github_url, status, created_at, deleted_at`

// CreateProject inserts p, filling ID, Status and CreatedAt when unset.
func (d *DB) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = StatusProcessing
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, github_url, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.GitHubURL, string(p.Status), formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID, archived or not.
func (d *DB) GetProject(ctx context.Context, id string) (*Project, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

// ListProjects returns projects newest first.
func (d *DB) ListProjects(ctx context.Context, includeArchived bool) ([]Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	if !includeArchived {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// SetProjectStatus updates the project's lifecycle status.
func (d *DB) SetProjectStatus(ctx context.Context, id string, status ProjectStatus) error {
	res, err := d.db.ExecContext(ctx, `UPDATE projects SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("setting project status: %w", err)
	}
	return requireAffected(res, "setting project status")
}

// ArchiveProject soft-deletes a project by stamping deleted_at.
func (d *DB) ArchiveProject(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE projects SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("archiving project: %w", err)
	}
	return requireAffected(res, "archiving project")
}

// DeleteProject removes a project and, through foreign keys, everything it owns.
func (d *DB) DeleteProject(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	return requireAffected(res, "deleting project")
}

func scanProject(s scanner) (*Project, error) {
	var p Project
	var status, createdAt string
	var deletedAt sql.NullString

	if err := s.Scan(&p.ID, &p.Name, &p.GitHubURL, &status, &createdAt, &deletedAt); err != nil {
		return nil, notFound(err, "project")
	}

	p.Status = ProjectStatus(status)
	p.CreatedAt = parseTime(createdAt)
	if deletedAt.Valid {
		t := parseTime(deletedAt.String)
		p.DeletedAt = &t
	}
	return &p, nil
}
