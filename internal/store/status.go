package store

import (
	"context"
	"fmt"
	"time"
)

// CreateProcessStatus creates the project's status record, replacing any
// existing one so a project never has more than one.
func (d *DB) CreateProcessStatus(ctx context.Context, projectID string, status ProjectStatus, message string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO project_process_status (project_id, status, message, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(project_id) DO UPDATE SET
			status = excluded.status,
			message = excluded.message,
			updated_at = excluded.updated_at`,
		projectID, string(status), message, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("creating process status: %w", err)
	}
	return nil
}

// UpdateProcessStatus overwrites an existing status record. Last write wins.
func (d *DB) UpdateProcessStatus(ctx context.Context, projectID string, status ProjectStatus, message string) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE project_process_status SET status = ?, message = ?, updated_at = ? WHERE project_id = ?`,
		string(status), message, formatTime(time.Now()), projectID,
	)
	if err != nil {
		return fmt.Errorf("updating process status: %w", err)
	}
	return requireAffected(res, "updating process status")
}

// GetProcessStatus returns the status record, or ErrNotFound when no
// ingestion is in flight.
func (d *DB) GetProcessStatus(ctx context.Context, projectID string) (*ProcessStatus, error) {
	var ps ProcessStatus
	var status, updatedAt string
	err := d.db.QueryRowContext(ctx,
		`SELECT project_id, status, message, updated_at FROM project_process_status WHERE project_id = ?`,
		projectID,
	).Scan(&ps.ProjectID, &status, &ps.Message, &updatedAt)
	if err != nil {
		return nil, notFound(err, "process status")
	}
	ps.Status = ProjectStatus(status)
	ps.UpdatedAt = parseTime(updatedAt)
	return &ps, nil
}

// DeleteProcessStatus removes the status record. Deleting a missing record is not an error.
func (d *DB) DeleteProcessStatus(ctx context.Context, projectID string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM project_process_status WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("deleting process status: %w", err)
	}
	return nil
}
