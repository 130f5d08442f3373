package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jacklau/codebrief/internal/vector"
)

// InsertEmbeddings inserts all rows in one transaction and returns their IDs.
func (d *DB) InsertEmbeddings(ctx context.Context, projectID string, rows []SourceEmbedding) ([]string, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO source_code_embeddings (id, project_id, file_name, source_code, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("preparing embedding insert: %w", err)
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	ids := make([]string, len(rows))
	for i, r := range rows {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, id, projectID, r.FileName, r.SourceCode, r.Summary, now); err != nil {
			return nil, fmt.Errorf("inserting embedding row %s: %w", r.FileName, err)
		}
		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing embedding rows: %w", err)
	}
	return ids, nil
}

// SetSummaryEmbedding attaches the vector to a previously inserted row.
func (d *DB) SetSummaryEmbedding(ctx context.Context, id string, embedding []float32) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE source_code_embeddings SET summary_embedding = ? WHERE id = ?`,
		vector.Encode(embedding), id,
	)
	if err != nil {
		return fmt.Errorf("setting summary embedding: %w", err)
	}
	return requireAffected(res, "setting summary embedding")
}

// SearchSimilar ranks the project's embedded rows by cosine similarity in Go.
func (d *DB) SearchSimilar(ctx context.Context, projectID string, query []float32, threshold float64, limit int) ([]Match, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, file_name, source_code, summary, summary_embedding
		 FROM source_code_embeddings
		 WHERE project_id = ? AND summary_embedding IS NOT NULL`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var candidates []Match
	var vecs [][]float32
	for rows.Next() {
		var m Match
		var blob []byte
		if err := rows.Scan(&m.ID, &m.FileName, &m.SourceCode, &m.Summary, &blob); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		candidates = append(candidates, m)
		vecs = append(vecs, vector.Decode(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ranked := vector.TopK(query, vecs, threshold, limit)
	matches := make([]Match, len(ranked))
	for i, r := range ranked {
		matches[i] = candidates[r.Index]
		matches[i].Similarity = r.Score
	}
	return matches, nil
}

// CountEmbeddings returns the number of stored rows for a project.
func (d *DB) CountEmbeddings(ctx context.Context, projectID string) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM source_code_embeddings WHERE project_id = ?`, projectID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting embeddings: %w", err)
	}
	return n, nil
}
