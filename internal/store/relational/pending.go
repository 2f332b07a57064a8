package relational

import (
	"context"
	"fmt"
)

// SubmitPending appends a new pending_items row and returns its id.
func (s *Store) SubmitPending(ctx context.Context, sourceType, payload string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `INSERT INTO pending_items(source_type, payload) VALUES($1,$2) RETURNING id`,
		sourceType, payload).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("relational: submit pending: %w", err)
	}
	return id, nil
}

// GetPending fetches one pending_items row by id.
func (s *Store) GetPending(ctx context.Context, id int64) (PendingItem, error) {
	var p PendingItem
	var status string
	err := s.pool.QueryRow(ctx, `SELECT id, source_type, payload, status, chunk_id FROM pending_items WHERE id=$1`, id).
		Scan(&p.ID, &p.SourceType, &p.Payload, &status, &p.ChunkID)
	if err != nil {
		return PendingItem{}, fmt.Errorf("relational: get pending %d: %w", id, err)
	}
	p.Status = PendingStatus(status)
	return p, nil
}

// ListPending returns every pending_items row with status=pending.
func (s *Store) ListPending(ctx context.Context) ([]PendingItem, error) {
	return s.listItems(ctx, `SELECT id, source_type, payload, status, chunk_id FROM pending_items WHERE status='pending' ORDER BY id DESC`)
}

// ListAllPending returns every pending_items row, newest first.
func (s *Store) ListAllPending(ctx context.Context) ([]PendingItem, error) {
	return s.listItems(ctx, `SELECT id, source_type, payload, status, chunk_id FROM pending_items ORDER BY id DESC`)
}

func (s *Store) listItems(ctx context.Context, query string) ([]PendingItem, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("relational: list pending: %w", err)
	}
	defer rows.Close()
	var out []PendingItem
	for rows.Next() {
		var p PendingItem
		var status string
		if err := rows.Scan(&p.ID, &p.SourceType, &p.Payload, &status, &p.ChunkID); err != nil {
			return nil, fmt.Errorf("relational: scan pending: %w", err)
		}
		p.Status = PendingStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetPendingStatus updates a pending_items row's status (and chunk_id, when set).
func (s *Store) SetPendingStatus(ctx context.Context, id int64, status PendingStatus, chunkID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE pending_items SET status=$1, chunk_id=$2 WHERE id=$3`, string(status), chunkID, id)
	if err != nil {
		return fmt.Errorf("relational: set pending status: %w", err)
	}
	return nil
}

// InsertNoticeWithChunk inserts a single notice source record and its one
// chunk in one transaction, returning the assigned notice id. Used by the
// admin-approval path, where both the source record and its chunk must
// become visible atomically.
func (s *Store) InsertNoticeWithChunk(ctx context.Context, notice SourceRecord, chunk Chunk) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("relational: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	id, err := insertSourceRecord(ctx, tx, "notices", notice)
	if err != nil {
		return 0, err
	}
	chunk.SourceID = id
	chunk.Corpus = "notices"
	if err := insertChunk(ctx, tx, chunk); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("relational: commit: %w", err)
	}
	return id, nil
}

// DeleteChunk removes a single chunk row, used to roll back an
// IndexInconsistent admin approval.
func (s *Store) DeleteChunk(ctx context.Context, chunkID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE chunk_id=$1`, chunkID)
	if err != nil {
		return fmt.Errorf("relational: delete chunk: %w", err)
	}
	return nil
}
