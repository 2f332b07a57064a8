package relational

import (
	"context"
	"fmt"
)

// ChunkExists reports whether a chunk with this id is already present,
// used by the admin-approval path to detect title/board/date collisions
// before minting a chunk id.
func (s *Store) ChunkExists(ctx context.Context, chunkID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM chunks WHERE chunk_id=$1)`, chunkID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("relational: check chunk exists: %w", err)
	}
	return exists, nil
}
