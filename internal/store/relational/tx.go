package relational

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxTx narrows pgx.Tx to the methods insertSourceRecord/insertChunk need,
// so the same helpers serve both transactional bulk replace and
// single-row admin-approval writes.
type pgxTx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
