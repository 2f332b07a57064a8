// Package relational is the canonical PostgreSQL-backed store: one table
// per corpus source record, a shared chunks table, and the moderation
// queue. It implements bulk delete-then-insert ingestion writes and
// single-row admin-approval writes.
package relational

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PendingStatus enumerates moderation queue states.
type PendingStatus string

const (
	StatusPending              PendingStatus = "pending"
	StatusApproved             PendingStatus = "approved"
	StatusRejected             PendingStatus = "rejected"
	StatusApprovedButUnindexed PendingStatus = "approved_but_unindexed"
	// StatusApprovedManually marks rows an operator approved outside the
	// service (direct database edit); the moderator never sets it but must
	// not treat it as pending.
	StatusApprovedManually PendingStatus = "approved_manually"
)

// SourceRecord is a generic row for any of the five source tables. Fields
// that a given corpus does not use are left zero.
type SourceRecord struct {
	ID            int64
	Corpus        string
	Title         string
	Content       string
	Category      string
	PublishedDate string
	DetailURL     string
	Department    string
	StartDate     string
	EndDate       string
	CourseCode    string
	Major         string
	Name          string
	Position      string
	Phone         string
	Email         string
	Origin        string
	RawData       string
}

// Chunk is one row of the shared chunks table.
type Chunk struct {
	ChunkID     string
	DocID       string
	Corpus      string
	SourceID    int64
	Text        string
	Position    int
	TokenLen    int
	Title       string
	Topics      string
	PublishedAt string
	UpdatedAt   string
	URL         string
	Major       string
}

// PendingItem is one row of pending_items.
type PendingItem struct {
	ID         int64
	SourceType string
	Payload    string
	Status     PendingStatus
	ChunkID    string
}

// Store wraps a pgxpool connection pool with the schema this service needs.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("relational: connect: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.bootstrap(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) bootstrap(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS notices (
			id BIGSERIAL PRIMARY KEY,
			board TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			published_date TEXT NOT NULL DEFAULT '',
			is_fixed BOOLEAN NOT NULL DEFAULT false,
			detail_url TEXT UNIQUE,
			content TEXT NOT NULL DEFAULT '',
			attachments TEXT NOT NULL DEFAULT '',
			origin TEXT NOT NULL DEFAULT 'auto'
		)`,
		`CREATE TABLE IF NOT EXISTS rules (
			id BIGSERIAL PRIMARY KEY,
			filename TEXT NOT NULL DEFAULT '',
			relative_dir TEXT NOT NULL DEFAULT '',
			full_text TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS schedule (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			start_date TEXT NOT NULL DEFAULT '',
			end_date TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			department TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			origin TEXT NOT NULL DEFAULT 'auto'
		)`,
		`CREATE TABLE IF NOT EXISTS courses (
			id BIGSERIAL PRIMARY KEY,
			course_code TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			source_table TEXT NOT NULL DEFAULT '',
			raw_data TEXT NOT NULL DEFAULT '',
			major TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS staff (
			id BIGSERIAL PRIMARY KEY,
			department TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			position TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			raw_data TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS custom_knowledge (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS pending_items (
			id BIGSERIAL PRIMARY KEY,
			source_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			chunk_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			chunk_id TEXT PRIMARY KEY,
			doc_id TEXT NOT NULL DEFAULT '',
			corpus TEXT NOT NULL,
			notice_id BIGINT REFERENCES notices(id) ON DELETE CASCADE,
			rule_id BIGINT REFERENCES rules(id) ON DELETE CASCADE,
			schedule_id BIGINT REFERENCES schedule(id) ON DELETE CASCADE,
			course_id BIGINT REFERENCES courses(id) ON DELETE CASCADE,
			staff_id BIGINT REFERENCES staff(id) ON DELETE CASCADE,
			text TEXT NOT NULL,
			position INT NOT NULL,
			token_len INT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			topics TEXT NOT NULL DEFAULT '',
			published_at TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			major TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS chunks_corpus_idx ON chunks(corpus)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("relational: bootstrap: %w", err)
		}
	}
	return nil
}

// corpusTable maps a corpus key to its source table name.
func corpusTable(corpus string) (string, error) {
	switch corpus {
	case "notices":
		return "notices", nil
	case "rules":
		return "rules", nil
	case "schedule":
		return "schedule", nil
	case "courses":
		return "courses", nil
	case "staff":
		return "staff", nil
	default:
		return "", fmt.Errorf("relational: unknown corpus %q", corpus)
	}
}

// ReplaceCorpus deletes every chunk and source record belonging to corpus,
// inserts the new source records (filling in their assigned ids), then
// inserts the new chunks, all inside one transaction.
func (s *Store) ReplaceCorpus(ctx context.Context, corpus string, records []SourceRecord, buildChunks func([]SourceRecord) []Chunk) ([]Chunk, error) {
	table, err := corpusTable(corpus)
	if err != nil {
		return nil, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("relational: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE corpus = $1`, corpus); err != nil {
		return nil, fmt.Errorf("relational: delete chunks: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
		return nil, fmt.Errorf("relational: delete %s: %w", table, err)
	}

	inserted := make([]SourceRecord, len(records))
	for i, rec := range records {
		id, err := insertSourceRecord(ctx, tx, table, rec)
		if err != nil {
			return nil, err
		}
		rec.ID = id
		inserted[i] = rec
	}

	chunks := buildChunks(inserted)
	for _, c := range chunks {
		if err := insertChunk(ctx, tx, c); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("relational: commit: %w", err)
	}
	return chunks, nil
}

func insertSourceRecord(ctx context.Context, tx pgxTx, table string, rec SourceRecord) (int64, error) {
	var id int64
	var err error
	switch table {
	case "notices":
		err = tx.QueryRow(ctx, `INSERT INTO notices(board,title,category,published_date,is_fixed,detail_url,content,attachments,origin)
			VALUES($1,$2,$3,$4,$5,NULLIF($6,''),$7,$8,$9) RETURNING id`,
			rec.Department, rec.Title, rec.Category, rec.PublishedDate, false, rec.DetailURL, rec.Content, rec.RawData, firstNonEmpty(rec.Origin, "auto")).Scan(&id)
	case "rules":
		err = tx.QueryRow(ctx, `INSERT INTO rules(filename,relative_dir,full_text) VALUES($1,$2,$3) RETURNING id`,
			rec.Title, rec.Department, rec.Content).Scan(&id)
	case "schedule":
		err = tx.QueryRow(ctx, `INSERT INTO schedule(title,start_date,end_date,category,department,content,origin)
			VALUES($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			rec.Title, rec.StartDate, rec.EndDate, rec.Category, rec.Department, rec.Content, firstNonEmpty(rec.Origin, "auto")).Scan(&id)
	case "courses":
		err = tx.QueryRow(ctx, `INSERT INTO courses(course_code,title,description,source_table,raw_data,major)
			VALUES($1,$2,$3,$4,$5,$6) RETURNING id`,
			rec.CourseCode, rec.Title, rec.Content, rec.Corpus, rec.RawData, rec.Major).Scan(&id)
	case "staff":
		err = tx.QueryRow(ctx, `INSERT INTO staff(department,name,position,role,phone,email,raw_data)
			VALUES($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			rec.Department, rec.Name, rec.Position, rec.Category, rec.Phone, rec.Email, rec.RawData).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("relational: insert %s: %w", table, err)
	}
	return id, nil
}

func insertChunk(ctx context.Context, tx pgxTx, c Chunk) error {
	cols := map[string]string{"notices": "notice_id", "rules": "rule_id", "schedule": "schedule_id", "courses": "course_id", "staff": "staff_id"}
	fk, ok := cols[c.Corpus]
	if !ok {
		return fmt.Errorf("relational: unknown corpus %q for chunk", c.Corpus)
	}
	stmt := fmt.Sprintf(`INSERT INTO chunks(chunk_id,doc_id,corpus,%s,text,position,token_len,title,topics,published_at,updated_at,url,major)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (chunk_id) DO UPDATE SET text=EXCLUDED.text, title=EXCLUDED.title, published_at=EXCLUDED.published_at, updated_at=EXCLUDED.updated_at, url=EXCLUDED.url, major=EXCLUDED.major`, fk)
	_, err := tx.Exec(ctx, stmt, c.ChunkID, c.DocID, c.Corpus, c.SourceID, c.Text, c.Position, c.TokenLen, c.Title, c.Topics, c.PublishedAt, c.UpdatedAt, c.URL, c.Major)
	if err != nil {
		return fmt.Errorf("relational: insert chunk: %w", err)
	}
	return nil
}

// ChunkCount returns how many chunks exist for a corpus (used by /health).
func (s *Store) ChunkCount(ctx context.Context, corpus string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chunks WHERE corpus=$1`, corpus).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("relational: chunk count: %w", err)
	}
	return n, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
