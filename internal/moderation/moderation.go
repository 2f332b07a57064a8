// Package moderation implements the admin queue: submit a proposed item,
// approve it into the notices corpus with an online incremental index
// update, or reject it with no index side-effect.
package moderation

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"campusqa/internal/datasetcache"
	"campusqa/internal/embedclient"
	"campusqa/internal/store/relational"
	"campusqa/internal/store/vectorstore"
	"campusqa/internal/textproc"
	"campusqa/internal/util"
)

// Error kinds the HTTP layer inspects with errors.Is.
var (
	// ErrBadPayload means the submitted payload could not be parsed for its
	// declared source type.
	ErrBadPayload = errors.New("moderation: malformed payload")
	// ErrIndexInconsistent means the relational write succeeded but the
	// vector upsert failed; the row is left approved_but_unindexed.
	ErrIndexInconsistent = errors.New("moderation: index inconsistent")
	// ErrAlreadyUnindexed means a previous approval attempt already left
	// this row approved_but_unindexed; it will not be silently retried.
	ErrAlreadyUnindexed = errors.New("moderation: item is approved_but_unindexed, rerun the incremental update explicitly")
)

const noticesCorpus = "notices"

// Store is the slice of relational.Store the moderation queue depends on,
// narrowed so it can be faked in tests without a live PostgreSQL instance.
type Store interface {
	SubmitPending(ctx context.Context, sourceType, payload string) (int64, error)
	GetPending(ctx context.Context, id int64) (relational.PendingItem, error)
	SetPendingStatus(ctx context.Context, id int64, status relational.PendingStatus, chunkID string) error
	ChunkExists(ctx context.Context, chunkID string) (bool, error)
	InsertNoticeWithChunk(ctx context.Context, notice relational.SourceRecord, chunk relational.Chunk) (int64, error)
	DeleteChunk(ctx context.Context, chunkID string) error
}

// SourceType enumerates the shapes a pending item's payload can take.
const (
	SourceAnnouncement    = "announcement"
	SourceEvent           = "event"
	SourceCustomKnowledge = "custom_knowledge"
)

// payload is the superset of fields any SourceType may populate; unused
// fields are left zero.
type payload struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	Date       string `json:"date"`
	StartDate  string `json:"start_date"`
	Department string `json:"department"`
	Category   string `json:"category"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
}

// Moderator wires the moderation queue to the relational store, the notices
// vector collection, the dataset cache, and the embedding service.
type Moderator struct {
	Relational Store
	Vector     vectorstore.Store // the notices collection
	Cache      *datasetcache.Cache
	Embedder   embedclient.Embedder

	// Now is overridable in tests; defaults to time.Now when nil.
	Now func() time.Time
}

func (m *Moderator) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Submit appends a new pending row and returns its id.
func (m *Moderator) Submit(ctx context.Context, sourceType, rawPayload string) (int64, error) {
	switch sourceType {
	case SourceAnnouncement, SourceEvent, SourceCustomKnowledge:
	default:
		return 0, fmt.Errorf("%w: unknown source_type %q", ErrBadPayload, sourceType)
	}
	var p payload
	if err := json.Unmarshal([]byte(rawPayload), &p); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return m.Relational.SubmitPending(ctx, sourceType, rawPayload)
}

// Reject marks a pending item rejected. No index side-effect.
func (m *Moderator) Reject(ctx context.Context, id int64) error {
	return m.Relational.SetPendingStatus(ctx, id, relational.StatusRejected, "")
}

// Approve projects a pending item into the notices corpus, inserts its
// source record and chunk in one relational transaction, embeds the chunk
// text, upserts it into the notices vector collection, and triggers an
// incremental dataset-cache update. Returns the new chunk id.
func (m *Moderator) Approve(ctx context.Context, id int64) (string, error) {
	item, err := m.Relational.GetPending(ctx, id)
	if err != nil {
		return "", fmt.Errorf("moderation: load pending item: %w", err)
	}
	if item.Status == relational.StatusApprovedButUnindexed {
		return "", ErrAlreadyUnindexed
	}
	if item.Status != relational.StatusPending {
		return "", fmt.Errorf("moderation: item %d is %s, not pending", id, item.Status)
	}

	notice, chunkText, err := m.projectNotice(item)
	if err != nil {
		return "", err
	}

	docID := textproc.MakeDocID(notice.Title, notice.Department, notice.PublishedDate)
	chunkID := docID
	exists, err := m.Relational.ChunkExists(ctx, chunkID)
	if err != nil {
		return "", fmt.Errorf("moderation: check chunk collision: %w", err)
	}
	if exists {
		chunkID = docID + "_" + randSuffix(notice.Title+notice.Department+notice.PublishedDate+fmt.Sprint(id))
	}

	chunk := relational.Chunk{
		ChunkID: chunkID, DocID: docID, Text: chunkText, Position: 0, TokenLen: util.CountTokens(chunkText),
		Title: notice.Title, Topics: notice.Category, PublishedAt: notice.PublishedDate, URL: notice.DetailURL,
	}

	if _, err := m.Relational.InsertNoticeWithChunk(ctx, notice, chunk); err != nil {
		return "", fmt.Errorf("moderation: insert notice and chunk: %w", err)
	}

	// Past the relational commit the approval must run to index-upsert
	// completion even if the originating request is cancelled; otherwise the
	// row would be stranded without its embedding.
	ctx = context.WithoutCancel(ctx)

	if err := m.indexChunk(ctx, chunkID, chunkText, chunk); err != nil {
		// Never leave a chunk row whose embedding was not upserted.
		if delErr := m.Relational.DeleteChunk(ctx, chunkID); delErr != nil {
			err = fmt.Errorf("%w (and rollback of chunk row failed: %v)", err, delErr)
		}
		_ = m.Relational.SetPendingStatus(ctx, id, relational.StatusApprovedButUnindexed, chunkID)
		return "", fmt.Errorf("%w: %v", ErrIndexInconsistent, err)
	}

	if err := m.Relational.SetPendingStatus(ctx, id, relational.StatusApproved, chunkID); err != nil {
		return "", fmt.Errorf("moderation: mark approved: %w", err)
	}
	return chunkID, nil
}

func (m *Moderator) indexChunk(ctx context.Context, chunkID, chunkText string, chunk relational.Chunk) error {
	vecs, err := m.Embedder.EmbedBatch(ctx, []string{chunkText})
	if err != nil {
		return fmt.Errorf("embed chunk: %w", err)
	}
	metadata := map[string]string{
		"title": chunk.Title, "topics": chunk.Topics,
		"published_at": chunk.PublishedAt, "url": chunk.URL,
	}
	if err := m.Vector.Upsert(ctx, []string{chunkID}, []string{chunkText}, vecs, []map[string]string{metadata}); err != nil {
		return fmt.Errorf("upsert vector: %w", err)
	}
	// Make sure the corpus is resident before the incremental append; on a
	// cold process the entry may not have been read from disk yet.
	if _, err := m.Cache.Get(ctx, noticesCorpus); err != nil {
		return fmt.Errorf("load dataset cache: %w", err)
	}
	return m.Cache.Append(noticesCorpus, datasetcache.ChunkRow{
		ChunkID: chunkID, DocID: chunk.DocID, Text: chunkText, Title: chunk.Title, Topics: chunk.Topics,
		PublishedAt: chunk.PublishedAt, URL: chunk.URL,
	})
}

// projectNotice builds a notices SourceRecord and its chunk text from a
// pending item, regardless of its declared source type: events and custom
// Q&A are both projected into notices with a fixed category.
func (m *Moderator) projectNotice(item relational.PendingItem) (relational.SourceRecord, string, error) {
	var p payload
	if err := json.Unmarshal([]byte(item.Payload), &p); err != nil {
		return relational.SourceRecord{}, "", fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	today := m.now().Format("2006-01-02")
	notice := relational.SourceRecord{Origin: "manual"}

	switch item.SourceType {
	case SourceEvent:
		date := textproc.StandardizeDate(p.StartDate)
		if date == "" {
			date = textproc.StandardizeDate(p.Date)
		}
		if date == "" {
			date = today
		}
		notice.Title = p.Title
		notice.Content = p.Content
		notice.Department = p.Department
		notice.Category = "행사"
		notice.PublishedDate = date
	case SourceCustomKnowledge:
		title := firstNonEmpty(p.Title, p.Question)
		content := firstNonEmpty(p.Content, p.Answer)
		if title == "" || content == "" {
			return relational.SourceRecord{}, "", fmt.Errorf("%w: custom_knowledge requires question/answer", ErrBadPayload)
		}
		notice.Title = title
		notice.Content = content
		notice.Category = "FAQ"
		notice.PublishedDate = today
	default: // announcement
		if p.Title == "" || p.Content == "" {
			return relational.SourceRecord{}, "", fmt.Errorf("%w: announcement requires title/content", ErrBadPayload)
		}
		date := textproc.StandardizeDate(p.Date)
		if date == "" {
			date = today
		}
		notice.Title = p.Title
		notice.Content = p.Content
		notice.Department = p.Department
		notice.Category = firstNonEmpty(p.Category, "일반")
		notice.PublishedDate = date
	}

	text := notice.Content
	if notice.Department != "" {
		text = "[게시판: " + notice.Department + "]\n" + text
	}
	return notice, text, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func randSuffix(seed string) string {
	sum := sha1.Sum([]byte(seed + "|collision"))
	return hex.EncodeToString(sum[:])[:8]
}
