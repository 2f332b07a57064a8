// Package datasetcache holds, per corpus, the in-memory tuple of chunk rows
// and fitted sparse model that the hybrid retriever reads on every request.
// Entries are invalidated by comparing file mtimes against what was cached,
// and can be updated incrementally for single-row admin approvals without a
// full reload.
package datasetcache

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"campusqa/internal/sparseindex"
)

// ChunkRow is one retrievable unit: chunk text plus the metadata the
// retriever and re-ranker need (recency, title, links back to the source).
type ChunkRow struct {
	ChunkID     string
	DocID       string
	Text        string
	Title       string
	Topics      string
	PublishedAt string
	UpdatedAt   string
	URL         string
	Major       string
}

// Entry is the cached tuple for one corpus.
type Entry struct {
	Chunks []ChunkRow
	Sparse *sparseindex.Model

	chunkMtime  time.Time
	sparseMtime time.Time
}

// IngestFunc builds a fresh Entry for a corpus when no cached copy exists on
// disk, e.g. the first request for a corpus after a cold start. It must not
// call back into the Cache: Get persists and caches the returned entry
// itself, under the same critical section that decided a rebuild was needed.
type IngestFunc func(ctx context.Context, corpus string) (*Entry, error)

// Cache is safe for concurrent use. One Cache instance serves every corpus.
type Cache struct {
	dataDir string
	ingest  IngestFunc

	mu      sync.RWMutex
	entries map[string]*Entry
}

// New constructs a Cache rooted at dataDir, calling ingest to populate a
// corpus the first time it's requested with nothing on disk.
func New(dataDir string, ingest IngestFunc) *Cache {
	return &Cache{dataDir: dataDir, ingest: ingest, entries: make(map[string]*Entry)}
}

func (c *Cache) chunkPath(corpus string) string {
	return filepath.Join(c.dataDir, corpus+".chunks.gob")
}

func (c *Cache) sparsePath(corpus string) string {
	return filepath.Join(c.dataDir, corpus+".sparse.gob")
}

// Get returns the current Entry for corpus, reloading from disk if the
// backing files changed since the last load, and invoking the configured
// IngestFunc when either file is missing. The mtime check and the reload it
// guards run under the same write-lock critical section, so two concurrent
// callers can never both decide the cache is stale and reload the same
// corpus in parallel.
func (c *Cache) Get(ctx context.Context, corpus string) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chunkPath, sparsePath := c.chunkPath(corpus), c.sparsePath(corpus)
	chunkStat, chunkErr := os.Stat(chunkPath)
	sparseStat, sparseErr := os.Stat(sparsePath)

	if cached, ok := c.entries[corpus]; ok && chunkErr == nil && sparseErr == nil &&
		chunkStat.ModTime().Equal(cached.chunkMtime) && sparseStat.ModTime().Equal(cached.sparseMtime) {
		return cached, nil
	}

	if chunkErr != nil || sparseErr != nil {
		if c.ingest == nil {
			return nil, fmt.Errorf("datasetcache: no cached data for corpus %q and no ingest configured", corpus)
		}
		entry, err := c.ingest(ctx, corpus)
		if err != nil {
			return nil, fmt.Errorf("datasetcache: ingest corpus %q: %w", corpus, err)
		}
		if err := c.save(corpus, entry); err != nil {
			return nil, err
		}
		c.entries[corpus] = entry
		return entry, nil
	}

	chunks, err := loadChunks(chunkPath)
	if err != nil {
		return nil, fmt.Errorf("datasetcache: load chunks for %q: %w", corpus, err)
	}
	sparse, err := sparseindex.Load(sparsePath)
	if err != nil {
		return nil, fmt.Errorf("datasetcache: load sparse model for %q: %w", corpus, err)
	}
	entry := &Entry{Chunks: chunks, Sparse: sparse, chunkMtime: chunkStat.ModTime(), sparseMtime: sparseStat.ModTime()}
	c.entries[corpus] = entry
	return entry, nil
}

func (c *Cache) store(corpus string, entry *Entry) (*Entry, error) {
	c.mu.Lock()
	c.entries[corpus] = entry
	c.mu.Unlock()
	return entry, nil
}

// Save writes entry's chunk table and sparse model to disk and refreshes the
// in-memory cache, used by the ingestion pipeline after a full rebuild.
func (c *Cache) Save(corpus string, entry *Entry) error {
	if err := c.save(corpus, entry); err != nil {
		return err
	}
	_, err := c.store(corpus, entry)
	return err
}

func (c *Cache) save(corpus string, entry *Entry) error {
	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		return fmt.Errorf("datasetcache: create data dir: %w", err)
	}
	if err := saveChunks(c.chunkPath(corpus), entry.Chunks); err != nil {
		return fmt.Errorf("datasetcache: save chunks for %q: %w", corpus, err)
	}
	if err := entry.Sparse.Save(c.sparsePath(corpus)); err != nil {
		return fmt.Errorf("datasetcache: save sparse model for %q: %w", corpus, err)
	}
	chunkStat, err := os.Stat(c.chunkPath(corpus))
	if err != nil {
		return err
	}
	sparseStat, err := os.Stat(c.sparsePath(corpus))
	if err != nil {
		return err
	}
	entry.chunkMtime = chunkStat.ModTime()
	entry.sparseMtime = sparseStat.ModTime()
	return nil
}

// Append adds one freshly-approved chunk to a corpus already in cache,
// transforming its text with the existing sparse vocabulary and stacking it
// onto the sparse matrix, without rebuilding either from scratch. The caller
// must hold no other lock on this corpus; Append takes its own critical
// section across both structures so their row order never diverges.
func (c *Cache) Append(corpus string, row ChunkRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[corpus]
	if !ok {
		return fmt.Errorf("datasetcache: corpus %q not loaded", corpus)
	}
	entry.Chunks = append(entry.Chunks, row)
	entry.Sparse.Append(row.ChunkID, row.Text)
	if err := c.save(corpus, entry); err != nil {
		// Roll the in-memory append back so the cache doesn't diverge from disk.
		entry.Chunks = entry.Chunks[:len(entry.Chunks)-1]
		entry.Sparse.IDs = entry.Sparse.IDs[:len(entry.Sparse.IDs)-1]
		entry.Sparse.Matrix = entry.Sparse.Matrix[:len(entry.Sparse.Matrix)-1]
		return err
	}
	return nil
}

// chunkCSVHeader is the column order of the CSV fallback encoding.
var chunkCSVHeader = []string{"chunk_id", "doc_id", "text", "title", "topics", "published_at", "updated_at", "url", "major"}

func saveChunks(path string, chunks []ChunkRow) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(chunks); err != nil {
		// Fall back to CSV so the corpus still survives a restart.
		return saveChunksCSV(path, chunks)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func loadChunks(path string) ([]ChunkRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var chunks []ChunkRow
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&chunks); err != nil {
		return loadChunksCSV(data, err)
	}
	return chunks, nil
}

func saveChunksCSV(path string, chunks []ChunkRow) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(chunkCSVHeader); err != nil {
		return err
	}
	for _, c := range chunks {
		rec := []string{c.ChunkID, c.DocID, c.Text, c.Title, c.Topics, c.PublishedAt, c.UpdatedAt, c.URL, c.Major}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// loadChunksCSV parses data as the CSV fallback encoding; gobErr is the
// original decode failure, returned when data is not valid CSV either.
func loadChunksCSV(data []byte, gobErr error) ([]ChunkRow, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil || len(records) == 0 || len(records[0]) != len(chunkCSVHeader) || records[0][0] != chunkCSVHeader[0] {
		return nil, gobErr
	}
	chunks := make([]ChunkRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) != len(chunkCSVHeader) {
			return nil, gobErr
		}
		chunks = append(chunks, ChunkRow{
			ChunkID: rec[0], DocID: rec[1], Text: rec[2], Title: rec[3], Topics: rec[4],
			PublishedAt: rec[5], UpdatedAt: rec[6], URL: rec[7], Major: rec[8],
		})
	}
	return chunks, nil
}
