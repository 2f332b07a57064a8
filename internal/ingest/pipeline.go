package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"

	"campusqa/internal/datasetcache"
	"campusqa/internal/embedclient"
	"campusqa/internal/sparseindex"
	"campusqa/internal/store/relational"
	"campusqa/internal/store/vectorstore"
	"campusqa/internal/textproc"
)

// Sentinel error kinds the pipeline wraps into the errors it returns, so
// callers can test for them with errors.Is.
var (
	ErrDatasetMissing       = errors.New("ingest: dataset missing")
	ErrEmbeddingUnavailable = errors.New("ingest: embedding service unavailable")
)

// Pipeline bulk-(re)ingests one corpus at a time: read source rows, replace
// the relational records and chunks transactionally, re-embed, re-fit the
// sparse model, and reconcile the vector collection. All three indices agree
// on the chunk set when it returns without error; the caller persists the
// returned entry into the dataset cache.
type Pipeline struct {
	Relational *relational.Store
	Vector     map[string]vectorstore.Store
	Embedder   embedclient.Embedder

	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
}

func (p *Pipeline) batchSize() int {
	if p.BatchSize > 0 {
		return p.BatchSize
	}
	return 64
}

// IngestCorpus runs the full per-corpus ingestion contract against the CSV
// file at sourcePath and returns the freshly built dataset-cache entry.
func (p *Pipeline) IngestCorpus(ctx context.Context, corpus, sourcePath string) (*datasetcache.Entry, error) {
	spec, ok := Specs(p.ChunkSize, p.ChunkOverlap)[corpus]
	if !ok {
		return nil, fmt.Errorf("ingest: unknown corpus %q", corpus)
	}
	store, ok := p.Vector[corpus]
	if !ok {
		return nil, fmt.Errorf("ingest: no vector store configured for corpus %q", corpus)
	}

	if _, err := os.Stat(sourcePath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDatasetMissing, sourcePath)
	}
	rows, err := readCSV(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDatasetMissing, sourcePath, err)
	}

	records := make([]relational.SourceRecord, len(rows))
	for i, r := range rows {
		records[i] = spec.ToRecord(r)
	}

	chunks, err := p.Relational.ReplaceCorpus(ctx, corpus, records, buildChunksFn(spec))
	if err != nil {
		return nil, fmt.Errorf("ingest: replace corpus %q: %w", corpus, err)
	}

	// Past the relational commit the remaining index work runs to completion
	// even if the originating request is cancelled, so the three stores
	// converge rather than strand the corpus half-ingested.
	ctx = context.WithoutCancel(ctx)

	ids := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	chunkRows := make([]datasetcache.ChunkRow, len(chunks))
	metadatas := make([]map[string]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkID
		texts[i] = c.Text
		chunkRows[i] = datasetcache.ChunkRow{
			ChunkID: c.ChunkID, DocID: c.DocID, Text: c.Text, Title: c.Title, Topics: c.Topics,
			PublishedAt: c.PublishedAt, UpdatedAt: c.UpdatedAt, URL: c.URL, Major: c.Major,
		}
		metadatas[i] = map[string]string{
			"title": c.Title, "topics": c.Topics, "published_at": c.PublishedAt,
			"updated_at": c.UpdatedAt, "url": c.URL, "major": c.Major,
		}
	}

	vectors, err := p.embedBatched(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	sparse := sparseindex.NewModel()
	sparse.Fit(ids, texts)

	if err := reconcileVectors(ctx, store, ids, texts, vectors, metadatas); err != nil {
		return nil, fmt.Errorf("ingest: reconcile vectors for %q: %w", corpus, err)
	}

	return &datasetcache.Entry{Chunks: chunkRows, Sparse: sparse}, nil
}

// reconcileVectors deletes ids present in the collection but absent from the
// new set, then upserts the new set, so the collection ends up holding
// exactly the ids the caller asked for.
func reconcileVectors(ctx context.Context, store vectorstore.Store, ids []string, documents []string, vectors [][]float32, metadatas []map[string]string) error {
	existing, err := store.GetAllIDs(ctx)
	if err != nil {
		return fmt.Errorf("list existing ids: %w", err)
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var stale []string
	for _, id := range existing {
		if !want[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := store.Delete(ctx, stale); err != nil {
			return fmt.Errorf("delete stale: %w", err)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return store.Upsert(ctx, ids, documents, vectors, metadatas)
}

func (p *Pipeline) embedBatched(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	batch := p.batchSize()
	for start := 0; start < len(texts); start += batch {
		end := min(start+batch, len(texts))
		vecs, err := p.Embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// buildChunksFn closes over a CorpusSpec to adapt it to
// relational.Store.ReplaceCorpus's buildChunks callback, which runs after
// source records have their database-assigned ids.
func buildChunksFn(spec CorpusSpec) func([]relational.SourceRecord) []relational.Chunk {
	return func(records []relational.SourceRecord) []relational.Chunk {
		var out []relational.Chunk
		for _, rec := range records {
			doc := spec.ToDoc(rec)
			for _, cr := range textproc.ToChunks([]textproc.Doc{doc}, spec.ChunkSize, spec.ChunkOverlap, spec.IncludeTitle) {
				out = append(out, relational.Chunk{
					ChunkID: cr.ChunkID, DocID: cr.DocID, Corpus: spec.Key, SourceID: rec.ID,
					Text: cr.Text, Position: cr.Position, TokenLen: cr.TokenLen,
					Title: cr.Title, Topics: cr.Topics, PublishedAt: cr.PublishedAt,
					UpdatedAt: cr.UpdatedAt, URL: cr.URL, Major: cr.Major,
				})
			}
		}
		return out
	}
}
