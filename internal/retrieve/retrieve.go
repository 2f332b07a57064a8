// Package retrieve implements the hybrid dense+sparse retriever and the
// cross-corpus late-fusion re-ranker: per corpus, fuse vector-store
// similarity with sparse term-frequency similarity; across corpora, apply a
// date post-filter and blend the fused score with recency.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"campusqa/internal/datasetcache"
	"campusqa/internal/embedclient"
	"campusqa/internal/store/vectorstore"
)

// ErrDatasetUnavailable wraps a per-corpus load failure, inspected with
// errors.Is by the HTTP layer to surface "Dataset '<k>' unavailable".
var ErrDatasetUnavailable = errors.New("retrieve: dataset unavailable")

// Hit is one scored candidate out of a single corpus's hybrid retrieval.
type Hit struct {
	datasetcache.ChunkRow
	Corpus      string
	HybridScore float64
}

// Ranked is one final row after cross-corpus merge, date filter, and
// recency fusion.
type Ranked struct {
	Hit
	NormHybrid  float64
	NormRecency float64
	FinalScore  float64
}

// DateRange bounds a post-filter applied to corpora with a date column.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// dateFilterable is the set of corpora the date post-filter applies to.
var dateFilterable = map[string]bool{"notices": true, "schedule": true, "rules": true}

// Engine answers retrieval requests against the dataset cache and per-corpus
// vector stores.
type Engine struct {
	Stores   map[string]vectorstore.Store
	Cache    *datasetcache.Cache
	Embedder embedclient.Embedder
}

// New builds an Engine over the given per-corpus stores.
func New(stores map[string]vectorstore.Store, cache *datasetcache.Cache, embedder embedclient.Embedder) *Engine {
	return &Engine{Stores: stores, Cache: cache, Embedder: embedder}
}

// Hybrid runs dense+sparse fusion against a single corpus and returns the top
// k candidates sorted by hybrid_score descending (ties broken by chunk id).
func (e *Engine) Hybrid(ctx context.Context, corpus, query string, k int, alpha float64, filter *vectorstore.Filter) ([]Hit, error) {
	store, ok := e.Stores[corpus]
	if !ok {
		return nil, fmt.Errorf("retrieve: unknown corpus %q", corpus)
	}
	entry, err := e.Cache.Get(ctx, corpus)
	if err != nil {
		return nil, fmt.Errorf("%w: dataset %q: %v", ErrDatasetUnavailable, corpus, err)
	}

	fanout := 3 * k
	if fanout <= 0 {
		fanout = k
	}

	vecs, err := e.Embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("retrieve: embed query: %w", err)
	}

	dense := map[string]float64{}
	if len(vecs) > 0 {
		results, err := store.Query(ctx, vecs[0], fanout, filter)
		if err != nil {
			return nil, fmt.Errorf("retrieve: vector query %q: %w", corpus, err)
		}
		for _, r := range results {
			dense[r.ID] = 1 - r.Distance
		}
	}

	sparse := map[string]float64{}
	if entry.Sparse != nil {
		for _, s := range entry.Sparse.Query(query, fanout) {
			sparse[s.ID] = s.Similarity
		}
	}

	var candidateIDs []string
	if filter != nil {
		for id := range dense {
			candidateIDs = append(candidateIDs, id)
		}
	} else {
		seen := map[string]bool{}
		for id := range dense {
			if !seen[id] {
				seen[id] = true
				candidateIDs = append(candidateIDs, id)
			}
		}
		for id := range sparse {
			if !seen[id] {
				seen[id] = true
				candidateIDs = append(candidateIDs, id)
			}
		}
	}

	scores := make(map[string]float64, len(candidateIDs))
	for _, id := range candidateIDs {
		scores[id] = alpha*dense[id] + (1-alpha)*sparse[id]
	}
	sort.Slice(candidateIDs, func(i, j int) bool {
		if scores[candidateIDs[i]] != scores[candidateIDs[j]] {
			return scores[candidateIDs[i]] > scores[candidateIDs[j]]
		}
		return candidateIDs[i] < candidateIDs[j]
	})
	if k > 0 && len(candidateIDs) > k {
		candidateIDs = candidateIDs[:k]
	}

	byID := make(map[string]datasetcache.ChunkRow, len(entry.Chunks))
	for _, row := range entry.Chunks {
		byID[row.ChunkID] = row
	}

	hits := make([]Hit, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		row, ok := byID[id]
		if !ok {
			continue
		}
		hits = append(hits, Hit{ChunkRow: row, Corpus: corpus, HybridScore: scores[id]})
	}
	return hits, nil
}

// Request is the input to Retrieve: the corpora to consult plus the
// hybrid-retrieval and re-ranking knobs.
type Request struct {
	Corpora       []string
	Query         string
	TopK          int
	Alpha         float64
	RecencyWeight float64
	Filters       map[string]*vectorstore.Filter // per-corpus, optional
	Dates         *DateRange
}

// Retrieve fans out Hybrid across req.Corpora, merges, applies the date
// post-filter, and fuses hybrid score with recency to produce the final
// top-K ranking.
func (e *Engine) Retrieve(ctx context.Context, req Request) ([]Ranked, error) {
	if len(req.Corpora) == 0 || req.TopK <= 0 {
		return nil, nil
	}
	fanout := 3 * req.TopK

	results := make([][]Hit, len(req.Corpora))
	g, gctx := errgroup.WithContext(ctx)
	for i, corpus := range req.Corpora {
		i, corpus := i, corpus
		g.Go(func() error {
			hits, err := e.Hybrid(gctx, corpus, req.Query, fanout, req.Alpha, req.Filters[corpus])
			if err != nil {
				return err
			}
			results[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Hit
	for _, hits := range results {
		all = append(all, hits...)
	}
	if req.Dates != nil {
		all = filterByDate(all, *req.Dates)
	}
	if len(all) == 0 {
		return nil, nil
	}

	ranked := fuse(all, req.RecencyWeight)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].FinalScore != ranked[j].FinalScore {
			return ranked[i].FinalScore > ranked[j].FinalScore
		}
		if ranked[i].HybridScore != ranked[j].HybridScore {
			return ranked[i].HybridScore > ranked[j].HybridScore
		}
		return ranked[i].ChunkID < ranked[j].ChunkID
	})
	if len(ranked) > req.TopK {
		ranked = ranked[:req.TopK]
	}
	return ranked, nil
}

func filterByDate(hits []Hit, r DateRange) []Hit {
	// Row dates are civil dates; parse them in the range's own location so a
	// row dated "2025-11-10" compares equal to a same-day range boundary
	// regardless of the server timezone.
	loc := r.Start.Location()
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if !dateFilterable[h.Corpus] {
			out = append(out, h)
			continue
		}
		d := parseDateIn(h.PublishedAt, loc)
		if d.IsZero() {
			d = parseDateIn(h.UpdatedAt, loc)
		}
		if d.IsZero() {
			continue
		}
		if d.Before(r.Start) || d.After(r.End) {
			continue
		}
		out = append(out, h)
	}
	return out
}

func parseDateIn(s string, loc *time.Location) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// fuse min-max normalizes hybrid_score and recency timestamps and computes
// final = (1-W)*norm_hybrid + W*norm_recency, per row. Min and max recency
// come from rows that actually carry a date; dateless rows are filled with
// that minimum so they never stretch the normalization range. When no row
// carries a date, recency contributes 0 to every score.
func fuse(hits []Hit, w float64) []Ranked {
	ranked := make([]Ranked, len(hits))
	recency := make([]time.Time, len(hits))
	minHybrid, maxHybrid := hits[0].HybridScore, hits[0].HybridScore
	var minRecency, maxRecency time.Time
	haveDates := false
	for i, h := range hits {
		ranked[i] = Ranked{Hit: h}
		if h.HybridScore < minHybrid {
			minHybrid = h.HybridScore
		}
		if h.HybridScore > maxHybrid {
			maxHybrid = h.HybridScore
		}
		d := parseDateIn(h.PublishedAt, time.UTC)
		if d.IsZero() {
			d = parseDateIn(h.UpdatedAt, time.UTC)
		}
		recency[i] = d
		if d.IsZero() {
			continue
		}
		if !haveDates || d.Before(minRecency) {
			minRecency = d
		}
		if !haveDates || d.After(maxRecency) {
			maxRecency = d
		}
		haveDates = true
	}
	if haveDates {
		for i := range recency {
			if recency[i].IsZero() {
				recency[i] = minRecency
			}
		}
	}

	hybridRange := maxHybrid - minHybrid
	recencyRange := maxRecency.Sub(minRecency)
	for i := range ranked {
		if hybridRange == 0 {
			ranked[i].NormHybrid = 1.0
		} else {
			ranked[i].NormHybrid = (ranked[i].HybridScore - minHybrid) / hybridRange
		}
		switch {
		case !haveDates:
			ranked[i].NormRecency = 0
		case recencyRange == 0:
			ranked[i].NormRecency = 1.0
		default:
			ranked[i].NormRecency = float64(recency[i].Sub(minRecency)) / float64(recencyRange)
		}
		ranked[i].FinalScore = (1-w)*ranked[i].NormHybrid + w*ranked[i].NormRecency
	}
	return ranked
}
