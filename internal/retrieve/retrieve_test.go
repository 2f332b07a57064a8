package retrieve

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"campusqa/internal/datasetcache"
	"campusqa/internal/embedclient"
	"campusqa/internal/sparseindex"
	"campusqa/internal/store/vectorstore"
)

func newCache(t *testing.T, corpus string, entry *datasetcache.Entry) *datasetcache.Cache {
	t.Helper()
	cache := datasetcache.New(filepath.Join(t.TempDir(), "data"), nil)
	if err := cache.Save(corpus, entry); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return cache
}

func TestHybridBlendsDenseAndSparseByAlpha(t *testing.T) {
	ctx := context.Background()
	ids := []string{"c1", "c2"}
	texts := []string{"수강신청 기간 안내", "도서관 이용 시간 변경"}
	sparse := sparseindex.NewModel()
	sparse.Fit(ids, texts)

	entry := &datasetcache.Entry{
		Chunks: []datasetcache.ChunkRow{
			{ChunkID: "c1", Text: texts[0]},
			{ChunkID: "c2", Text: texts[1]},
		},
		Sparse: sparse,
	}
	cache := newCache(t, "notices", entry)

	embedder := embedclient.NewDeterministic(16)
	vecs, _ := embedder.EmbedBatch(ctx, texts)
	store := vectorstore.NewFake()
	// Both chunks are stored with their deterministic embeddings; c1 shares
	// most of the query's byte trigrams, so it is the closer dense match.
	if err := store.Upsert(ctx, ids, texts, vecs, []map[string]string{{}, {}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	engine := New(map[string]vectorstore.Store{"notices": store}, cache, embedder)

	hits, err := engine.Hybrid(ctx, "notices", "수강신청 기간", 2, 1.0, nil)
	if err != nil {
		t.Fatalf("Hybrid: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected at least one hit")
	}
	// With alpha=1 (pure dense), c1 (lexically and semantically closer to the
	// query under the deterministic embedder) should rank first.
	if hits[0].ChunkID != "c1" {
		t.Errorf("top hit = %q, want c1", hits[0].ChunkID)
	}
}

func TestHybridWithFilterRestrictsToDenseCandidates(t *testing.T) {
	ctx := context.Background()
	ids := []string{"c1", "c2"}
	texts := []string{"통계학과 회귀분석", "컴퓨터공학과 자료구조"}
	sparse := sparseindex.NewModel()
	sparse.Fit(ids, texts)

	entry := &datasetcache.Entry{
		Chunks: []datasetcache.ChunkRow{
			{ChunkID: "c1", Text: texts[0], Major: "통계학과"},
			{ChunkID: "c2", Text: texts[1], Major: "컴퓨터공학과"},
		},
		Sparse: sparse,
	}
	cache := newCache(t, "courses", entry)

	embedder := embedclient.NewDeterministic(16)
	vecs, _ := embedder.EmbedBatch(ctx, texts)
	store := vectorstore.NewFake()
	if err := store.Upsert(ctx, ids, texts, vecs, []map[string]string{{"major": "통계학과"}, {"major": "컴퓨터공학과"}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	engine := New(map[string]vectorstore.Store{"courses": store}, cache, embedder)
	hits, err := engine.Hybrid(ctx, "courses", "회귀분석", 5, 0.5, &vectorstore.Filter{Key: "major", Value: "통계학과"})
	if err != nil {
		t.Fatalf("Hybrid: %v", err)
	}
	for _, h := range hits {
		if h.Major != "통계학과" {
			t.Errorf("returned row with major %q, want only 통계학과", h.Major)
		}
	}
}

func TestHybridUnknownCorpus(t *testing.T) {
	engine := New(map[string]vectorstore.Store{}, datasetcache.New(t.TempDir(), nil), embedclient.NewDeterministic(8))
	if _, err := engine.Hybrid(context.Background(), "ghost", "q", 5, 0.5, nil); err == nil {
		t.Fatal("expected error for unknown corpus")
	}
}

func TestFuseSingleCandidateNormalizesToOne(t *testing.T) {
	hits := []Hit{{ChunkRow: datasetcache.ChunkRow{ChunkID: "c1", PublishedAt: "2025-01-01"}, HybridScore: 0.7}}
	ranked := fuse(hits, 0.2)
	if ranked[0].NormHybrid != 1.0 || ranked[0].NormRecency != 1.0 {
		t.Fatalf("single-candidate normalization = %+v, want both 1.0", ranked[0])
	}
}

func TestFuseAllMissingDatesRecencyContributesZero(t *testing.T) {
	hits := []Hit{
		{ChunkRow: datasetcache.ChunkRow{ChunkID: "c1"}, HybridScore: 0.9},
		{ChunkRow: datasetcache.ChunkRow{ChunkID: "c2"}, HybridScore: 0.3},
	}
	ranked := fuse(hits, 0.5)
	for _, r := range ranked {
		if r.NormRecency != 0 {
			t.Fatalf("recency must contribute 0 when no row carries a date: %+v", r)
		}
	}
	if ranked[0].FinalScore <= ranked[1].FinalScore {
		t.Fatalf("missing-date rows should still order by hybrid score: %+v", ranked)
	}
}

func TestFuseDatelessRowDoesNotSkewRecencyOfDatedRows(t *testing.T) {
	hits := []Hit{
		{ChunkRow: datasetcache.ChunkRow{ChunkID: "new", PublishedAt: "2025-11-10"}, HybridScore: 0.5},
		{ChunkRow: datasetcache.ChunkRow{ChunkID: "old", PublishedAt: "2025-11-01"}, HybridScore: 0.5},
		{ChunkRow: datasetcache.ChunkRow{ChunkID: "none"}, HybridScore: 0.5},
	}
	ranked := fuse(hits, 0.5)
	byID := map[string]Ranked{}
	for _, r := range ranked {
		byID[r.ChunkID] = r
	}
	if got := byID["new"].NormRecency; got != 1.0 {
		t.Errorf("newest dated row NormRecency = %v, want 1.0", got)
	}
	if got := byID["old"].NormRecency; got != 0 {
		t.Errorf("oldest dated row NormRecency = %v, want 0", got)
	}
	// A dateless row counts as the oldest valid date, not as year-1.
	if got := byID["none"].NormRecency; got != 0 {
		t.Errorf("dateless row NormRecency = %v, want 0", got)
	}
}

func TestFilterByDateKeepsOnlyFilterableCorporaInRange(t *testing.T) {
	hits := []Hit{
		{ChunkRow: datasetcache.ChunkRow{ChunkID: "n1", PublishedAt: "2025-11-10"}, Corpus: "notices"},
		{ChunkRow: datasetcache.ChunkRow{ChunkID: "n2", PublishedAt: "2025-01-01"}, Corpus: "notices"},
		{ChunkRow: datasetcache.ChunkRow{ChunkID: "s1"}, Corpus: "staff"}, // not date-filterable
	}
	r := DateRange{Start: time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)}
	got := filterByDate(hits, r)
	if len(got) != 2 {
		t.Fatalf("filterByDate returned %d rows, want 2: %+v", len(got), got)
	}
	ids := map[string]bool{got[0].ChunkID: true, got[1].ChunkID: true}
	if !ids["n1"] || !ids["s1"] {
		t.Fatalf("filterByDate dropped the wrong rows: %+v", got)
	}
}

func TestFilterByDateKeepsSameDayRowInNonUTCLocation(t *testing.T) {
	kst := time.FixedZone("KST", 9*60*60)
	hits := []Hit{
		{ChunkRow: datasetcache.ChunkRow{ChunkID: "n1", PublishedAt: "2025-11-10"}, Corpus: "notices"},
	}
	r := DateRange{
		Start: time.Date(2025, 11, 10, 0, 0, 0, 0, kst),
		End:   time.Date(2025, 11, 10, 0, 0, 0, 0, kst),
	}
	got := filterByDate(hits, r)
	if len(got) != 1 {
		t.Fatalf("a row published on the range's own day must survive the filter, got %+v", got)
	}
}

func TestRetrieveFansOutAcrossCorpora(t *testing.T) {
	ctx := context.Background()
	embedder := embedclient.NewDeterministic(16)

	noticesSparse := sparseindex.NewModel()
	noticesSparse.Fit([]string{"n1"}, []string{"공지사항 안내"})
	noticesEntry := &datasetcache.Entry{
		Chunks: []datasetcache.ChunkRow{{ChunkID: "n1", Text: "공지사항 안내", PublishedAt: "2025-11-10"}},
		Sparse: noticesSparse,
	}
	noticesCache := newCache(t, "notices", noticesEntry)

	staffSparse := sparseindex.NewModel()
	staffSparse.Fit([]string{"s1"}, []string{"교직원 연락처"})
	staffEntry := &datasetcache.Entry{
		Chunks: []datasetcache.ChunkRow{{ChunkID: "s1", Text: "교직원 연락처"}},
		Sparse: staffSparse,
	}
	// Reuse one on-disk cache for both corpora by saving both entries into it.
	if err := noticesCache.Save("staff", staffEntry); err != nil {
		t.Fatalf("Save staff: %v", err)
	}

	noticesVec, _ := embedder.EmbedBatch(ctx, []string{"공지사항 안내"})
	staffVec, _ := embedder.EmbedBatch(ctx, []string{"교직원 연락처"})
	noticesStore := vectorstore.NewFake()
	_ = noticesStore.Upsert(ctx, []string{"n1"}, []string{"공지사항 안내"}, noticesVec, []map[string]string{{}})
	staffStore := vectorstore.NewFake()
	_ = staffStore.Upsert(ctx, []string{"s1"}, []string{"교직원 연락처"}, staffVec, []map[string]string{{}})

	engine := New(map[string]vectorstore.Store{"notices": noticesStore, "staff": staffStore}, noticesCache, embedder)

	ranked, err := engine.Retrieve(ctx, Request{
		Corpora:       []string{"notices", "staff"},
		Query:         "공지사항",
		TopK:          5,
		Alpha:         0.5,
		RecencyWeight: 0.2,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("Retrieve returned %d rows, want 2", len(ranked))
	}
}
