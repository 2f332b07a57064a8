package ingest

import (
	"context"
	"testing"

	"campusqa/internal/store/relational"
	"campusqa/internal/store/vectorstore"
)

func TestBuildChunksFnAssignsSourceIDAndCorpus(t *testing.T) {
	spec := Specs(20, 5)["notices"]
	records := []relational.SourceRecord{
		{ID: 7, Title: "T1", Department: "공지", Content: "첫 문장입니다. 둘째 문장이 이어집니다. 셋째 문장도 있습니다."},
	}
	chunks := buildChunksFn(spec)(records)
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	for _, c := range chunks {
		if c.SourceID != 7 {
			t.Errorf("SourceID = %d, want 7", c.SourceID)
		}
		if c.Corpus != "notices" {
			t.Errorf("Corpus = %q, want notices", c.Corpus)
		}
	}
}

func TestReconcileVectorsDeletesStaleAndUpsertsNew(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewFake()
	_ = store.Upsert(ctx, []string{"old1", "old2"}, []string{"d1", "d2"}, [][]float32{{1, 0}, {0, 1}}, []map[string]string{{}, {}})

	err := reconcileVectors(ctx, store, []string{"old1", "new1"}, []string{"d1", "d3"}, [][]float32{{1, 0}, {0, 1}}, []map[string]string{{}, {}})
	if err != nil {
		t.Fatalf("reconcileVectors: %v", err)
	}
	ids, err := store.GetAllIDs(ctx)
	if err != nil {
		t.Fatalf("GetAllIDs: %v", err)
	}
	got := map[string]bool{}
	for _, id := range ids {
		got[id] = true
	}
	if got["old2"] {
		t.Error("old2 should have been deleted as stale")
	}
	if !got["old1"] || !got["new1"] {
		t.Errorf("expected old1 and new1 present, got %v", ids)
	}
}

func TestReconcileVectorsEmptyNewSetDeletesEverything(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewFake()
	_ = store.Upsert(ctx, []string{"a"}, []string{"doc"}, [][]float32{{1}}, []map[string]string{{}})

	if err := reconcileVectors(ctx, store, nil, nil, nil, nil); err != nil {
		t.Fatalf("reconcileVectors: %v", err)
	}
	ids, _ := store.GetAllIDs(ctx)
	if len(ids) != 0 {
		t.Errorf("expected empty collection, got %v", ids)
	}
}
