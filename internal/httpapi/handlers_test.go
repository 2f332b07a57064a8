package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"campusqa/internal/answer"
	"campusqa/internal/datasetcache"
	"campusqa/internal/embedclient"
	"campusqa/internal/llmclient"
	"campusqa/internal/moderation"
	"campusqa/internal/retrieve"
	"campusqa/internal/router"
	"campusqa/internal/sparseindex"
	"campusqa/internal/store/convstore"
	"campusqa/internal/store/relational"
	"campusqa/internal/store/vectorstore"
)

type fakePendingStore struct {
	items map[int64]relational.PendingItem
}

func (f *fakePendingStore) ListPending(context.Context) ([]relational.PendingItem, error) {
	var out []relational.PendingItem
	for _, it := range f.items {
		if it.Status == relational.StatusPending {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakePendingStore) ListAllPending(context.Context) ([]relational.PendingItem, error) {
	var out []relational.PendingItem
	for _, it := range f.items {
		out = append(out, it)
	}
	return out, nil
}

func (f *fakePendingStore) SubmitPending(_ context.Context, sourceType, payload string) (int64, error) {
	id := int64(len(f.items) + 1)
	f.items[id] = relational.PendingItem{ID: id, SourceType: sourceType, Payload: payload, Status: relational.StatusPending}
	return id, nil
}

func (f *fakePendingStore) GetPending(_ context.Context, id int64) (relational.PendingItem, error) {
	return f.items[id], nil
}

func (f *fakePendingStore) SetPendingStatus(_ context.Context, id int64, status relational.PendingStatus, chunkID string) error {
	item := f.items[id]
	item.Status = status
	item.ChunkID = chunkID
	f.items[id] = item
	return nil
}

func (f *fakePendingStore) ChunkExists(context.Context, string) (bool, error) { return false, nil }

func (f *fakePendingStore) InsertNoticeWithChunk(context.Context, relational.SourceRecord, relational.Chunk) (int64, error) {
	return 1, nil
}

func (f *fakePendingStore) DeleteChunk(context.Context, string) error { return nil }

type fakeHealthStore struct{ counts map[string]int }

func (f *fakeHealthStore) ChunkCount(_ context.Context, corpus string) (int, error) {
	return f.counts[corpus], nil
}

func newTestServer(t *testing.T) (*Server, *fakePendingStore) {
	t.Helper()
	ctx := context.Background()
	ids := []string{"c1"}
	texts := []string{"오늘 공지사항입니다"}
	sparse := sparseindex.NewModel()
	sparse.Fit(ids, texts)
	cache := datasetcache.New(filepath.Join(t.TempDir(), "data"), nil)
	if err := cache.Save("notices", &datasetcache.Entry{
		Chunks: []datasetcache.ChunkRow{{ChunkID: "c1", Text: texts[0], Title: "T", PublishedAt: "2025-11-10"}},
		Sparse: sparse,
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	embedder := embedclient.NewDeterministic(8)
	vecs, _ := embedder.EmbedBatch(ctx, texts)
	store := vectorstore.NewFake()
	if err := store.Upsert(ctx, ids, texts, vecs, []map[string]string{{}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	engine := retrieve.New(map[string]vectorstore.Store{"notices": store}, cache, embedder)
	rt := router.New(&llmclient.Fake{Responses: []string{`{"names":["notices"]}`}}, 0)
	orch := &answer.Orchestrator{LLM: &llmclient.Fake{Responses: []string{"안녕하세요, 답변입니다."}}, Conv: convstore.NewMemory()}
	pending := &fakePendingStore{items: map[int64]relational.PendingItem{}}
	mod := &moderation.Moderator{Relational: pending, Vector: store, Cache: cache, Embedder: embedder}
	health := &fakeHealthStore{counts: map[string]int{"notices": 1}}

	srv := NewServer(&Server{
		Router: rt, Retrieve: engine, Answer: orch, Moderator: mod,
		Health: health, Pending: pending, DefaultTopK: 5, Alpha: 0.5, RecencyWeight: 0.2,
		Now: func() time.Time { return time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC) },
	})
	return srv, pending
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(askRequest{Question: "", SessionID: "s1"})
	req := httptest.NewRequest(http.MethodPost, "/ask", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["error"] != "질문이 비어 있습니다." {
		t.Errorf("error = %q", resp["error"])
	}
}

func TestAskReturnsRoutedAnswer(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(askRequest{Question: "오늘 공지사항", SessionID: "s1"})
	req := httptest.NewRequest(http.MethodPost, "/ask", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp askResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer == "" {
		t.Error("expected a non-empty answer")
	}
	if len(resp.Route) != 1 || resp.Route[0] != "notices" {
		t.Errorf("route = %v, want [notices]", resp.Route)
	}
}

func TestAdminSubmitAndApprove(t *testing.T) {
	srv, pending := newTestServer(t)
	data := `{"title":"T","content":"C","date":"2025-11-10","department":"X","category":"일반"}`
	payload, _ := json.Marshal(map[string]string{"source_type": "announcement", "data": data})
	req := httptest.NewRequest(http.MethodPost, "/admin/submit", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var submitResp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &submitResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if submitResp["status"] != "ok" {
		t.Fatalf("status = %v", submitResp["status"])
	}
	if len(pending.items) != 1 {
		t.Fatalf("expected one pending item, got %d", len(pending.items))
	}

	approveReq := httptest.NewRequest(http.MethodPost, "/admin/approve/1", nil)
	approveRec := httptest.NewRecorder()
	srv.ServeHTTP(approveRec, approveReq)
	if approveRec.Code != http.StatusOK {
		t.Fatalf("approve status = %d, body = %s", approveRec.Code, approveRec.Body.String())
	}
	var approveResp map[string]any
	if err := json.Unmarshal(approveRec.Body.Bytes(), &approveResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if approveResp["status"] != "approved" {
		t.Fatalf("approve response = %v", approveResp)
	}
}

func TestHealthReportsChunkCounts(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Status   string         `json:"status"`
		Datasets map[string]int `json:"datasets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Datasets["notices"] != 1 {
		t.Errorf("resp = %+v", resp)
	}
}
