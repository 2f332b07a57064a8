package embedclient

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDeterministic_StableAcrossCalls(t *testing.T) {
	e := NewDeterministic(32)
	ctx := context.Background()
	a, err := e.EmbedBatch(ctx, []string{"library hours"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, err := e.EmbedBatch(ctx, []string{"library hours"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(a[0]) != 32 || len(b[0]) != 32 {
		t.Fatalf("expected dimension 32, got %d and %d", len(a[0]), len(b[0]))
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("expected deterministic output, differed at index %d", i)
		}
	}
}

func TestDeterministic_L2Normalized(t *testing.T) {
	e := NewDeterministic(16)
	vecs, err := e.EmbedBatch(context.Background(), []string{"a somewhat longer sentence about schedules"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	var sumSq float64
	for _, x := range vecs[0] {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if math.Abs(norm-1.0) > 1e-3 {
		t.Fatalf("expected unit norm, got %f", norm)
	}
}

func TestHTTPEmbedder_NormalizesServerResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := embedResponse{}
		for range req.Input {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
			}{Embedding: []float32{3, 4}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewHTTP(Config{BaseURL: srv.URL, Model: "test-embed", Dim: 2})
	vecs, err := e.EmbedBatch(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 1 {
		t.Fatalf("expected one vector, got %d", len(vecs))
	}
	if math.Abs(float64(vecs[0][0])-0.6) > 1e-6 || math.Abs(float64(vecs[0][1])-0.8) > 1e-6 {
		t.Fatalf("expected [0.6, 0.8] after normalization, got %v", vecs[0])
	}
}

func TestHTTPEmbedder_RetriesTransientFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "upstream busy", http.StatusServiceUnavailable)
			return
		}
		var req embedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := embedResponse{}
		for range req.Input {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
			}{Embedding: []float32{1, 0}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewHTTP(Config{BaseURL: srv.URL, Model: "test-embed", Dim: 2})
	vecs, err := e.EmbedBatch(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	if len(vecs) != 1 {
		t.Fatalf("expected one vector, got %d", len(vecs))
	}
}

func TestHTTPEmbedder_ClientErrorIsNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	e := NewHTTP(Config{BaseURL: srv.URL, Model: "test-embed"})
	if _, err := e.EmbedBatch(context.Background(), []string{"hello"}); err == nil {
		t.Fatalf("expected an error on 400 response")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt for a client error, got %d", calls)
	}
}

func TestHTTPEmbedder_CountMismatchIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{})
	}))
	defer srv.Close()

	e := NewHTTP(Config{BaseURL: srv.URL, Model: "test-embed"})
	if _, err := e.EmbedBatch(context.Background(), []string{"hello"}); err == nil {
		t.Fatalf("expected an error on embedding-count mismatch")
	}
}
