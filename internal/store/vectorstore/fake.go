package vectorstore

import (
	"context"
	"math"
	"sort"
)

// Fake is an in-memory Store for tests: cosine similarity over whatever
// vectors were upserted, with the same filter and distance semantics as the
// Qdrant adapter.
type Fake struct {
	ids       []string
	documents map[string]string
	vectors   map[string][]float32
	metadatas map[string]map[string]string
}

// NewFake returns an empty Fake store.
func NewFake() *Fake {
	return &Fake{documents: map[string]string{}, vectors: map[string][]float32{}, metadatas: map[string]map[string]string{}}
}

func (f *Fake) Upsert(_ context.Context, ids []string, documents []string, vectors [][]float32, metadatas []map[string]string) error {
	for i, id := range ids {
		if _, exists := f.vectors[id]; !exists {
			f.ids = append(f.ids, id)
		}
		f.documents[id] = documents[i]
		f.vectors[id] = vectors[i]
		f.metadatas[id] = metadatas[i]
	}
	return nil
}

func (f *Fake) Delete(_ context.Context, ids []string) error {
	toDelete := make(map[string]bool, len(ids))
	for _, id := range ids {
		toDelete[id] = true
		delete(f.documents, id)
		delete(f.vectors, id)
		delete(f.metadatas, id)
	}
	kept := f.ids[:0]
	for _, id := range f.ids {
		if !toDelete[id] {
			kept = append(kept, id)
		}
	}
	f.ids = kept
	return nil
}

func (f *Fake) Query(_ context.Context, vector []float32, n int, filter *Filter) ([]QueryResult, error) {
	type scored struct {
		id   string
		sim  float64
	}
	var candidates []scored
	for _, id := range f.ids {
		if filter != nil && f.metadatas[id][filter.Key] != filter.Value {
			continue
		}
		candidates = append(candidates, scored{id: id, sim: cosine(vector, f.vectors[id])})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })
	if n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}
	out := make([]QueryResult, len(candidates))
	for i, c := range candidates {
		out[i] = QueryResult{ID: c.id, Distance: 1 - c.sim, Metadata: f.metadatas[c.id]}
	}
	return out, nil
}

func (f *Fake) GetAllIDs(_ context.Context) ([]string, error) {
	return append([]string(nil), f.ids...), nil
}

func (f *Fake) Close() error { return nil }

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, v := range a {
		na += float64(v) * float64(v)
	}
	for _, v := range b {
		nb += float64(v) * float64(v)
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
