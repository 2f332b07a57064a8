// Package vectorstore adapts a per-corpus Qdrant collection to the
// upsert/delete/query/getAllIDs contract the retrieval engine depends on.
package vectorstore

import "context"

// Filter is an equality filter on a single metadata key, matching the
// {key: {$eq: value}} contract.
type Filter struct {
	Key   string
	Value string
}

// QueryResult is one neighbor returned from a similarity search.
type QueryResult struct {
	ID       string
	Distance float64 // 1 - cosine similarity
	Metadata map[string]string
}

// Store is the minimum per-corpus vector collection contract. Upsert takes
// the chunk documents alongside their embeddings so the collection remains
// self-describing for operators inspecting it directly.
type Store interface {
	Upsert(ctx context.Context, ids []string, documents []string, vectors [][]float32, metadatas []map[string]string) error
	Delete(ctx context.Context, ids []string) error
	Query(ctx context.Context, vector []float32, n int, filter *Filter) ([]QueryResult, error)
	GetAllIDs(ctx context.Context) ([]string, error)
	Close() error
}
