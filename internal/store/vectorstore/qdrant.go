package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadIDField stores the caller-supplied chunk id in the point payload
// whenever that id is not itself a valid UUID, since Qdrant point ids must
// be UUIDs or unsigned integers.
const payloadIDField = "_chunk_id"

// payloadDocField stores the chunk document text in the point payload; it is
// excluded from the metadata map returned by Query.
const payloadDocField = "_document"

// upsertBatchSize matches the ingestion pipeline's contractual batch limit.
const upsertBatchSize = 5000

type qdrantStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrant connects to a Qdrant instance at dsn (e.g. "http://localhost:6334")
// and ensures the named collection exists with the given vector dimension.
// One collection is created per corpus.
func NewQdrant(ctx context.Context, dsn, collection string, dimension int) (Store, error) {
	if collection == "" {
		return nil, fmt.Errorf("vectorstore: collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: parse dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: invalid port in dsn: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: create client: %w", err)
	}
	s := &qdrantStore{client: client, collection: collection}
	if err := s.ensureCollection(ctx, dimension); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *qdrantStore) ensureCollection(ctx context.Context, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("vectorstore: check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if dimension <= 0 {
		return fmt.Errorf("vectorstore: dimension must be > 0 to create collection %q", s.collection)
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: create collection %q: %w", s.collection, err)
	}
	return nil
}

func pointID(chunkID string) (*qdrant.PointId, string) {
	if _, err := uuid.Parse(chunkID); err == nil {
		return qdrant.NewIDUUID(chunkID), ""
	}
	generated := uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
	return qdrant.NewIDUUID(generated), chunkID
}

func (s *qdrantStore) Upsert(ctx context.Context, ids []string, documents []string, vectors [][]float32, metadatas []map[string]string) error {
	if len(ids) != len(documents) || len(ids) != len(vectors) || len(ids) != len(metadatas) {
		return fmt.Errorf("vectorstore: upsert arrays must be the same length")
	}
	for start := 0; start < len(ids); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(ids))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			pid, originalID := pointID(ids[i])
			payload := make(map[string]any, len(metadatas[i])+2)
			for k, v := range metadatas[i] {
				payload[k] = v
			}
			if originalID != "" {
				payload[payloadIDField] = originalID
			}
			if documents[i] != "" {
				payload[payloadDocField] = documents[i]
			}
			vec := make([]float32, len(vectors[i]))
			copy(vec, vectors[i])
			points = append(points, &qdrant.PointStruct{
				Id:      pid,
				Vectors: qdrant.NewVectorsDense(vec),
				Payload: qdrant.NewValueMap(payload),
			})
		}
		if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		}); err != nil {
			return fmt.Errorf("vectorstore: upsert batch: %w", err)
		}
	}
	return nil
}

func (s *qdrantStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pid, _ := pointID(id)
		pointIDs = append(pointIDs, pid)
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: delete: %w", err)
	}
	return nil
}

func (s *qdrantStore) Query(ctx context.Context, vector []float32, n int, filter *Filter) ([]QueryResult, error) {
	if n <= 0 {
		n = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	var qf *qdrant.Filter
	if filter != nil && filter.Key != "" {
		qf = &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(filter.Key, filter.Value)}}
	}
	limit := uint64(n)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         qf,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: query: %w", err)
	}
	out := make([]QueryResult, 0, len(hits))
	for _, hit := range hits {
		id := hit.Id.GetUuid()
		metadata := make(map[string]string, len(hit.Payload))
		for k, v := range hit.Payload {
			switch k {
			case payloadIDField:
				id = v.GetStringValue()
			case payloadDocField:
			default:
				metadata[k] = v.GetStringValue()
			}
		}
		// Collection uses cosine distance, so Score is already a similarity
		// in [-1,1]; expose it as a distance so callers uniformly compute
		// similarity = 1 - distance per the vector-store contract.
		out = append(out, QueryResult{ID: id, Distance: 1 - float64(hit.Score), Metadata: metadata})
	}
	return out, nil
}

func (s *qdrantStore) GetAllIDs(ctx context.Context) ([]string, error) {
	var ids []string
	var offset *qdrant.PointId
	for {
		// Scroll through the low-level points client rather than the
		// convenience wrapper, so the server-reported next_page_offset
		// (rather than a reconstructed last-point offset, which Qdrant
		// treats as inclusive and would duplicate a trailing id when a
		// page is exactly full) decides whether another page follows.
		resp, err := s.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			WithPayload:    qdrant.NewWithPayload(true),
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(1000)),
		})
		if err != nil {
			return nil, fmt.Errorf("vectorstore: scroll: %w", err)
		}
		for _, p := range resp.GetResult() {
			id := p.Id.GetUuid()
			if original, ok := p.Payload[payloadIDField]; ok {
				id = original.GetStringValue()
			}
			ids = append(ids, id)
		}
		next := resp.GetNextPageOffset()
		if next == nil {
			break
		}
		offset = next
	}
	return ids, nil
}

func (s *qdrantStore) Close() error {
	return s.client.Close()
}
