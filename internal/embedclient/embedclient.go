// Package embedclient converts text into L2-normalized dense embedding
// vectors by calling an OpenAI-compatible /embeddings endpoint, with a
// deterministic in-process fallback for tests and offline development.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"campusqa/internal/observability"
)

// Embedder converts text into dense vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Ping(ctx context.Context) error
}

// Config describes how to reach the embedding endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Dim     int
}

type httpEmbedder struct {
	cfg    Config
	client *http.Client
}

// NewHTTP constructs an Embedder backed by an HTTP call to cfg.BaseURL. The
// client carries otelhttp instrumentation and the provider bearer token,
// like every other outbound provider client in this service.
func NewHTTP(cfg Config) Embedder {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := observability.NewHTTPClient(&http.Client{Timeout: cfg.Timeout})
	if cfg.APIKey != "" {
		client = observability.WithHeaders(client, map[string]string{"Authorization": "Bearer " + cfg.APIKey})
	}
	return &httpEmbedder{cfg: cfg, client: client}
}

func (c *httpEmbedder) Dimension() int { return c.cfg.Dim }

func (c *httpEmbedder) Ping(ctx context.Context) error {
	_, err := c.EmbedBatch(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embedclient: reachability check failed: %w", err)
	}
	return nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// maxAttempts bounds the transient-failure retry budget per batch.
const maxAttempts = 3

func (c *httpEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(embedRequest{Model: c.cfg.Model, Input: texts})
	if err != nil {
		return nil, err
	}

	log := observability.LoggerWithTrace(ctx)
	log.Debug().RawJSON("request", observability.RedactJSON(body)).Msg("embedclient_request")

	// Network errors and 5xx responses retry with exponential backoff;
	// 4xx responses and malformed payloads are permanent.
	out, err := backoff.Retry(ctx, func() ([][]float32, error) {
		return c.embedOnce(ctx, body, len(texts))
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(maxAttempts))
	if err != nil {
		log.Error().Err(err).Msg("embedclient_request_error")
		return nil, err
	}
	if summary, err := json.Marshal(map[string]int{"embeddings": len(out), "dim": c.cfg.Dim}); err == nil {
		log.Debug().RawJSON("response", observability.RedactJSON(summary)).Msg("embedclient_response")
	}
	return out, nil
}

func (c *httpEmbedder) embedOnce(ctx context.Context, body []byte, want int) ([][]float32, error) {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, c.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedclient: read response: %w", err)
	}
	if resp.StatusCode/100 == 4 {
		return nil, backoff.Permanent(fmt.Errorf("embedclient: %s: %s", resp.Status, string(respBytes)))
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("embedclient: %s: %s", resp.Status, string(respBytes))
	}

	var er embedResponse
	if err := json.Unmarshal(respBytes, &er); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("embedclient: parse response: %w", err))
	}
	if len(er.Data) != want {
		return nil, backoff.Permanent(fmt.Errorf("embedclient: got %d embeddings, want %d", len(er.Data), want))
	}
	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = normalize(er.Data[i].Embedding)
	}
	return out, nil
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}

// deterministic is a hash-based embedder used in tests, matching a query's
// nearest document purely by shared trigrams. Always L2-normalized.
type deterministic struct {
	dim int
}

// NewDeterministic constructs an offline Embedder suitable for tests: stable
// across runs, with no network dependency.
func NewDeterministic(dim int) Embedder {
	if dim <= 0 {
		dim = 64
	}
	return &deterministic{dim: dim}
}

func (d *deterministic) Dimension() int             { return d.dim }
func (d *deterministic) Ping(context.Context) error { return nil }

func (d *deterministic) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = normalize(d.embedOne(t))
	}
	return out, nil
}

func (d *deterministic) embedOne(s string) []float32 {
	v := make([]float32, d.dim)
	b := []byte(s)
	if len(b) < 3 {
		addGram(b, v)
		return v
	}
	for i := 0; i <= len(b)-3; i++ {
		addGram(b[i:i+3], v)
	}
	return v
}

func addGram(gram []byte, v []float32) {
	h := fnv.New64a()
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}
