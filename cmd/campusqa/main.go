// Command campusqa runs the campus-knowledge question-answering HTTP
// service: it wires the relational store, per-corpus vector collections,
// dataset cache, hybrid retriever, router, answer orchestrator, and admin
// moderator, then serves the /ask, /admin, and /health endpoints.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"campusqa/internal/answer"
	"campusqa/internal/config"
	"campusqa/internal/datasetcache"
	"campusqa/internal/embedclient"
	"campusqa/internal/httpapi"
	"campusqa/internal/ingest"
	"campusqa/internal/llmclient"
	"campusqa/internal/moderation"
	"campusqa/internal/observability"
	"campusqa/internal/retrieve"
	"campusqa/internal/router"
	"campusqa/internal/store/convstore"
	"campusqa/internal/store/relational"
	"campusqa/internal/store/vectorstore"
	"campusqa/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)
	log.Info().Str("version", version.Version).Msg("starting campusqa")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Obs.OTLP != "" {
		shutdown, err := observability.InitOTel(ctx, cfg.Obs)
		if err != nil {
			log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	relStore, err := relational.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to relational store")
	}
	defer relStore.Close()

	embedder := embedclient.NewHTTP(embedclient.Config{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
		Model:   cfg.Embedding.Model,
		Dim:     cfg.Embedding.Dimension,
	})

	llm, err := llmclient.New(llmclient.Config{
		Provider: cfg.LLM.Provider, APIKey: cfg.LLM.APIKey, BaseURL: cfg.LLM.BaseURL,
		Model: cfg.LLM.Model, MaxTokens: cfg.LLM.MaxTokens, Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build llm client")
	}

	specs := ingest.Specs(cfg.Chunk.Size, cfg.Chunk.Overlap)
	stores := make(map[string]vectorstore.Store, len(router.Corpus))
	for _, corpus := range router.Corpus {
		store, err := vectorstore.NewQdrant(ctx, cfg.VectorDSN, specs[corpus].Collection, cfg.Embedding.Dimension)
		if err != nil {
			log.Fatal().Err(err).Str("corpus", corpus).Msg("failed to open vector collection")
		}
		stores[corpus] = store
		defer store.Close()
	}

	pipeline := &ingest.Pipeline{
		Relational: relStore, Vector: stores, Embedder: embedder,
		ChunkSize: cfg.Chunk.Size, ChunkOverlap: cfg.Chunk.Overlap, BatchSize: cfg.Embedding.BatchSize,
	}

	cache := datasetcache.New(cfg.DataDir, func(ctx context.Context, corpus string) (*datasetcache.Entry, error) {
		sourcePath := filepath.Join(cfg.DataDir, "source", corpus+".csv")
		return pipeline.IngestCorpus(ctx, corpus, sourcePath)
	})

	engine := retrieve.New(stores, cache, embedder)
	rt := router.New(llm, 256)

	var convStore convstore.Store
	if cfg.ChatDSN != "" {
		convStore, err = convstore.NewRedis(cfg.ChatDSN)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to conversation store, falling back to in-memory")
			convStore = convstore.NewMemory()
		}
	} else {
		convStore = convstore.NewMemory()
	}

	orchestrator := &answer.Orchestrator{
		LLM: llm, Conv: convStore,
		MaxContextLength: cfg.Answer.MaxContextLength,
		MaxHistory:       cfg.History.MaxEntries,
	}

	moderator := &moderation.Moderator{
		Relational: relStore, Vector: stores["notices"], Cache: cache, Embedder: embedder,
	}

	srv := httpapi.NewServer(&httpapi.Server{
		Router: rt, Retrieve: engine, Answer: orchestrator, Moderator: moderator,
		Health: relStore, Pending: relStore,
		DefaultTopK: cfg.Retrieval.DefaultTopK, Alpha: cfg.Retrieval.Alpha, RecencyWeight: cfg.Retrieval.RecencyWeight,
	})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("campusqa listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("campusqa stopped")
	}
}
