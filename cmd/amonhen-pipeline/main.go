package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amonhen/amonhen/internal/config"
	"github.com/amonhen/amonhen/internal/engine"
	"github.com/amonhen/amonhen/internal/llm"
	"github.com/amonhen/amonhen/internal/source"
	"github.com/amonhen/amonhen/internal/storage/sqlite"
	"github.com/amonhen/amonhen/pkg/types"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	meta, err := sqlite.NewMetaStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("Failed to initialize meta store: %v", err)
	}
	defer meta.Close()

	// VectorIndex shares the MetaStore's connection; closing meta alone
	// closes the underlying *sql.DB for both.
	vectors := sqlite.NewVectorIndexFromDB(meta.DB())

	provider, err := llm.NewEnrichmentProvider(llm.ProviderConfig{
		Provider:        cfg.LLM.Provider,
		AnthropicAPIKey: cfg.LLM.AnthropicAPIKey,
		Model:           cfg.LLM.Model,
		OllamaBaseURL:   cfg.LLM.OllamaBaseURL,
	})
	if err != nil {
		log.Fatalf("Failed to initialize enrichment provider: %v", err)
	}
	embedder := llm.NewEmbeddingGenerator(cfg.LLM.OllamaBaseURL, cfg.LLM.EmbeddingModel)

	enricher := engine.NewEnricher(engine.EnricherConfig{
		Concurrency:     cfg.Enrichment.Concurrency,
		DailyBudgetUSD:  cfg.Enrichment.DailyBudgetUSD,
		TrackCosts:      cfg.Enrichment.TrackCosts,
		RateLimitPerSec: cfg.Enrichment.RateLimitPerSec,
	}, meta, vectors, provider, embedder)

	clusterer := engine.NewClusterer(engine.ClustererConfig{
		MinClusterSize:    cfg.Clustering.MinClusterSize,
		MinSamples:        cfg.Clustering.MinSamples,
		RollingWindowDays: cfg.Clustering.RollingWindowDays,
	}, meta, vectors, provider)

	divergence := engine.NewDivergenceDetector(cfg.Divergence.Threshold, meta, vectors)
	anomaly := engine.NewAnomalyDetector(meta)
	digest := engine.NewDigestGenerator(provider, meta, cfg.LLM.Model)

	// No concrete fetch adapters are wired: internal/source's fetch
	// protocols are out of scope, so this slice is empty until a deployment
	// registers real sources here.
	var sources []source.Source
	ingest := func(ctx context.Context) ([]*types.RawItem, error) {
		return source.RunIngestion(ctx, sources, meta)
	}

	scheduler := engine.NewScheduler(ingest, enricher, clusterer, divergence, anomaly, digest, meta, cfg.Clustering.RollingWindowDays)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	if err := scheduler.Stop(); err != nil {
		log.Printf("Error stopping scheduler: %v", err)
	}
	cancel()
	time.Sleep(1 * time.Second)
}
