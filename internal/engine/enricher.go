package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/amonhen/amonhen/internal/llm"
	"github.com/amonhen/amonhen/internal/storage"
	"github.com/amonhen/amonhen/pkg/types"
)

// Enricher error taxonomy. Each sentinel marks one of the failure modes
// spec.md §4.3/§7 names; callers distinguish them with errors.Is.
var (
	ErrBudgetExceeded = errors.New("engine: daily budget exceeded")
	ErrLLMFailed      = errors.New("engine: llm call failed")
	ErrParseFailed    = errors.New("engine: enrichment response parse failed")
	ErrEmbedFailed    = errors.New("engine: embedding generation failed")
	ErrPersistFailed  = errors.New("engine: persistence failed")
)

// EnricherConfig controls the Enricher's concurrency, spend cap, and
// outbound call pacing.
type EnricherConfig struct {
	// Concurrency is the maximum number of outstanding LLM calls (default 3).
	Concurrency int

	// DailyBudgetUSD is the spend cap checked before every item (default 2.00).
	DailyBudgetUSD float64

	// TrackCosts controls whether cost-log entries are actually appended.
	// When false, budget checks always pass: cost never accumulates.
	TrackCosts bool

	// RateLimitPerSec additionally paces outbound LLM calls beyond the bare
	// concurrency cap (default 5/s). Zero disables pacing.
	RateLimitPerSec float64
}

// Enricher transforms RawItems into persisted EnrichedItems: it calls an
// LLM for structured intelligence, embeds the resulting signal, and writes
// both stores. At most Concurrency calls are outstanding at any time.
type Enricher struct {
	cfg      EnricherConfig
	meta     storage.MetaStore
	vectors  storage.VectorIndex
	provider llm.EnrichmentProvider
	embedder llm.EmbeddingGenerator
	limiter  *rate.Limiter
}

// NewEnricher constructs an Enricher. Concurrency and DailyBudgetUSD fall
// back to their spec defaults (3 and 2.00) when zero.
func NewEnricher(cfg EnricherConfig, meta storage.MetaStore, vectors storage.VectorIndex, provider llm.EnrichmentProvider, embedder llm.EmbeddingGenerator) *Enricher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.DailyBudgetUSD <= 0 {
		cfg.DailyBudgetUSD = 2.00
	}

	var limiter *rate.Limiter
	if cfg.RateLimitPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.Concurrency)
	}

	return &Enricher{
		cfg:      cfg,
		meta:     meta,
		vectors:  vectors,
		provider: provider,
		embedder: embedder,
		limiter:  limiter,
	}
}

// Enrich runs every item in rawItems through the enrichment pipeline, up to
// Concurrency at a time, and returns the items that made it all the way to
// persisted. Items dropped for any reason (budget, LLM failure, parse
// failure, embed failure, persistence failure) are simply absent from the
// result; none of those failures aborts the batch.
func (e *Enricher) Enrich(ctx context.Context, rawItems []*types.RawItem) []*types.EnrichedItem {
	sem := make(chan struct{}, e.cfg.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	enriched := make([]*types.EnrichedItem, 0, len(rawItems))

dispatch:
	for _, item := range rawItems {
		item := item

		select {
		case <-ctx.Done():
			// Stop dispatching new items; in-flight calls below are still
			// allowed to finish so their cost is recorded.
			break dispatch
		default:
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := e.processOne(ctx, item)
			if err != nil {
				return
			}
			mu.Lock()
			enriched = append(enriched, result)
			mu.Unlock()
		}()
	}

	wg.Wait()
	log.Printf("enrichment complete: %d/%d items enriched", len(enriched), len(rawItems))
	return enriched
}

func (e *Enricher) processOne(ctx context.Context, item *types.RawItem) (*types.EnrichedItem, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	dailyCost, err := e.meta.DailyCostUSD(ctx, now)
	if err != nil {
		log.Printf("ERROR: daily cost lookup failed for item %s: %v", item.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	if dailyCost >= e.cfg.DailyBudgetUSD {
		log.Printf("WARNING: daily budget $%.2f exceeded ($%.4f spent), skipping item %s", e.cfg.DailyBudgetUSD, dailyCost, item.ID)
		return nil, ErrBudgetExceeded
	}

	result, cost, err := e.provider.Enrich(ctx, item)
	if err != nil {
		if errors.Is(err, llm.ErrResponseParseFailed) {
			log.Printf("WARNING: enrichment parse failed for item %s: %v", item.ID, err)
			return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
		}
		log.Printf("ERROR: llm enrichment failed for item %s: %v", item.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrLLMFailed, err)
	}

	if e.cfg.TrackCosts {
		if cost.Timestamp.IsZero() {
			cost.Timestamp = now
		}
		if err := e.meta.AppendCostLog(ctx, cost); err != nil {
			log.Printf("ERROR: cost log append failed for item %s: %v", item.ID, err)
			return nil, fmt.Errorf("%w: %v", ErrPersistFailed, err)
		}
	}

	signal := fmt.Sprintf("%s %s %s", result.Summary, result.Framing, strings.Join(result.Claims, " "))
	vector, err := e.embedder.Embed(ctx, signal)
	if err != nil {
		log.Printf("ERROR: embedding failed for item %s: %v", item.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrEmbedFailed, err)
	}

	enrichedItem := &types.EnrichedItem{
		ID:           item.ID,
		SourceFamily: item.SourceFamily,
		SourceName:   item.SourceName,
		SourceURL:    item.SourceURL,
		Title:        item.Title,
		PublishedAt:  item.PublishedAt,
		IngestedAt:   item.IngestedAt,
		Language:     item.Language,

		Summary:   result.Summary,
		Entities:  result.Entities,
		Claims:    result.Claims,
		Framing:   result.Framing,
		Sentiment: result.Sentiment,
		TopicTags: result.TopicTags,

		EmbeddingID:    item.ID,
		EmbeddingModel: e.embedder.GetModel(),

		EnrichmentModel:   cost.Model,
		EnrichmentCostUSD: cost.CostUSD,
	}

	if err := e.meta.InsertItem(ctx, enrichedItem); err != nil {
		log.Printf("ERROR: sqlite insert failed for item %s: %v", item.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	payload := storage.VectorPayload{
		SourceFamily: item.SourceFamily,
		SourceName:   item.SourceName,
		PublishedAt:  item.PublishedAt,
		Title:        item.Title,
		Summary:      result.Summary,
	}
	if err := e.vectors.Upsert(ctx, item.ID, vector, payload); err != nil {
		log.Printf("ERROR: vector upsert failed for item %s: %v", item.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	return enrichedItem, nil
}
