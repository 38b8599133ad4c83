// Package source defines the closed contract for fetch adapters: a Source
// pulls RawItems from exactly one named feed within one of the four source
// families. Concrete adapters (an RSS poller, a GDELT query client, a
// Bluesky search client, a Reddit client) are out of scope; this package
// only fixes the interface and the aggregation/deduplication/health-tracking
// step that runs ahead of the Enricher.
package source

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/amonhen/amonhen/internal/storage"
	"github.com/amonhen/amonhen/pkg/types"
)

// Source fetches RawItems from one named feed. Implementations are
// expected to be safe for concurrent use only via a fresh call per
// invocation of Fetch; RunIngestion calls every registered Source's Fetch
// concurrently but never twice at once for the same Source.
type Source interface {
	// Family reports the closed source family this Source belongs to.
	Family() types.SourceFamily

	// Name identifies this Source within its family (a feed URL, a query
	// name, a subreddit) for source-health tracking.
	Name() string

	// Fetch pulls whatever new items are currently available. A failed
	// fetch returns an error; RunIngestion records it against this
	// Source's health row and continues with the remaining sources.
	Fetch(ctx context.Context) ([]*types.RawItem, error)
}

// RunIngestion fetches from every registered Source concurrently,
// deduplicates the combined result against already-persisted canonical
// URLs, and records per-source health. A Source's failure never aborts
// the others; it is logged, recorded in that source's health row, and
// excluded from the returned items.
func RunIngestion(ctx context.Context, sources []Source, meta storage.MetaStore) ([]*types.RawItem, error) {
	now := time.Now().UTC()

	type fetchResult struct {
		src   Source
		items []*types.RawItem
		err   error
	}

	results := make([]fetchResult, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		i, src := i, src
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, err := src.Fetch(ctx)
			results[i] = fetchResult{src: src, items: items, err: err}
		}()
	}
	wg.Wait()

	var all []*types.RawItem
	for _, r := range results {
		health := &types.SourceHealth{
			SourceName:   r.src.Name(),
			SourceFamily: r.src.Family(),
			LastFetchAt:  &now,
		}
		if r.err != nil {
			log.Printf("source: %s/%s fetch failed: %v", r.src.Family(), r.src.Name(), r.err)
			health.ErrorCount = 1
			health.LastError = r.err.Error()
		} else {
			log.Printf("source: %s/%s fetched %d items", r.src.Family(), r.src.Name(), len(r.items))
			health.LastSuccessAt = &now
			health.ItemsFetched = len(r.items)
			all = append(all, r.items...)
		}
		if err := meta.UpsertSourceHealth(ctx, health); err != nil {
			log.Printf("source: failed to record health for %s/%s: %v", r.src.Family(), r.src.Name(), err)
		}
	}

	fresh, err := deduplicate(ctx, all, meta)
	if err != nil {
		return nil, fmt.Errorf("source: deduplication failed: %w", err)
	}
	log.Printf("source: ingestion complete: %d fetched, %d new (%d duplicates filtered)",
		len(all), len(fresh), len(all)-len(fresh))
	return fresh, nil
}

// deduplicate drops any item whose canonical URL already exists in the
// MetaStore.
func deduplicate(ctx context.Context, items []*types.RawItem, meta storage.MetaStore) ([]*types.RawItem, error) {
	fresh := make([]*types.RawItem, 0, len(items))
	for _, item := range items {
		exists, err := meta.ItemURLExists(ctx, item.SourceURL)
		if err != nil {
			return nil, err
		}
		if !exists {
			fresh = append(fresh, item)
		}
	}
	return fresh, nil
}
