package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/amonhen/amonhen/internal/storage"
	"github.com/amonhen/amonhen/pkg/types"
)

// IngestFunc fetches raw items from whatever source adapters the caller has
// wired up. The scheduler knows nothing about source families or fetch
// protocols; it only knows when to call this function and what to do with
// what it returns.
type IngestFunc func(ctx context.Context) ([]*types.RawItem, error)

const (
	ingestInterval  = 15 * time.Minute
	clusterInterval = 2 * time.Hour
	digestHourUTC   = 6
	archiveHourUTC  = 0
)

// Scheduler runs the four time-based jobs the pipeline's scheduling model
// names, each on its own goroutine: ingest+enrich every 15 minutes,
// cluster+detect every 2 hours, digest generation daily at 06:00 UTC, and
// archival daily at 00:00 UTC. A failure in any one job's run is logged and
// the job sleeps until its next tick; it never stops the scheduler or
// another job.
type Scheduler struct {
	ingest            IngestFunc
	enricher          *Enricher
	clusterer         *Clusterer
	divergence        *DivergenceDetector
	anomaly           *AnomalyDetector
	digest            *DigestGenerator
	meta              storage.MetaStore
	rollingWindowDays int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler constructs a Scheduler. rollingWindowDays controls the
// archive job's cutoff and falls back to 30 when zero.
func NewScheduler(ingest IngestFunc, enricher *Enricher, clusterer *Clusterer, divergence *DivergenceDetector, anomaly *AnomalyDetector, digest *DigestGenerator, meta storage.MetaStore, rollingWindowDays int) *Scheduler {
	if rollingWindowDays <= 0 {
		rollingWindowDays = 30
	}
	return &Scheduler{
		ingest:            ingest,
		enricher:          enricher,
		clusterer:         clusterer,
		divergence:        divergence,
		anomaly:           anomaly,
		digest:            digest,
		meta:              meta,
		rollingWindowDays: rollingWindowDays,
		stopCh:            make(chan struct{}),
	}
}

// Start launches all four job loops in the background and returns
// immediately. It returns an error if the scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("engine: scheduler is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(4)
	go s.runIntervalLoop(ctx, ingestInterval, s.runIngestJob)
	go s.runIntervalLoop(ctx, clusterInterval, s.runClusterJob)
	go s.runDailyLoop(ctx, digestHourUTC, s.runDigestJob)
	go s.runDailyLoop(ctx, archiveHourUTC, s.runArchiveJob)

	log.Println("scheduler started: ingest+enrich every 15m, cluster+detect every 2h, digest at 06:00 UTC, archive at 00:00 UTC")
	return nil
}

// Stop signals every job loop to exit and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("engine: scheduler is not running")
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// runIntervalLoop fires job once per tick of a fixed-interval ticker until
// ctx is cancelled or Stop is called.
func (s *Scheduler) runIntervalLoop(ctx context.Context, interval time.Duration, job func(context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			job(ctx)
		}
	}
}

// runDailyLoop fires job once per day at hourUTC:00 UTC, re-arming the timer
// to the next occurrence after each fire, until ctx is cancelled or Stop is
// called.
func (s *Scheduler) runDailyLoop(ctx context.Context, hourUTC int, job func(context.Context)) {
	defer s.wg.Done()
	timer := time.NewTimer(durationUntil(time.Now().UTC(), hourUTC))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-timer.C:
			job(ctx)
			timer.Reset(durationUntil(time.Now().UTC(), hourUTC))
		}
	}
}

// durationUntil returns how long to wait from now until the next UTC
// instant at hourUTC:00:00: later today if that instant hasn't passed yet,
// otherwise the same time tomorrow.
func durationUntil(now time.Time, hourUTC int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

func (s *Scheduler) runIngestJob(ctx context.Context) {
	items, err := s.ingest(ctx)
	if err != nil {
		log.Printf("scheduler: ingest failed: %v", err)
		return
	}
	enriched := s.enricher.Enrich(ctx, items)
	log.Printf("scheduler: ingest+enrich cycle complete, %d items enriched", len(enriched))
}

func (s *Scheduler) runClusterJob(ctx context.Context) {
	clusters, err := s.clusterer.Run(ctx)
	if err != nil {
		log.Printf("scheduler: clustering failed: %v", err)
		return
	}

	divergences, err := s.divergence.Detect(ctx, clusters)
	if err != nil {
		log.Printf("scheduler: divergence detection failed: %v", err)
	}

	anomalies := s.runAnomalyScans(ctx, clusters, time.Now().UTC())

	log.Printf("scheduler: cluster+detect cycle complete: %d clusters, %d divergences, %d anomalies",
		len(clusters), len(divergences), len(anomalies))
}

func (s *Scheduler) runDigestJob(ctx context.Context) {
	clusters, err := s.meta.GetActiveClusters(ctx)
	if err != nil {
		log.Printf("scheduler: digest job failed to load clusters: %v", err)
		return
	}

	divergences, err := s.divergence.Detect(ctx, clusters)
	if err != nil {
		log.Printf("scheduler: digest job divergence detection failed: %v", err)
	}

	now := time.Now().UTC()
	anomalies := s.runAnomalyScans(ctx, clusters, now)

	digest, err := s.digest.Generate(ctx, now, clusters, divergences, anomalies)
	if err != nil {
		log.Printf("scheduler: digest generation failed: %v", err)
		return
	}
	log.Printf("scheduler: digest generated, %d clusters, %d items", digest.ClusterCount, digest.ItemCount)
}

func (s *Scheduler) runArchiveJob(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.rollingWindowDays)
	count, err := s.meta.ArchiveOlderThan(ctx, cutoff)
	if err != nil {
		log.Printf("scheduler: archive job failed: %v", err)
		return
	}
	log.Printf("scheduler: archived %d items older than %s", count, cutoff.Format(time.RFC3339))
}

// runAnomalyScans runs all three anomaly scans, logging and skipping any
// scan that fails rather than aborting the others.
func (s *Scheduler) runAnomalyScans(ctx context.Context, clusters []*types.NarrativeCluster, now time.Time) []*types.AnomalyRecord {
	var out []*types.AnomalyRecord

	if spikes, err := s.anomaly.DetectVolumeSpikes(ctx, clusters, now); err != nil {
		log.Printf("scheduler: volume spike detection failed: %v", err)
	} else {
		out = append(out, spikes...)
	}

	if shifts, err := s.anomaly.DetectSentimentShifts(ctx, clusters, now); err != nil {
		log.Printf("scheduler: sentiment shift detection failed: %v", err)
	} else {
		out = append(out, shifts...)
	}

	if surges, err := s.anomaly.DetectEntitySurges(ctx, now); err != nil {
		log.Printf("scheduler: entity surge detection failed: %v", err)
	} else {
		out = append(out, surges...)
	}

	return out
}
