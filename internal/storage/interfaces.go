// Package storage provides the two substrate interfaces the intelligence
// pipeline is built on: a transactional relational MetaStore and a
// fixed-dimension VectorIndex. Implementations live in sub-packages
// (internal/storage/sqlite); callers depend only on these interfaces so
// components stay hermetic to test.
package storage

import (
	"context"
	"time"

	"github.com/amonhen/amonhen/pkg/types"
)

// MetaStore is the durable, transactional metadata store for items,
// clusters, memberships, digests, source health, and the cost log. Every
// call is a single transaction; on any storage error the transaction rolls
// back and the error is surfaced to the caller.
type MetaStore interface {
	// InsertItem persists a new EnrichedItem. Returns ErrDuplicateURL if the
	// canonical URL already exists.
	InsertItem(ctx context.Context, item *types.EnrichedItem) error

	// GetItem retrieves an item by id. Returns ErrNotFound if absent.
	GetItem(ctx context.Context, id string) (*types.EnrichedItem, error)

	// GetItems lists non-archived items ordered by publication time
	// descending, optionally filtered by a minimum publication time and by
	// source family.
	GetItems(ctx context.Context, since *time.Time, limit int, family *types.SourceFamily) ([]*types.EnrichedItem, error)

	// GetItemsByCluster lists non-archived items belonging to a cluster,
	// publication-descending.
	GetItemsByCluster(ctx context.Context, clusterID string) ([]*types.EnrichedItem, error)

	// ItemURLExists reports whether an item with the given canonical URL
	// has already been persisted.
	ItemURLExists(ctx context.Context, url string) (bool, error)

	// UpdateItemCluster sets an item's cluster assignment cache fields.
	UpdateItemCluster(ctx context.Context, itemID, clusterID, clusterLabel string) error

	// ArchiveOlderThan flips archived=true for all non-archived items
	// published before cutoff, and returns the number of items changed.
	ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// UpsertCluster inserts or replaces a NarrativeCluster by id.
	UpsertCluster(ctx context.Context, cluster *types.NarrativeCluster) error

	// GetCluster retrieves a cluster by id. Returns ErrNotFound if absent.
	GetCluster(ctx context.Context, id string) (*types.NarrativeCluster, error)

	// GetActiveClusters returns clusters with status emerging or active,
	// ordered by item_count descending.
	GetActiveClusters(ctx context.Context) ([]*types.NarrativeCluster, error)

	// UpdateClusterStatus sets a cluster's lifecycle status.
	UpdateClusterStatus(ctx context.Context, id string, status types.ClusterStatus) error

	// SetClusterMembership upserts a single (item, cluster) membership row.
	SetClusterMembership(ctx context.Context, itemID, clusterID string) error

	// ClearAllMemberships deletes every membership row. Called once per
	// clustering run before the new memberships are written.
	ClearAllMemberships(ctx context.Context) error

	// InsertDigest persists a newly generated DailyDigest.
	InsertDigest(ctx context.Context, digest *types.DailyDigest) error

	// GetLatestDigest returns the most recently generated digest, or
	// ErrNotFound if none exists.
	GetLatestDigest(ctx context.Context) (*types.DailyDigest, error)

	// UpsertSourceHealth inserts or replaces a source's health row.
	UpsertSourceHealth(ctx context.Context, health *types.SourceHealth) error

	// GetAllSourceHealth returns all source-health rows ordered by source
	// name.
	GetAllSourceHealth(ctx context.Context) ([]*types.SourceHealth, error)

	// AppendCostLog appends a cost-log entry. The log is append-only.
	AppendCostLog(ctx context.Context, entry *types.CostLogEntry) error

	// DailyCostUSD sums cost_log entries within the calendar day (UTC) that
	// instant falls in.
	DailyCostUSD(ctx context.Context, instant time.Time) (float64, error)

	// TotalCostUSD sums every cost_log entry ever written.
	TotalCostUSD(ctx context.Context) (float64, error)

	// Close releases any resources held by the store.
	Close() error
}

// VectorPayload is the free-form metadata attached to a vector on Upsert.
// SourceFamily and PublishedAt are the two fields VectorIndex implementations
// must index for filtering; the remaining fields are carried opaquely.
type VectorPayload struct {
	SourceFamily types.SourceFamily
	SourceName   string
	PublishedAt  time.Time
	Title        string
	Summary      string
}

// SearchResult is one ranked hit from VectorIndex.Search.
type SearchResult struct {
	ID      string
	Score   float64 // cosine similarity, higher is more similar
	Payload VectorPayload
}

// CollectionInfo describes the VectorIndex's current size.
type CollectionInfo struct {
	Name        string
	PointsCount int
}

// VectorIndex is a fixed-dimension (D=384), cosine-similarity vector store
// with payload filtering on SourceFamily and PublishedAt. It is expected to
// run against an embedded single-node backend; there are no sharding or
// replication contracts.
type VectorIndex interface {
	// Upsert stores or overwrites the vector and payload for id.
	Upsert(ctx context.Context, id string, vector []float32, payload VectorPayload) error

	// Search returns the limit nearest neighbours to query by descending
	// cosine similarity, optionally filtered by source family and a minimum
	// publication time.
	Search(ctx context.Context, query []float32, limit int, family *types.SourceFamily, since *time.Time) ([]SearchResult, error)

	// ScrollAll returns every vector published at or after since (or every
	// vector, if since is nil), paginating internally so the full set is
	// always returned regardless of size.
	ScrollAll(ctx context.Context, since *time.Time) (ids []string, vectors [][]float32, err error)

	// GetByIDs returns the vectors for the given ids. Ids with no stored
	// vector are silently omitted from the result.
	GetByIDs(ctx context.Context, ids []string) (map[string][]float32, error)

	// Delete removes the vectors for the given ids.
	Delete(ctx context.Context, ids []string) error

	// CollectionInfo reports the index's current name and size.
	CollectionInfo(ctx context.Context) (CollectionInfo, error)

	// Close releases any resources held by the index.
	Close() error
}
