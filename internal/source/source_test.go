package source

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amonhen/amonhen/internal/storage"
	"github.com/amonhen/amonhen/pkg/types"
)

// fakeSource is a scriptable Source.
type fakeSource struct {
	family types.SourceFamily
	name   string
	items  []*types.RawItem
	err    error
}

func (f *fakeSource) Family() types.SourceFamily { return f.family }
func (f *fakeSource) Name() string               { return f.name }
func (f *fakeSource) Fetch(ctx context.Context) ([]*types.RawItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

var _ Source = (*fakeSource)(nil)

// fakeMetaStore implements only the MetaStore methods RunIngestion calls;
// every other method panics since this package's tests never exercise it.
type fakeMetaStore struct {
	mu           sync.Mutex
	existingURLs map[string]bool
	health       map[string]*types.SourceHealth
	urlExistsErr error
}

func (f *fakeMetaStore) ItemURLExists(ctx context.Context, url string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.urlExistsErr != nil {
		return false, f.urlExistsErr
	}
	return f.existingURLs[url], nil
}
func (f *fakeMetaStore) UpsertSourceHealth(ctx context.Context, health *types.SourceHealth) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.health == nil {
		f.health = map[string]*types.SourceHealth{}
	}
	f.health[string(health.SourceFamily)+"/"+health.SourceName] = health
	return nil
}

func (f *fakeMetaStore) InsertItem(ctx context.Context, item *types.EnrichedItem) error { panic("unused") }
func (f *fakeMetaStore) GetItem(ctx context.Context, id string) (*types.EnrichedItem, error) {
	panic("unused")
}
func (f *fakeMetaStore) GetItems(ctx context.Context, since *time.Time, limit int, family *types.SourceFamily) ([]*types.EnrichedItem, error) {
	panic("unused")
}
func (f *fakeMetaStore) GetItemsByCluster(ctx context.Context, clusterID string) ([]*types.EnrichedItem, error) {
	panic("unused")
}
func (f *fakeMetaStore) UpdateItemCluster(ctx context.Context, itemID, clusterID, clusterLabel string) error {
	panic("unused")
}
func (f *fakeMetaStore) ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	panic("unused")
}
func (f *fakeMetaStore) UpsertCluster(ctx context.Context, cluster *types.NarrativeCluster) error {
	panic("unused")
}
func (f *fakeMetaStore) GetCluster(ctx context.Context, id string) (*types.NarrativeCluster, error) {
	panic("unused")
}
func (f *fakeMetaStore) GetActiveClusters(ctx context.Context) ([]*types.NarrativeCluster, error) {
	panic("unused")
}
func (f *fakeMetaStore) UpdateClusterStatus(ctx context.Context, id string, status types.ClusterStatus) error {
	panic("unused")
}
func (f *fakeMetaStore) SetClusterMembership(ctx context.Context, itemID, clusterID string) error {
	panic("unused")
}
func (f *fakeMetaStore) ClearAllMemberships(ctx context.Context) error { panic("unused") }
func (f *fakeMetaStore) InsertDigest(ctx context.Context, digest *types.DailyDigest) error {
	panic("unused")
}
func (f *fakeMetaStore) GetLatestDigest(ctx context.Context) (*types.DailyDigest, error) {
	panic("unused")
}
func (f *fakeMetaStore) GetAllSourceHealth(ctx context.Context) ([]*types.SourceHealth, error) {
	panic("unused")
}
func (f *fakeMetaStore) AppendCostLog(ctx context.Context, entry *types.CostLogEntry) error {
	panic("unused")
}
func (f *fakeMetaStore) DailyCostUSD(ctx context.Context, instant time.Time) (float64, error) {
	panic("unused")
}
func (f *fakeMetaStore) TotalCostUSD(ctx context.Context) (float64, error) { panic("unused") }
func (f *fakeMetaStore) Close() error                                     { return nil }

var _ storage.MetaStore = (*fakeMetaStore)(nil)

func TestRunIngestion_AggregatesAcrossSourcesAndDeduplicates(t *testing.T) {
	meta := &fakeMetaStore{existingURLs: map[string]bool{"https://example.com/dup": true}}
	rss := &fakeSource{family: types.SourceRSS, name: "feed-a", items: []*types.RawItem{
		{ID: "r1", SourceURL: "https://example.com/r1"},
		{ID: "r2", SourceURL: "https://example.com/dup"},
	}}
	gdelt := &fakeSource{family: types.SourceGDELT, name: "query-a", items: []*types.RawItem{
		{ID: "g1", SourceURL: "https://example.com/g1"},
	}}

	items, err := RunIngestion(context.Background(), []Source{rss, gdelt}, meta)

	require.NoError(t, err)
	assert.Len(t, items, 2)
	urls := map[string]bool{}
	for _, item := range items {
		urls[item.SourceURL] = true
	}
	assert.True(t, urls["https://example.com/r1"])
	assert.True(t, urls["https://example.com/g1"])
	assert.False(t, urls["https://example.com/dup"])
}

func TestRunIngestion_OneSourceFailingDoesNotAbortOthers(t *testing.T) {
	meta := &fakeMetaStore{existingURLs: map[string]bool{}}
	failing := &fakeSource{family: types.SourceReddit, name: "subreddit-a", err: errors.New("rate limited")}
	working := &fakeSource{family: types.SourceBluesky, name: "query-a", items: []*types.RawItem{
		{ID: "b1", SourceURL: "https://example.com/b1"},
	}}

	items, err := RunIngestion(context.Background(), []Source{failing, working}, meta)

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b1", items[0].ID)

	failedHealth := meta.health["reddit/subreddit-a"]
	require.NotNil(t, failedHealth)
	assert.Equal(t, 1, failedHealth.ErrorCount)
	assert.Equal(t, "rate limited", failedHealth.LastError)
	assert.Nil(t, failedHealth.LastSuccessAt)

	okHealth := meta.health["bluesky/query-a"]
	require.NotNil(t, okHealth)
	assert.Equal(t, 1, okHealth.ItemsFetched)
	require.NotNil(t, okHealth.LastSuccessAt)
}

func TestRunIngestion_NoSourcesReturnsEmpty(t *testing.T) {
	meta := &fakeMetaStore{existingURLs: map[string]bool{}}
	items, err := RunIngestion(context.Background(), nil, meta)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRunIngestion_DeduplicationErrorPropagates(t *testing.T) {
	meta := &fakeMetaStore{urlExistsErr: errors.New("db gone")}
	src := &fakeSource{family: types.SourceRSS, name: "feed-a", items: []*types.RawItem{
		{ID: "r1", SourceURL: "https://example.com/r1"},
	}}
	_, err := RunIngestion(context.Background(), []Source{src}, meta)
	assert.Error(t, err)
}
