package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amonhen/amonhen/internal/storage"
	"github.com/amonhen/amonhen/pkg/types"
)

func TestDetect_SkipsClustersWithFewerThanThreeMembers(t *testing.T) {
	meta := &fakeMetaStore{items: map[string]*types.EnrichedItem{}}
	vectors := &fakeVectorIndex{}
	now := time.Now().UTC()

	a := sampleEnrichedItem("a", types.SourceRSS, 0, nil, now)
	b := sampleEnrichedItem("b", types.SourceGDELT, 0, nil, now)
	require.NoError(t, meta.InsertItem(context.Background(), a))
	require.NoError(t, meta.InsertItem(context.Background(), b))
	require.NoError(t, meta.SetClusterMembership(context.Background(), "a", "c1"))
	require.NoError(t, meta.SetClusterMembership(context.Background(), "b", "c1"))

	d := NewDivergenceDetector(0.3, meta, vectors)
	records, err := d.Detect(context.Background(), []*types.NarrativeCluster{{ID: "c1", Label: "cluster one"}})

	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDetect_SkipsClustersWithOneSourceFamily(t *testing.T) {
	meta := &fakeMetaStore{items: map[string]*types.EnrichedItem{}}
	vectors := &fakeVectorIndex{}
	now := time.Now().UTC()

	for _, id := range []string{"a", "b", "c"} {
		item := sampleEnrichedItem(id, types.SourceRSS, 0, nil, now)
		require.NoError(t, meta.InsertItem(context.Background(), item))
		require.NoError(t, meta.SetClusterMembership(context.Background(), id, "c1"))
	}

	d := NewDivergenceDetector(0.3, meta, vectors)
	records, err := d.Detect(context.Background(), []*types.NarrativeCluster{{ID: "c1", Label: "cluster one"}})

	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDetect_EmitsRecordWhenFamilyCentroidsDiverge(t *testing.T) {
	meta := &fakeMetaStore{items: map[string]*types.EnrichedItem{}}
	vectors := &fakeVectorIndex{}
	now := time.Now().UTC()

	rssIDs := []string{"r1", "r2"}
	gdeltIDs := []string{"g1", "g2"}

	for _, id := range rssIDs {
		item := sampleEnrichedItem(id, types.SourceRSS, 0, nil, now)
		item.EmbeddingID = id
		require.NoError(t, meta.InsertItem(context.Background(), item))
		require.NoError(t, meta.SetClusterMembership(context.Background(), id, "c1"))
		require.NoError(t, vectors.Upsert(context.Background(), id, []float32{1, 0}, storage.VectorPayload{}))
	}
	for _, id := range gdeltIDs {
		item := sampleEnrichedItem(id, types.SourceGDELT, 0, nil, now)
		item.EmbeddingID = id
		require.NoError(t, meta.InsertItem(context.Background(), item))
		require.NoError(t, meta.SetClusterMembership(context.Background(), id, "c1"))
		require.NoError(t, vectors.Upsert(context.Background(), id, []float32{0, 1}, storage.VectorPayload{}))
	}

	d := NewDivergenceDetector(0.3, meta, vectors)
	records, err := d.Detect(context.Background(), []*types.NarrativeCluster{{ID: "c1", Label: "cluster one"}})

	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "c1", rec.ClusterID)
	assert.InDelta(t, 1.0, rec.CosineDistance, 1e-4)
	assert.Contains(t, rec.Description, "diverge")
}

func TestDetect_NoRecordWhenFamiliesAgree(t *testing.T) {
	meta := &fakeMetaStore{items: map[string]*types.EnrichedItem{}}
	vectors := &fakeVectorIndex{}
	now := time.Now().UTC()

	rssIDs := []string{"r1", "r2"}
	gdeltIDs := []string{"g1", "g2"}
	for _, id := range rssIDs {
		item := sampleEnrichedItem(id, types.SourceRSS, 0, nil, now)
		item.EmbeddingID = id
		require.NoError(t, meta.InsertItem(context.Background(), item))
		require.NoError(t, meta.SetClusterMembership(context.Background(), id, "c1"))
		require.NoError(t, vectors.Upsert(context.Background(), id, []float32{1, 0}, storage.VectorPayload{}))
	}
	for _, id := range gdeltIDs {
		item := sampleEnrichedItem(id, types.SourceGDELT, 0, nil, now)
		item.EmbeddingID = id
		require.NoError(t, meta.InsertItem(context.Background(), item))
		require.NoError(t, meta.SetClusterMembership(context.Background(), id, "c1"))
		require.NoError(t, vectors.Upsert(context.Background(), id, []float32{1, 0}, storage.VectorPayload{}))
	}

	d := NewDivergenceDetector(0.3, meta, vectors)
	records, err := d.Detect(context.Background(), []*types.NarrativeCluster{{ID: "c1", Label: "cluster one"}})

	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCosineDistanceEpsilon_ZeroVectorsDoNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		cosineDistanceEpsilon([]float64{0, 0}, []float64{0, 0})
	})
}

func TestRoundTo4(t *testing.T) {
	assert.Equal(t, 0.1235, roundTo4(0.12345))
}
