package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amonhen/amonhen/internal/storage"
	"github.com/amonhen/amonhen/pkg/types"
)

func sampleEnrichedItem(id string, family types.SourceFamily, sentiment float64, entities []string, published time.Time) *types.EnrichedItem {
	ents := make([]types.Entity, 0, len(entities))
	for _, name := range entities {
		ents = append(ents, types.Entity{Name: name, Type: types.EntityPerson, Role: types.RoleSubject})
	}
	return &types.EnrichedItem{
		ID:           id,
		SourceFamily: family,
		SourceName:   "source-" + id,
		SourceURL:    "https://example.com/" + id,
		Title:        "title " + id,
		PublishedAt:  published,
		IngestedAt:   published,
		Language:     "en",
		Summary:      "summary for " + id,
		Entities:     ents,
		Claims:       []string{"claim shared", "claim unique " + id},
		Framing:      "framing " + id,
		Sentiment:    sentiment,
	}
}

func TestClusterer_Run_BelowMinClusterSizeIsNoop(t *testing.T) {
	meta := &fakeMetaStore{}
	vectors := &fakeVectorIndex{}
	now := time.Now().UTC()

	for _, id := range []string{"a", "b"} {
		item := sampleEnrichedItem(id, types.SourceRSS, 0.1, nil, now)
		require.NoError(t, meta.InsertItem(context.Background(), item))
		require.NoError(t, vectors.Upsert(context.Background(), id, []float32{1, 0, 0, 0}, storage.VectorPayload{SourceFamily: item.SourceFamily, SourceName: item.SourceName, PublishedAt: item.PublishedAt, Title: item.Title, Summary: item.Summary}))
	}

	c := NewClusterer(ClustererConfig{MinClusterSize: 5}, meta, vectors, nil)
	result, err := c.Run(context.Background())

	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, meta.clusters, "no-op run must not persist anything")
}

func TestClusterer_Run_BuildsAndPersistsClusters(t *testing.T) {
	meta := &fakeMetaStore{}
	vectors := &fakeVectorIndex{}
	now := time.Now().UTC()

	groupA := []string{"a1", "a2", "a3", "a4"}
	groupB := []string{"b1", "b2", "b3", "b4"}

	for _, id := range groupA {
		item := sampleEnrichedItem(id, types.SourceRSS, 0.5, []string{"Jane Doe"}, now)
		require.NoError(t, meta.InsertItem(context.Background(), item))
		require.NoError(t, vectors.Upsert(context.Background(), id, []float32{1, 0.01, 0, 0}, storage.VectorPayload{SourceFamily: item.SourceFamily, SourceName: item.SourceName, PublishedAt: item.PublishedAt, Title: item.Title, Summary: item.Summary}))
	}
	for _, id := range groupB {
		item := sampleEnrichedItem(id, types.SourceGDELT, -0.5, []string{"John Roe"}, now)
		require.NoError(t, meta.InsertItem(context.Background(), item))
		require.NoError(t, vectors.Upsert(context.Background(), id, []float32{0, 0.01, 1, 0}, storage.VectorPayload{SourceFamily: item.SourceFamily, SourceName: item.SourceName, PublishedAt: item.PublishedAt, Title: item.Title, Summary: item.Summary}))
	}

	c := NewClusterer(ClustererConfig{MinClusterSize: 3}, meta, vectors, nil)
	result, err := c.Run(context.Background())

	require.NoError(t, err)

	totalMembers := 0
	for _, cl := range result {
		totalMembers += cl.ItemCount
		assert.NotEmpty(t, cl.ID)
		assert.NotEmpty(t, cl.Label)
		assert.Equal(t, types.ClusterEmerging, cl.Status)
		assert.Contains(t, meta.clusters, cl.ID)
	}
	assert.LessOrEqual(t, totalMembers, len(groupA)+len(groupB))
}

func TestMatchClusters_StaysEmergingAtOrBelowThreshold(t *testing.T) {
	meta := &fakeMetaStore{
		clusters: map[string]*types.NarrativeCluster{},
	}
	prior := &types.NarrativeCluster{ID: "prior-1", Status: types.ClusterActive, FirstSeen: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	meta.clusters[prior.ID] = prior
	for _, id := range []string{"x1", "x2", "x3", "x4"} {
		require.NoError(t, meta.InsertItem(context.Background(), sampleEnrichedItem(id, types.SourceRSS, 0, nil, time.Now().UTC())))
		require.NoError(t, meta.SetClusterMembership(context.Background(), id, prior.ID))
	}

	newCluster := &types.NarrativeCluster{ID: "new-1", Status: types.ClusterEmerging, FirstSeen: time.Now().UTC()}
	newCluster.SetMemberIDs([]string{"x1", "x2", "x3", "x5"}) // overlap 3/5 = 0.6... need >0.7

	c := NewClusterer(ClustererConfig{}, meta, &fakeVectorIndex{}, nil)
	claimed, err := c.matchClusters(context.Background(), []*types.NarrativeCluster{newCluster}, []*types.NarrativeCluster{prior})
	require.NoError(t, err)

	// overlap here is 3/5 = 0.6, below the 0.7 threshold: must NOT inherit.
	assert.False(t, claimed[prior.ID])
	assert.Equal(t, "new-1", newCluster.ID)
	assert.Equal(t, types.ClusterEmerging, newCluster.Status)
}

func TestMatchClusters_InheritsWhenOverlapExceedsThreshold(t *testing.T) {
	meta := &fakeMetaStore{clusters: map[string]*types.NarrativeCluster{}}
	firstSeen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prior := &types.NarrativeCluster{ID: "prior-2", Status: types.ClusterActive, FirstSeen: firstSeen}
	meta.clusters[prior.ID] = prior
	for _, id := range []string{"x1", "x2", "x3", "x4"} {
		require.NoError(t, meta.InsertItem(context.Background(), sampleEnrichedItem(id, types.SourceRSS, 0, nil, time.Now().UTC())))
		require.NoError(t, meta.SetClusterMembership(context.Background(), id, prior.ID))
	}

	newCluster := &types.NarrativeCluster{ID: "new-2", Status: types.ClusterEmerging, FirstSeen: time.Now().UTC()}
	newCluster.SetMemberIDs([]string{"x1", "x2", "x3", "x4", "x5"}) // overlap 4/5 = 0.8 > 0.7

	c := NewClusterer(ClustererConfig{}, meta, &fakeVectorIndex{}, nil)
	claimed, err := c.matchClusters(context.Background(), []*types.NarrativeCluster{newCluster}, []*types.NarrativeCluster{prior})
	require.NoError(t, err)

	assert.True(t, claimed[prior.ID])
	assert.Equal(t, prior.ID, newCluster.ID)
	assert.Equal(t, types.ClusterActive, newCluster.Status)
	assert.Equal(t, firstSeen, newCluster.FirstSeen)
}

func TestPersist_MarksUnclaimedPriorClusterFading(t *testing.T) {
	meta := &fakeMetaStore{clusters: map[string]*types.NarrativeCluster{}}
	prior := &types.NarrativeCluster{ID: "prior-3", Status: types.ClusterActive}
	meta.clusters[prior.ID] = prior

	newCluster := &types.NarrativeCluster{ID: "new-3", Label: "label", Status: types.ClusterEmerging}
	newCluster.SetMemberIDs([]string{"x1"})

	c := NewClusterer(ClustererConfig{}, meta, &fakeVectorIndex{}, nil)
	err := c.persist(context.Background(), []*types.NarrativeCluster{newCluster}, []*types.NarrativeCluster{prior}, map[string]bool{})
	require.NoError(t, err)

	assert.Equal(t, types.ClusterFading, meta.clusters[prior.ID].Status)
	assert.Contains(t, meta.clusters, newCluster.ID)
	assert.Equal(t, newCluster.ID, meta.memberships["x1"])
}

func TestJaccard(t *testing.T) {
	a := map[string]bool{"1": true, "2": true, "3": true}
	b := map[string]bool{"2": true, "3": true, "4": true}
	assert.InDelta(t, 0.5, jaccard(a, b), 1e-9) // intersection 2, union 4

	assert.Equal(t, 0.0, jaccard(map[string]bool{}, map[string]bool{}))
}

func TestTopEntities_OrdersByFrequencyThenFirstSeen(t *testing.T) {
	order := []string{"Alice", "Bob", "Carol"}
	counts := map[string]int{"Alice": 2, "Bob": 2, "Carol": 5}

	top := topEntities(order, counts, 10)
	require.Len(t, top, 3)
	assert.Equal(t, "Carol", top[0])
	// Alice and Bob tie at 2; stable sort preserves first-seen order.
	assert.Equal(t, "Alice", top[1])
	assert.Equal(t, "Bob", top[2])
}

func TestTopEntities_RespectsLimit(t *testing.T) {
	order := []string{"a", "b", "c"}
	counts := map[string]int{"a": 1, "b": 1, "c": 1}
	assert.Len(t, topEntities(order, counts, 2), 2)
}

func TestDedupFirst10_DropsDuplicatesAndCapsAtTen(t *testing.T) {
	claims := []string{"a", "b", "a", "c", "c", "d", "e", "f", "g", "h", "i", "j", "k"}
	out := dedupFirst10(claims)
	assert.Len(t, out, 10)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}, out)
}

func TestLabelCluster_FallsBackWhenLabellerNil(t *testing.T) {
	c := NewClusterer(ClustererConfig{}, &fakeMetaStore{}, &fakeVectorIndex{}, nil)
	reps := []*types.EnrichedItem{{Summary: strings.Repeat("x", 100)}}

	label, summary := c.labelCluster(context.Background(), reps)

	assert.Len(t, label, 80)
	assert.Equal(t, strings.Repeat("x", 100), summary)
}

func TestLabelCluster_FallsBackOnProviderError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("label service down")}
	c := NewClusterer(ClustererConfig{}, &fakeMetaStore{}, &fakeVectorIndex{}, provider)
	reps := []*types.EnrichedItem{{Summary: "short summary"}}

	label, summary := c.labelCluster(context.Background(), reps)

	assert.Equal(t, "short summary", label)
	assert.Equal(t, "short summary", summary)
}

func TestLabelCluster_NoRepresentativesFallsBack(t *testing.T) {
	c := NewClusterer(ClustererConfig{}, &fakeMetaStore{}, &fakeVectorIndex{}, nil)
	label, summary := c.labelCluster(context.Background(), nil)
	assert.Equal(t, "Unlabeled Cluster", label)
	assert.Equal(t, "No representative items.", summary)
}

func TestCentroidOf_IsArithmeticMean(t *testing.T) {
	centroid := centroidOf([][]float32{{1, 2}, {3, 4}, {5, 6}})
	require.Len(t, centroid, 2)
	assert.InDelta(t, 3.0, centroid[0], 1e-9)
	assert.InDelta(t, 4.0, centroid[1], 1e-9)
}

func TestClosestToCentroid_OrdersByAscendingDistance(t *testing.T) {
	members := []*types.EnrichedItem{
		{ID: "far"}, {ID: "near"}, {ID: "mid"},
	}
	vecs := [][]float32{{10, 10}, {0.1, 0.1}, {1, 1}}
	centroid := []float64{0, 0}

	closest := closestToCentroid(members, vecs, centroid, 2)
	require.Len(t, closest, 2)
	assert.Equal(t, "near", closest[0].ID)
	assert.Equal(t, "mid", closest[1].ID)
}

func TestCosineDistance64_IdenticalVectorsAreZero(t *testing.T) {
	assert.InDelta(t, 0.0, cosineDistance64([]float64{1, 2, 3}, []float64{1, 2, 3}), 1e-9)
}

func TestCosineDistance64_OrthogonalVectorsAreOne(t *testing.T) {
	assert.InDelta(t, 1.0, cosineDistance64([]float64{1, 0}, []float64{0, 1}), 1e-9)
}

func TestCosineDistance64_ZeroVectorIsMaxDistance(t *testing.T) {
	assert.Equal(t, 1.0, cosineDistance64([]float64{0, 0}, []float64{1, 1}))
}

