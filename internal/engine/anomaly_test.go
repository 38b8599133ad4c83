package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amonhen/amonhen/pkg/types"
)

func TestDetectVolumeSpikes_FlagsClusterAboveThreeXAverage(t *testing.T) {
	meta := &fakeMetaStore{items: map[string]*types.EnrichedItem{}}
	now := time.Now().UTC()

	// 12 background items spread across days 1-6 (well outside the 6h window),
	// all within the rolling 7-day window. The 10 recent items below also fall
	// inside that window, so avg_hourly = 22/168 ≈ 0.131.
	for i := 0; i < 12; i++ {
		id := "bg" + string(rune('a'+i))
		dayOffset := i/2 + 1
		item := sampleEnrichedItem(id, types.SourceRSS, 0, nil, now.AddDate(0, 0, -dayOffset))
		require.NoError(t, meta.InsertItem(context.Background(), item))
		require.NoError(t, meta.SetClusterMembership(context.Background(), id, "c1"))
	}
	// 10 items in the last 6h: rate = 10/6 ≈ 1.67, far more than 3x 0.131 ≈ 0.39.
	for i := 0; i < 10; i++ {
		id := "spike" + string(rune('a'+i))
		item := sampleEnrichedItem(id, types.SourceRSS, 0, nil, now.Add(-time.Hour))
		require.NoError(t, meta.InsertItem(context.Background(), item))
		require.NoError(t, meta.SetClusterMembership(context.Background(), id, "c1"))
	}

	a := NewAnomalyDetector(meta)
	records, err := a.DetectVolumeSpikes(context.Background(), []*types.NarrativeCluster{{ID: "c1", Label: "cluster one"}}, now)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.AnomalyVolumeSpike, records[0].Kind)
	assert.Equal(t, 10, records[0].Recent6hCount)
}

func TestDetectVolumeSpikes_NoFlagWhenRateIsSteady(t *testing.T) {
	meta := &fakeMetaStore{items: map[string]*types.EnrichedItem{}}
	now := time.Now().UTC()

	// All items land outside the 6h window but inside the 7-day window, so
	// recent_6h_count is zero and no spike ratio can exceed the threshold.
	for i := 1; i <= 7; i++ {
		id := "steady" + string(rune('a'+i))
		item := sampleEnrichedItem(id, types.SourceRSS, 0, nil, now.AddDate(0, 0, -i))
		require.NoError(t, meta.InsertItem(context.Background(), item))
		require.NoError(t, meta.SetClusterMembership(context.Background(), id, "c1"))
	}

	a := NewAnomalyDetector(meta)
	records, err := a.DetectVolumeSpikes(context.Background(), []*types.NarrativeCluster{{ID: "c1", Label: "cluster one"}}, now)

	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDetectSentimentShifts_FlagsLargeShift(t *testing.T) {
	meta := &fakeMetaStore{items: map[string]*types.EnrichedItem{}}
	now := time.Now().UTC()

	for i, id := range []string{"older1", "older2"} {
		item := sampleEnrichedItem(id, types.SourceRSS, 0.6, nil, now.Add(-36*time.Hour).Add(time.Duration(i)*time.Minute))
		require.NoError(t, meta.InsertItem(context.Background(), item))
		require.NoError(t, meta.SetClusterMembership(context.Background(), id, "c1"))
	}
	for i, id := range []string{"recent1", "recent2"} {
		item := sampleEnrichedItem(id, types.SourceRSS, -0.6, nil, now.Add(-2*time.Hour).Add(time.Duration(i)*time.Minute))
		require.NoError(t, meta.InsertItem(context.Background(), item))
		require.NoError(t, meta.SetClusterMembership(context.Background(), id, "c1"))
	}

	a := NewAnomalyDetector(meta)
	records, err := a.DetectSentimentShifts(context.Background(), []*types.NarrativeCluster{{ID: "c1", Label: "cluster one"}}, now)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.AnomalySentimentShift, records[0].Kind)
	assert.InDelta(t, 0.6, records[0].SentimentBefore, 1e-9)
	assert.InDelta(t, -0.6, records[0].SentimentAfter, 1e-9)
	assert.InDelta(t, -1.2, records[0].Shift, 1e-9)
}

func TestDetectSentimentShifts_NoFlagWithoutBothWindowsPopulated(t *testing.T) {
	meta := &fakeMetaStore{items: map[string]*types.EnrichedItem{}}
	now := time.Now().UTC()

	item := sampleEnrichedItem("only-recent", types.SourceRSS, 0.9, nil, now.Add(-time.Hour))
	require.NoError(t, meta.InsertItem(context.Background(), item))
	require.NoError(t, meta.SetClusterMembership(context.Background(), "only-recent", "c1"))

	a := NewAnomalyDetector(meta)
	records, err := a.DetectSentimentShifts(context.Background(), []*types.NarrativeCluster{{ID: "c1", Label: "cluster one"}}, now)

	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDetectEntitySurges_FlagsEntityAboveTen(t *testing.T) {
	meta := &fakeMetaStore{items: map[string]*types.EnrichedItem{}, getItemsResult: []*types.EnrichedItem{}}
	now := time.Now().UTC()

	for i := 0; i < 11; i++ {
		id := "e" + string(rune('a'+i))
		item := sampleEnrichedItem(id, types.SourceRSS, 0, []string{"Jane Doe"}, now.Add(-time.Hour))
		meta.getItemsResult = append(meta.getItemsResult, item)
	}

	a := NewAnomalyDetector(meta)
	records, err := a.DetectEntitySurges(context.Background(), now)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.AnomalyEntitySurge, records[0].Kind)
	assert.Equal(t, "Jane Doe", records[0].EntityName)
	assert.Equal(t, 11, records[0].Count6h)
}

func TestDetectEntitySurges_NoFlagAtOrBelowTen(t *testing.T) {
	meta := &fakeMetaStore{items: map[string]*types.EnrichedItem{}, getItemsResult: []*types.EnrichedItem{}}
	now := time.Now().UTC()

	for i := 0; i < 10; i++ {
		id := "e" + string(rune('a'+i))
		item := sampleEnrichedItem(id, types.SourceRSS, 0, []string{"Jane Doe"}, now.Add(-time.Hour))
		meta.getItemsResult = append(meta.getItemsResult, item)
	}

	a := NewAnomalyDetector(meta)
	records, err := a.DetectEntitySurges(context.Background(), now)

	require.NoError(t, err)
	assert.Empty(t, records)
}
