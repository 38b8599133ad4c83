package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/amonhen/amonhen/internal/storage"
	"github.com/amonhen/amonhen/pkg/types"
)

// entitySurgeScanLimit bounds how many recent items the entity-surge scan
// loads, matching the original 6h/1000-item window.
const entitySurgeScanLimit = 1000

// entitySurgeThreshold is the item count above which an entity counts as
// surging within the scan window.
const entitySurgeThreshold = 10

// volumeSpikeRatio is how far above the rolling 7-day hourly average a
// cluster's 6h rate must climb to count as a spike.
const volumeSpikeRatio = 3.0

// sentimentShiftThreshold is the minimum absolute change in average
// sentiment between the two 24h windows to count as a shift.
const sentimentShiftThreshold = 0.5

// AnomalyDetector runs three independent scans over the active cluster set
// and recent item history: volume spikes, sentiment shifts, and entity
// surges.
type AnomalyDetector struct {
	meta storage.MetaStore
}

// NewAnomalyDetector constructs an AnomalyDetector.
func NewAnomalyDetector(meta storage.MetaStore) *AnomalyDetector {
	return &AnomalyDetector{meta: meta}
}

// DetectVolumeSpikes flags clusters whose hourly rate over the last 6 hours
// (6h item count / 6) exceeds 3x their rolling 7-day hourly average.
func (a *AnomalyDetector) DetectVolumeSpikes(ctx context.Context, clusters []*types.NarrativeCluster, now time.Time) ([]*types.AnomalyRecord, error) {
	sixHoursAgo := now.Add(-6 * time.Hour)
	sevenDaysAgo := now.AddDate(0, 0, -7)

	var out []*types.AnomalyRecord
	for _, cluster := range clusters {
		items, err := a.meta.GetItemsByCluster(ctx, cluster.ID)
		if err != nil {
			return nil, fmt.Errorf("engine: anomaly detector failed to load members of cluster %s: %w", cluster.ID, err)
		}
		if len(items) == 0 {
			continue
		}

		var recentCount, weekCount int
		for _, item := range items {
			if !item.PublishedAt.Before(sixHoursAgo) {
				recentCount++
			}
			if !item.PublishedAt.Before(sevenDaysAgo) {
				weekCount++
			}
		}

		var avgHourly float64
		if weekCount > 0 {
			avgHourly = float64(weekCount) / (7 * 24)
		}
		sixHourRate := float64(recentCount) / 6.0

		if avgHourly > 0 && sixHourRate > volumeSpikeRatio*avgHourly {
			out = append(out, &types.AnomalyRecord{
				Kind:          types.AnomalyVolumeSpike,
				ClusterID:     cluster.ID,
				ClusterLabel:  cluster.Label,
				Recent6hCount: recentCount,
				AvgHourly7d:   roundTo2(avgHourly),
				SpikeRatio:    roundTo2(sixHourRate / avgHourly),
				Description: fmt.Sprintf("Volume spike in '%s': %d items in 6h vs %.1f/h avg",
					cluster.Label, recentCount, avgHourly),
			})
		}
	}
	return out, nil
}

// DetectSentimentShifts flags clusters whose average sentiment moved by
// more than 0.5 between the prior 24h window and the current one.
func (a *AnomalyDetector) DetectSentimentShifts(ctx context.Context, clusters []*types.NarrativeCluster, now time.Time) ([]*types.AnomalyRecord, error) {
	oneDayAgo := now.Add(-24 * time.Hour)
	twoDaysAgo := now.Add(-48 * time.Hour)

	var out []*types.AnomalyRecord
	for _, cluster := range clusters {
		items, err := a.meta.GetItemsByCluster(ctx, cluster.ID)
		if err != nil {
			return nil, fmt.Errorf("engine: anomaly detector failed to load members of cluster %s: %w", cluster.ID, err)
		}
		if len(items) == 0 {
			continue
		}

		var recent, older []float64
		for _, item := range items {
			if !item.PublishedAt.Before(oneDayAgo) {
				recent = append(recent, item.Sentiment)
			} else if !item.PublishedAt.Before(twoDaysAgo) && item.PublishedAt.Before(oneDayAgo) {
				older = append(older, item.Sentiment)
			}
		}
		if len(recent) == 0 || len(older) == 0 {
			continue
		}

		avgRecent := mean(recent)
		avgOlder := mean(older)
		shift := avgRecent - avgOlder

		if math.Abs(shift) > sentimentShiftThreshold {
			sign := ""
			if shift > 0 {
				sign = "+"
			}
			out = append(out, &types.AnomalyRecord{
				Kind:            types.AnomalySentimentShift,
				ClusterID:       cluster.ID,
				ClusterLabel:    cluster.Label,
				SentimentBefore: roundTo3(avgOlder),
				SentimentAfter:  roundTo3(avgRecent),
				Shift:           roundTo3(shift),
				Description: fmt.Sprintf("Sentiment shift in '%s': %.2f -> %.2f (%s%.2f)",
					cluster.Label, avgOlder, avgRecent, sign, shift),
			})
		}
	}
	return out, nil
}

// DetectEntitySurges flags entities appearing in more than 10 items across
// all sources within the last 6 hours, independent of cluster membership.
func (a *AnomalyDetector) DetectEntitySurges(ctx context.Context, now time.Time) ([]*types.AnomalyRecord, error) {
	sixHoursAgo := now.Add(-6 * time.Hour)

	items, err := a.meta.GetItems(ctx, &sixHoursAgo, entitySurgeScanLimit, nil)
	if err != nil {
		return nil, fmt.Errorf("engine: anomaly detector failed to load recent items: %w", err)
	}

	counts := make(map[string]int)
	order := make([]string, 0)
	for _, item := range items {
		for _, e := range item.Entities {
			if _, seen := counts[e.Name]; !seen {
				order = append(order, e.Name)
			}
			counts[e.Name]++
		}
	}

	var out []*types.AnomalyRecord
	for _, name := range order {
		count := counts[name]
		if count > entitySurgeThreshold {
			out = append(out, &types.AnomalyRecord{
				Kind:        types.AnomalyEntitySurge,
				EntityName:  name,
				Count6h:     count,
				Description: fmt.Sprintf("Entity surge: '%s' in %d items in 6h", name, count),
			})
		}
	}
	return out, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func roundTo2(v float64) float64 { return math.Round(v*100) / 100 }
func roundTo3(v float64) float64 { return math.Round(v*1000) / 1000 }
