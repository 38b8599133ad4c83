package engine

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/amonhen/amonhen/internal/storage"
	"github.com/amonhen/amonhen/pkg/types"
)

// divergenceEpsilon guards the cosine similarity division against
// zero-magnitude sub-centroids.
const divergenceEpsilon = 1e-10

// DivergenceDetector flags clusters where different source families are
// telling noticeably different versions of the same narrative.
type DivergenceDetector struct {
	threshold float64
	meta      storage.MetaStore
	vectors   storage.VectorIndex
}

// NewDivergenceDetector constructs a DivergenceDetector. threshold falls
// back to the spec default (0.3) when zero.
func NewDivergenceDetector(threshold float64, meta storage.MetaStore, vectors storage.VectorIndex) *DivergenceDetector {
	if threshold <= 0 {
		threshold = 0.3
	}
	return &DivergenceDetector{threshold: threshold, meta: meta, vectors: vectors}
}

// Detect checks every cluster with at least 3 members spanning at least 2
// source families: it computes a per-family mean vector from member
// embeddings and emits a DivergenceRecord for every family pair whose
// cosine distance exceeds the configured threshold.
func (d *DivergenceDetector) Detect(ctx context.Context, clusters []*types.NarrativeCluster) ([]*types.DivergenceRecord, error) {
	var out []*types.DivergenceRecord

	for _, cluster := range clusters {
		items, err := d.meta.GetItemsByCluster(ctx, cluster.ID)
		if err != nil {
			return nil, fmt.Errorf("engine: divergence detector failed to load members of cluster %s: %w", cluster.ID, err)
		}
		if len(items) < 3 {
			continue
		}

		familyIDs := make(map[types.SourceFamily][]string)
		var allIDs []string
		for _, item := range items {
			familyIDs[item.SourceFamily] = append(familyIDs[item.SourceFamily], item.EmbeddingID)
			allIDs = append(allIDs, item.EmbeddingID)
		}
		if len(familyIDs) < 2 {
			continue
		}

		vectorMap, err := d.vectors.GetByIDs(ctx, allIDs)
		if err != nil {
			return nil, fmt.Errorf("engine: divergence detector failed to load vectors for cluster %s: %w", cluster.ID, err)
		}

		subCentroids := make(map[types.SourceFamily][]float64)
		for family, ids := range familyIDs {
			var vecs [][]float32
			for _, id := range ids {
				if v, ok := vectorMap[id]; ok {
					vecs = append(vecs, v)
				}
			}
			if len(vecs) > 0 {
				subCentroids[family] = centroidOf(vecs)
			}
		}
		if len(subCentroids) < 2 {
			continue
		}

		families := make([]types.SourceFamily, 0, len(subCentroids))
		for f := range subCentroids {
			families = append(families, f)
		}
		sort.Slice(families, func(i, j int) bool { return families[i] < families[j] })

		for i := 0; i < len(families); i++ {
			for j := i + 1; j < len(families); j++ {
				sa, sb := families[i], families[j]
				dist := cosineDistanceEpsilon(subCentroids[sa], subCentroids[sb])
				if dist > d.threshold {
					out = append(out, &types.DivergenceRecord{
						ClusterID:      cluster.ID,
						ClusterLabel:   cluster.Label,
						SourceA:        sa,
						SourceB:        sb,
						CosineDistance: roundTo4(dist),
						Description: fmt.Sprintf("'%s' and '%s' sources diverge on '%s' (distance=%.3f)",
							sa, sb, cluster.Label, dist),
					})
				}
			}
		}
	}

	return out, nil
}

// cosineDistanceEpsilon is 1 minus cosine similarity, with an epsilon in
// the denominator so a zero-magnitude centroid does not divide by zero.
func cosineDistanceEpsilon(a, b []float64) float64 {
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	sim := dot / (math.Sqrt(magA)*math.Sqrt(magB) + divergenceEpsilon)
	return 1.0 - sim
}

func roundTo4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
