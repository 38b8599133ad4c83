package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/humilityai/hdbscan"

	"github.com/amonhen/amonhen/internal/llm"
	"github.com/amonhen/amonhen/internal/storage"
	"github.com/amonhen/amonhen/pkg/types"
)

// identityMatchThreshold is the Jaccard-overlap floor above which a new
// cluster is considered the same narrative as a prior one.
const identityMatchThreshold = 0.7

// representativeCount is the number of closest-to-centroid members used
// for labelling and as the fallback summary source.
const representativeCount = 5

// ClustererConfig controls the Clusterer's window and density parameters.
type ClustererConfig struct {
	MinClusterSize    int // default 5
	MinSamples        int // default 4 (recorded for parity with spec.md; the
	                       // underlying hdbscan library's constructor does
	                       // not accept it separately — see DESIGN.md)
	RollingWindowDays int // default 30
}

// Clusterer runs density-based clustering over the rolling vector window
// and reconciles cluster identity against the previous active set.
type Clusterer struct {
	cfg      ClustererConfig
	meta     storage.MetaStore
	vectors  storage.VectorIndex
	labeller llm.EnrichmentProvider // optional; nil falls back to the first representative's summary
}

// NewClusterer constructs a Clusterer. labeller may be nil, in which case
// cluster labels fall back to the first representative item's summary.
func NewClusterer(cfg ClustererConfig, meta storage.MetaStore, vectors storage.VectorIndex, labeller llm.EnrichmentProvider) *Clusterer {
	if cfg.MinClusterSize <= 0 {
		cfg.MinClusterSize = 5
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 4
	}
	if cfg.RollingWindowDays <= 0 {
		cfg.RollingWindowDays = 30
	}
	return &Clusterer{cfg: cfg, meta: meta, vectors: vectors, labeller: labeller}
}

// Run executes one full clustering cycle: pull the rolling window, cluster,
// build cluster records, reconcile identity against the prior active set,
// and persist. If the window holds fewer than MinClusterSize items, Run
// does nothing and returns an empty, non-error result — prior state is
// left untouched.
func (c *Clusterer) Run(ctx context.Context) ([]*types.NarrativeCluster, error) {
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -c.cfg.RollingWindowDays)

	ids, vectors, err := c.vectors.ScrollAll(ctx, &since)
	if err != nil {
		return nil, fmt.Errorf("engine: clusterer failed to pull vector window: %w", err)
	}
	if len(ids) < c.cfg.MinClusterSize {
		log.Printf("clusterer: only %d items in window, need at least %d, skipping run", len(ids), c.cfg.MinClusterSize)
		return nil, nil
	}

	groups, noiseCount, err := c.runHDBSCAN(vectors)
	if err != nil {
		return nil, fmt.Errorf("engine: hdbscan clustering failed: %w", err)
	}
	log.Printf("clusterer: found %d clusters from %d points (%d noise)", len(groups), len(ids), noiseCount)

	items, err := c.loadItems(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("engine: clusterer failed to load items: %w", err)
	}

	newClusters := make([]*types.NarrativeCluster, 0, len(groups))
	for _, indices := range groups {
		memberIDs := make([]string, 0, len(indices))
		memberItems := make([]*types.EnrichedItem, 0, len(indices))
		memberVecs := make([][]float32, 0, len(indices))
		for _, idx := range indices {
			id := ids[idx]
			item, ok := items[id]
			if !ok {
				continue
			}
			memberIDs = append(memberIDs, id)
			memberItems = append(memberItems, item)
			memberVecs = append(memberVecs, vectors[idx])
		}
		if len(memberItems) == 0 {
			continue
		}

		cluster := c.buildCluster(ctx, now, memberIDs, memberItems, memberVecs)
		newClusters = append(newClusters, cluster)
	}

	previous, err := c.meta.GetActiveClusters(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: clusterer failed to load active clusters: %w", err)
	}
	claimed, err := c.matchClusters(ctx, newClusters, previous)
	if err != nil {
		return nil, fmt.Errorf("engine: clusterer failed to match prior clusters: %w", err)
	}

	if err := c.persist(ctx, newClusters, previous, claimed); err != nil {
		return nil, err
	}

	log.Printf("clusterer: persisted %d clusters", len(newClusters))
	return newClusters, nil
}

// runHDBSCAN clusters vectors by cosine distance and returns, per
// non-noise label, the indices of its members. Noise (label -1) is
// dropped.
func (c *Clusterer) runHDBSCAN(vectors [][]float32) (groups [][]int, noiseCount int, err error) {
	points := make([][]float64, len(vectors))
	for i, v := range vectors {
		points[i] = float64Vector(v)
	}

	clustering, err := hdbscan.NewClustering(points, c.cfg.MinClusterSize)
	if err != nil {
		return nil, 0, err
	}
	clustering = clustering.OutlierDetection()

	if err := clustering.Run(cosineDistance64, hdbscan.VarianceScore, true); err != nil {
		return nil, 0, err
	}

	clusterData := extractClusterPoints(clustering)
	assigned := 0
	for _, cd := range clusterData {
		groups = append(groups, cd)
		assigned += len(cd)
	}
	noiseCount = len(vectors) - assigned
	return groups, noiseCount, nil
}

// extractClusterPoints pulls each cluster's member point indices out of the
// hdbscan.Clustering result. The library's Clusters field holds a slice of
// an unexported *cluster type, so reflection is the only way to read
// Points without depending on an unnamed type.
func extractClusterPoints(clustering *hdbscan.Clustering) [][]int {
	v := reflect.ValueOf(clustering).Elem()
	clustersField := v.FieldByName("Clusters")
	if !clustersField.IsValid() || clustersField.Kind() != reflect.Slice {
		return nil
	}

	result := make([][]int, 0, clustersField.Len())
	for i := 0; i < clustersField.Len(); i++ {
		clusterPtr := clustersField.Index(i)
		if clusterPtr.Kind() == reflect.Ptr {
			clusterPtr = clusterPtr.Elem()
		}
		pointsField := clusterPtr.FieldByName("Points")
		if !pointsField.IsValid() || pointsField.Kind() != reflect.Slice {
			continue
		}
		points := make([]int, pointsField.Len())
		for j := 0; j < pointsField.Len(); j++ {
			points[j] = int(pointsField.Index(j).Int())
		}
		result = append(result, points)
	}
	return result
}

func float64Vector(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

// cosineDistance64 is the distance function handed to hdbscan: 1 minus
// cosine similarity.
func cosineDistance64(a, b []float64) float64 {
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 1.0
	}
	sim := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	if sim > 1.0 {
		sim = 1.0
	} else if sim < -1.0 {
		sim = -1.0
	}
	return 1.0 - sim
}

func (c *Clusterer) loadItems(ctx context.Context, ids []string) (map[string]*types.EnrichedItem, error) {
	out := make(map[string]*types.EnrichedItem, len(ids))
	for _, id := range ids {
		item, err := c.meta.GetItem(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out[id] = item
	}
	return out, nil
}

// buildCluster assembles a NarrativeCluster from one HDBSCAN group: centroid,
// representative-based label/summary, source and sentiment distributions,
// key entities and claims, and first-seen time. Status always starts
// emerging; matchClusters promotes it afterward if it inherits a prior id.
func (c *Clusterer) buildCluster(ctx context.Context, now time.Time, memberIDs []string, members []*types.EnrichedItem, memberVecs [][]float32) *types.NarrativeCluster {
	centroid := centroidOf(memberVecs)
	representatives := closestToCentroid(members, memberVecs, centroid, representativeCount)

	label, summary := c.labelCluster(ctx, representatives)

	sourceDist := make(map[types.SourceFamily]int)
	sentiments := make([]float64, 0, len(members))
	entityCounts := make(map[string]int)
	entityOrder := make([]string, 0)
	var allClaims []string
	firstSeen := members[0].PublishedAt

	for _, m := range members {
		sourceDist[m.SourceFamily]++
		sentiments = append(sentiments, m.Sentiment)
		if m.PublishedAt.Before(firstSeen) {
			firstSeen = m.PublishedAt
		}
		for _, e := range m.Entities {
			if _, seen := entityCounts[e.Name]; !seen {
				entityOrder = append(entityOrder, e.Name)
			}
			entityCounts[e.Name]++
		}
		allClaims = append(allClaims, m.Claims...)
	}

	keyEntities := topEntities(entityOrder, entityCounts, 10)
	keyClaims := dedupFirst10(allClaims)

	cluster := &types.NarrativeCluster{
		ID:                     uuid.New().String(),
		Label:                  label,
		Summary:                summary,
		ItemCount:              len(members),
		FirstSeen:              firstSeen,
		LastUpdated:            now,
		Centroid:               centroid,
		SourceDistribution:     sourceDist,
		SentimentDistribution:  types.BinSentiments(sentiments),
		KeyEntities:            keyEntities,
		KeyClaims:              keyClaims,
		Status:                 types.ClusterEmerging,
	}
	cluster.SetMemberIDs(memberIDs)
	return cluster
}

func centroidOf(vecs [][]float32) []float64 {
	if len(vecs) == 0 {
		return nil
	}
	centroid := make([]float64, len(vecs[0]))
	for _, v := range vecs {
		for i, f := range v {
			centroid[i] += float64(f)
		}
	}
	for i := range centroid {
		centroid[i] /= float64(len(vecs))
	}
	return centroid
}

// closestToCentroid returns up to n members ordered by ascending Euclidean
// distance to centroid.
func closestToCentroid(members []*types.EnrichedItem, vecs [][]float32, centroid []float64, n int) []*types.EnrichedItem {
	type scored struct {
		item *types.EnrichedItem
		dist float64
	}
	scoredItems := make([]scored, len(members))
	for i, m := range members {
		var sumSq float64
		for j, f := range vecs[i] {
			d := float64(f) - centroid[j]
			sumSq += d * d
		}
		scoredItems[i] = scored{item: m, dist: math.Sqrt(sumSq)}
	}
	sort.Slice(scoredItems, func(i, j int) bool { return scoredItems[i].dist < scoredItems[j].dist })

	if n > len(scoredItems) {
		n = len(scoredItems)
	}
	out := make([]*types.EnrichedItem, n)
	for i := 0; i < n; i++ {
		out[i] = scoredItems[i].item
	}
	return out
}

// labelCluster sends representatives through the labeller for a short
// label/summary, falling back to the first representative's own summary
// (truncated to 80 characters) on any failure or when no labeller is
// configured.
func (c *Clusterer) labelCluster(ctx context.Context, representatives []*types.EnrichedItem) (label, summary string) {
	fallback := func() (string, string) {
		if len(representatives) == 0 {
			return "Unlabeled Cluster", "No representative items."
		}
		s := representatives[0].Summary
		return truncate(s, 80), s
	}

	if c.labeller == nil || len(representatives) == 0 {
		return fallback()
	}

	var itemsText string
	for i, item := range representatives {
		itemsText += fmt.Sprintf("\n%d. Summary: %s\n   Framing: %s\n", i+1, item.Summary, item.Framing)
	}
	prompt := &types.RawItem{
		ID:          "cluster-label-" + uuid.New().String(),
		ContentText: fmt.Sprintf("Generate a short narrative cluster label (max 10 words) and a 2-sentence summary for this group of related items:\n%s", itemsText),
		PublishedAt: time.Now().UTC(),
	}

	result, _, err := c.labeller.Enrich(ctx, prompt)
	if err != nil {
		log.Printf("WARNING: cluster labeling failed: %v", err)
		return fallback()
	}
	return truncate(result.Summary, 80), result.Summary
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func topEntities(order []string, counts map[string]int, limit int) []string {
	names := append([]string(nil), order...)
	sort.SliceStable(names, func(i, j int) bool {
		return counts[names[i]] > counts[names[j]]
	})
	if limit > len(names) {
		limit = len(names)
	}
	return names[:limit]
}

func dedupFirst10(claims []string) []string {
	seen := make(map[string]bool, len(claims))
	out := make([]string, 0, 10)
	for _, c := range claims {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
		if len(out) == 10 {
			break
		}
	}
	return out
}

// matchClusters reconciles new cluster identity against the prior active
// set via greedy Jaccard-overlap matching: each new cluster, in slice order,
// takes the unclaimed prior cluster it overlaps most, and each prior
// cluster is claimed at most once. Clusters inheriting a prior id are
// promoted to active and adopt the prior's first-seen time. It returns the
// set of prior ids claimed this run.
func (c *Clusterer) matchClusters(ctx context.Context, newClusters []*types.NarrativeCluster, previous []*types.NarrativeCluster) (map[string]bool, error) {
	claimed := make(map[string]bool)
	if len(previous) == 0 {
		return claimed, nil
	}

	prevMembers := make(map[string]map[string]bool, len(previous))
	for _, pc := range previous {
		items, err := c.meta.GetItemsByCluster(ctx, pc.ID)
		if err != nil {
			return nil, err
		}
		set := make(map[string]bool, len(items))
		for _, it := range items {
			set[it.ID] = true
		}
		prevMembers[pc.ID] = set
	}

	for _, nc := range newClusters {
		ncMembers := nc.MemberIDs()
		if len(ncMembers) == 0 {
			continue
		}
		ncSet := make(map[string]bool, len(ncMembers))
		for _, id := range ncMembers {
			ncSet[id] = true
		}

		bestOverlap := 0.0
		var bestPrev *types.NarrativeCluster
		for _, pc := range previous {
			if claimed[pc.ID] {
				continue
			}
			pm := prevMembers[pc.ID]
			if len(pm) == 0 {
				continue
			}
			overlap := jaccard(ncSet, pm)
			if overlap > bestOverlap {
				bestOverlap = overlap
				bestPrev = pc
			}
		}

		if bestOverlap > identityMatchThreshold && bestPrev != nil {
			nc.ID = bestPrev.ID
			nc.Status = types.ClusterActive
			nc.FirstSeen = bestPrev.FirstSeen
			claimed[bestPrev.ID] = true
		}
	}
	return claimed, nil
}

func jaccard(a, b map[string]bool) float64 {
	var intersection, union int
	union = len(b)
	for id := range a {
		if b[id] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// persist clears all memberships, writes every new cluster and its
// memberships, and marks any unclaimed prior cluster as fading.
func (c *Clusterer) persist(ctx context.Context, newClusters []*types.NarrativeCluster, previous []*types.NarrativeCluster, claimed map[string]bool) error {
	if err := c.meta.ClearAllMemberships(ctx); err != nil {
		return fmt.Errorf("engine: clusterer failed to clear memberships: %w", err)
	}

	for _, cluster := range newClusters {
		if err := c.meta.UpsertCluster(ctx, cluster); err != nil {
			return fmt.Errorf("engine: clusterer failed to upsert cluster %s: %w", cluster.ID, err)
		}
		for _, memberID := range cluster.MemberIDs() {
			if err := c.meta.SetClusterMembership(ctx, memberID, cluster.ID); err != nil {
				return fmt.Errorf("engine: clusterer failed to set membership for %s: %w", memberID, err)
			}
			if err := c.meta.UpdateItemCluster(ctx, memberID, cluster.ID, cluster.Label); err != nil {
				return fmt.Errorf("engine: clusterer failed to update item cluster for %s: %w", memberID, err)
			}
		}
	}

	for _, pc := range previous {
		if claimed[pc.ID] {
			continue
		}
		if err := c.meta.UpdateClusterStatus(ctx, pc.ID, types.ClusterFading); err != nil {
			return fmt.Errorf("engine: clusterer failed to fade cluster %s: %w", pc.ID, err)
		}
	}
	return nil
}
