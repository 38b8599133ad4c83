package types

import "time"

// SentimentBins are the five fixed buckets a cluster's member sentiments are
// distributed across. Boundaries are half-open on the low side, closed on
// the high side: very_negative <= -0.6 < negative <= -0.2 < neutral <= 0.2
// < positive <= 0.6 < very_positive.
type SentimentBins struct {
	VeryNegative int
	Negative     int
	Neutral      int
	Positive     int
	VeryPositive int
}

// BinSentiment assigns a single sentiment value to its bucket.
func BinSentiment(v float64) string {
	switch {
	case v <= -0.6:
		return "very_negative"
	case v <= -0.2:
		return "negative"
	case v <= 0.2:
		return "neutral"
	case v <= 0.6:
		return "positive"
	default:
		return "very_positive"
	}
}

// BinSentiments buckets a slice of sentiment values into SentimentBins.
func BinSentiments(values []float64) SentimentBins {
	var bins SentimentBins
	for _, v := range values {
		switch BinSentiment(v) {
		case "very_negative":
			bins.VeryNegative++
		case "negative":
			bins.Negative++
		case "neutral":
			bins.Neutral++
		case "positive":
			bins.Positive++
		default:
			bins.VeryPositive++
		}
	}
	return bins
}

// NarrativeCluster groups enriched items whose embeddings are mutually close
// in cosine space. Its id may be inherited from a prior run (see the
// Clusterer's identity-matching step) in which case FirstSeen is preserved
// from the inherited cluster.
type NarrativeCluster struct {
	ID          string
	Label       string
	Summary     string
	ItemCount   int
	FirstSeen   time.Time
	LastUpdated time.Time

	Centroid []float64 // mean of member vectors, dimension D, not renormalised

	SourceDistribution    map[SourceFamily]int
	SentimentDistribution SentimentBins
	KeyEntities           []string // top 10 by member frequency, ties by first-seen order
	KeyClaims             []string // first 10 distinct claims by insertion order

	Status         ClusterStatus
	ParentClusterID *string

	// memberIDs carries the member item ids produced by this run so that the
	// identity-matching step can compute Jaccard overlap against prior
	// clusters without a second MetaStore round trip. Not persisted.
	memberIDs []string
}

// MemberIDs returns the item ids assigned to this cluster during the run
// that produced it.
func (c *NarrativeCluster) MemberIDs() []string { return c.memberIDs }

// SetMemberIDs records the item ids assigned to this cluster. Called by the
// Clusterer while building new clusters, before identity matching.
func (c *NarrativeCluster) SetMemberIDs(ids []string) { c.memberIDs = ids }

// ClusterMembership links an item to the cluster it currently belongs to.
// The table holding these rows is wiped and rewritten on every clustering
// run; ClusterMembership is the source of truth, and EnrichedItem.ClusterID
// is a denormalised cache refreshed alongside it.
type ClusterMembership struct {
	ItemID     string
	ClusterID  string
	AssignedAt time.Time
}
