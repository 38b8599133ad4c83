package types

import "time"

// CostLogEntry records the LLM cost of enriching one item, including any
// retry call the provider made.
// The cost log is append-only.
type CostLogEntry struct {
	ItemID       string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Timestamp    time.Time
}

// SourceHealth tracks the fetch health of one named source within a family.
type SourceHealth struct {
	SourceName   string
	SourceFamily SourceFamily
	LastFetchAt  *time.Time
	LastSuccessAt *time.Time
	ItemsFetched int
	ErrorCount   int
	LastError    string
}

// DailyDigest is a generated summary of the day's clusters and items.
type DailyDigest struct {
	ID            string
	GeneratedAt   time.Time
	Content       string
	ClusterCount  int
	ItemCount     int
	Model         string
}

// DivergenceRecord is emitted by the DivergenceDetector when two source
// families within a cluster diverge beyond the configured threshold.
type DivergenceRecord struct {
	ClusterID      string
	ClusterLabel   string
	SourceA        SourceFamily
	SourceB        SourceFamily
	CosineDistance float64 // rounded to 4 decimals
	Description    string
}

// AnomalyKind distinguishes the three scans the AnomalyDetector runs.
type AnomalyKind string

const (
	AnomalyVolumeSpike    AnomalyKind = "volume_spike"
	AnomalySentimentShift AnomalyKind = "sentiment_shift"
	AnomalyEntitySurge    AnomalyKind = "entity_surge"
)

// AnomalyRecord is a single emitted anomaly from any of the three scans.
// Fields not relevant to a given Kind are left at their zero value.
type AnomalyRecord struct {
	Kind AnomalyKind

	ClusterID    string
	ClusterLabel string

	// volume_spike
	Recent6hCount int
	AvgHourly7d   float64
	SpikeRatio    float64

	// sentiment_shift
	SentimentBefore float64
	SentimentAfter  float64
	Shift           float64

	// entity_surge
	EntityName string
	Count6h    int

	Description string
}
