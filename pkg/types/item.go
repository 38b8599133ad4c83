package types

import "time"

// Entity is a named actor, organization, place, or event mentioned in an
// enriched item, with the role it plays in the item's narrative.
type Entity struct {
	Name    string     `json:"name"`
	Type    EntityType `json:"type"`
	Role    EntityRole `json:"role"`
	Aliases []string   `json:"aliases"`
}

// RawItem is a single unenriched item pulled from a source family. Raw items
// are never persisted; they are either promoted to an EnrichedItem or
// dropped by the Enricher.
type RawItem struct {
	ID             string
	SourceFamily   SourceFamily
	SourceName     string
	SourceURL      string // canonical URL, the dedup key
	Title          string
	ContentText    string
	Author         string
	PublishedAt    time.Time
	IngestedAt     time.Time
	Language       string
	RawMetadata    map[string]any
}

// EnrichmentResult is the parsed LLM output for a single RawItem, before it
// has been embedded or persisted.
type EnrichmentResult struct {
	Summary    string
	Entities   []Entity
	Claims     []string
	Framing    string
	Sentiment  float64 // clamped to [-1.0, 1.0]
	TopicTags  []string
}

// EnrichedItem is a RawItem plus its EnrichmentResult, embedding identity,
// and cost, as persisted in the MetaStore. It is immutable after insert
// except for ClusterID, ClusterLabel, and Archived.
type EnrichedItem struct {
	ID           string
	SourceFamily SourceFamily
	SourceName   string
	SourceURL    string
	Title        string
	PublishedAt  time.Time
	IngestedAt   time.Time
	Language     string

	Summary   string
	Entities  []Entity
	Claims    []string
	Framing   string
	Sentiment float64
	TopicTags []string

	EmbeddingID    string // equal to ID
	EmbeddingModel string

	ClusterID    *string
	ClusterLabel *string

	EnrichmentModel  string
	EnrichmentCostUSD float64

	Archived bool
}

// ClampSentiment restricts v to the valid sentiment range [-1.0, 1.0].
func ClampSentiment(v float64) float64 {
	if v < -1.0 {
		return -1.0
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}
