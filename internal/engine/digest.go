package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amonhen/amonhen/internal/llm"
	"github.com/amonhen/amonhen/internal/storage"
	"github.com/amonhen/amonhen/pkg/types"
)

const digestPrompt = `You are an intelligence analyst. Generate a concise daily intelligence digest based on the following narrative clusters, source divergences, and anomalies.

CLUSTERS:
%s

DIVERGENCES:
%s

ANOMALIES:
%s

Write a clear, professional intelligence digest that:
1. Highlights the most significant narratives
2. Notes any source disagreements (divergences)
3. Flags anomalies and emerging trends
4. Is structured with clear sections

Keep it under 500 words. Write in professional intelligence briefing style.`

// DigestGenerator turns a clustering run's output into a DailyDigest: an
// LLM-written narrative over the top clusters, divergences, and anomalies,
// with a deterministic fallback when the LLM call fails.
type DigestGenerator struct {
	provider llm.EnrichmentProvider
	meta     storage.MetaStore
	model    string
}

// NewDigestGenerator constructs a DigestGenerator. model is recorded on the
// persisted digest; it has no bearing on which provider is called.
func NewDigestGenerator(provider llm.EnrichmentProvider, meta storage.MetaStore, model string) *DigestGenerator {
	return &DigestGenerator{provider: provider, meta: meta, model: model}
}

// Generate builds and persists a DailyDigest from the current active
// clusters and the divergence/anomaly records produced alongside them. If
// the LLM call fails, a deterministic bullet-list digest is persisted
// instead; Generate itself never returns an error for that reason.
func (g *DigestGenerator) Generate(ctx context.Context, now time.Time, clusters []*types.NarrativeCluster, divergences []*types.DivergenceRecord, anomalies []*types.AnomalyRecord) (*types.DailyDigest, error) {
	prompt := fmt.Sprintf(digestPrompt,
		clustersSection(clusters),
		divergencesSection(divergences),
		anomaliesSection(anomalies))

	content, err := g.generateContent(ctx, now, prompt, clusters, divergences, anomalies)
	if err != nil {
		content = fallbackDigest(now, clusters, divergences, anomalies)
	}

	var totalItems int
	for _, c := range clusters {
		totalItems += c.ItemCount
	}

	digest := &types.DailyDigest{
		ID:           uuid.New().String(),
		GeneratedAt:  now,
		Content:      content,
		ClusterCount: len(clusters),
		ItemCount:    totalItems,
		Model:        g.model,
	}

	if err := g.meta.InsertDigest(ctx, digest); err != nil {
		return nil, fmt.Errorf("engine: digest generator failed to persist digest: %w", err)
	}
	return digest, nil
}

func (g *DigestGenerator) generateContent(ctx context.Context, now time.Time, prompt string, clusters []*types.NarrativeCluster, divergences []*types.DivergenceRecord, anomalies []*types.AnomalyRecord) (string, error) {
	promptItem := &types.RawItem{
		SourceFamily: types.SourceRSS,
		SourceName:   "digest_generator",
		SourceURL:    "internal://daily-digest",
		ContentText:  prompt,
		PublishedAt:  now,
	}
	result, _, err := g.provider.Enrich(ctx, promptItem)
	if err != nil {
		return "", err
	}
	return result.Summary, nil
}

func clustersSection(clusters []*types.NarrativeCluster) string {
	if len(clusters) == 0 {
		return "No active clusters."
	}
	limit := clusters
	if len(limit) > 10 {
		limit = limit[:10]
	}
	var b strings.Builder
	for _, c := range limit {
		entities := c.KeyEntities
		if len(entities) > 5 {
			entities = entities[:5]
		}
		fmt.Fprintf(&b, "\n- %s (%d items, status=%s)\n  Summary: %s\n  Sources: %v\n  Key entities: %s\n",
			c.Label, c.ItemCount, c.Status, c.Summary, c.SourceDistribution, strings.Join(entities, ", "))
	}
	return b.String()
}

func divergencesSection(divergences []*types.DivergenceRecord) string {
	if len(divergences) == 0 {
		return "No divergences detected."
	}
	limit := divergences
	if len(limit) > 5 {
		limit = limit[:5]
	}
	var b strings.Builder
	for _, d := range limit {
		fmt.Fprintf(&b, "\n- %s", d.Description)
	}
	return b.String()
}

func anomaliesSection(anomalies []*types.AnomalyRecord) string {
	if len(anomalies) == 0 {
		return "No anomalies detected."
	}
	limit := anomalies
	if len(limit) > 5 {
		limit = limit[:5]
	}
	var b strings.Builder
	for _, a := range limit {
		fmt.Fprintf(&b, "\n- %s", a.Description)
	}
	return b.String()
}

func fallbackDigest(now time.Time, clusters []*types.NarrativeCluster, divergences []*types.DivergenceRecord, anomalies []*types.AnomalyRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Intelligence Digest - %s\n", now.Format("2006-01-02"))
	fmt.Fprintf(&b, "\n## Active Narratives (%d clusters)\n", len(clusters))
	limit := clusters
	if len(limit) > 10 {
		limit = limit[:10]
	}
	for _, c := range limit {
		fmt.Fprintf(&b, "- **%s** (%d items): %s\n", c.Label, c.ItemCount, c.Summary)
	}
	if len(divergences) > 0 {
		fmt.Fprintf(&b, "\n## Source Divergences (%d)\n", len(divergences))
		dl := divergences
		if len(dl) > 5 {
			dl = dl[:5]
		}
		for _, d := range dl {
			fmt.Fprintf(&b, "- %s\n", d.Description)
		}
	}
	if len(anomalies) > 0 {
		fmt.Fprintf(&b, "\n## Anomalies (%d)\n", len(anomalies))
		al := anomalies
		if len(al) > 5 {
			al = al[:5]
		}
		for _, a := range al {
			fmt.Fprintf(&b, "- %s\n", a.Description)
		}
	}
	return b.String()
}
