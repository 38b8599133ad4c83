package llm

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/amonhen/amonhen/pkg/types"
)

// enrichmentResponse is the wire shape of the enrichment prompt's JSON
// response, before validation against pkg/types enums. Summary, Framing,
// and Sentiment are pointers so a missing top-level field can be told
// apart from a present-but-zero-valued one.
type enrichmentResponse struct {
	Summary   *string          `json:"summary"`
	Entities  []entityResponse `json:"entities"`
	Claims    []string         `json:"claims"`
	Framing   *string          `json:"framing"`
	Sentiment *float64         `json:"sentiment"`
	TopicTags []string         `json:"topic_tags"`
}

type entityResponse struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Role    string   `json:"role"`
	Aliases []string `json:"aliases"`
}

// StripCodeFences removes a leading/trailing markdown code fence, with or
// without a language tag, from LLM output that ignored the "JSON only"
// instruction.
func StripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.IndexByte(text, '\n'); idx != -1 {
			text = text[idx+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// ParseEnrichmentJSON parses a raw LLM response into an EnrichmentResult.
// It is tolerant of partially malformed content: entities with an unknown
// type or role are dropped rather than failing the whole parse, sentiment
// is clamped into [-1, 1], and missing optional lists default to empty.
// It returns an error when the text is not valid JSON, or when any of the
// required top-level fields summary, framing, or sentiment is absent.
func ParseEnrichmentJSON(raw string) (*types.EnrichmentResult, error) {
	cleaned := StripCodeFences(raw)

	var resp enrichmentResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("llm: enrichment response is not valid JSON: %w", err)
	}
	if resp.Summary == nil || resp.Framing == nil || resp.Sentiment == nil {
		return nil, fmt.Errorf("llm: enrichment response is missing a required field (summary, framing, or sentiment)")
	}

	entities := make([]types.Entity, 0, len(resp.Entities))
	for _, e := range resp.Entities {
		entityType := types.EntityType(e.Type)
		if e.Type == "" {
			entityType = types.EntityPerson
		}
		if !entityType.Valid() {
			log.Printf("llm: dropping entity %q with unknown type %q", e.Name, e.Type)
			continue
		}
		role := types.EntityRole(e.Role)
		if e.Role == "" {
			role = types.RoleMentioned
		}
		if !role.Valid() {
			log.Printf("llm: dropping entity %q with unknown role %q", e.Name, e.Role)
			continue
		}
		entities = append(entities, types.Entity{
			Name:    e.Name,
			Type:    entityType,
			Role:    role,
			Aliases: e.Aliases,
		})
	}

	return &types.EnrichmentResult{
		Summary:   *resp.Summary,
		Entities:  entities,
		Claims:    resp.Claims,
		Framing:   *resp.Framing,
		Sentiment: types.ClampSentiment(*resp.Sentiment),
		TopicTags: resp.TopicTags,
	}, nil
}
