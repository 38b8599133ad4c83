package llm

import "fmt"

// MaxContentChars bounds the content sent to the enrichment prompt. Content
// longer than this is truncated, not summarised first — truncation is
// cheaper and the LLM only needs the opening of a story to extract the
// narrative's framing.
const MaxContentChars = 4000

const enrichmentPromptTemplate = `Analyze the following news/social media content and extract structured intelligence.

CONTENT:
%s

Respond with a JSON object containing exactly these fields:
{
  "summary": "2-3 sentence summary of the key narrative",
  "entities": [
    {"name": "entity name", "type": "person|org|place|event", "role": "subject|target|source|location|mentioned", "aliases": []}
  ],
  "claims": ["list of factual claims or assertions made"],
  "framing": "how the narrative is framed (e.g., 'crisis framing', 'progress narrative', 'conflict framing')",
  "sentiment": 0.0,
  "topic_tags": ["relevant", "topic", "tags"]
}

Rules:
- sentiment must be a float between -1.0 (very negative) and 1.0 (very positive)
- Include 1-5 entities with accurate types and roles
- Include 1-5 claims that are specific assertions from the content
- Respond with ONLY the JSON object, no other text`

// BuildEnrichmentPrompt renders the enrichment prompt for content, truncated
// to MaxContentChars.
func BuildEnrichmentPrompt(content string) string {
	if len(content) > MaxContentChars {
		content = content[:MaxContentChars]
	}
	return fmt.Sprintf(enrichmentPromptTemplate, content)
}

// InvalidJSONRetryMessage is appended as a follow-up user turn when the
// first enrichment response fails to parse.
const InvalidJSONRetryMessage = "Your response was not valid JSON. Please respond with ONLY a valid JSON object."
