// Package llm provides the enrichment LLM clients (Anthropic, Ollama), the
// enrichment prompt, the tolerant JSON response parser, and the circuit
// breaker wrapping every outbound completion and embedding call.
package llm

import (
	"context"
	"errors"

	"github.com/amonhen/amonhen/pkg/types"
)

// ErrCallFailed wraps a failed outbound call to the LLM or embedding
// provider (transport error or non-200 status). An open circuit is
// reported as ErrCircuitOpen instead.
var ErrCallFailed = errors.New("llm: call failed")

// ErrResponseParseFailed wraps an enrichment response that could not be
// parsed into an EnrichmentResult, even after the one allowed retry.
var ErrResponseParseFailed = errors.New("llm: response parse failed")

// TextGenerator is the interface for single-turn LLM text completion.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator produces a fixed-dimension embedding vector for a
// string of text.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

// EnrichmentProvider runs a RawItem through an LLM and returns the parsed
// structured result plus the cost incurred producing it. Implementations
// own their own retry policy for malformed JSON.
type EnrichmentProvider interface {
	Enrich(ctx context.Context, item *types.RawItem) (*types.EnrichmentResult, *types.CostLogEntry, error)
}
