package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/amonhen/amonhen/pkg/types"
)

// Haiku pricing per token, per original_source's recorded rates. Verify
// against https://docs.anthropic.com/en/docs/about-claude/models before
// changing the enrichment model.
const (
	anthropicInputCostPerToken  = 0.80 / 1_000_000 // $0.80 per 1M input tokens
	anthropicOutputCostPerToken = 4.00 / 1_000_000 // $4.00 per 1M output tokens
)

// AnthropicConfig holds configuration for the Anthropic enrichment client.
type AnthropicConfig struct {
	APIKey  string
	Model   string        // default: claude-haiku-4-5-20251001
	Timeout time.Duration // default: 60s
}

// AnthropicProvider implements EnrichmentProvider using the Anthropic
// Messages API. On a JSON parse failure it retries once, carrying the
// failed turn forward as conversation history alongside an explicit
// correction instruction.
type AnthropicProvider struct {
	cfg            AnthropicConfig
	client         *http.Client
	circuitBreaker *CircuitBreaker
}

// NewAnthropicProvider creates a new Anthropic enrichment provider.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5-20251001"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &AnthropicProvider{
		cfg:            cfg,
		client:         &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: NewCircuitBreaker(),
	}
}

type anthropicMessagesRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicMessagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// GetModel returns the configured model name.
func (p *AnthropicProvider) GetModel() string { return p.cfg.Model }

// Enrich runs the enrichment prompt against item's content and returns the
// parsed result plus the combined cost of the call (and its retry, if one
// was needed).
func (p *AnthropicProvider) Enrich(ctx context.Context, item *types.RawItem) (*types.EnrichmentResult, *types.CostLogEntry, error) {
	result, err := p.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return p.enrich(ctx, item)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, nil, fmt.Errorf("anthropic circuit breaker open: %w", err)
		}
		return nil, nil, err
	}
	out := result.(enrichOutcome)
	return out.result, out.cost, nil
}

type enrichOutcome struct {
	result *types.EnrichmentResult
	cost   *types.CostLogEntry
}

func (p *AnthropicProvider) enrich(ctx context.Context, item *types.RawItem) (enrichOutcome, error) {
	prompt := BuildEnrichmentPrompt(item.ContentText)

	rawText, inputTokens, outputTokens, err := p.complete(ctx, []anthropicMessage{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return enrichOutcome{}, err
	}

	result, parseErr := ParseEnrichmentJSON(rawText)
	if parseErr != nil {
		log.Printf("llm: first enrichment parse failed for item %s: %v, retrying", item.ID, parseErr)

		retryText, retryInput, retryOutput, retryErr := p.complete(ctx, []anthropicMessage{
			{Role: "user", Content: prompt},
			{Role: "assistant", Content: rawText},
			{Role: "user", Content: InvalidJSONRetryMessage},
		})
		if retryErr != nil {
			return enrichOutcome{}, retryErr
		}
		inputTokens += retryInput
		outputTokens += retryOutput

		result, err = ParseEnrichmentJSON(retryText)
		if err != nil {
			return enrichOutcome{}, fmt.Errorf("%w: enrichment retry also failed for item %s: %v", ErrResponseParseFailed, item.ID, err)
		}
	}

	cost := float64(inputTokens)*anthropicInputCostPerToken + float64(outputTokens)*anthropicOutputCostPerToken
	return enrichOutcome{
		result: result,
		cost: &types.CostLogEntry{
			ItemID:       item.ID,
			Model:        p.cfg.Model,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			CostUSD:      cost,
		},
	}, nil
}

func (p *AnthropicProvider) complete(ctx context.Context, messages []anthropicMessage) (text string, inputTokens, outputTokens int, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	reqBody := anthropicMessagesRequest{
		Model:     p.cfg.Model,
		MaxTokens: 1024,
		Messages:  messages,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", 0, 0, fmt.Errorf("llm: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.anthropic.com/v1/messages", bytes.NewReader(jsonData))
	if err != nil {
		return "", 0, 0, fmt.Errorf("llm: failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: failed to send request: %v", ErrCallFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", 0, 0, fmt.Errorf("%w: anthropic returned status %d: %s", ErrCallFailed, resp.StatusCode, string(body))
	}

	var respData anthropicMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", 0, 0, fmt.Errorf("llm: failed to decode response: %w", err)
	}
	if len(respData.Content) == 0 {
		return "", 0, 0, fmt.Errorf("llm: anthropic returned empty content")
	}

	return respData.Content[0].Text, respData.Usage.InputTokens, respData.Usage.OutputTokens, nil
}

// Compile-time assertion.
var _ EnrichmentProvider = (*AnthropicProvider)(nil)
