package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/amonhen/amonhen/pkg/types"
)

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the base URL for the Ollama API (default: http://localhost:11434)
	BaseURL string

	// Model is the model name to use for completions, embeddings, or
	// enrichment (default depends on constructor: llama3 for enrichment,
	// nomic-embed-text for embeddings).
	Model string

	// Timeout is the request timeout duration (default: 120s, matching the
	// slower local-inference latency this provider actually sees).
	Timeout time.Duration
}

// OllamaClient is a low-level Ollama HTTP client implementing TextGenerator
// and EmbeddingGenerator. Used directly for embedding generation; wrapped
// by OllamaProvider for structured enrichment.
type OllamaClient struct {
	baseURL        string
	client         *http.Client
	circuitBreaker *CircuitBreaker
	model          string
	timeout        time.Duration
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format,omitempty"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaClient creates a new Ollama client. Defaults: BaseURL
// http://localhost:11434, Model nomic-embed-text, Timeout 120s.
func NewOllamaClient(config OllamaConfig) *OllamaClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "nomic-embed-text"
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}

	return &OllamaClient{
		baseURL:        config.BaseURL,
		client:         &http.Client{Timeout: config.Timeout},
		circuitBreaker: NewCircuitBreaker(),
		model:          config.Model,
		timeout:        config.Timeout,
	}
}

// Complete sends a completion request to Ollama and returns the response
// text, wrapped with circuit breaker protection.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.complete(ctx, prompt, "")
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return "", fmt.Errorf("ollama circuit breaker open: %w", err)
		}
		return "", err
	}
	return result.(string), nil
}

func (c *OllamaClient) complete(ctx context.Context, prompt, format string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Format: format,
		Stream: false,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("llm: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("llm: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: failed to send request: %v", ErrCallFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: ollama returned status %d: %s", ErrCallFailed, resp.StatusCode, string(body))
	}

	var respData generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("llm: failed to decode response: %w", err)
	}

	return respData.Response, nil
}

// Embed generates an embedding vector for text using the configured model.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("ollama circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.([]float32), nil
}

func (c *OllamaClient) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := embedRequest{Model: c.model, Input: text}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("llm: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/embed", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("llm: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send request: %v", ErrCallFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: ollama returned status %d: %s", ErrCallFailed, resp.StatusCode, string(body))
	}

	var respData embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("llm: failed to decode response: %w", err)
	}
	if len(respData.Embeddings) == 0 || len(respData.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("llm: ollama returned empty embedding vector")
	}

	return respData.Embeddings[0], nil
}

// GetModel returns the configured model name.
func (c *OllamaClient) GetModel() string { return c.model }

// HealthCheck verifies that Ollama is reachable, without circuit breaker
// protection since it is itself a health probe.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("llm: failed to create health check request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("llm: health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("llm: health check returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Compile-time assertions that OllamaClient satisfies both LLM interfaces.
var _ TextGenerator = (*OllamaClient)(nil)
var _ EmbeddingGenerator = (*OllamaClient)(nil)

// OllamaProvider implements EnrichmentProvider against a local Ollama
// model, at zero recorded cost. Unlike AnthropicProvider it does not
// retry on parse failure: forcing format=json at the API level is already
// the retry-avoidance strategy.
type OllamaProvider struct {
	client *OllamaClient
}

// NewOllamaProvider creates a new Ollama enrichment provider. Model
// defaults to llama3 if empty.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	if cfg.Model == "" {
		cfg.Model = "llama3"
	}
	return &OllamaProvider{client: NewOllamaClient(cfg)}
}

func (p *OllamaProvider) Enrich(ctx context.Context, item *types.RawItem) (*types.EnrichmentResult, *types.CostLogEntry, error) {
	prompt := BuildEnrichmentPrompt(item.ContentText)

	out, err := p.client.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return p.client.complete(ctx, prompt, "json")
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, nil, fmt.Errorf("ollama circuit breaker open: %w", err)
		}
		return nil, nil, err
	}
	raw := out.(string)

	result, err := ParseEnrichmentJSON(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: ollama enrichment for item %s: %v", ErrResponseParseFailed, item.ID, err)
	}

	cost := &types.CostLogEntry{
		ItemID:       item.ID,
		Model:        "ollama:" + p.client.model,
		InputTokens:  0,
		OutputTokens: 0,
		CostUSD:      0.0,
	}
	return result, cost, nil
}

// Compile-time assertion.
var _ EnrichmentProvider = (*OllamaProvider)(nil)
