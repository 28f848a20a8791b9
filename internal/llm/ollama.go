package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ollamaClient implements the Client interface for a locally running Ollama
// server. No API key required; useful for offline runs.
type ollamaClient struct {
	httpClient *http.Client
	host       string
	model      string
}

// newOllamaClient creates a client for a local Ollama server.
func newOllamaClient(cfg Config) (Client, error) {
	host := strings.TrimRight(cfg.BaseURL, "/")
	if host == "" {
		host = "http://localhost:11434"
	}

	model := cfg.Model
	if model == "" {
		model = "llama3"
	}

	return &ollamaClient{
		host:  host,
		model: model,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}, nil
}

// Complete sends a generate request to the Ollama server. Ollama has no
// separate system role on this endpoint, so the prompts are concatenated.
func (c *ollamaClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (Completion, error) {
	requestBody := map[string]any{
		"model":  c.model,
		"prompt": systemPrompt + "\n\n" + userPrompt,
		"stream": false,
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/generate", strings.NewReader(string(jsonBody)))
	if err != nil {
		return Completion{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Completion{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Completion{}, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(body))
	}

	var response struct {
		Response        string `json:"response"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return Completion{}, fmt.Errorf("failed to parse response: %w", err)
	}

	return Completion{
		Text:      response.Response,
		TokensIn:  response.PromptEvalCount,
		TokensOut: response.EvalCount,
	}, nil
}
