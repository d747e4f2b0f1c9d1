package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaClient is a Client backed by a local Ollama instance.
//
// API reference (simplified):
//   - POST /api/generate
//     {"model": "...", "prompt": "...", "stream": false}
//
// For non-streaming requests Ollama returns a single JSON object whose
// "response" field is the completion text.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaClient creates a client for the Ollama server at baseURL
// (default deployment: http://localhost:11434).
func NewOllamaClient(baseURL, model string) *OllamaClient {
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// ProviderName implements Client.
func (c *OllamaClient) ProviderName() string { return "ollama" }

// ModelName implements Client.
func (c *OllamaClient) ModelName() string { return c.model }

type ollamaGenerateRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Stream      bool     `json:"stream"`
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// Generate implements Client.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	payload := ollamaGenerateRequest{
		Model:       c.model,
		Prompt:      prompt,
		Stream:      false,
		Temperature: opts.Temperature,
		NumPredict:  opts.MaxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	url := c.baseURL + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call Ollama at %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Ollama returned HTTP %d", resp.StatusCode)
	}

	var data ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}

	return data.Response, nil
}
