package llm

import (
	"context"
	"fmt"
	"strings"
)

const dummySnippetLen = 200

// DummyClient is a dev/test Client that never calls a real model.
// It echoes a bounded snippet of the prompt so callers can assert the
// prompt actually reached the backend.
type DummyClient struct {
	model string
}

// NewDummyClient creates a DummyClient. model may be empty, in which
// case "dummy-model" is used.
func NewDummyClient(model string) *DummyClient {
	if model == "" {
		model = "dummy-model"
	}
	return &DummyClient{model: model}
}

// ProviderName implements Client.
func (c *DummyClient) ProviderName() string { return "dummy" }

// ModelName implements Client.
func (c *DummyClient) ModelName() string { return c.model }

// Generate implements Client. Options are ignored.
func (c *DummyClient) Generate(_ context.Context, prompt string, _ Options) (string, error) {
	snippet := strings.TrimSpace(prompt)
	if runes := []rune(snippet); len(runes) > dummySnippetLen {
		snippet = string(runes[:dummySnippetLen]) + "…"
	}

	return fmt.Sprintf("[dummy completion from %s:%s] Prompt snippet: %s",
		c.ProviderName(), c.ModelName(), snippet), nil
}
