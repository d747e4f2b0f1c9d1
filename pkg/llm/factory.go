package llm

import (
	"fmt"
	"strings"

	"github.com/inquiryos/inquiryos/pkg/config"
)

// NewClientFromSettings selects a Client implementation from settings.
// Selection happens once at startup; tests construct clients directly.
func NewClientFromSettings(settings *config.Settings) (Client, error) {
	provider := strings.ToLower(settings.LLMProvider)

	switch provider {
	case config.ProviderDummy, "dev":
		return NewDummyClient(settings.LLMModel), nil

	case config.ProviderOllama:
		return NewOllamaClient(settings.OllamaBaseURL, settings.LLMModel), nil

	case config.ProviderOpenAI:
		if settings.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		return NewOpenAIClient(settings.OpenAIAPIKey, settings.OpenAIModel), nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", provider)
	}
}
