// Package config loads application settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// API metadata reported by the health endpoint.
const (
	APIName    = "InquiryOS API"
	APIVersion = "0.1.0"
)

// Supported LLM providers.
const (
	ProviderDummy  = "dummy"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Settings holds process configuration sourced from environment variables.
// Database settings live in pkg/database and are loaded separately.
type Settings struct {
	APIPort int

	// LLM provider selection
	LLMProvider string
	LLMModel    string

	// Ollama
	OllamaBaseURL string

	// OpenAI
	OpenAIAPIKey string
	OpenAIModel  string
}

// Load reads settings from the environment, applying local-dev defaults.
func Load() (*Settings, error) {
	port, err := strconv.Atoi(getEnvOrDefault("API_PORT", "8000"))
	if err != nil {
		return nil, fmt.Errorf("invalid API_PORT: %w", err)
	}

	return &Settings{
		APIPort:       port,
		LLMProvider:   getEnvOrDefault("LLM_PROVIDER", ProviderOllama),
		LLMModel:      getEnvOrDefault("LLM_MODEL", "llama3"),
		OllamaBaseURL: getEnvOrDefault("OLLAMA_BASE_URL", "http://localhost:11434"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", "gpt-4.1-mini"),
	}, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
