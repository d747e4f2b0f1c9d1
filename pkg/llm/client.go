package llm

import "context"

// Client is the minimal interface for a completion backend.
// Concrete implementations (dummy, Ollama, OpenAI) keep the rest of the
// codebase decoupled from any specific provider API.
type Client interface {
	// ProviderName identifies the backend, e.g. "ollama".
	ProviderName() string

	// ModelName identifies the model this client is bound to.
	ModelName() string

	// Generate produces a single text completion for the prompt.
	// Implementations treat zero-valued options leniently.
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// Options carries provider-specific generation knobs.
// Zero values mean "use the provider default".
type Options struct {
	Temperature *float64
	MaxTokens   int
}
