package search

import "context"

// Result is a single search hit.
type Result struct {
	Title string
	URL   string
}

// Client is the minimal interface for a web search backend.
type Client interface {
	// Provider identifies the backend, e.g. "duckduckgo".
	Provider() string

	// Search returns up to limit results ordered by provider relevance.
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}
