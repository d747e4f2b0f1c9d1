package e2e

import (
	"context"
	"fmt"
	"sync"

	"github.com/inquiryos/inquiryos/pkg/llm"
	"github.com/inquiryos/inquiryos/pkg/search"
	"github.com/inquiryos/inquiryos/pkg/webfetch"
)

// ────────────────────────────────────────────────────────────
// Scripted LLM
// ────────────────────────────────────────────────────────────

// LLMScriptEntry defines a single scripted LLM completion.
type LLMScriptEntry struct {
	Text  string // completion returned from Generate()
	Error error  // returned instead, when set
}

// ScriptedLLMClient implements llm.Client with a sequential script.
// Entries are consumed in call order; running past the script fails the
// call loudly so a test never silently reuses a completion.
type ScriptedLLMClient struct {
	mu      sync.Mutex
	entries []LLMScriptEntry
	index   int
	prompts []string
}

// NewScriptedLLMClient creates an empty ScriptedLLMClient.
func NewScriptedLLMClient() *ScriptedLLMClient {
	return &ScriptedLLMClient{}
}

// AddSequential appends an entry consumed by the next Generate call.
func (c *ScriptedLLMClient) AddSequential(entry LLMScriptEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *ScriptedLLMClient) ProviderName() string { return "scripted" }
func (c *ScriptedLLMClient) ModelName() string    { return "scripted-model" }

// Generate implements llm.Client.
func (c *ScriptedLLMClient) Generate(_ context.Context, prompt string, _ llm.Options) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if c.index >= len(c.entries) {
		return "", fmt.Errorf("ScriptedLLMClient: no more entries (call %d, scripted %d)", c.index+1, len(c.entries))
	}
	entry := c.entries[c.index]
	c.index++
	if entry.Error != nil {
		return "", entry.Error
	}
	return entry.Text, nil
}

// CallCount returns the total number of Generate() calls made.
func (c *ScriptedLLMClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}

// Prompts returns a copy of all prompts passed to Generate().
func (c *ScriptedLLMClient) Prompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.prompts))
	copy(out, c.prompts)
	return out
}

// ────────────────────────────────────────────────────────────
// Scripted Search
// ────────────────────────────────────────────────────────────

// SearchScriptEntry defines a single scripted search response.
type SearchScriptEntry struct {
	Results []search.Result
	Error   error
}

// ScriptedSearchClient implements search.Client with a sequential script.
type ScriptedSearchClient struct {
	mu      sync.Mutex
	entries []SearchScriptEntry
	index   int
	queries []string
}

// NewScriptedSearchClient creates an empty ScriptedSearchClient.
func NewScriptedSearchClient() *ScriptedSearchClient {
	return &ScriptedSearchClient{}
}

// AddResults appends a successful response consumed by the next Search call.
func (c *ScriptedSearchClient) AddResults(results ...search.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, SearchScriptEntry{Results: results})
}

// AddError appends a failing response consumed by the next Search call.
func (c *ScriptedSearchClient) AddError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, SearchScriptEntry{Error: err})
}

func (c *ScriptedSearchClient) Provider() string { return "scripted" }

// Search implements search.Client, honoring the caller's limit.
func (c *ScriptedSearchClient) Search(_ context.Context, query string, limit int) ([]search.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, query)
	if c.index >= len(c.entries) {
		return nil, fmt.Errorf("ScriptedSearchClient: no more entries (call %d, scripted %d)", c.index+1, len(c.entries))
	}
	entry := c.entries[c.index]
	c.index++
	if entry.Error != nil {
		return nil, entry.Error
	}
	if len(entry.Results) > limit {
		return entry.Results[:limit], nil
	}
	return entry.Results, nil
}

// Queries returns a copy of all queries passed to Search().
func (c *ScriptedSearchClient) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.queries))
	copy(out, c.queries)
	return out
}

// ────────────────────────────────────────────────────────────
// Stub Page Fetcher
// ────────────────────────────────────────────────────────────

// StubFetcher implements the reader's fetch dependency with canned HTML
// pages. The production URL validation still runs first, so SSRF guards
// stay in the loop; the fetcher cannot reach loopback test servers for
// exactly that reason. Unknown URLs fail like an HTTP 404 would.
type StubFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string]error
	served []string
}

// NewStubFetcher creates an empty StubFetcher.
func NewStubFetcher() *StubFetcher {
	return &StubFetcher{
		pages: make(map[string]string),
		errs:  make(map[string]error),
	}
}

// AddPage registers canned HTML for a URL.
func (f *StubFetcher) AddPage(url, html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = html
}

// AddError registers a transport error for a URL.
func (f *StubFetcher) AddError(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

// FetchHTML implements pipeline.PageFetcher.
func (f *StubFetcher) FetchHTML(_ context.Context, url string) (*webfetch.FetchedPage, error) {
	if err := webfetch.ValidateURL(url); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.served = append(f.served, url)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if html, ok := f.pages[url]; ok {
		return &webfetch.FetchedPage{URL: url, StatusCode: 200, HTML: html}, nil
	}
	return nil, fmt.Errorf("fetch %s: HTTP 404", url)
}

// Served returns a copy of the URLs that passed validation, in fetch order.
func (f *StubFetcher) Served() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.served))
	copy(out, f.served)
	return out
}
