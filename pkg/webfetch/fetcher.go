package webfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// maxBytes caps how much of a response body is read (1 MB).
	maxBytes = 1_000_000

	userAgent      = "InquiryOS/0.1 (Research Reader)"
	defaultTimeout = 10 * time.Second
)

// FetchedPage is the downloaded representation of one URL.
type FetchedPage struct {
	URL        string
	StatusCode int
	HTML       string
}

// Fetcher downloads pages with SSRF validation, a response size cap and
// a per-request timeout. Redirects are followed. Safe for concurrent use.
type Fetcher struct {
	httpClient *http.Client
}

// NewFetcher creates a Fetcher with the default timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// FetchHTML validates rawURL and downloads its body, replacing invalid
// UTF-8 sequences. Bodies larger than the size cap abort the fetch.
func (f *Fetcher) FetchHTML(ctx context.Context, rawURL string) (*FetchedPage, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}
	return f.fetch(ctx, rawURL)
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (*FetchedPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}

	// Read one byte past the cap so a body of exactly maxBytes passes
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body from %s: %w", rawURL, err)
	}
	if len(body) > maxBytes {
		return nil, fmt.Errorf("Response too large")
	}

	return &FetchedPage{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		HTML:       strings.ToValidUTF8(string(body), "�"),
	}, nil
}
