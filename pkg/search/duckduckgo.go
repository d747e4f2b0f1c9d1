package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

// defaultDuckDuckGoURL is the JS-free HTML endpoint.
const defaultDuckDuckGoURL = "https://duckduckgo.com/html/"

// DuckDuckGoClient scrapes the DuckDuckGo HTML endpoint. The endpoint's
// rate limiting is undocumented, so every request passes through a
// conservative per-process limiter.
type DuckDuckGoClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewDuckDuckGoClient creates a client with a 10 second timeout and a
// 1 request/second limiter (burst 2).
func NewDuckDuckGoClient() *DuckDuckGoClient {
	return &DuckDuckGoClient{
		baseURL:    defaultDuckDuckGoURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(1), 2),
	}
}

// Provider implements Client.
func (c *DuckDuckGoClient) Provider() string { return "duckduckgo" }

// Search implements Client. Results are anchors with class "result__a"
// in document order.
func (c *DuckDuckGoClient) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := fmt.Sprintf("%s?%s", c.baseURL, url.Values{"q": {query}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query DuckDuckGo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("DuckDuckGo returned HTTP %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	return collectResults(doc, limit), nil
}

// collectResults walks the document in order, gathering result anchors
// until limit is reached.
func collectResults(doc *html.Node, limit int) []Result {
	var results []Result
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(results) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			href := attrValue(n, "href")
			if href != "" {
				results = append(results, Result{Title: nodeText(n), URL: href})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return results
}

func hasClass(n *html.Node, class string) bool {
	for _, cls := range strings.Fields(attrValue(n, "class")) {
		if cls == class {
			return true
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// nodeText concatenates the trimmed text descendants of n.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	return b.String()
}
