package webfetch

import (
	"strings"

	"golang.org/x/net/html"
)

// skippedTags are subtrees dropped wholesale during text extraction.
var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"header":   true,
	"footer":   true,
	"nav":      true,
	"aside":    true,
}

// ExtractText returns the visible text of an HTML document with all
// whitespace collapsed to single spaces and the result trimmed.
func ExtractText(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(strings.Fields(b.String()), " ")
}

// BasicSummary returns the first maxChars characters of text, trimmed.
func BasicSummary(text string, maxChars int) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(TruncateChars(text, maxChars))
}

// TruncateChars cuts s to at most max characters (runes, not bytes).
func TruncateChars(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
