package md2epub

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/alnah/go-md2epub/internal/fileutil"
)

// Remote image reference patterns.
var (
	// Markdown image with a remote target.
	mdRemoteImageRE = regexp.MustCompile(`!\[[^\]]*\]\((https?://[^)\s]+)`)

	// Inline HTML img tag; src extraction is delegated to the tokenizer.
	htmlImgTagRE = regexp.MustCompile(`(?i)<img[^>]+>`)
)

// scanImageURLs collects the unique remote image URLs referenced in text, in
// first-appearance order (Markdown references before inline HTML ones).
// Identity is the exact URL string: the same URL appearing twice yields one
// entry, and case-variant URLs stay distinct.
func scanImageURLs(text string) []string {
	seen := make(map[string]bool)
	var urls []string
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}

	for _, m := range mdRemoteImageRE.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, tag := range htmlImgTagRE.FindAllString(text, -1) {
		if src := imgTagSrc(tag); fileutil.IsURL(src) {
			add(src)
		}
	}
	return urls
}

// imgTagSrc extracts the src attribute from a single img tag. The tokenizer
// handles both quote styles and arbitrary attribute order.
func imgTagSrc(tag string) string {
	tz := html.NewTokenizer(strings.NewReader(tag))
	for {
		tt := tz.Next()
		if tt == html.ErrorToken {
			return ""
		}
		tok := tz.Token()
		if tok.Data != "img" {
			continue
		}
		for _, attr := range tok.Attr {
			if attr.Key == "src" {
				return attr.Val
			}
		}
		return ""
	}
}
