package md2epub

import (
	"regexp"
)

// Link shortening bounds, in characters.
const (
	longLinkThreshold = 60
	longLinkHead      = 30
	longLinkTail      = 7
)

// Precompiled rewrite patterns.
var (
	// Markdown image reference, capturing an already-present caption escape
	// so re-running the rewrite emits exactly one marker.
	imageRefRE = regexp.MustCompile(`(!\[[^\]]*\]\([^)]*\))(\\?)`)

	// Markdown link with an optional leading "!" captured. RE2 has no
	// lookbehind; image references are filtered by inspecting the capture.
	linkRefRE = regexp.MustCompile(`(!?)\[([^\]]*)\]\(([^)\s]+)\)`)

	// A bare <img> opening tag with no attributes.
	bareImgTagRE = regexp.MustCompile(`<img>`)
)

// Normalize applies the composite-wide rewrites that make the merged
// document safe for the external renderer:
//
//  1. Every Markdown image reference gets a trailing escape marker so the
//     renderer emits no caption beneath it.
//  2. Every non-image link with a URL longer than longLinkThreshold has the
//     URL shortened and the whole construct wrapped in an inline code span.
//  3. Every bare <img> tag is rewritten to its entity-escaped form.
//
// Fenced code blocks are never altered, and each rewrite is idempotent:
// running Normalize on its own output is a no-op.
func Normalize(text string) string {
	fences := newCodeProtector("fence")
	text = fences.protect(text, fencedBlockRE)

	text = suppressImageCaptions(text)
	text = shortenLongLinks(text)
	text = escapeBareImgTags(text)

	return fences.restore(text)
}

// suppressImageCaptions appends an escape marker after every Markdown image
// reference. The marker keeps the renderer from promoting the alt text to a
// visible figure caption.
func suppressImageCaptions(text string) string {
	return imageRefRE.ReplaceAllString(text, `$1\`)
}

// shortenLongLinks truncates link URLs longer than longLinkThreshold to
// their first longLinkHead and last longLinkTail characters joined by an
// ellipsis, and wraps the construct in an inline code span so literal long
// URLs never break the rendered layout. A shortened URL is well below the
// threshold, so a second pass leaves it alone.
func shortenLongLinks(text string) string {
	return linkRefRE.ReplaceAllStringFunc(text, func(m string) string {
		sub := linkRefRE.FindStringSubmatch(m)
		if sub[1] == "!" {
			return m // image reference, not a hyperlink
		}
		url := []rune(sub[3])
		if len(url) <= longLinkThreshold {
			return m
		}
		short := string(url[:longLinkHead]) + "..." + string(url[len(url)-longLinkTail:])
		return "`[" + sub[2] + "](" + short + ")`"
	})
}

// escapeBareImgTags rewrites a bare <img> tag to its HTML-entity-escaped
// form. Tags inside inline code spans are left untouched.
func escapeBareImgTags(text string) string {
	spans := newCodeProtector("span")
	text = spans.protect(text, inlineCodeRE)
	text = bareImgTagRE.ReplaceAllString(text, "&lt;img&gt;")
	return spans.restore(text)
}
