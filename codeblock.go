package md2epub

import (
	"fmt"
	"regexp"
	"strings"
)

// Precompiled patterns for verbatim spans.
var (
	// Fenced code block, including any image- or heading-like syntax inside.
	fencedBlockRE = regexp.MustCompile("(?s)```.*?```")

	// Inline code span on a single line.
	inlineCodeRE = regexp.MustCompile("`[^`\n]+`")
)

// codeProtector replaces verbatim spans with opaque tokens so text transforms
// cannot touch their content, then restores each span exactly once.
//
// Tokens are NUL-delimited and carry the protector's label plus a span index.
// NUL cannot occur in well-formed fragment text, so a token never collides
// with document content, and the label keeps nested protectors apart.
type codeProtector struct {
	label string
	spans []string
}

// newCodeProtector creates a protector whose tokens carry label.
func newCodeProtector(label string) *codeProtector {
	return &codeProtector{label: label}
}

func (p *codeProtector) token(i int) string {
	return fmt.Sprintf("\x00{%s:%d}\x00", p.label, i)
}

// protect replaces every match of re in text with a unique token.
func (p *codeProtector) protect(text string, re *regexp.Regexp) string {
	return re.ReplaceAllStringFunc(text, func(span string) string {
		p.spans = append(p.spans, span)
		return p.token(len(p.spans) - 1)
	})
}

// restore substitutes every token back with its original span, in insertion
// order. Each token is replaced exactly once; the transform is strictly the
// inverse of protect as long as no rewrite touched the tokens themselves.
func (p *codeProtector) restore(text string) string {
	for i, span := range p.spans {
		text = strings.Replace(text, p.token(i), span, 1)
	}
	return text
}
