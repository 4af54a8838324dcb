package md2epub

import (
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/adrg/frontmatter"
)

// FragmentKind classifies one directory entry during assembly. The decision
// is made once per entry; the rest of the pipeline switches on it.
type FragmentKind int

const (
	KindIgnored FragmentKind = iota
	KindDirectory
	KindMarkdown
	KindHTML
)

// ignorePrefixes marks entries excluded from assembly (hidden/temp convention).
var ignorePrefixes = []string{"_", "."}

// maxHeadingLevel caps shifted headings; deeper levels collapse to it.
const maxHeadingLevel = 6

// headingLine matches an ATX heading: optional indent, markers, then a
// whitespace-separated remainder kept verbatim on rewrite.
var headingLine = regexp.MustCompile(`^([ \t]*)(#+)(\s.*)$`)

// classifyEntry selects the fragment kind for a directory entry.
func classifyEntry(entry fs.DirEntry) FragmentKind {
	name := entry.Name()
	for _, prefix := range ignorePrefixes {
		if strings.HasPrefix(name, prefix) {
			return KindIgnored
		}
	}
	if entry.IsDir() {
		return KindDirectory
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md":
		return KindMarkdown
	case ".html":
		return KindHTML
	}
	return KindIgnored
}

// stripFrontMatter removes a leading YAML front-matter block and left-trims
// the remaining content. Inclusion is a text transform: a delimited block
// whose body is not parseable YAML is still removed, via the textual
// fallback, so the composite never carries stray metadata lines.
func stripFrontMatter(content string) string {
	trimmed := strings.TrimLeft(content, " \t\r\n")
	if !strings.HasPrefix(trimmed, "---") {
		return content
	}

	var meta map[string]any
	rest, err := frontmatter.Parse(strings.NewReader(trimmed), &meta)
	if err == nil {
		return strings.TrimLeft(string(rest), " \t\r\n")
	}

	// Fallback: drop everything through the closing delimiter line.
	lines := strings.Split(trimmed, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.TrimLeft(strings.Join(lines[i+1:], "\n"), " \t\r\n")
		}
	}
	return content
}

// shiftHeadings rebases every ATX heading in content by base levels, capped
// at maxHeadingLevel. A level-k heading becomes level min(base+k, 6).
// Non-heading lines pass through unchanged. Callers shield fenced code
// blocks before invoking this.
func shiftHeadings(content string, base int) string {
	if base == 0 {
		return content
	}

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		m := headingLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		level := len(m[2]) + base
		if level > maxHeadingLevel {
			level = maxHeadingLevel
		}
		lines[i] = m[1] + strings.Repeat("#", level) + m[3]
	}
	return strings.Join(lines, "\n")
}
