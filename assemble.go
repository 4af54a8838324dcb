package md2epub

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maruel/natural"
)

// assembler walks a fragment tree and produces the composite document body.
// Assembly is strictly sequential: section order is a correctness
// requirement because heading hierarchy depends on it.
type assembler struct {
	converter HTMLConverter
	logf      func(format string, args ...any)
}

// Assemble walks root and returns the merged body text. Only an unreadable
// root is fatal; every nested failure is contained as an inline marker.
func (a *assembler) Assemble(root string) (string, error) {
	var b strings.Builder
	if err := a.walk(&b, root, 0); err != nil {
		return "", err
	}
	return b.String(), nil
}

// walk emits one directory level. Entries are visited in case-insensitive
// natural sort order, so "chapter2" precedes "chapter10".
func (a *assembler) walk(b *strings.Builder, dir string, depth int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", dir, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return natural.Less(strings.ToLower(entries[i].Name()), strings.ToLower(entries[j].Name()))
	})

	level := min(depth+1, maxHeadingLevel)
	marker := strings.Repeat("#", level)

	for _, entry := range entries {
		name := entry.Name()
		entryPath := filepath.Join(dir, name)

		switch classifyEntry(entry) {
		case KindIgnored:
			continue

		case KindDirectory:
			b.WriteString(marker + " " + name + "\n\n")
			if err := a.walk(b, entryPath, depth+1); err != nil {
				a.logf("including directory %s: %v", entryPath, err)
				fmt.Fprintf(b, "*[error including %s: %v]*\n\n", name, err)
			}

		case KindMarkdown:
			a.includeFile(b, entryPath, KindMarkdown, marker, level)

		case KindHTML:
			a.includeFile(b, entryPath, KindHTML, marker, level)
		}
	}
	return nil
}

// includeFile emits a fragment's section heading followed by its processed
// content and a blank-line separator. A failing fragment is replaced by an
// inline error marker so the rest of the book still builds.
func (a *assembler) includeFile(b *strings.Builder, path string, kind FragmentKind, marker string, base int) {
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	b.WriteString(marker + " " + title + "\n\n")

	content, err := a.fragmentContent(path, kind)
	if err != nil {
		a.logf("including %s: %v", path, err)
		fmt.Fprintf(b, "*[error including %s: %v]*\n", filepath.Base(path), err)
		b.WriteString("\n\n")
		return
	}

	// Shift headings with fenced blocks shielded, so code comments that
	// look like headings survive verbatim.
	fences := newCodeProtector("fence")
	content = fences.protect(content, fencedBlockRE)
	content = shiftHeadings(content, base)
	b.WriteString(fences.restore(content))
	b.WriteString("\n\n")
}

// fragmentContent loads and pre-processes one fragment by kind.
func (a *assembler) fragmentContent(path string, kind FragmentKind) (string, error) {
	switch kind {
	case KindHTML:
		return a.converter.ToMarkdown(path)
	case KindMarkdown:
		raw, err := os.ReadFile(path) // #nosec G304 -- path discovered under the book root
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrFragmentRead, err)
		}
		return stripFrontMatter(string(raw)), nil
	}
	return "", fmt.Errorf("%w: unsupported fragment kind", ErrFragmentRead)
}
