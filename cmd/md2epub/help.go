package main

import (
	"fmt"

	flag "github.com/spf13/pflag"
)

// printUsage writes the CLI usage text to the flag set's output.
func printUsage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintln(out, "md2epub assembles a directory tree of Markdown/HTML fragments into an ebook.")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  md2epub [flags] <book-root>...")
	fmt.Fprintln(out, "  md2epub [flags] --base-dir <dir>   # every subdirectory is one book")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Flags:")
	fmt.Fprint(out, fs.FlagUsages())
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Entries whose name starts with \"_\" or \".\" are skipped. The composite")
	fmt.Fprintln(out, "document and downloaded images are kept in <root>/_booktemp for inspection.")
	fmt.Fprintln(out, "Rendering requires pandoc on PATH.")
}
