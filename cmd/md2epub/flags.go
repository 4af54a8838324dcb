package main

import (
	"time"

	flag "github.com/spf13/pflag"
)

// buildFlags holds all CLI flags.
type buildFlags struct {
	config        string
	baseDir       string
	format        string
	output        string
	name          string
	lang          string
	date          string
	workers       int
	maxImageDim   int
	fetchTimeout  time.Duration
	compositeOnly bool
	quiet         bool
	verbose       bool
	version       bool
}

// parseFlags parses CLI arguments and returns the flags plus positional
// arguments (book root directories).
func parseFlags(args []string) (*buildFlags, []string, error) {
	fs := flag.NewFlagSet("md2epub", flag.ContinueOnError)
	f := &buildFlags{}

	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.StringVarP(&f.baseDir, "base-dir", "d", "", "batch mode: every subdirectory is one book root")
	fs.StringVarP(&f.format, "format", "f", "", "output format (default: epub)")
	fs.StringVarP(&f.output, "output", "o", "", "output directory (default: each book root)")
	fs.StringVar(&f.name, "name", "", "output file base name (default: root directory name)")
	fs.StringVar(&f.lang, "lang", "", "metadata language tag (default: en)")
	fs.StringVar(&f.date, "date", "", `metadata date ("auto" = today)`)
	fs.IntVarP(&f.workers, "workers", "w", 0, "image download workers (0 = auto)")
	fs.IntVar(&f.maxImageDim, "max-image-dim", 0, "longest image side in pixels after downscaling")
	fs.DurationVar(&f.fetchTimeout, "fetch-timeout", 0, "per-image download timeout")
	fs.BoolVar(&f.compositeOnly, "composite-only", false, "stop after the composite document, skip rendering")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "show per-stage detail")
	fs.BoolVar(&f.version, "version", false, "print version and exit")

	fs.Usage = func() { printUsage(fs) }

	if err := fs.Parse(args[1:]); err != nil {
		return nil, nil, err
	}
	return f, fs.Args(), nil
}
