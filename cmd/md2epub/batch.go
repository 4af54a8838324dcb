package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/maruel/natural"

	md2epub "github.com/alnah/go-md2epub"
)

// Sentinel errors for CLI operations.
var (
	ErrNoInput        = errors.New("no input specified: pass book roots or --base-dir")
	ErrNoRoots        = errors.New("no book roots found under base directory")
	ErrAllRootsFailed = errors.New("every book root failed")
)

// Builder is the interface for the build service.
type Builder interface {
	Build(ctx context.Context, input md2epub.Input) (*md2epub.BuildResult, error)
}

// Compile-time interface implementation check.
var _ Builder = (*md2epub.Service)(nil)

// rootResult holds the outcome of one book root.
type rootResult struct {
	Root     string
	Result   *md2epub.BuildResult
	Err      error
	Duration time.Duration
}

// run loads configuration, resolves the book roots, and builds each one.
// A failing root never aborts the others; the summary reports both counts
// and the failed root names. Only a run where every root fails (or nothing
// was found to build) returns an error.
func run(ctx context.Context, flags *buildFlags, args []string, env *Environment) error {
	cfg := DefaultConfig()
	if flags.config != "" {
		loaded, err := LoadConfig(flags.config)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	mergeFlags(flags, cfg)

	roots, err := resolveRoots(args, cfg)
	if err != nil {
		return err
	}

	svc, err := newService(flags, cfg, env)
	if err != nil {
		return err
	}

	results := buildAll(ctx, svc, roots, flags, cfg, env)
	return report(results, flags, env)
}

// resolveRoots picks the book roots: positional arguments win, otherwise
// every non-ignored subdirectory of the configured base directory.
func resolveRoots(args []string, cfg *Config) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if cfg.Input.BaseDir == "" {
		return nil, ErrNoInput
	}

	roots, err := discoverRoots(cfg.Input.BaseDir)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRoots, cfg.Input.BaseDir)
	}
	return roots, nil
}

// discoverRoots lists the immediate subdirectories of baseDir, skipping
// hidden and temporary entries, in natural sort order.
func discoverRoots(baseDir string) ([]string, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("reading base directory: %w", err)
	}

	var roots []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}
		roots = append(roots, filepath.Join(baseDir, name))
	}

	sort.Slice(roots, func(i, j int) bool {
		return natural.Less(strings.ToLower(roots[i]), strings.ToLower(roots[j]))
	})
	return roots, nil
}

// newService builds the library service from config and flags.
func newService(flags *buildFlags, cfg *Config, env *Environment) (Builder, error) {
	opts := []md2epub.Option{
		md2epub.WithWorkers(cfg.Images.Workers),
	}
	if cfg.Images.MaxDim > 0 {
		opts = append(opts, md2epub.WithMaxImageDim(cfg.Images.MaxDim))
	}
	timeout, err := cfg.Images.fetchTimeout()
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		opts = append(opts, md2epub.WithFetchTimeout(timeout))
	}
	if flags.verbose {
		opts = append(opts, md2epub.WithLogf(func(format string, args ...any) {
			fmt.Fprintf(env.Stderr, format+"\n", args...)
		}))
	}
	return env.NewBuilder(opts...), nil
}

// buildAll processes the roots in order. Assembly order within a root is a
// correctness requirement and image downloads are already parallel inside
// the service, so roots are built sequentially.
func buildAll(ctx context.Context, svc Builder, roots []string, flags *buildFlags, cfg *Config, env *Environment) []rootResult {
	results := make([]rootResult, 0, len(roots))
	for _, root := range roots {
		if !flags.quiet {
			fmt.Fprintf(env.Stdout, "building %s\n", root)
		}

		start := env.Now()
		res, err := svc.Build(ctx, md2epub.Input{
			RootDir:       root,
			Format:        cfg.Output.Format,
			OutputDir:     cfg.Output.Dir,
			OutputName:    flags.name,
			Language:      cfg.Book.Language,
			Date:          cfg.Book.Date,
			CompositeOnly: flags.compositeOnly,
		})
		results = append(results, rootResult{
			Root:     root,
			Result:   res,
			Err:      err,
			Duration: env.Now().Sub(start),
		})
	}
	return results
}

// report prints the per-root outcomes and the final summary.
func report(results []rootResult, flags *buildFlags, env *Environment) error {
	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, filepath.Base(r.Root))
			fmt.Fprintf(env.Stderr, "error: %s: %v\n", r.Root, r.Err)
			continue
		}
		if flags.quiet {
			continue
		}

		out := r.Result.OutputPath
		if out == "" {
			out = r.Result.CompositePath
		}
		fmt.Fprintf(env.Stdout, "done: %s (%s)\n", out, r.Duration.Round(time.Millisecond))
		for _, skipped := range r.Result.SkippedImages {
			fmt.Fprintf(env.Stderr, "warning: image left unresolved: %s\n", skipped)
		}
	}

	succeeded := len(results) - len(failed)
	if !flags.quiet || len(failed) > 0 {
		fmt.Fprintf(env.Stdout, "finished: %d succeeded, %d failed\n", succeeded, len(failed))
	}
	if len(failed) > 0 {
		fmt.Fprintf(env.Stdout, "failed roots: %s\n", strings.Join(failed, ", "))
	}

	if succeeded == 0 && len(failed) > 0 {
		return fmt.Errorf("%w: %s", ErrAllRootsFailed, strings.Join(failed, ", "))
	}
	return nil
}
