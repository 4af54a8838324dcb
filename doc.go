// Package md2epub assembles a tree of Markdown and HTML fragments into a
// single composite document and renders it to an ebook via Pandoc.
//
// # Quick Start
//
// Create a service and build a book from a fragment tree:
//
//	svc := md2epub.New()
//	result, err := svc.Build(ctx, md2epub.Input{
//	    RootDir: "/path/to/book",
//	    Format:  md2epub.FormatEPUB,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.OutputPath)
//
// The result also carries the composite document path and every image asset
// that was downloaded into the workspace. Use Input.CompositeOnly to stop
// before the final render and inspect the merged Markdown.
//
// # Assembly Pipeline
//
// A build runs these stages in order:
//
//  1. Tree assembly: directories and fragment files are walked in natural
//     sort order; each one becomes a section with a heading matching its
//     nesting depth. Fragment headings are shifted down by their depth,
//     capped at level 6. HTML fragments are converted to Markdown through
//     Pandoc; Markdown fragments have their front matter stripped.
//  2. Normalization: composite-wide rewrites that keep the renderer from
//     mangling image captions, very long link URLs, and bare <img> tags.
//  3. Media resolution: every remote image reference is fetched on a bounded
//     worker pool, normalized (format, transparency, size), written into the
//     workspace, and its reference rewritten to a local path.
//  4. Rendering: Pandoc turns the composite document into the target format.
//
// Fenced code blocks are shielded from every text transform: any image-like
// or heading-like syntax inside them survives byte for byte.
//
// # Failure Containment
//
// A fragment that cannot be read or converted is replaced by an inline error
// marker; an image that cannot be fetched or decoded is left as its remote
// reference and reported in BuildResult.SkippedImages. Neither aborts the
// build. Only an unreadable root, an unwritable workspace, or a renderer
// failure fails a build, and batch callers are expected to contain even
// those per root.
//
// # External Tools
//
// Both HTML conversion and final rendering shell out to pandoc, which must
// be on PATH. Inject a CommandRunner with WithRunner to fake it in tests.
package md2epub
