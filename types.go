package md2epub

import (
	"net/http"
	"runtime"
	"time"
)

// Output format constants. Any Pandoc-supported format string is accepted;
// EPUB gets special treatment (smart punctuation, optional cover image).
const (
	FormatEPUB = "epub"
	FormatPDF  = "pdf"
	FormatHTML = "html"
)

// DefaultLanguage is the metadata language tag used when none is given.
const DefaultLanguage = "en"

// Image processing bounds.
const (
	// DefaultMaxImageDim caps the longest image side after downscaling.
	DefaultMaxImageDim = 1200

	// jpegQuality is the lossy quality used when re-encoding JPEG assets.
	jpegQuality = 85
)

// defaultFetchTimeout bounds a single image download.
const defaultFetchTimeout = 30 * time.Second

// Worker pool sizing constants.
const (
	// minWorkers ensures at least one download worker is available.
	minWorkers = 1

	// maxWorkers caps concurrent downloads to a practical ceiling.
	maxWorkers = 8

	// cpuDivisor leaves headroom for decode/encode work on the same cores.
	cpuDivisor = 2
)

// Metadata is the leading YAML block of the composite document.
type Metadata struct {
	Title    string `yaml:"title"`
	Author   string `yaml:"author"`
	Date     string `yaml:"date"`
	Language string `yaml:"lang"`
}

// Input contains build parameters for one book root.
type Input struct {
	RootDir       string // Directory holding the fragment tree (required)
	Format        string // Output format (default: epub)
	OutputDir     string // Output directory (default: RootDir)
	OutputName    string // Output file base name (default: root directory name)
	Language      string // Metadata language tag (default: "en")
	Date          string // Metadata date; "auto" resolves to today (default: "auto")
	CompositeOnly bool   // Stop after the composite document, skip rendering
}

// LocalAsset describes one downloaded and normalized image.
type LocalAsset struct {
	Name   string // Filename inside the workspace images/ directory
	URL    string // Source URL
	Format string // "jpeg", "png", or "gif"
	Width  int    // Pixel width after downscaling
	Height int    // Pixel height after downscaling
	Bytes  int64  // File size on disk
}

// BuildResult holds the outcome of a single build.
type BuildResult struct {
	OutputPath    string       // Rendered ebook (empty when CompositeOnly)
	CompositePath string       // Merged composite document
	WorkspaceDir  string       // Temporary workspace under the root
	Assets        []LocalAsset // Images downloaded into the workspace
	SkippedImages []string     // URLs left unresolved after fetch/decode failures
}

// Option configures a Service.
type Option func(*Service)

// serviceConfig holds internal configuration for Service.
type serviceConfig struct {
	fetchTimeout time.Duration
	workers      int
	maxImageDim  int
	httpClient   *http.Client
	logf         func(format string, args ...any)
}

// WithFetchTimeout sets the per-image download timeout.
// Panics if d <= 0 (programmer error, similar to time.NewTicker).
func WithFetchTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("md2epub: WithFetchTimeout duration must be positive")
	}
	return func(s *Service) {
		s.cfg.fetchTimeout = d
	}
}

// WithWorkers sets the image download worker count.
// Zero or negative selects the automatic GOMAXPROCS-based size.
func WithWorkers(n int) Option {
	return func(s *Service) {
		s.cfg.workers = n
	}
}

// WithMaxImageDim sets the longest allowed image side in pixels.
// Panics if px <= 0.
func WithMaxImageDim(px int) Option {
	if px <= 0 {
		panic("md2epub: WithMaxImageDim bound must be positive")
	}
	return func(s *Service) {
		s.cfg.maxImageDim = px
	}
}

// WithHTTPClient replaces the HTTP client used for image downloads.
// The caller owns the client's timeout configuration.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		s.cfg.httpClient = c
	}
}

// WithRunner replaces the subprocess runner behind both the HTML converter
// and the renderer. Intended for tests.
func WithRunner(r CommandRunner) Option {
	return func(s *Service) {
		s.converter = &PandocHTMLConverter{Runner: r}
		s.renderer = &PandocRenderer{Runner: r}
	}
}

// WithHTMLConverter replaces the HTML-to-Markdown converter.
func WithHTMLConverter(c HTMLConverter) Option {
	return func(s *Service) {
		s.converter = c
	}
}

// WithRenderer replaces the final document renderer.
func WithRenderer(r Renderer) Option {
	return func(s *Service) {
		s.renderer = r
	}
}

// WithLogf sets a sink for progress and recovery messages.
// The default discards them.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(s *Service) {
		s.cfg.logf = logf
	}
}

// resolveWorkers determines the download pool size.
// Priority: explicit value > GOMAXPROCS-based calculation.
func resolveWorkers(workers int) int {
	if workers > 0 {
		return workers
	}

	// Auto-calculate based on GOMAXPROCS (adjusted by automaxprocs in the CLI)
	n := runtime.GOMAXPROCS(0) / cpuDivisor

	if n < minWorkers {
		return minWorkers
	}
	if n > maxWorkers {
		return maxWorkers
	}
	return n
}
