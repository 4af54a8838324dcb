package md2epub

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/alnah/go-md2epub/internal/dateutil"
	"github.com/alnah/go-md2epub/internal/fileutil"
	"github.com/alnah/go-md2epub/internal/yamlutil"
)

// File permission constants.
const (
	dirPermissions  = 0o750 // rwxr-x---: owner full, group read+execute
	filePermissions = 0o644 // rw-r--r--: owner read+write, others read
)

// Workspace layout inside a book root. The workspace name starts with an
// ignore prefix so a rebuild never assembles its own output.
const (
	workspaceDirName = "_booktemp"
	compositeName    = "main.md"
)

// Service orchestrates the assemble-normalize-resolve-render pipeline.
// A Service is stateless and safe for concurrent Build calls on
// independent roots.
type Service struct {
	cfg       serviceConfig
	converter HTMLConverter
	renderer  Renderer
}

// New creates a Service with default configuration.
// Use options to customize behavior (e.g., WithWorkers, WithFetchTimeout).
func New(opts ...Option) *Service {
	runner := &ExecRunner{}
	s := &Service{
		cfg: serviceConfig{
			fetchTimeout: defaultFetchTimeout,
			maxImageDim:  DefaultMaxImageDim,
			logf:         func(string, ...any) {},
		},
		converter: &PandocHTMLConverter{Runner: runner},
		renderer:  &PandocRenderer{Runner: runner},
	}

	for _, opt := range opts {
		opt(s)
	}

	// Create the HTTP client if not injected (e.g., by tests)
	if s.cfg.httpClient == nil {
		s.cfg.httpClient = &http.Client{Timeout: s.cfg.fetchTimeout}
	}

	return s
}

// Build runs the full pipeline for one book root and returns the result.
// On a renderer failure the partial result is returned alongside the error
// so the composite document stays available for inspection.
func (s *Service) Build(ctx context.Context, input Input) (*BuildResult, error) {
	root, err := s.validateInput(&input)
	if err != nil {
		return nil, err
	}

	workspace := filepath.Join(root, workspaceDirName)
	imagesDir := filepath.Join(workspace, assetDirName)
	if err := fileutil.EnsureDir(imagesDir, dirPermissions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkspaceCreate, err)
	}

	header, err := s.metadataBlock(root, input)
	if err != nil {
		return nil, err
	}

	asm := &assembler{converter: s.converter, logf: s.cfg.logf}
	s.cfg.logf("assembling %s", root)
	body, err := asm.Assemble(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRootUnreadable, err)
	}

	text := Normalize(header + body)

	compositePath := filepath.Join(workspace, compositeName)
	if err := os.WriteFile(compositePath, []byte(text), filePermissions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompositeWrite, err)
	}

	// Media resolution rewrites the composite document in place.
	resolver := &mediaResolver{
		client:      s.cfg.httpClient,
		workers:     resolveWorkers(s.cfg.workers),
		maxImageDim: s.cfg.maxImageDim,
		now:         time.Now,
		logf:        s.cfg.logf,
	}
	resolved, assets, skipped, err := resolver.Resolve(ctx, text, imagesDir)
	if err != nil {
		return nil, err
	}
	if resolved != text {
		if err := os.WriteFile(compositePath, []byte(resolved), filePermissions); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCompositeWrite, err)
		}
	}

	result := &BuildResult{
		CompositePath: compositePath,
		WorkspaceDir:  workspace,
		Assets:        assets,
		SkippedImages: skipped,
	}

	if input.CompositeOnly {
		return result, nil
	}

	outputPath := filepath.Join(input.OutputDir, input.OutputName+"."+input.Format)
	s.cfg.logf("rendering %s", outputPath)
	if err := s.renderer.Render(compositePath, outputPath, input.Format); err != nil {
		// Composite document retained for inspection.
		return result, err
	}

	result.OutputPath = outputPath
	return result, nil
}

// validateInput checks the root and fills input defaults in place.
// Returns the absolute root path.
func (s *Service) validateInput(input *Input) (string, error) {
	if input.RootDir == "" {
		return "", ErrEmptyRootDir
	}

	root, err := filepath.Abs(input.RootDir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRootNotFound, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrRootNotFound, root)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrRootNotDir, root)
	}

	if input.Format == "" {
		input.Format = FormatEPUB
	}
	if input.OutputDir == "" {
		input.OutputDir = root
	}
	if input.OutputName == "" {
		input.OutputName = filepath.Base(root)
	}
	if input.Language == "" {
		input.Language = DefaultLanguage
	}
	if input.Date == "" {
		input.Date = "auto"
	}

	return root, nil
}

// metadataBlock renders the leading YAML metadata block of the composite
// document. Title and author default to the root directory name.
func (s *Service) metadataBlock(root string, input Input) (string, error) {
	date, err := dateutil.ResolveDate(input.Date, time.Now())
	if err != nil {
		return "", err
	}

	meta := Metadata{
		Title:    filepath.Base(root),
		Author:   filepath.Base(root),
		Date:     date,
		Language: input.Language,
	}

	out, err := yamlutil.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompositeWrite, err)
	}
	return "---\n" + string(out) + "---\n\n", nil
}
