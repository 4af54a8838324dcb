package md2epub

import "errors"

// Sentinel errors for library operations.
var (
	// Structural errors: fatal to a single build.
	ErrEmptyRootDir    = errors.New("root directory cannot be empty")
	ErrRootNotFound    = errors.New("root directory not found")
	ErrRootNotDir      = errors.New("root path is not a directory")
	ErrRootUnreadable  = errors.New("root directory cannot be read")
	ErrWorkspaceCreate = errors.New("failed to create workspace")
	ErrCompositeWrite  = errors.New("failed to write composite document")
	ErrRenderFailed    = errors.New("ebook rendering failed")

	// Contained errors: recovered at fragment or image granularity and
	// never surfaced as a build failure. Exposed so callers can classify
	// the wrapped causes found in logs and inline markers.
	ErrFragmentRead   = errors.New("fragment read failed")
	ErrHTMLConversion = errors.New("HTML conversion failed")
	ErrImageFetch     = errors.New("image fetch failed")
	ErrImageDecode    = errors.New("image decode failed")
)
