package main

import (
	"errors"
	"os"

	md2epub "github.com/alnah/go-md2epub"
)

// Exit codes for the md2epub CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, custom codes < 126.
const (
	ExitSuccess = 0 // All requested books built
	ExitGeneral = 1 // General/unexpected error
	ExitUsage   = 2 // Invalid flags, config, or validation
	ExitIO      = 3 // File not found, permission denied
	ExitRender  = 4 // External renderer (pandoc) failure
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must wrap with
// fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	if errors.Is(err, md2epub.ErrRenderFailed) {
		return ExitRender
	}

	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, md2epub.ErrRootNotFound) ||
		errors.Is(err, md2epub.ErrRootUnreadable) ||
		errors.Is(err, md2epub.ErrWorkspaceCreate) ||
		errors.Is(err, md2epub.ErrCompositeWrite) ||
		errors.Is(err, ErrNoRoots) {
		return ExitIO
	}

	if errors.Is(err, ErrConfigNotFound) ||
		errors.Is(err, ErrConfigParse) ||
		errors.Is(err, ErrEmptyConfigName) ||
		errors.Is(err, ErrNoInput) ||
		errors.Is(err, md2epub.ErrEmptyRootDir) ||
		errors.Is(err, md2epub.ErrRootNotDir) {
		return ExitUsage
	}

	return ExitGeneral
}
