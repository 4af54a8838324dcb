package md2epub

import (
	"bytes"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/alnah/go-md2epub/internal/fileutil"
)

// CommandRunner abstracts command execution to enable testing without real
// subprocesses.
type CommandRunner interface {
	Run(name string, args ...string) (stdout string, stderr string, err error)
}

// ExecRunner implements CommandRunner using os/exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(name string, args ...string) (string, string, error) {
	cmd := exec.Command(name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// HTMLConverter converts one HTML fragment file to Markdown.
type HTMLConverter interface {
	ToMarkdown(path string) (string, error)
}

// PandocHTMLConverter converts HTML fragments by invoking the Pandoc CLI.
type PandocHTMLConverter struct {
	Runner CommandRunner
}

// ToMarkdown converts the HTML file at path to Markdown on stdout.
// A non-zero exit is a recoverable per-fragment failure for the caller.
func (c *PandocHTMLConverter) ToMarkdown(path string) (string, error) {
	stdout, stderr, err := c.Runner.Run("pandoc", "-f", "html", "-t", "markdown", path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrHTMLConversion, strings.TrimSpace(stderr), err)
	}
	return stdout, nil
}

// Renderer produces the final packaged document from a composite file.
type Renderer interface {
	Render(compositePath, outputPath, format string) error
}

// PandocRenderer invokes the Pandoc CLI with a fixed option set: table of
// contents to depth 3, standalone mode, code highlighting disabled, and the
// workspace on the resource search path so images/ references resolve.
// For EPUB it enables smart punctuation and picks up an optional cover image
// at the conventional workspace path assets/cover.jpg.
type PandocRenderer struct {
	Runner CommandRunner
}

// Render compiles compositePath into outputPath in the given format.
// Success is the exit code; stderr is attached to the error verbatim and
// never interpreted further.
func (r *PandocRenderer) Render(compositePath, outputPath, format string) error {
	workspace := filepath.Dir(compositePath)

	args := []string{
		compositePath,
		"-o", outputPath,
		"--toc",
		"--toc-depth=3",
		"--standalone",
		"--no-highlight",
		"--resource-path=" + workspace,
	}

	if format == FormatEPUB {
		args = append(args, "-f", "markdown+smart")
		cover := filepath.Join(workspace, "assets", "cover.jpg")
		if fileutil.FileExists(cover) {
			args = append(args, "--epub-cover-image="+cover)
		}
	}

	_, stderr, err := r.Runner.Run("pandoc", args...)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRenderFailed, strings.TrimSpace(stderr), err)
	}
	return nil
}
