package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alnah/go-md2epub/internal/fileutil"
	"github.com/alnah/go-md2epub/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
)

// Config holds all configuration for book generation.
type Config struct {
	Input  InputConfig  `yaml:"input"`
	Output OutputConfig `yaml:"output"`
	Book   BookConfig   `yaml:"book"`
	Images ImagesConfig `yaml:"images"`
}

// InputConfig defines input source options.
type InputConfig struct {
	BaseDir string `yaml:"baseDir"` // Batch base directory (empty = roots on command line)
}

// OutputConfig defines output destination options.
type OutputConfig struct {
	Dir    string `yaml:"dir"`    // Output directory (empty = each book root)
	Format string `yaml:"format"` // Target format (default: epub)
}

// BookConfig defines composite document metadata options.
type BookConfig struct {
	Language string `yaml:"language"` // Metadata language tag (default: en)
	Date     string `yaml:"date"`     // Metadata date; "auto" = build day
}

// ImagesConfig defines media resolution options.
type ImagesConfig struct {
	Workers      int    `yaml:"workers"`      // Download workers (0 = auto)
	MaxDim       int    `yaml:"maxDim"`       // Longest image side in pixels (0 = default)
	FetchTimeout string `yaml:"fetchTimeout"` // Per-image timeout, e.g. "30s" (empty = default)
}

// DefaultConfig returns a neutral configuration.
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{Format: "epub"},
		Book:   BookConfig{Language: "en", Date: "auto"},
	}
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard
// locations. Returns an error if the file is not found (no silent fallback).
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	var configPath string
	if fileutil.IsFilePath(nameOrPath) {
		configPath = nameOrPath
	} else {
		var err error
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}
	return &cfg, nil
}

// resolveConfigPath searches standard locations for a named config:
// ./<name>.yaml, then $XDG_CONFIG_HOME/md2epub/<name>.yaml (or
// ~/.config/md2epub/<name>.yaml).
func resolveConfigPath(name string) (string, error) {
	candidates := []string{name + ".yaml"}

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configHome = filepath.Join(home, ".config")
		}
	}
	if configHome != "" {
		candidates = append(candidates, filepath.Join(configHome, "md2epub", name+".yaml"))
	}

	for _, c := range candidates {
		if fileutil.FileExists(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %s (searched %v)", ErrConfigNotFound, name, candidates)
}

// mergeFlags overlays CLI flags onto the config. CLI wins.
func mergeFlags(flags *buildFlags, cfg *Config) {
	if flags.baseDir != "" {
		cfg.Input.BaseDir = flags.baseDir
	}
	if flags.output != "" {
		cfg.Output.Dir = flags.output
	}
	if flags.format != "" {
		cfg.Output.Format = flags.format
	}
	if flags.lang != "" {
		cfg.Book.Language = flags.lang
	}
	if flags.date != "" {
		cfg.Book.Date = flags.date
	}
	if flags.workers > 0 {
		cfg.Images.Workers = flags.workers
	}
	if flags.maxImageDim > 0 {
		cfg.Images.MaxDim = flags.maxImageDim
	}
	if flags.fetchTimeout > 0 {
		cfg.Images.FetchTimeout = flags.fetchTimeout.String()
	}
}

// fetchTimeout parses the configured per-image timeout.
// An empty value means the library default; a malformed one is a config error.
func (c *ImagesConfig) fetchTimeout() (time.Duration, error) {
	if c.FetchTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.FetchTimeout)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: invalid fetchTimeout %q", ErrConfigParse, c.FetchTimeout)
	}
	return d, nil
}
