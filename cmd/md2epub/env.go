package main

import (
	"io"
	"os"
	"time"

	md2epub "github.com/alnah/go-md2epub"
)

// Environment holds injectable dependencies for testability.
type Environment struct {
	Now        func() time.Time
	Stdout     io.Writer
	Stderr     io.Writer
	NewBuilder func(opts ...md2epub.Option) Builder
}

// DefaultEnv returns the production environment.
func DefaultEnv() *Environment {
	return &Environment{
		Now:    time.Now,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		NewBuilder: func(opts ...md2epub.Option) Builder {
			return md2epub.New(opts...)
		},
	}
}
