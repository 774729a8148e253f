package repo2pdf

import "errors"

// Sentinel errors for the composer. Configuration and repository errors
// are fatal; everything else degrades to a per-file skip or a dropped
// reference, recorded in the manifest.
var (
	ErrNilConfig    = errors.New("config cannot be nil")
	ErrRepoNotFound = errors.New("repository path not found")
	ErrNotDirectory = errors.New("repository path is not a directory")
	ErrEmptyRepo    = errors.New("repository contains no renderable files")

	ErrFileTooLarge = errors.New("file exceeds size limit")
	ErrNotText      = errors.New("file content is not text")
	ErrUnsafePath   = errors.New("path escapes repository root")
)
