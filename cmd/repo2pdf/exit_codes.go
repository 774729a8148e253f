package main

import (
	"errors"
	"os"

	repo2pdf "github.com/alnah/go-repo2pdf"
	"github.com/alnah/go-repo2pdf/internal/config"
	"github.com/alnah/go-repo2pdf/internal/preamble"
)

// Exit codes follow Unix conventions: 0=success, 1=general, 2=usage.
const (
	ExitSuccess = 0
	ExitGeneral = 1
	ExitUsage   = 2
	ExitIO      = 3
)

// exitCodeFor maps an error to its exit code. Callers wrap with %w so
// errors.Is can see through the chain.
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, repo2pdf.ErrRepoNotFound) ||
		errors.Is(err, repo2pdf.ErrNotDirectory) ||
		errors.Is(err, repo2pdf.ErrEmptyRepo) {
		return ExitIO
	}

	if errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrEmptyConfigName) ||
		errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, config.ErrInvalidFontSize) ||
		errors.Is(err, config.ErrUnknownPreset) ||
		errors.Is(err, preamble.ErrUnknownTheme) ||
		errors.Is(err, repo2pdf.ErrNilConfig) {
		return ExitUsage
	}

	return ExitGeneral
}
