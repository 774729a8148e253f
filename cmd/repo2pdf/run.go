package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	repo2pdf "github.com/alnah/go-repo2pdf"
	"github.com/alnah/go-repo2pdf/internal/config"
	"github.com/alnah/go-repo2pdf/internal/fileutil"
	"github.com/alnah/go-repo2pdf/internal/hints"
)

// Output file names inside the output directory. The document references
// image and emoji assets relative to the same directory, so the whole
// directory is the unit a renderer consumes.
const (
	documentFile = "document.md"
	defaultsFile = "defaults.yaml"
	headerFile   = "header.tex"
)

func run(flags *cliFlags) error {
	log := newLogger(flags)

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	outDir, err := filepath.Abs(flags.out)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outDir), 0o750); err != nil {
		return fmt.Errorf("creating output directory: %w%s", err, hints.ForOutputDirectory())
	}

	// Stage everything in a sibling directory so an aborted run leaves the
	// output directory untouched.
	staging, err := os.MkdirTemp(filepath.Dir(outDir), ".repo2pdf-*")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w%s", err, hints.ForOutputDirectory())
	}
	defer func() { _ = os.RemoveAll(staging) }()

	svc, err := repo2pdf.New(cfg,
		repo2pdf.WithLogger(log),
		repo2pdf.WithWorkDir(staging),
	)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			log.Warn("closing service", "error", cerr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	doc, err := svc.Compose(ctx, flags.repo)
	if err != nil {
		return err
	}

	outputs := map[string][]byte{
		documentFile: []byte(doc.Body),
		defaultsFile: doc.Render.DefaultsYAML,
		headerFile:   doc.Render.HeaderLaTeX,
	}
	for name, data := range outputs {
		if err := fileutil.WriteFileAtomic(filepath.Join(staging, name), data, 0o640); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}

	if err := publish(staging, outDir); err != nil {
		return fmt.Errorf("publishing output: %w", err)
	}

	st := doc.Manifest.Stats
	log.Info("composed",
		"repo", doc.Manifest.RepoName,
		"files", st.Files,
		"lines", st.Lines,
		"chunks", st.Chunks,
		"skipped", len(doc.Manifest.Skips),
		"out", outDir,
	)
	if !flags.quiet {
		fmt.Fprintf(os.Stderr, "Wrote %s (%d files, %d skipped)\n",
			filepath.Join(outDir, documentFile), st.Files, len(doc.Manifest.Skips))
	}
	return nil
}

// publish moves every staged entry into the output directory. Staging is a
// sibling of outDir, so each move is a same-filesystem rename. Entries from
// an earlier run are replaced.
func publish(staging, outDir string) error {
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return err
	}
	entries, err := os.ReadDir(staging)
	if err != nil {
		return err
	}
	for _, e := range entries {
		dst := filepath.Join(outDir, e.Name())
		if err := os.RemoveAll(dst); err != nil {
			return err
		}
		if err := os.Rename(filepath.Join(staging, e.Name()), dst); err != nil {
			return err
		}
	}
	return nil
}

// loadConfig builds the effective configuration: file (or defaults), then
// flag overrides, then preset merge and validation.
func loadConfig(flags *cliFlags) (*config.Config, error) {
	var cfg *config.Config
	if flags.config != "" {
		loaded, err := config.Load(flags.config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if flags.device != "" {
		cfg.Device = flags.device
	}
	if flags.offline {
		cfg.Emoji.Mode = config.EmojiModeOffline
	}
	if flags.workers > 0 {
		cfg.Workers = flags.workers
	}

	if err := cfg.ApplyPreset(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the CLI logger: debug when verbose, errors only when
// quiet, info otherwise.
func newLogger(flags *cliFlags) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case flags.verbose:
		level = slog.LevelDebug
	case flags.quiet:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
