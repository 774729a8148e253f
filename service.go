package repo2pdf

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-repo2pdf/internal/classify"
	"github.com/alnah/go-repo2pdf/internal/config"
	"github.com/alnah/go-repo2pdf/internal/emoji"
	"github.com/alnah/go-repo2pdf/internal/fetch"
	"github.com/alnah/go-repo2pdf/internal/fileutil"
	"github.com/alnah/go-repo2pdf/internal/imaging"
	"github.com/alnah/go-repo2pdf/internal/manifest"
	"github.com/alnah/go-repo2pdf/internal/normalize"
	"github.com/alnah/go-repo2pdf/internal/preamble"
	"github.com/alnah/go-repo2pdf/internal/prose"
)

// EmojiEngine substitutes emoji clusters and reports whether any asset was
// actually used.
type EmojiEngine interface {
	Replace(ctx context.Context, text string, rc emoji.RenderContext) string
	Used() bool
}

// Service composes repositories into documents. Construct with New; a
// zero Service is not usable.
type Service struct {
	cfg     *config.Config
	log     *slog.Logger
	workDir string
	ownsWD  bool

	images prose.ImageResolver
	emoji  EmojiEngine
	chain  *imaging.Chain
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger; defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithWorkDir sets the staging directory that receives converted images
// and emoji assets. It must outlive rendering of the Document. When unset,
// New creates a temp directory that Close removes.
func WithWorkDir(dir string) Option {
	return func(s *Service) { s.workDir = dir }
}

// WithImageResolver replaces the imaging engine.
func WithImageResolver(r prose.ImageResolver) Option {
	return func(s *Service) { s.images = r }
}

// WithEmojiEngine replaces the emoji engine.
func WithEmojiEngine(e EmojiEngine) Option {
	return func(s *Service) { s.emoji = e }
}

// New creates a Service from a validated configuration.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}

	if s.workDir == "" {
		dir, err := os.MkdirTemp("", "repo2pdf-*")
		if err != nil {
			return nil, fmt.Errorf("creating staging dir: %w", err)
		}
		s.workDir = dir
		s.ownsWD = true
	}

	client := fetch.New()
	if s.images == nil {
		s.chain = imaging.NewChain()
		engine, err := imaging.NewEngine(s.workDir, client, s.chain, s.log)
		if err != nil {
			return nil, err
		}
		s.images = engine
	}
	if s.emoji == nil {
		rasterizer, _ := s.images.(emoji.Rasterizer)
		engine, err := emoji.New(
			filepath.Join(s.workDir, "emoji"), cfg.OfflineEmoji(), client, rasterizer, s.log)
		if err != nil {
			return nil, err
		}
		s.emoji = engine
	}
	return s, nil
}

// WorkDir returns the staging directory holding converted assets.
func (s *Service) WorkDir() string { return s.workDir }

// Close releases the rasterizer and, when New created the staging
// directory, removes it along with every cached asset.
func (s *Service) Close() error {
	var firstErr error
	if s.chain != nil {
		firstErr = s.chain.Close()
	}
	if s.ownsWD {
		if err := os.RemoveAll(s.workDir); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// entry is one walked file waiting for processing.
type entry struct {
	relPath string
	class   classify.Class
	size    int64
}

// section is the processed output for one file, composed in path order.
type section struct {
	entry
	header  string
	chunks  []normalize.Chunk
	lang    string
	prose   string
	lines   int
	wrapped bool
	split   bool
	dropped []string
	skip    string // non-empty reason excludes the file
}

// Compose walks repoRoot and produces the document. Per-file failures
// degrade to recorded skips; only configuration and repository errors are
// returned.
func (s *Service) Compose(ctx context.Context, repoRoot string) (*Document, error) {
	info, err := os.Stat(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRepoNotFound, repoRoot)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, repoRoot)
	}
	repoRoot, err = filepath.Abs(repoRoot)
	if err != nil {
		return nil, err
	}

	entries, skips, err := s.walk(repoRoot)
	if err != nil {
		return nil, err
	}

	sections, moreSkips := s.process(ctx, repoRoot, entries)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	skips = append(skips, moreSkips...)

	return s.compose(filepath.Base(repoRoot), sections, skips)
}

// walk collects every candidate file in lexical path order, applying the
// ignore patterns and the hidden-file rule as it goes.
func (s *Service) walk(repoRoot string) ([]entry, []manifest.Skip, error) {
	var entries []entry
	var skips []manifest.Skip

	err := filepath.WalkDir(repoRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(repoRoot, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		name := d.Name()

		hidden := strings.HasPrefix(name, ".") && !classify.AllowedDotfile(name)
		if d.IsDir() {
			if hidden || s.ignored(rel, name) {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden || s.ignored(rel, name) {
			return nil
		}

		fi, statErr := d.Info()
		if statErr != nil {
			skips = append(skips, manifest.Skip{Path: rel, Reason: "unreadable"})
			return nil
		}

		class := classify.Detect(rel)
		switch class {
		case classify.ClassImage:
			// Images enter the document only when prose references them.
			return nil
		case classify.ClassBinary:
			skips = append(skips, manifest.Skip{Path: rel, Reason: "binary file"})
			return nil
		case classify.ClassIgnored:
			return nil
		}

		if fi.Size() > s.cfg.MaxFileSize {
			skips = append(skips, manifest.Skip{Path: rel, Reason: skipReason(ErrFileTooLarge)})
			return nil
		}

		entries = append(entries, entry{relPath: rel, class: class, size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walking repository: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].relPath < entries[j].relPath })
	return entries, skips, nil
}

// ignored reports whether a path matches any ignore pattern. Patterns
// match the base name (glob) or any path segment (literal).
func (s *Service) ignored(rel, name string) bool {
	for _, pat := range s.cfg.Ignores {
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
		if !strings.ContainsAny(pat, "*?[") {
			for _, seg := range strings.Split(rel, "/") {
				if seg == pat {
					return true
				}
			}
		}
	}
	return false
}

// process normalizes every entry concurrently. Results keep their slot so
// composition stays in path order.
func (s *Service) process(ctx context.Context, repoRoot string, entries []entry) ([]*section, []manifest.Skip) {
	normalizer := normalize.New(normalize.Options{
		MaxLineLength:  s.cfg.MaxLineLength,
		SplitThreshold: s.cfg.SplitThreshold,
		ChunkLines:     s.cfg.ChunkLines,
		ExtractHeader:  true,
	}, s.emoji)
	transformer := prose.New(repoRoot, s.cfg.MaxLineLength, s.images, s.emoji, s.log)

	sections := make([]*section, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())

	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			sections[i] = s.processOne(gctx, repoRoot, e, normalizer, transformer)
			return nil
		})
	}
	_ = g.Wait()

	var out []*section
	var skips []manifest.Skip
	for _, sec := range sections {
		if sec == nil {
			continue
		}
		if sec.skip != "" {
			skips = append(skips, manifest.Skip{Path: sec.relPath, Reason: sec.skip})
			continue
		}
		out = append(out, sec)
	}
	return out, skips
}

func (s *Service) workers() int {
	if s.cfg.Workers > 0 {
		return s.cfg.Workers
	}
	return 4
}

// skipReason translates a classification error into the manifest's skip
// reason. errors.Is sees through wrapping, so callers may annotate.
func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrFileTooLarge):
		return "exceeds size limit"
	case errors.Is(err, ErrNotText):
		return "binary content"
	case errors.Is(err, ErrUnsafePath):
		return "path escapes repository"
	}
	return err.Error()
}

// processOne reads and transforms a single file. Failures land in the
// section's skip reason instead of an error.
func (s *Service) processOne(ctx context.Context, repoRoot string, e entry, normalizer *normalize.Normalizer, transformer *prose.Transformer) *section {
	sec := &section{entry: e}

	abs := filepath.Join(repoRoot, filepath.FromSlash(e.relPath))
	if !fileutil.PathWithin(repoRoot, abs) {
		sec.skip = skipReason(ErrUnsafePath)
		return sec
	}

	data, err := os.ReadFile(abs) // #nosec G304 -- path is confined to the walked repo
	if err != nil {
		s.log.Warn("reading file", "path", e.relPath, "error", err)
		sec.skip = "unreadable"
		return sec
	}
	if !fileutil.IsTextData(data) {
		sec.skip = skipReason(ErrNotText)
		return sec
	}
	content := string(data)
	sec.lines = strings.Count(content, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		sec.lines++
	}

	switch e.class {
	case classify.ClassProse:
		res, err := transformer.Transform(ctx, e.relPath, content)
		if err != nil {
			s.log.Warn("transforming prose", "path", e.relPath, "error", err)
			sec.skip = "transform failed"
			return sec
		}
		sec.prose = res.Content
		sec.wrapped = res.Wrapped
		sec.dropped = res.Dropped
		sec.lang = "markdown"
	default:
		res, err := normalizer.Normalize(ctx, e.relPath, content)
		if err != nil {
			s.log.Warn("normalizing code", "path", e.relPath, "error", err)
			sec.skip = "normalize failed"
			return sec
		}
		sec.header = res.Header
		sec.chunks = res.Chunks
		sec.lang = res.Lang
		sec.wrapped = res.Wrapped
		sec.split = res.Split
	}
	return sec
}

// remoteImage matches any Markdown image reference that still points at
// the network after transformation.
var remoteImage = regexp.MustCompile(`!\[[^\]]*\]\(https?://[^)]*\)`)

// compose serializes the sections into the final document, builds the
// manifest front matter, and derives the renderer configuration.
func (s *Service) compose(repoName string, sections []*section, skips []manifest.Skip) (*Document, error) {
	if len(sections) == 0 {
		return nil, fmt.Errorf("%w", ErrEmptyRepo)
	}

	stats := Stats{}
	var files []manifest.FileInfo
	var body strings.Builder

	fmt.Fprintf(&body, "# %s\n\n", repoName)

	for _, sec := range sections {
		files = append(files, manifest.FileInfo{
			Path:  sec.relPath,
			Size:  sec.size,
			Lines: sec.lines,
			Lang:  sec.lang,
		})
		stats.Files++
		stats.Lines += sec.lines
		stats.Bytes += sec.size
		stats.Chunks += len(sec.chunks)
		stats.Wrapped = stats.Wrapped || sec.wrapped
		stats.Dropped = append(stats.Dropped, sec.dropped...)
		if sec.split {
			stats.SplitFiles++
		}
	}

	mf := manifest.Build(manifest.Options{
		RepoName:     repoName,
		IncludeTree:  s.cfg.IncludeTree(),
		IncludeStats: s.cfg.IncludeStats(),
		TreeMaxDepth: s.cfg.TreeDepth(),
	}, files, skips)
	body.WriteString(mf)

	for _, sec := range sections {
		writeSection(&body, sec)
	}

	text, scrubbed := scrubRemoteImages(body.String())
	if scrubbed > 0 {
		s.log.Warn("removed remote image references", "count", scrubbed)
	}

	stats.EmojiUsed = s.emoji != nil && s.emoji.Used()
	stats.CJK = preamble.ContainsCJK(text)

	render, err := preamble.Build(s.cfg.Render, preamble.Flags{
		Wrapped:   stats.Wrapped,
		EmojiUsed: stats.EmojiUsed,
		CJK:       stats.CJK,
	})
	if err != nil {
		return nil, err
	}

	return &Document{
		Body:   text,
		Render: render,
		Manifest: Manifest{
			RepoName: repoName,
			Files:    files,
			Skips:    skips,
			Stats:    stats,
		},
	}, nil
}

// writeSection emits one file: heading, extracted header prose, then
// either the transformed Markdown or the fenced code chunks.
func writeSection(b *strings.Builder, sec *section) {
	fmt.Fprintf(b, "## %s\n\n", sec.relPath)

	if sec.prose != "" {
		b.WriteString(sec.prose)
		b.WriteString("\n\n")
		return
	}

	if sec.header != "" {
		b.WriteString(sec.header)
		b.WriteString("\n\n")
	}
	for _, c := range sec.chunks {
		if len(sec.chunks) > 1 {
			fmt.Fprintf(b, "*Part %d/%d (lines %d-%d)*\n\n", c.Index, c.Total, c.StartLine, c.EndLine)
		}
		fence := fenceFor(c.Body)
		fmt.Fprintf(b, "%s%s\n%s\n%s\n\n", fence, sec.lang, c.Body, fence)
	}
}

// fenceFor returns a backtick fence longer than any backtick run inside
// body, so no content line can close the fence early.
func fenceFor(body string) string {
	run, longest := 0, 0
	for _, r := range body {
		if r == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return strings.Repeat("`", max(5, longest+1))
}

// scrubRemoteImages removes any image reference that would make the
// renderer touch the network.
func scrubRemoteImages(text string) (string, int) {
	count := 0
	out := remoteImage.ReplaceAllStringFunc(text, func(string) string {
		count++
		return ""
	})
	return out, count
}
