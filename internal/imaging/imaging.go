// Package imaging resolves image references from Markdown and HTML into
// renderer-acceptable raster files. Remote references are downloaded,
// vector formats are rasterized through a converter chain, and everything
// lands in a content-keyed on-disk cache shared by the whole run.
package imaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"

	"github.com/alnah/go-repo2pdf/internal/fileutil"
)

// Sentinel errors for image resolution.
var (
	ErrUnresolved  = errors.New("image reference could not be resolved")
	ErrOutsideRoot = errors.New("image path escapes repository root")
)

// memoSize bounds the in-memory resolution memo.
const memoSize = 256

// CacheSubdir is the name of the image cache directory inside the staging
// area; emitted references are relative to the staging root.
const CacheSubdir = "images"

// Downloader fetches one URL into a local file, returning the content type.
type Downloader interface {
	GetFile(ctx context.Context, url, destPath string) (contentType string, err error)
}

// Engine resolves, downloads, and converts image references.
type Engine struct {
	cacheDir string // absolute path of the image cache
	client   Downloader
	chain    *Chain
	log      *slog.Logger
	memo     *lru.Cache[string, string] // source key -> emitted reference ("" = known-failed)
}

// NewEngine creates an Engine caching under stagingDir/images.
func NewEngine(stagingDir string, client Downloader, chain *Chain, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	cacheDir := filepath.Join(stagingDir, CacheSubdir)
	if err := os.MkdirAll(cacheDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating image cache dir: %w", err)
	}
	memo, err := lru.New[string, string](memoSize)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cacheDir: cacheDir,
		client:   client,
		chain:    chain,
		log:      log,
		memo:     memo,
	}, nil
}

// Rasterize satisfies the emoji engine's Rasterizer contract by delegating
// to the converter chain.
func (e *Engine) Rasterize(ctx context.Context, svg []byte, destPath string) error {
	return e.chain.Rasterize(ctx, svg, destPath)
}

// ResolveLocal maps a reference to an absolute file path. Strategy order:
// a leading separator resolves against the repository root (never the
// filesystem root), then the referencing file's directory, then the
// repository root. The first existing file wins. URL-shaped references are
// not accepted here: URL syntax is unambiguous, so remote resolution always
// takes precedence over path interpretation at the call site.
func (e *Engine) ResolveLocal(ref, repoRoot, fileDir string) (string, error) {
	if ref == "" || fileutil.IsURL(ref) {
		return "", fmt.Errorf("%w: %q", ErrUnresolved, ref)
	}

	cleaned := strings.TrimPrefix(ref, "./")

	var tries []string
	if strings.HasPrefix(ref, "/") {
		tries = []string{filepath.Join(repoRoot, strings.TrimPrefix(ref, "/"))}
	} else {
		tries = []string{
			filepath.Join(fileDir, cleaned),
			filepath.Join(repoRoot, cleaned),
		}
	}

	for _, candidate := range tries {
		if !fileutil.PathWithin(repoRoot, candidate) {
			return "", fmt.Errorf("%w: %q", ErrOutsideRoot, ref)
		}
		if fileutil.FileExists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnresolved, ref)
}

// Download fetches a remote image into the cache and returns the emitted
// reference (relative to the staging root). SVG bodies are rasterized;
// other formats are stored as-is. Failures return ErrUnresolved so callers
// drop the reference instead of failing the document.
func (e *Engine) Download(ctx context.Context, rawURL string) (string, error) {
	if cached, ok := e.memoGet("url:" + rawURL); ok {
		return cached, e.memoErr(cached, rawURL)
	}

	ref, err := e.download(ctx, rawURL)
	e.memoPut("url:"+rawURL, ref)
	return ref, err
}

func (e *Engine) download(ctx context.Context, rawURL string) (string, error) {
	key := fmt.Sprintf("%016x", xxh3.Hash([]byte(rawURL)))
	part := filepath.Join(e.cacheDir, key+".part")

	contentType, err := e.client.GetFile(ctx, rawURL, part)
	if err != nil {
		e.log.Warn("remote image download failed", "url", rawURL, "error", err)
		return "", fmt.Errorf("%w: %q", ErrUnresolved, rawURL)
	}
	defer func() { _ = os.Remove(part) }()

	if strings.Contains(strings.ToLower(contentType), "svg") ||
		strings.HasSuffix(strings.ToLower(rawURL), ".svg") {
		name := key + ".png"
		dest := filepath.Join(e.cacheDir, name)
		if !fileutil.FileExists(dest) {
			body, readErr := os.ReadFile(part) // #nosec G304 -- cache-internal path
			if readErr != nil {
				return "", fmt.Errorf("%w: %q", ErrUnresolved, rawURL)
			}
			if err := e.chain.Rasterize(ctx, body, dest); err != nil {
				e.log.Warn("remote SVG conversion failed", "url", rawURL, "error", err)
				return "", fmt.Errorf("%w: %q", ErrUnresolved, rawURL)
			}
		}
		return path.Join(CacheSubdir, name), nil
	}

	name := key + extensionFor(contentType, rawURL)
	dest := filepath.Join(e.cacheDir, name)
	if !fileutil.FileExists(dest) {
		if err := os.Rename(part, dest); err != nil {
			return "", fmt.Errorf("caching image: %w", err)
		}
	}
	return path.Join(CacheSubdir, name), nil
}

// ConvertLocalSVG rasterizes a local SVG file into the cache, keyed by
// content so identical files convert once. Returns the emitted reference.
func (e *Engine) ConvertLocalSVG(ctx context.Context, absPath string) (string, error) {
	if cached, ok := e.memoGet("file:" + absPath); ok {
		return cached, e.memoErr(cached, absPath)
	}

	ref, err := e.convertLocalSVG(ctx, absPath)
	e.memoPut("file:"+absPath, ref)
	return ref, err
}

func (e *Engine) convertLocalSVG(ctx context.Context, absPath string) (string, error) {
	content, err := os.ReadFile(absPath) // #nosec G304 -- path validated against repo root by caller
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnresolved, absPath)
	}
	return e.convertSVG(ctx, content, absPath)
}

// ConvertSVGContent rasterizes inline SVG markup into the cache.
func (e *Engine) ConvertSVGContent(ctx context.Context, svg string) (string, error) {
	return e.convertSVG(ctx, []byte(svg), "inline SVG")
}

func (e *Engine) convertSVG(ctx context.Context, svg []byte, origin string) (string, error) {
	name := fmt.Sprintf("%016x.png", xxh3.Hash(svg))
	dest := filepath.Join(e.cacheDir, name)

	if !fileutil.FileExists(dest) {
		if err := e.chain.Rasterize(ctx, svg, dest); err != nil {
			e.log.Warn("SVG conversion failed", "source", origin, "error", err)
			return "", fmt.Errorf("%w: %s", ErrUnresolved, origin)
		}
	}
	return path.Join(CacheSubdir, name), nil
}

// extensionFor picks a file extension from the content type, then the URL.
func extensionFor(contentType, rawURL string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "image/png"):
		return ".png"
	case strings.Contains(ct, "image/jpeg"), strings.Contains(ct, "image/jpg"):
		return ".jpg"
	case strings.Contains(ct, "image/gif"):
		return ".gif"
	case strings.Contains(ct, "image/webp"):
		return ".webp"
	}
	if u, err := url.Parse(rawURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" {
			return ext
		}
	}
	return ".png"
}

func (e *Engine) memoGet(key string) (string, bool) {
	return e.memo.Get(key)
}

func (e *Engine) memoPut(key, value string) {
	e.memo.Add(key, value)
}

// memoErr reconstructs the failure for a memoized empty result.
func (e *Engine) memoErr(cached, ref string) error {
	if cached == "" {
		return fmt.Errorf("%w: %q", ErrUnresolved, ref)
	}
	return nil
}
