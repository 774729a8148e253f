package imaging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/alnah/go-repo2pdf/internal/fileutil"
	"github.com/alnah/go-repo2pdf/internal/hints"
)

// ErrRasterize indicates that no converter in the chain could produce a PNG.
var ErrRasterize = errors.New("SVG rasterization failed")

// rasterizeTimeout bounds a single conversion attempt.
const rasterizeTimeout = 30 * time.Second

// Converter rasterizes prepared SVG bytes into a PNG file. Implementations
// are tried in order; the first success short-circuits the chain.
type Converter interface {
	Name() string
	Rasterize(ctx context.Context, svg []byte, destPath string) error
}

// Chain tries each converter in order and returns the first success.
// The same pattern serves emoji-asset version fallback in internal/emoji.
type Chain struct {
	converters []Converter
}

// NewChain builds a converter chain. With no arguments it uses the default
// pair: headless Chrome first, rsvg-convert as the independent fallback.
func NewChain(converters ...Converter) *Chain {
	if len(converters) == 0 {
		converters = []Converter{newChromeConverter(), &rsvgConverter{}}
	}
	return &Chain{converters: converters}
}

// Rasterize prepares the SVG and walks the chain. All converters failing
// yields ErrRasterize wrapping the last cause.
func (c *Chain) Rasterize(ctx context.Context, svg []byte, destPath string) error {
	prepared, err := PrepareSVG(string(svg))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRasterize, err)
	}

	var lastErr error
	for _, conv := range c.converters {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := conv.Rasterize(ctx, []byte(prepared), destPath); err != nil {
			lastErr = fmt.Errorf("%s: %w", conv.Name(), err)
			continue
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrRasterize, lastErr)
}

// Close releases converter resources (the headless browser).
func (c *Chain) Close() error {
	var errs []error
	for _, conv := range c.converters {
		if closer, ok := conv.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// chromeConverter renders the SVG in headless Chrome and screenshots the
// root element. Rod downloads Chromium on first run if none is found.
type chromeConverter struct {
	mu      sync.Mutex
	browser *rod.Browser
}

func newChromeConverter() *chromeConverter {
	return &chromeConverter{}
}

func (c *chromeConverter) Name() string { return "chrome" }

// ensureBrowser lazily connects to the browser.
func (c *chromeConverter) ensureBrowser() (*rod.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		return c.browser, nil
	}

	l := launcher.New()
	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}
	// NoSandbox required for CI and containerized environments
	if os.Getenv("CI") == "true" || os.Getenv("ROD_NO_SANDBOX") == "1" {
		l = l.NoSandbox(true)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w%s", err, hints.ForBrowserConnect())
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to browser: %w%s", err, hints.ForBrowserConnect())
	}
	c.browser = browser
	return browser, nil
}

func (c *chromeConverter) Rasterize(ctx context.Context, svg []byte, destPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	browser, err := c.ensureBrowser()
	if err != nil {
		return err
	}

	svgPath, cleanup, err := fileutil.WriteTempFile(string(svg), "svg")
	if err != nil {
		return err
	}
	defer cleanup()

	page, err := browser.Page(proto.TargetCreateTarget{URL: "file://" + svgPath})
	if err != nil {
		return fmt.Errorf("creating page: %w", err)
	}
	defer func() { _ = page.Close() }()

	timeout := rasterizeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	page = page.Timeout(timeout)

	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("loading SVG: %w", err)
	}

	el, err := page.Element("svg")
	if err != nil {
		return fmt.Errorf("locating svg element: %w", err)
	}

	png, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return fmt.Errorf("capturing screenshot: %w", err)
	}

	return fileutil.WriteFileAtomic(destPath, png, 0o600)
}

// Close releases the browser.
func (c *chromeConverter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser != nil {
		err := c.browser.Close()
		c.browser = nil
		return err
	}
	return nil
}

// rsvgConverter shells out to rsvg-convert, an independent implementation
// used when Chrome is unavailable or fails on a particular document.
type rsvgConverter struct{}

func (r *rsvgConverter) Name() string { return "rsvg-convert" }

func (r *rsvgConverter) Rasterize(ctx context.Context, svg []byte, destPath string) error {
	if _, err := exec.LookPath("rsvg-convert"); err != nil {
		return fmt.Errorf("rsvg-convert not installed: %w", err)
	}

	svgPath, cleanup, err := fileutil.WriteTempFile(string(svg), "svg")
	if err != nil {
		return err
	}
	defer cleanup()

	runCtx, cancel := context.WithTimeout(ctx, rasterizeTimeout)
	defer cancel()

	tmpDest := destPath + ".rsvg.tmp"
	cmd := exec.CommandContext(runCtx, "rsvg-convert",
		"--format", "png",
		"--width", "1600",
		"--keep-aspect-ratio",
		"--output", tmpDest,
		svgPath) // #nosec G204 -- fixed binary name, file arguments only
	if out, err := cmd.CombinedOutput(); err != nil {
		_ = os.Remove(tmpDest)
		return fmt.Errorf("rsvg-convert: %w: %s", err, out)
	}
	if err := os.Rename(tmpDest, destPath); err != nil {
		_ = os.Remove(tmpDest)
		return fmt.Errorf("publishing PNG: %w", err)
	}
	return nil
}
