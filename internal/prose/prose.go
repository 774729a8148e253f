// Package prose rewrites Markdown documents into a rendering-safe form:
// image references resolved to local files, HTML images folded back into
// Markdown syntax, inline SVG rasterized, and constructs that confuse the
// LaTeX backend escaped. Fenced code blocks pass through untouched except
// for line wrapping and info-string cleanup.
package prose

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/alnah/go-repo2pdf/internal/emoji"
	"github.com/alnah/go-repo2pdf/internal/fileutil"
	"github.com/alnah/go-repo2pdf/internal/normalize"
)

// ImageResolver resolves image references to local files ready for the
// renderer. Implemented by the imaging engine.
type ImageResolver interface {
	ResolveLocal(ref, repoRoot, fileDir string) (string, error)
	Download(ctx context.Context, rawURL string) (string, error)
	ConvertLocalSVG(ctx context.Context, absPath string) (string, error)
	ConvertSVGContent(ctx context.Context, svg string) (string, error)
}

// EmojiReplacer substitutes emoji clusters in a given render context.
type EmojiReplacer interface {
	Replace(ctx context.Context, text string, rc emoji.RenderContext) string
}

// Result is the transformed document plus what happened to it.
type Result struct {
	Content string
	Wrapped bool     // any fenced line required wrapping
	Dropped []string // image references that could not be resolved
}

// Transformer rewrites one Markdown document at a time.
type Transformer struct {
	repoRoot      string
	maxLineLength int
	images        ImageResolver
	emoji         EmojiReplacer
	log           *slog.Logger
}

// New creates a Transformer rooted at repoRoot. The resolver and replacer
// may be nil, which disables image resolution and emoji substitution.
func New(repoRoot string, maxLineLength int, images ImageResolver, replacer EmojiReplacer, log *slog.Logger) *Transformer {
	if log == nil {
		log = slog.Default()
	}
	return &Transformer{
		repoRoot:      repoRoot,
		maxLineLength: maxLineLength,
		images:        images,
		emoji:         replacer,
		log:           log,
	}
}

var (
	inlineImage = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)(\s+"[^"]*")?\)`)
	refDef      = regexp.MustCompile(`^(\s*\[[^\]]+\]:\s*)(\S+)(.*)$`)
	fenceLine   = regexp.MustCompile("^(\\s*)(`{3,}|~{3,})(.*)$")
	titleAttr   = regexp.MustCompile(`\s+title="[^"]*"`)
	unicodeEsc  = regexp.MustCompile(`\\(u[0-9a-fA-F]{4}|U[0-9a-fA-F]{8})`)
	svgOpen     = regexp.MustCompile(`(?i)<svg[\s>]`)
)

// Transform rewrites the document at relPath. The path locates the file
// inside the repository so relative image references resolve against its
// directory. The escape rewrites are idempotent: feeding transformed text
// back in leaves it unchanged.
func (t *Transformer) Transform(ctx context.Context, relPath, content string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{}
	fileDir := filepath.Join(t.repoRoot, filepath.Dir(relPath))
	imageDests := collectImageDestinations([]byte(content))

	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))

	var fence *fenceState
	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if fence != nil {
			if fence.closes(line) {
				fence = nil
				out = append(out, line)
				continue
			}
			if !fence.raw && lineRunes(line) > t.maxLineLength {
				out = append(out, normalize.WrapLine(line, max(40, t.maxLineLength))...)
				res.Wrapped = true
				continue
			}
			out = append(out, line)
			continue
		}

		if fs := openFence(line); fs != nil {
			fence = fs
			out = append(out, fs.cleanOpen)
			continue
		}

		// Inline SVG may span lines; swallow the whole element. When the
		// element opens and closes on one line, the prose around it stays.
		if svgOpen.MatchString(line) {
			block, consumed := captureSVG(lines[i:])
			if consumed == 1 {
				out = append(out, t.rewriteInlineSVG(ctx, line, res))
				continue
			}
			if consumed > 0 {
				out = append(out, t.replaceInlineSVG(ctx, block, res)...)
				i += consumed - 1
				continue
			}
		}

		out = append(out, t.transformProseLine(ctx, line, fileDir, imageDests, res))
	}

	res.Content = strings.Join(out, "\n")
	return res, nil
}

// transformProseLine applies every outside-fence rewrite to one line.
func (t *Transformer) transformProseLine(ctx context.Context, line, fileDir string, imageDests map[string]bool, res *Result) string {
	// A bare horizontal rule at the top of a section reads as a YAML
	// metadata boundary downstream.
	if strings.TrimRight(line, " ") == "---" {
		return `\---`
	}

	line = t.rewriteHTMLImages(ctx, line, fileDir, res)
	line = t.rewriteInlineImages(ctx, line, fileDir, res)
	line = t.rewriteReferenceDef(ctx, line, fileDir, imageDests, res)
	line = unicodeEsc.ReplaceAllString(line, `\textbackslash{}$1`)

	if t.emoji != nil {
		line = t.emoji.Replace(ctx, line, emoji.ContextProse)
	}
	return line
}

// rewriteInlineImages resolves every ![alt](ref) on the line. Unresolvable
// images degrade to their alt text.
func (t *Transformer) rewriteInlineImages(ctx context.Context, line, fileDir string, res *Result) string {
	return inlineImage.ReplaceAllStringFunc(line, func(match string) string {
		groups := inlineImage.FindStringSubmatch(match)
		alt, ref := groups[1], groups[2]

		resolved, err := t.resolve(ctx, ref, fileDir)
		if err != nil {
			t.log.Debug("dropping image", "ref", ref, "error", err)
			res.Dropped = append(res.Dropped, ref)
			return alt
		}
		return fmt.Sprintf("![%s](%s)", alt, resolved)
	})
}

// rewriteReferenceDef resolves [id]: ref definitions, but only those the
// document actually uses as images. Plain link definitions stay untouched.
func (t *Transformer) rewriteReferenceDef(ctx context.Context, line, fileDir string, imageDests map[string]bool, res *Result) string {
	groups := refDef.FindStringSubmatch(line)
	if groups == nil || !imageDests[groups[2]] {
		return line
	}

	resolved, err := t.resolve(ctx, groups[2], fileDir)
	if err != nil {
		t.log.Debug("dropping image definition", "ref", groups[2], "error", err)
		res.Dropped = append(res.Dropped, groups[2])
		return ""
	}
	return groups[1] + resolved + groups[3]
}

// resolve turns one image reference into a local path the renderer can
// open. URL syntax is unambiguous, so remote fetching wins over any local
// file that happens to share the name.
func (t *Transformer) resolve(ctx context.Context, ref, fileDir string) (string, error) {
	if t.images == nil {
		return "", fmt.Errorf("no image resolver configured")
	}
	if fileutil.IsURL(ref) {
		return t.images.Download(ctx, ref)
	}

	abs, err := t.images.ResolveLocal(ref, t.repoRoot, fileDir)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(filepath.Ext(abs), ".svg") {
		return t.images.ConvertLocalSVG(ctx, abs)
	}
	return abs, nil
}

// svgElement matches a complete <svg>…</svg> span within a single line.
var svgElement = regexp.MustCompile(`(?i)<svg[\s>].*?</svg>`)

// rewriteInlineSVG converts every complete SVG element on the line in
// place, preserving the surrounding prose.
func (t *Transformer) rewriteInlineSVG(ctx context.Context, line string, res *Result) string {
	return svgElement.ReplaceAllStringFunc(line, func(el string) string {
		repl := t.replaceInlineSVG(ctx, el, res)
		if len(repl) == 0 {
			return ""
		}
		return repl[0]
	})
}

// replaceInlineSVG rasterizes an inline <svg> element into an image line.
// Icon sheets and failed conversions disappear from the output.
func (t *Transformer) replaceInlineSVG(ctx context.Context, block string, res *Result) []string {
	if t.images == nil {
		return nil
	}
	path, err := t.images.ConvertSVGContent(ctx, block)
	if err != nil {
		t.log.Debug("dropping inline SVG", "error", err)
		res.Dropped = append(res.Dropped, "<svg>")
		return nil
	}
	return []string{fmt.Sprintf("![](%s)", path)}
}

// captureSVG returns the SVG element starting at lines[0] and how many
// lines it spans. consumed is zero when no closing tag is found nearby.
func captureSVG(lines []string) (block string, consumed int) {
	// An unterminated element within a reasonable window is left alone.
	const window = 200
	limit := min(len(lines), window)
	for i := 0; i < limit; i++ {
		if strings.Contains(strings.ToLower(lines[i]), "</svg>") {
			return strings.Join(lines[:i+1], "\n"), i + 1
		}
	}
	return "", 0
}

// fenceState tracks an open fenced code block.
type fenceState struct {
	indent    string
	marker    string // the opening run of ` or ~
	raw       bool   // raw passthrough block, exempt from wrapping
	cleanOpen string // opening line with noise attributes stripped
}

// openFence reports whether the line opens a fenced block.
func openFence(line string) *fenceState {
	groups := fenceLine.FindStringSubmatch(line)
	if groups == nil {
		return nil
	}
	info := strings.TrimSpace(groups[3])
	return &fenceState{
		indent:    groups[1],
		marker:    groups[2],
		raw:       strings.HasPrefix(info, "{="),
		cleanOpen: titleAttr.ReplaceAllString(line, ""),
	}
}

// closes reports whether the line closes this fence: same marker rune, at
// least as long, nothing but the marker on the line.
func (f *fenceState) closes(line string) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < len(f.marker) || trimmed[0] != f.marker[0] {
		return false
	}
	return strings.TrimLeft(trimmed, string(f.marker[0])) == ""
}

// collectImageDestinations parses the document and records the destination
// of every image node, reference-style included.
func collectImageDestinations(source []byte) map[string]bool {
	dests := make(map[string]bool)
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if img, ok := n.(*ast.Image); ok {
			dests[string(img.Destination)] = true
		}
		return ast.WalkContinue, nil
	})
	return dests
}

func lineRunes(line string) int {
	return len([]rune(line))
}
