// Package emoji detects emoji grapheme clusters and substitutes them with
// renderer-safe image macros. Detection operates on whole grapheme clusters
// so that ZWJ sequences, variation selectors, and skin-tone modifiers are
// never partially substituted.
package emoji

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rivo/uniseg"
)

// Sentinel errors for emoji asset resolution.
var (
	ErrNoAsset = errors.New("emoji asset unavailable")
)

// RenderContext selects the substitution strategy.
type RenderContext int

const (
	// ContextCode substitutes inside fenced code blocks. The replacement
	// must stay valid within a Verbatim environment.
	ContextCode RenderContext = iota
	// ContextProse substitutes in running text, where the font fallback
	// chain can render the original cluster if no asset exists.
	ContextProse
)

// Twemoji asset versions, tried in order of preference.
var assetVersions = []string{"v14.0.2", "v14.0.0", "master"}

// assetURLTemplate is the CDN location of a single SVG glyph.
const assetURLTemplate = "https://raw.githubusercontent.com/twitter/twemoji/%s/assets/svg/%s.svg"

// memoSize bounds the in-memory resolution memo.
const memoSize = 512

// Downloader fetches one URL and returns its body.
type Downloader interface {
	Get(ctx context.Context, url string) (body []byte, contentType string, err error)
}

// Rasterizer converts SVG bytes into a PNG file at destPath.
type Rasterizer interface {
	Rasterize(ctx context.Context, svg []byte, destPath string) error
}

// Token is one detected emoji grapheme cluster.
type Token struct {
	Cluster string // the raw grapheme cluster
	Key     string // canonical codepoint key, e.g. "1f44d-1f3fb"
	Start   int    // byte offset in the scanned text
	End     int    // byte offset past the cluster
}

// Engine resolves emoji clusters to cached raster assets.
type Engine struct {
	cacheDir   string
	offline    bool
	client     Downloader
	rasterizer Rasterizer
	log        *slog.Logger

	mu   sync.Mutex
	memo *lru.Cache[string, string] // canonical key -> png filename ("" = known-missing)
}

// New creates an Engine caching assets under cacheDir. In offline mode only
// previously cached assets are served; misses degrade to font fallback.
func New(cacheDir string, offline bool, client Downloader, rasterizer Rasterizer, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(cacheDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating emoji cache dir: %w", err)
	}
	memo, err := lru.New[string, string](memoSize)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cacheDir:   cacheDir,
		offline:    offline,
		client:     client,
		rasterizer: rasterizer,
		log:        log,
		memo:       memo,
	}, nil
}

// isEmojiBase reports whether a code point opens an emoji cluster.
func isEmojiBase(r rune) bool {
	return (r >= 0x1F300 && r <= 0x1FAFF) || (r >= 0x2600 && r <= 0x27BF)
}

// Key canonicalizes a grapheme cluster into its codepoint key: lower-hex
// code points joined by hyphens. Equivalent visual sequences always produce
// the same key, so repeated occurrences share one cached asset.
func Key(cluster string) string {
	var b strings.Builder
	for i, r := range cluster {
		if i > 0 {
			b.WriteByte('-')
		}
		fmt.Fprintf(&b, "%x", r)
	}
	return b.String()
}

// Scan returns all emoji tokens in text, in order. A cluster qualifies when
// its first code point falls in the emoji blocks; trailing modifiers, VS16,
// and ZWJ continuations ride along as part of the same cluster. Unknown
// future modifiers are kept inside the cluster rather than split off.
func Scan(text string) []Token {
	if !containsEmoji(text) {
		return nil
	}

	var tokens []Token
	state := -1
	rest := text
	offset := 0
	for len(rest) > 0 {
		cluster, tail, _, nextState := uniseg.FirstGraphemeClusterInString(rest, state)
		first, _ := firstRune(cluster)
		if isEmojiBase(first) {
			tokens = append(tokens, Token{
				Cluster: cluster,
				Key:     Key(cluster),
				Start:   offset,
				End:     offset + len(cluster),
			})
		}
		offset += len(cluster)
		rest = tail
		state = nextState
	}
	return tokens
}

// containsEmoji is a cheap pre-check that avoids cluster segmentation for
// the common all-ASCII case.
func containsEmoji(text string) bool {
	for _, r := range text {
		if isEmojiBase(r) {
			return true
		}
	}
	return false
}

func firstRune(s string) (rune, int) {
	for _, r := range s {
		return r, len(s)
	}
	return 0, 0
}

// candidates returns the key variants tried against cache and CDN, most
// specific first: the full key, the key without VS16 selectors, and the
// base code point alone.
func candidates(key string) []string {
	out := []string{key}

	parts := strings.Split(key, "-")
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "fe0f" {
			kept = append(kept, p)
		}
	}
	noVS := strings.Join(kept, "-")
	if noVS != key && noVS != "" {
		out = append(out, noVS)
	}

	if first := parts[0]; first != key && first != noVS {
		out = append(out, first)
	}
	return out
}

// Ensure resolves a canonical key to a cached PNG filename, downloading and
// rasterizing on a miss. Returns ErrNoAsset when no variant can be served;
// callers degrade to font fallback, never fail the run.
func (e *Engine) Ensure(ctx context.Context, key string) (string, error) {
	e.mu.Lock()
	if name, ok := e.memo.Get(key); ok {
		e.mu.Unlock()
		if name == "" {
			return "", fmt.Errorf("%w: %s", ErrNoAsset, key)
		}
		return name, nil
	}
	e.mu.Unlock()

	name, err := e.resolve(ctx, key)

	e.mu.Lock()
	e.memo.Add(key, name)
	e.mu.Unlock()

	if err != nil {
		return "", err
	}
	return name, nil
}

func (e *Engine) resolve(ctx context.Context, key string) (string, error) {
	variants := candidates(key)

	// Disk cache first, any variant wins.
	for _, seq := range variants {
		name := seq + ".png"
		if _, err := os.Stat(filepath.Join(e.cacheDir, name)); err == nil {
			return name, nil
		}
	}

	if e.offline {
		e.log.Debug("emoji asset not cached in offline mode", "key", key)
		return "", fmt.Errorf("%w: %s (offline)", ErrNoAsset, key)
	}
	if e.client == nil || e.rasterizer == nil {
		return "", fmt.Errorf("%w: %s", ErrNoAsset, key)
	}

	// Version x variant fallback chain: a specific release first, then an
	// older one, then the moving "master" reference.
	for _, version := range assetVersions {
		for _, seq := range variants {
			url := fmt.Sprintf(assetURLTemplate, version, seq)
			svg, _, err := e.client.Get(ctx, url)
			if err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				continue
			}

			name := seq + ".png"
			dest := filepath.Join(e.cacheDir, name)
			if err := e.rasterizer.Rasterize(ctx, svg, dest); err != nil {
				e.log.Warn("emoji rasterization failed", "key", seq, "error", err)
				continue
			}
			return name, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNoAsset, key)
}

// Replace substitutes every emoji cluster in text. In code context a
// resolved asset becomes an \emojiimg macro that survives inside a fenced
// block; unresolved clusters are left in place so the mono font's fallback
// chain gets a chance. In offline prose the engine skips asset resolution
// entirely: running text renders emoji through the font fallback chain the
// preamble installs, so there is nothing to download.
func (e *Engine) Replace(ctx context.Context, text string, rc RenderContext) string {
	if rc == ContextProse && e.offline {
		return text
	}

	tokens := Scan(text)
	if len(tokens) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, tok := range tokens {
		b.WriteString(text[prev:tok.Start])

		name, err := e.Ensure(ctx, tok.Key)
		if err != nil {
			// Font fallback: keep the original cluster.
			b.WriteString(tok.Cluster)
		} else {
			// The macro appends .png itself.
			b.WriteString(`\emojiimg{` + strings.TrimSuffix(name, ".png") + `}`)
		}
		prev = tok.End
	}
	b.WriteString(text[prev:])
	return b.String()
}

// Used reports whether any asset has been resolved in this run. The preamble
// generator uses this to decide whether the \emojiimg macro must be defined.
func (e *Engine) Used() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, k := range e.memo.Keys() {
		if v, ok := e.memo.Peek(k); ok && v != "" {
			return true
		}
	}
	return false
}
