// Package preamble builds the renderer configuration for a composed
// document: the pandoc defaults file and the LaTeX header, both emitted as
// data. What goes in depends on the render options and on what the
// pipeline observed while composing (wrapped lines, emoji, CJK text).
package preamble

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"unicode"

	"github.com/alecthomas/chroma/v2/styles"

	"github.com/alnah/go-repo2pdf/internal/config"
	"github.com/alnah/go-repo2pdf/internal/hints"
	"github.com/alnah/go-repo2pdf/internal/yamlutil"
)

var ErrUnknownTheme = errors.New("unknown highlight theme")

// Flags carry what composition observed about the document. Each one
// switches extra safety machinery into the preamble.
type Flags struct {
	Wrapped   bool // long lines were wrapped, relax justification
	EmojiUsed bool // emoji images were substituted, define the macro
	CJK       bool // CJK text present, load the CJK font packages
}

// RenderConfig is the renderer input produced alongside the document body.
type RenderConfig struct {
	DefaultsYAML []byte // pandoc defaults file
	HeaderLaTeX  []byte // header-includes content
}

// fontSet is a platform's default font triple plus emoji fallbacks.
type fontSet struct {
	main  string
	sans  string
	mono  string
	emoji []string
}

func platformFonts() fontSet {
	switch runtime.GOOS {
	case "darwin":
		return fontSet{
			main:  "Georgia",
			sans:  "Helvetica Neue",
			mono:  "Menlo",
			emoji: []string{"Apple Color Emoji", "Symbola"},
		}
	default:
		return fontSet{
			main:  "DejaVu Serif",
			sans:  "DejaVu Sans",
			mono:  "DejaVu Sans Mono",
			emoji: []string{"Noto Color Emoji", "Symbola"},
		}
	}
}

// ValidateTheme checks the highlight theme name against the style registry.
func ValidateTheme(name string) error {
	if slices.Contains(styles.Names(), name) {
		return nil
	}
	return fmt.Errorf("%w: %q%s", ErrUnknownTheme, name, hints.ForThemeNotFound(styles.Names()))
}

// defaults mirrors the pandoc defaults file schema we emit.
type defaults struct {
	PDFEngine string            `yaml:"pdf-engine"`
	Variables map[string]string `yaml:"variables"`
	Highlight string            `yaml:"highlight-style"`
	TOC       bool              `yaml:"toc"`
	TOCDepth  int               `yaml:"toc-depth"`
}

// Build assembles the render configuration from the options and flags.
func Build(opts config.RenderOptions, flags Flags) (*RenderConfig, error) {
	theme := opts.Theme
	if theme == "" {
		theme = config.DefaultTheme
	}
	if err := ValidateTheme(theme); err != nil {
		return nil, err
	}

	codeSize, err := config.ResolveCodeFontSize(opts.CodeFontSize)
	if err != nil {
		return nil, err
	}

	fonts := platformFonts()
	if opts.MainFont != "" {
		fonts.main = opts.MainFont
	}
	if opts.SansFont != "" {
		fonts.sans = opts.SansFont
	}
	if opts.MonoFont != "" {
		fonts.mono = opts.MonoFont
	}
	if len(opts.EmojiFonts) > 0 {
		fonts.emoji = opts.EmojiFonts
	}

	d := defaults{
		PDFEngine: "xelatex",
		Variables: map[string]string{
			"mainfont": fonts.main,
			"sansfont": fonts.sans,
			"monofont": fonts.mono,
			"fontsize": opts.FontSize,
			"geometry": opts.Margin,
		},
		Highlight: theme,
		TOC:       true,
		TOCDepth:  2,
	}
	defaultsYAML, err := yamlutil.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshaling defaults: %w", err)
	}

	header := buildHeader(opts, codeSize, fonts, flags)
	return &RenderConfig{
		DefaultsYAML: defaultsYAML,
		HeaderLaTeX:  []byte(header),
	}, nil
}

// buildHeader writes the LaTeX header-includes block.
func buildHeader(opts config.RenderOptions, codeSize string, fonts fontSet, flags Flags) string {
	var b strings.Builder

	b.WriteString("% generated by go-repo2pdf\n")
	fmt.Fprintf(&b, "\\linespread{%s}\n", opts.Linespread)
	fmt.Fprintf(&b, "\\setlength{\\parskip}{%s}\n", opts.Parskip)
	b.WriteString("\\usepackage{fvextra}\n")
	fmt.Fprintf(&b,
		"\\fvset{breaklines=true,breakanywhere=true,fontsize=%s}\n", codeSize)

	if flags.Wrapped {
		// Wrapped code produces ragged paragraphs; stop TeX from fighting them.
		b.WriteString("\\sloppy\n")
		b.WriteString("\\setlength{\\emergencystretch}{3em}\n")
		b.WriteString("\\maxdeadcycles=200\n")
	}

	if flags.CJK {
		b.WriteString("\\usepackage{xeCJK}\n")
		b.WriteString("\\xeCJKsetup{AutoFallBack=true}\n")
	}

	if flags.EmojiUsed {
		if len(fonts.emoji) > 0 {
			fmt.Fprintf(&b, "\\newfontfamily\\emojifallback{%s}\n", fonts.emoji[0])
		}
		b.WriteString("\\newcommand{\\emojiimg}[1]{" +
			"\\raisebox{-0.15ex}{\\includegraphics[height=1em]{emoji/#1.png}}}\n")
	}

	return b.String()
}

// ContainsCJK reports whether the text has Han, Kana, or Hangul runes.
// The manifest and prose passes feed their content through this to decide
// whether the CJK packages are needed.
func ContainsCJK(text string) bool {
	for _, r := range text {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) {
			return true
		}
	}
	return false
}
