// Package config loads and validates user configuration for a conversion
// run. Validation failures are fatal: they abort before any file is read.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alnah/go-repo2pdf/internal/hints"
	"github.com/alnah/go-repo2pdf/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrInvalidFontSize = errors.New("invalid font size")
	ErrInvalidValue    = errors.New("invalid config value")
	ErrUnknownPreset   = errors.New("unknown device preset")
)

// Processing limits and defaults. These mirror the renderer's tolerances:
// anything above them risks Verbatim overflow or TeX capacity errors.
const (
	DefaultMaxFileSizeBytes = 512 * 1024 // 0.5 MiB
	DefaultSplitThreshold   = 1000       // lines before a file is chunked
	DefaultChunkLines       = 800        // lines per chunk
	DefaultMaxLineLength    = 200
	MinLineLength           = 40
	MaxLineLength           = 500
	DefaultTreeMaxDepth     = 3

	DefaultMargin       = "margin=1in"
	DefaultFontSize     = "10pt"
	DefaultCodeFontSize = `\small`
	DefaultLinespread   = "1.0"
	DefaultParskip      = "6pt"
	// "bw" is the registry's monochrome style; code prints legibly on
	// grayscale e-readers with it.
	DefaultTheme = "bw"
)

// Emoji asset modes.
const (
	EmojiModeOnline  = "online"
	EmojiModeOffline = "offline"
)

// validFontSizes are the document font sizes the backend accepts.
var validFontSizes = map[string]bool{
	"7pt": true, "8pt": true, "9pt": true, "10pt": true,
	"11pt": true, "12pt": true, "14pt": true,
}

// codeFontSizes maps friendly names to LaTeX size commands.
var codeFontSizes = map[string]string{
	"tiny":         `\tiny`,
	"scriptsize":   `\scriptsize`,
	"footnotesize": `\footnotesize`,
	"small":        `\small`,
	"normalsize":   `\normalsize`,
}

// DefaultIgnores are the baseline patterns excluded from every run.
var DefaultIgnores = []string{
	"node_modules", "vendor", "bower_components",
	"dist", "build", "out", "target", ".next", ".nuxt",
	".git", ".svn", ".hg",
	"__pycache__", "*.pyc", "*.pyo", ".venv", "venv", ".tox", "*.egg-info",
	".idea", ".vscode", "*.swp", "*.swo",
	".DS_Store", "Thumbs.db",
	"*.log", ".cache", "tmp",
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml",
	"Cargo.lock", "Gemfile.lock", "poetry.lock", "Pipfile.lock",
}

// Config holds all user-facing configuration for a run.
type Config struct {
	Ignores        []string      `yaml:"ignores"`
	MaxFileSize    int64         `yaml:"maxFileSize"`    // bytes, 0 = default
	SplitThreshold int           `yaml:"splitThreshold"` // lines, 0 = default
	ChunkLines     int           `yaml:"chunkLines"`     // lines per chunk, 0 = default
	MaxLineLength  int           `yaml:"maxLineLength"`  // columns, 0 = default
	Render         RenderOptions `yaml:"render"`
	Emoji          EmojiOptions  `yaml:"emoji"`
	Manifest       ManifestOpts  `yaml:"manifest"`
	Device         string        `yaml:"device"` // preset name, empty = desktop
	Workers        int           `yaml:"workers"`
}

// RenderOptions are passed through to the preamble generator.
type RenderOptions struct {
	Theme        string   `yaml:"theme"`        // highlight theme
	Margin       string   `yaml:"margin"`       // e.g. "margin=1in"
	FontSize     string   `yaml:"fontSize"`     // e.g. "10pt"
	CodeFontSize string   `yaml:"codeFontSize"` // name or LaTeX command
	Linespread   string   `yaml:"linespread"`
	Parskip      string   `yaml:"parskip"`
	MainFont     string   `yaml:"mainFont"` // empty = platform default
	SansFont     string   `yaml:"sansFont"`
	MonoFont     string   `yaml:"monoFont"`
	EmojiFonts   []string `yaml:"emojiFonts"` // fallback chain
}

// EmojiOptions configure the emoji substitution engine.
type EmojiOptions struct {
	Mode string `yaml:"mode"` // "online" or "offline"
}

// ManifestOpts configure the tree and statistics sections.
type ManifestOpts struct {
	IncludeTree  *bool `yaml:"includeTree"`  // nil = true
	IncludeStats *bool `yaml:"includeStats"` // nil = true
	TreeMaxDepth int   `yaml:"treeMaxDepth"` // 0 = default
}

// Preset is a device-specific override bundle applied on top of the base
// configuration before validation.
type Preset struct {
	Description   string
	Margin        string
	FontSize      string
	CodeFontSize  string
	Linespread    string
	Parskip       string
	MaxFileSize   int64
	MaxLineLength int
}

// Presets are the built-in device profiles.
var Presets = map[string]Preset{
	"desktop": {
		Description: "desktop reading",
	},
	"kindle7": {
		Description:   "7-inch e-reader",
		Margin:        "margin=0.4in",
		FontSize:      "11pt",
		Parskip:       "5pt",
		MaxFileSize:   200 * 1024,
		MaxLineLength: 60,
	},
	"tablet": {
		Description: "tablet reading",
		Margin:      "margin=0.6in",
		FontSize:    "9pt",
		Linespread:  "0.95",
	},
	"mobile": {
		Description:   "phone reading",
		Margin:        "margin=0.3in",
		FontSize:      "7pt",
		CodeFontSize:  `\tiny`,
		Linespread:    "0.85",
		Parskip:       "2pt",
		MaxLineLength: 60,
	},
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Ignores:        append([]string(nil), DefaultIgnores...),
		MaxFileSize:    DefaultMaxFileSizeBytes,
		SplitThreshold: DefaultSplitThreshold,
		ChunkLines:     DefaultChunkLines,
		MaxLineLength:  DefaultMaxLineLength,
		Render: RenderOptions{
			Theme:        DefaultTheme,
			Margin:       DefaultMargin,
			FontSize:     DefaultFontSize,
			CodeFontSize: DefaultCodeFontSize,
			Linespread:   DefaultLinespread,
			Parskip:      DefaultParskip,
		},
		Emoji:  EmojiOptions{Mode: EmojiModeOnline},
		Device: "desktop",
	}
}

// Load loads configuration from a file path or config name. If nameOrPath
// contains a path separator it is treated as a file path, otherwise it is
// searched in the current directory and the user config directory.
func Load(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	configPath := nameOrPath
	if !strings.ContainsAny(nameOrPath, "/\\") {
		resolved, err := resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
		configPath = resolved
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yamlutil.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	if err := cfg.ApplyPreset(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyPreset overlays the selected device preset onto the configuration.
// Explicit zero-values in the preset leave the base value untouched.
func (c *Config) ApplyPreset() error {
	name := c.Device
	if name == "" {
		name = "desktop"
	}
	p, ok := Presets[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}

	if p.Margin != "" {
		c.Render.Margin = p.Margin
	}
	if p.FontSize != "" {
		c.Render.FontSize = p.FontSize
	}
	if p.CodeFontSize != "" {
		c.Render.CodeFontSize = p.CodeFontSize
	}
	if p.Linespread != "" {
		c.Render.Linespread = p.Linespread
	}
	if p.Parskip != "" {
		c.Render.Parskip = p.Parskip
	}
	if p.MaxFileSize != 0 {
		c.MaxFileSize = p.MaxFileSize
	}
	if p.MaxLineLength != 0 {
		c.MaxLineLength = p.MaxLineLength
	}
	return nil
}

// Validate checks all fields. Any failure here is fatal to the run.
func (c *Config) Validate() error {
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("%w: maxFileSize must be positive, got %d", ErrInvalidValue, c.MaxFileSize)
	}
	if c.SplitThreshold <= 0 {
		return fmt.Errorf("%w: splitThreshold must be positive, got %d", ErrInvalidValue, c.SplitThreshold)
	}
	if c.ChunkLines <= 0 || c.ChunkLines > c.SplitThreshold {
		return fmt.Errorf("%w: chunkLines must be in (0, splitThreshold], got %d", ErrInvalidValue, c.ChunkLines)
	}
	if c.MaxLineLength < MinLineLength || c.MaxLineLength > MaxLineLength {
		return fmt.Errorf("%w: maxLineLength must be between %d and %d, got %d",
			ErrInvalidValue, MinLineLength, MaxLineLength, c.MaxLineLength)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers cannot be negative", ErrInvalidValue)
	}

	if !validFontSizes[c.Render.FontSize] {
		return fmt.Errorf("%w: %q (valid: 7pt-12pt, 14pt)", ErrInvalidFontSize, c.Render.FontSize)
	}
	if _, err := ResolveCodeFontSize(c.Render.CodeFontSize); err != nil {
		return err
	}

	switch c.Emoji.Mode {
	case "", EmojiModeOnline, EmojiModeOffline:
	default:
		return fmt.Errorf("%w: emoji.mode %q (must be online or offline)", ErrInvalidValue, c.Emoji.Mode)
	}

	if d := c.Manifest.TreeMaxDepth; d < 0 || d > 10 {
		return fmt.Errorf("%w: treeMaxDepth must be between 0 and 10, got %d", ErrInvalidValue, d)
	}
	return nil
}

// ResolveCodeFontSize maps a friendly name to its LaTeX command. Values that
// already look like LaTeX commands pass through unchanged.
func ResolveCodeFontSize(v string) (string, error) {
	if v == "" {
		return DefaultCodeFontSize, nil
	}
	if strings.HasPrefix(v, `\`) {
		return v, nil
	}
	if cmd, ok := codeFontSizes[v]; ok {
		return cmd, nil
	}
	return "", fmt.Errorf("%w: code font size %q", ErrInvalidFontSize, v)
}

// IncludeTree reports whether the directory tree section is enabled.
func (c *Config) IncludeTree() bool {
	return c.Manifest.IncludeTree == nil || *c.Manifest.IncludeTree
}

// IncludeStats reports whether the statistics section is enabled.
func (c *Config) IncludeStats() bool {
	return c.Manifest.IncludeStats == nil || *c.Manifest.IncludeStats
}

// TreeDepth returns the effective tree depth cap.
func (c *Config) TreeDepth() int {
	if c.Manifest.TreeMaxDepth == 0 {
		return DefaultTreeMaxDepth
	}
	return c.Manifest.TreeMaxDepth
}

// OfflineEmoji reports whether emoji asset downloads are disabled.
func (c *Config) OfflineEmoji() bool {
	return c.Emoji.Mode == EmojiModeOffline
}

// resolveConfigPath searches for a config file by name in standard locations.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, ~/.config/go-repo2pdf/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	triedPaths := make([]string, 0, len(extensions)*2)

	for _, ext := range extensions {
		localPath := name + ext
		if info, err := os.Stat(localPath); err == nil && !info.IsDir() {
			return localPath, nil
		}
		triedPaths = append(triedPaths, localPath)
	}

	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userConfigDir, "go-repo2pdf", name+ext)
			if info, err := os.Stat(userPath); err == nil && !info.IsDir() {
				return userPath, nil
			}
			triedPaths = append(triedPaths, userPath)
		}
	}

	return "", fmt.Errorf("%w: tried %s%s",
		ErrConfigNotFound, strings.Join(triedPaths, ", "), hints.ForConfigNotFound(triedPaths))
}
