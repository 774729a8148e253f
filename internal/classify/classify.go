// Package classify resolves each repository file into a closed classification
// (code, prose, image, binary, ignored) and a syntax-highlighting language.
// The lookup tables are immutable configuration data loaded once at startup;
// nothing here mutates them after init.
package classify

import (
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// Class is the classification of a repository file. Every file resolves to
// exactly one class before any engine touches it.
type Class int

const (
	ClassIgnored Class = iota
	ClassCode
	ClassProse
	ClassImage
	ClassBinary
)

// String returns the class name used in logs and the manifest.
func (c Class) String() string {
	switch c {
	case ClassCode:
		return "code"
	case ClassProse:
		return "prose"
	case ClassImage:
		return "image"
	case ClassBinary:
		return "binary"
	default:
		return "ignored"
	}
}

// CommentStyle identifies the header-comment syntax family of a language.
type CommentStyle int

const (
	CommentNone  CommentStyle = iota
	CommentCLike              // // and /* */
	CommentHash               // #
	CommentSQL                // --
)

// DefaultLanguage is used when no extension or lexer match is found.
const DefaultLanguage = "text"

// languageByExtension maps file extensions to highlighting language tags.
var languageByExtension = map[string]string{
	// Frontend
	".js": "javascript", ".jsx": "javascript", ".ts": "typescript",
	".tsx": "typescript", ".vue": "javascript", ".svelte": "javascript",
	".css": "css", ".scss": "css", ".sass": "css", ".less": "css",
	".html": "html", ".htm": "html", ".json": "json",
	".graphql": "graphql", ".gql": "graphql",

	// Backend
	".py": "python", ".java": "java",
	".cpp": "cpp", ".cc": "cpp", ".cxx": "cpp", ".hpp": "cpp",
	".c": "c", ".h": "c",
	".go": "go", ".rs": "rust", ".rb": "ruby", ".php": "php",
	".cs": "csharp", ".kt": "kotlin", ".swift": "swift", ".scala": "scala",
	".clj": "clojure", ".ex": "elixir", ".exs": "elixir", ".erl": "erlang",
	".lua": "lua", ".r": "r",

	// Configuration and scripts
	".sh": "bash", ".bash": "bash", ".zsh": "bash", ".fish": "fish",
	".sql": "sql", ".yaml": "yaml", ".yml": "yaml", ".toml": "toml",
	".xml": "xml", ".ini": "ini", ".conf": "conf", ".env": "bash",

	// Documentation
	".md": "markdown", ".mdx": "mdx", ".rst": "rst", ".txt": "text",

	// Other
	".dockerfile": "dockerfile", ".makefile": "makefile",
}

// commentStyleByExtension groups extensions into header-comment families.
var commentStyleByExtension = map[string]CommentStyle{
	".js": CommentCLike, ".jsx": CommentCLike, ".ts": CommentCLike,
	".tsx": CommentCLike, ".java": CommentCLike, ".cpp": CommentCLike,
	".c": CommentCLike, ".h": CommentCLike, ".go": CommentCLike,
	".cs": CommentCLike, ".php": CommentCLike, ".rs": CommentCLike,
	".swift": CommentCLike, ".kt": CommentCLike, ".scala": CommentCLike,

	".py": CommentHash, ".sh": CommentHash, ".bash": CommentHash,
	".zsh": CommentHash, ".rb": CommentHash, ".yaml": CommentHash,
	".yml": CommentHash, ".toml": CommentHash, ".ini": CommentHash,

	".sql": CommentSQL,
}

// imageExtensions are file types handled by the image engine.
var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".ico": true, ".svg": true, ".svgz": true, ".webp": true,
}

// binaryExtensions are never worth decoding.
var binaryExtensions = map[string]bool{
	".pyc": true, ".pyo": true, ".pyd": true, ".so": true, ".dylib": true,
	".dll": true, ".class": true, ".o": true, ".obj": true, ".exe": true,
	".bin": true, ".pdf": true, ".zip": true, ".tar": true, ".gz": true,
}

// proseExtensions get the Markdown transformer instead of the code path.
var proseExtensions = map[string]bool{
	".md": true, ".mdx": true,
}

// allowedDotfiles are hidden files surfaced despite the hidden-file rule.
var allowedDotfiles = map[string]bool{
	".cursorrules": true,
	".gitignore":   true,
	".env.example": true,
}

// specialNames maps extension-less well-known file names to languages.
var specialNames = map[string]string{
	"makefile":   "makefile",
	"dockerfile": "dockerfile",
	"gemfile":    "ruby",
	"rakefile":   "ruby",
}

// AllowedDotfile reports whether a hidden file name is on the allow-list.
func AllowedDotfile(name string) bool {
	return allowedDotfiles[name]
}

// Detect classifies a file by its path alone. Content-based reclassification
// (text/binary sniffing) happens later, once the file is read.
func Detect(path string) Class {
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(name))

	if strings.HasPrefix(name, ".") && !allowedDotfiles[name] {
		return ClassIgnored
	}

	switch {
	case proseExtensions[ext]:
		return ClassProse
	case imageExtensions[ext]:
		return ClassImage
	case binaryExtensions[ext]:
		return ClassBinary
	}

	if _, ok := languageByExtension[ext]; ok {
		return ClassCode
	}
	if _, ok := specialNames[strings.ToLower(name)]; ok {
		return ClassCode
	}
	if allowedDotfiles[name] {
		return ClassCode
	}
	return ClassIgnored
}

// Language returns the highlighting language tag for a file path. Extensions
// outside the table fall back to chroma's lexer registry, then to "text".
func Language(path string) string {
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(name))

	if lang, ok := languageByExtension[ext]; ok {
		return lang
	}
	if lang, ok := specialNames[strings.ToLower(name)]; ok {
		return lang
	}

	if lexer := lexers.Match(name); lexer != nil {
		if aliases := lexer.Config().Aliases; len(aliases) > 0 {
			return aliases[0]
		}
		return strings.ToLower(lexer.Config().Name)
	}
	return DefaultLanguage
}

// Style returns the header-comment family for a file path.
func Style(path string) CommentStyle {
	ext := strings.ToLower(filepath.Ext(path))
	if style, ok := commentStyleByExtension[ext]; ok {
		return style
	}
	return CommentNone
}
