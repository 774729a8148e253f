package repo2pdf

import (
	"github.com/alnah/go-repo2pdf/internal/manifest"
	"github.com/alnah/go-repo2pdf/internal/preamble"
)

// Document is the composed output: one Markdown body, the renderer
// configuration derived from it, and the manifest of what it contains.
type Document struct {
	Body     string
	Render   *preamble.RenderConfig
	Manifest Manifest
}

// Manifest records what composition included and excluded.
type Manifest struct {
	RepoName string
	Files    []manifest.FileInfo
	Skips    []manifest.Skip
	Stats    Stats
}

// Stats aggregates what the pipeline observed across all files. The
// preamble builder keys its safety machinery off these.
type Stats struct {
	Files      int
	Lines      int
	Bytes      int64
	Chunks     int
	SplitFiles int
	Wrapped    bool
	EmojiUsed  bool
	CJK        bool
	Dropped    []string // image references removed from the document
}
