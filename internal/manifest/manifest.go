// Package manifest renders the document's front matter: a box-drawing
// directory tree, per-language statistics tables, and the list of files the
// run skipped. Everything it emits is plain Markdown.
package manifest

import (
	"fmt"
	"sort"
	"strings"
)

// FileInfo describes one included file.
type FileInfo struct {
	Path  string // relative, forward slashes
	Size  int64  // bytes
	Lines int
	Lang  string
}

// Skip records one excluded file and why.
type Skip struct {
	Path   string
	Reason string
}

// Options control which sections appear.
type Options struct {
	RepoName     string
	IncludeTree  bool
	IncludeStats bool
	TreeMaxDepth int
}

// Build renders the manifest sections in order: tree, stats, skips.
// Disabled sections produce nothing.
func Build(opts Options, files []FileInfo, skips []Skip) string {
	var b strings.Builder

	if opts.IncludeTree {
		b.WriteString("## Repository Structure\n\n```\n")
		b.WriteString(Tree(opts.RepoName, files, opts.TreeMaxDepth))
		b.WriteString("```\n\n")
	}
	if opts.IncludeStats {
		b.WriteString(StatsSection(files))
	}
	if len(skips) > 0 {
		b.WriteString(SkippedSection(skips))
	}
	return b.String()
}

// node is one level of the directory tree.
type node struct {
	name     string
	size     int64 // files only
	children map[string]*node
	isDir    bool
}

// Tree renders the repository layout with box-drawing connectors.
// Directories sort before files, both case-insensitively. Levels beyond
// maxDepth collapse into an ellipsis entry. maxDepth <= 0 means unlimited.
func Tree(repoName string, files []FileInfo, maxDepth int) string {
	root := &node{name: repoName, children: map[string]*node{}, isDir: true}
	for _, f := range files {
		insert(root, strings.Split(f.Path, "/"), f.Size)
	}

	var b strings.Builder
	b.WriteString(repoName + "/\n")
	writeChildren(&b, root, "", 1, maxDepth)
	return b.String()
}

func insert(n *node, parts []string, size int64) {
	head := parts[0]
	child, ok := n.children[head]
	if !ok {
		child = &node{name: head, children: map[string]*node{}}
		n.children[head] = child
	}
	if len(parts) == 1 {
		child.size = size
		return
	}
	child.isDir = true
	insert(child, parts[1:], size)
}

func writeChildren(b *strings.Builder, n *node, prefix string, depth, maxDepth int) {
	if maxDepth > 0 && depth > maxDepth {
		return
	}

	kids := sortedChildren(n)
	for i, child := range kids {
		last := i == len(kids)-1
		connector, childPrefix := "├── ", prefix+"│   "
		if last {
			connector, childPrefix = "└── ", prefix+"    "
		}

		if child.isDir {
			b.WriteString(prefix + connector + child.name + "/\n")
			if maxDepth > 0 && depth == maxDepth && len(child.children) > 0 {
				b.WriteString(childPrefix + "└── ...\n")
				continue
			}
			writeChildren(b, child, childPrefix, depth+1, maxDepth)
		} else {
			fmt.Fprintf(b, "%s%s%s (%s)\n", prefix, connector, child.name, humanSize(child.size))
		}
	}
}

// sortedChildren orders directories before files, then by lowercased name.
func sortedChildren(n *node) []*node {
	kids := make([]*node, 0, len(n.children))
	for _, c := range n.children {
		kids = append(kids, c)
	}
	sort.Slice(kids, func(i, j int) bool {
		if kids[i].isDir != kids[j].isDir {
			return kids[i].isDir
		}
		return strings.ToLower(kids[i].name) < strings.ToLower(kids[j].name)
	})
	return kids
}

// langStat aggregates one language's share of the repo.
type langStat struct {
	lang  string
	files int
	lines int
	bytes int64
}

// StatsSection renders totals and the per-language table.
func StatsSection(files []FileInfo) string {
	if len(files) == 0 {
		return ""
	}

	byLang := map[string]*langStat{}
	var totalLines int
	var totalBytes int64
	for _, f := range files {
		s, ok := byLang[f.Lang]
		if !ok {
			s = &langStat{lang: f.Lang}
			byLang[f.Lang] = s
		}
		s.files++
		s.lines += f.Lines
		s.bytes += f.Size
		totalLines += f.Lines
		totalBytes += f.Size
	}

	stats := make([]*langStat, 0, len(byLang))
	for _, s := range byLang {
		stats = append(stats, s)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].lines != stats[j].lines {
			return stats[i].lines > stats[j].lines
		}
		return stats[i].lang < stats[j].lang
	})

	var b strings.Builder
	b.WriteString("## Statistics\n\n")
	fmt.Fprintf(&b, "%d files, %d lines, %s\n\n", len(files), totalLines, humanSize(totalBytes))
	b.WriteString("| Language | Files | Lines | Share |\n")
	b.WriteString("|----------|------:|------:|------:|\n")
	for _, s := range stats {
		share := 0.0
		if totalLines > 0 {
			share = 100 * float64(s.lines) / float64(totalLines)
		}
		fmt.Fprintf(&b, "| %s | %d | %d | %.1f%% |\n", s.lang, s.files, s.lines, share)
	}
	b.WriteString("\n")
	return b.String()
}

// SkippedSection lists the files excluded from the document, grouped by
// reason so a reader can audit what is missing.
func SkippedSection(skips []Skip) string {
	byReason := map[string][]string{}
	for _, s := range skips {
		byReason[s.Reason] = append(byReason[s.Reason], s.Path)
	}

	reasons := make([]string, 0, len(byReason))
	for r := range byReason {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)

	var b strings.Builder
	b.WriteString("## Skipped Files\n\n")
	for _, r := range reasons {
		paths := byReason[r]
		sort.Strings(paths)
		fmt.Fprintf(&b, "**%s** (%d)\n\n", r, len(paths))
		for _, p := range paths {
			fmt.Fprintf(&b, "- `%s`\n", p)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// humanSize formats a byte count for the tree and totals lines.
func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
