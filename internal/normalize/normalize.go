// Package normalize turns one source file into renderer-safe content
// chunks: bounded line counts, bounded line lengths, extracted header
// comments, and emoji substituted in code context. The transformations are
// pure over their input, so identical files always normalize identically.
package normalize

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/alnah/go-repo2pdf/internal/classify"
	"github.com/alnah/go-repo2pdf/internal/emoji"
)

// EmojiReplacer substitutes emoji clusters in a given render context.
type EmojiReplacer interface {
	Replace(ctx context.Context, text string, rc emoji.RenderContext) string
}

// Chunk is a bounded slice of a file's content destined for one fenced
// block. Line numbers are absolute positions in the normalized file.
type Chunk struct {
	Index     int // 1-based
	Total     int
	StartLine int // 1-based, inclusive
	EndLine   int // inclusive
	Body      string
}

// Result is the normalized form of one code file.
type Result struct {
	Header  string  // extracted header comment, empty if none
	Lang    string  // highlighting language tag for every chunk
	Chunks  []Chunk // at least one, unless the input is empty
	Wrapped bool    // any line required wrapping
	Split   bool    // file exceeded the split threshold
}

// Options bound the normalizer's output.
type Options struct {
	MaxLineLength  int // columns before a line is wrapped
	SplitThreshold int // lines before a file is chunked
	ChunkLines     int // lines per chunk
	ExtractHeader  bool
}

// Normalizer applies the per-file transformation pipeline.
type Normalizer struct {
	opts  Options
	emoji EmojiReplacer
}

// New creates a Normalizer. The emoji replacer may be nil in tests.
func New(opts Options, replacer EmojiReplacer) *Normalizer {
	return &Normalizer{opts: opts, emoji: replacer}
}

// longStringLiteral matches quoted string content of 100+ characters.
var longStringLiteral = regexp.MustCompile(`["']([^"']{100,})["']`)

// Normalize runs the pipeline: header extraction, long-line breaking, hard
// wrapping, emoji substitution, then chunking.
func (n *Normalizer) Normalize(ctx context.Context, path, content string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lang := classify.Language(path)
	res := &Result{Lang: lang}

	body := content
	if n.opts.ExtractHeader {
		header, rest := ExtractHeader(body, classify.Style(path))
		if header != "" {
			if n.emoji != nil {
				header = n.emoji.Replace(ctx, header, emoji.ContextProse)
			}
			res.Header = header
			body = rest
		}
	}

	body, softWrapped := n.breakLongLines(body)
	body, hardWrapped := n.hardWrap(body)
	res.Wrapped = softWrapped || hardWrapped

	if n.emoji != nil {
		body = n.emoji.Replace(ctx, body, emoji.ContextCode)
	}

	res.Chunks = n.split(body)
	res.Split = len(res.Chunks) > 1
	for i := range res.Chunks {
		res.Chunks[i].Total = len(res.Chunks)
	}
	return res, nil
}

// breakLongLines applies structure-aware breaking before the hard wrap:
// bracketed lines break at commas, long string literals split into 80-char
// runs with backslash continuations.
func (n *Normalizer) breakLongLines(content string) (string, bool) {
	maxLen := n.opts.MaxLineLength
	broke := false

	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if lineWidth(line) <= maxLen {
			out = append(out, line)
			continue
		}

		switch {
		case strings.Contains(line, "[") && strings.Contains(line, "]") && strings.Contains(line, ","):
			out = append(out, breakAtCommas(line, maxLen))
			broke = true
		case strings.ContainsAny(line, `"'`) && longStringLiteral.MatchString(line):
			out = append(out, breakStringLiterals(line))
			broke = true
		default:
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), broke
}

// breakAtCommas splits a bracketed line at comma boundaries, preserving
// the original indentation on continuation lines.
func breakAtCommas(line string, maxLen int) string {
	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
	parts := strings.Split(line, ",")

	var formatted []string
	current := parts[0]
	for _, part := range parts[1:] {
		if lineWidth(current)+1+lineWidth(part) > maxLen {
			formatted = append(formatted, current+",")
			current = indent + strings.TrimLeft(part, " ")
		} else {
			current += "," + part
		}
	}
	formatted = append(formatted, current)
	return strings.Join(formatted, "\n")
}

// breakStringLiterals splits 100+-char string literals into 80-char runs
// joined by backslash continuations.
func breakStringLiterals(line string) string {
	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]

	return longStringLiteral.ReplaceAllStringFunc(line, func(match string) string {
		quote := match[:1]
		inner := match[1 : len(match)-1]

		runes := []rune(inner)
		var parts []string
		for i := 0; i < len(runes); i += 80 {
			end := min(i+80, len(runes))
			parts = append(parts, string(runes[i:end]))
		}
		if len(parts) == 1 {
			return match
		}
		return quote + strings.Join(parts, "\\\n"+indent) + quote
	})
}

// hardWrap breaks any remaining overlong line at the column threshold.
// Wrapping operates on runes and never splits a backslash escape, so
// re-joining the segments reproduces the original line exactly.
func (n *Normalizer) hardWrap(content string) (string, bool) {
	threshold := max(40, n.opts.MaxLineLength)
	wrapped := false

	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if lineWidth(line) <= threshold {
			out = append(out, line)
			continue
		}
		out = append(out, WrapLine(line, threshold)...)
		wrapped = true
	}
	return strings.Join(out, "\n"), wrapped
}

// WrapLine splits a line into segments of at most width runes. A segment
// boundary never lands inside a backslash escape: a trailing odd run of
// backslashes moves to the next segment.
func WrapLine(line string, width int) []string {
	runes := []rune(line)
	if len(runes) <= width {
		return []string{line}
	}

	var segments []string
	for start := 0; start < len(runes); {
		end := min(start+width, len(runes))

		if end < len(runes) {
			// Back off a split inside an escape sequence: an odd number of
			// trailing backslashes means the last one escapes the next rune.
			bs := 0
			for i := end - 1; i >= start && runes[i] == '\\'; i-- {
				bs++
			}
			if bs%2 == 1 {
				end--
			}
			if end == start {
				end = start + width // degenerate all-backslash window, split anyway
			}
		}

		segments = append(segments, string(runes[start:end]))
		start = end
	}
	return segments
}

// split slices the normalized body into chunks of at most ChunkLines lines.
// Files at or under the split threshold stay whole. Chunk ranges are
// contiguous and non-overlapping; concatenating chunk bodies in order
// reproduces the body minus any trailing newline.
func (n *Normalizer) split(body string) []Chunk {
	lines := strings.Split(body, "\n")
	// A newline-terminated file is not one line longer than itself.
	if l := len(lines); l > 1 && lines[l-1] == "" {
		lines = lines[:l-1]
	}
	total := len(lines)

	if total <= n.opts.SplitThreshold {
		return []Chunk{{Index: 1, StartLine: 1, EndLine: total, Body: strings.Join(lines, "\n")}}
	}

	c := n.opts.ChunkLines
	numChunks := int(math.Ceil(float64(total) / float64(c)))
	chunks := make([]Chunk, 0, numChunks)
	for i := 0; i < numChunks; i++ {
		start := i * c
		end := min(start+c, total)
		chunks = append(chunks, Chunk{
			Index:     i + 1,
			StartLine: start + 1,
			EndLine:   end,
			Body:      strings.Join(lines[start:end], "\n"),
		})
	}
	return chunks
}

// lineWidth measures a line in runes, not bytes.
func lineWidth(line string) int {
	return len([]rune(line))
}
