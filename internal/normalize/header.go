package normalize

import (
	"strings"

	"github.com/alnah/go-repo2pdf/internal/classify"
)

// ExtractHeader pulls the leading comment block off a file so it can be
// rendered as prose instead of code. It returns the comment text with the
// markers stripped and the remaining file content. Extraction stops at the
// first line that is neither a comment nor part of an open block comment;
// a file with no leading comment returns ("", content) unchanged.
func ExtractHeader(content string, style classify.CommentStyle) (header, rest string) {
	if style == classify.CommentNone {
		return "", content
	}

	lines := strings.Split(content, "\n")
	var headerLines []string
	consumed := 0
	inBlock := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if inBlock {
			text, closed := blockBody(trimmed)
			headerLines = append(headerLines, text)
			consumed = i + 1
			if closed {
				inBlock = false
			}
			continue
		}

		// Shebangs belong to the machine, not the reader.
		if i == 0 && strings.HasPrefix(trimmed, "#!") {
			consumed = 1
			continue
		}

		marker, blockStart := lineMarker(trimmed, style)
		switch {
		case blockStart:
			text, closed := blockBody(strings.TrimPrefix(trimmed, "/*"))
			headerLines = append(headerLines, text)
			consumed = i + 1
			inBlock = !closed
		case marker != "":
			text := strings.TrimPrefix(trimmed, marker)
			headerLines = append(headerLines, strings.TrimPrefix(text, " "))
			consumed = i + 1
		case trimmed == "" && len(headerLines) > 0:
			// A blank line ends the header block.
			consumed = i + 1
			goto done
		default:
			goto done
		}
	}

done:
	header = strings.TrimSpace(strings.Join(headerLines, "\n"))
	if header == "" {
		return "", content
	}
	rest = strings.Join(lines[consumed:], "\n")
	return header, rest
}

// lineMarker reports the line-comment marker a trimmed line starts with
// for the given style, and whether the line opens a C block comment.
func lineMarker(trimmed string, style classify.CommentStyle) (marker string, blockStart bool) {
	switch style {
	case classify.CommentCLike:
		if strings.HasPrefix(trimmed, "/*") {
			return "", true
		}
		if strings.HasPrefix(trimmed, "//") {
			return "//", false
		}
	case classify.CommentHash:
		if strings.HasPrefix(trimmed, "#") {
			return "#", false
		}
	case classify.CommentSQL:
		if strings.HasPrefix(trimmed, "--") {
			return "--", false
		}
	}
	return "", false
}

// blockBody strips block-comment decoration from one line and reports
// whether the closing marker appeared.
func blockBody(trimmed string) (text string, closed bool) {
	if idx := strings.Index(trimmed, "*/"); idx >= 0 {
		trimmed = trimmed[:idx]
		closed = true
	}
	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimPrefix(trimmed, "*")
	return strings.TrimPrefix(trimmed, " "), closed
}
