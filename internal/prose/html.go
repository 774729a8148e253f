package prose

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var imgTag = regexp.MustCompile(`(?i)<img\b[^>]*/?>`)

// rewriteHTMLImages folds every <img> tag on the line back into Markdown
// image syntax, resolving the source like any other reference. Tags
// without a usable src disappear.
func (t *Transformer) rewriteHTMLImages(ctx context.Context, line, fileDir string, res *Result) string {
	if !strings.Contains(strings.ToLower(line), "<img") {
		return line
	}

	return imgTag.ReplaceAllStringFunc(line, func(tag string) string {
		src, alt := imgAttrs(tag)
		if src == "" {
			return ""
		}

		resolved, err := t.resolve(ctx, src, fileDir)
		if err != nil {
			t.log.Debug("dropping html image", "src", src, "error", err)
			res.Dropped = append(res.Dropped, src)
			return alt
		}
		return fmt.Sprintf("![%s](%s)", alt, resolved)
	})
}

// imgAttrs tokenizes one <img> tag and pulls out its src and alt.
func imgAttrs(tag string) (src, alt string) {
	z := html.NewTokenizer(strings.NewReader(tag))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return src, alt
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		if tok.Data != "img" {
			continue
		}
		for _, a := range tok.Attr {
			switch a.Key {
			case "src":
				src = a.Val
			case "alt":
				alt = a.Val
			}
		}
		return src, alt
	}
}
