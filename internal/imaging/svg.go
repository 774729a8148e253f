package imaging

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Sentinel errors for SVG preparation.
var (
	ErrNotSVG        = errors.New("content is not an SVG document")
	ErrZeroDimension = errors.New("SVG declares zero width or height")
	ErrIconSVG       = errors.New("SVG is an icon definition sheet")
)

// Default viewport injected when an SVG declares no intrinsic size.
const (
	defaultSVGWidth  = 800
	defaultSVGHeight = 600
)

var (
	xmlDeclPattern = regexp.MustCompile(`<\?xml[^?]*\?>`)
	svgOpenTag     = regexp.MustCompile(`(?s)<svg\b[^>]*>`)
	widthAttr      = regexp.MustCompile(`\bwidth\s*=\s*"([^"]*)"`)
	heightAttr     = regexp.MustCompile(`\bheight\s*=\s*"([^"]*)"`)
	viewBoxAttr    = regexp.MustCompile(`\bviewBox\s*=\s*"([^"]*)"`)
)

// IsSVG reports whether content looks like an SVG document.
func IsSVG(content string) bool {
	return strings.Contains(content, "<svg")
}

// isIconSheet detects icon definition files: symbol collections or
// defs-only documents render to nothing useful and are skipped.
func isIconSheet(content string) bool {
	return strings.Contains(content, "<symbol") ||
		(strings.Contains(content, "<defs>") && !strings.Contains(content, "<use"))
}

// PrepareSVG sanitizes SVG content for rasterization: strips the XML
// declaration, rejects icon sheets and zero-sized documents, and injects a
// corrective viewport when the root element declares no intrinsic size.
// Only the opening <svg> tag is rewritten; the document body is untouched.
func PrepareSVG(content string) (string, error) {
	content = strings.TrimSpace(xmlDeclPattern.ReplaceAllString(content, ""))

	loc := svgOpenTag.FindStringIndex(content)
	if loc == nil {
		return "", ErrNotSVG
	}
	if isIconSheet(content) {
		return "", ErrIconSVG
	}

	openTag := content[loc[0]:loc[1]]

	width := attrValue(widthAttr, openTag)
	height := attrValue(heightAttr, openTag)
	viewBox := attrValue(viewBoxAttr, openTag)

	if isZero(width) || isZero(height) {
		return "", ErrZeroDimension
	}

	newTag := openTag
	if width == "" || height == "" {
		vbWidth, vbHeight, ok := viewBoxSize(viewBox)
		if ok {
			newTag = setDimensions(newTag, vbWidth, vbHeight)
		} else {
			newTag = setDimensions(newTag,
				fmt.Sprintf("%dpx", defaultSVGWidth),
				fmt.Sprintf("%dpx", defaultSVGHeight))
		}
	} else {
		newTag = setDimensions(newTag, withUnit(width), withUnit(height))
	}

	return content[:loc[0]] + newTag + content[loc[1]:], nil
}

// attrValue extracts one attribute from the opening tag, empty if absent.
func attrValue(re *regexp.Regexp, tag string) string {
	m := re.FindStringSubmatch(tag)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// isZero reports whether a dimension string is numerically zero.
func isZero(dim string) bool {
	if dim == "" {
		return false
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(dim), "px"), 64)
	return err == nil && v == 0
}

// viewBoxSize extracts a usable width/height from a viewBox attribute.
func viewBoxSize(viewBox string) (width, height string, ok bool) {
	parts := strings.Fields(viewBox)
	if len(parts) != 4 {
		return "", "", false
	}
	w, errW := strconv.ParseFloat(parts[2], 64)
	h, errH := strconv.ParseFloat(parts[3], 64)
	if errW != nil || errH != nil || w == 0 || h == 0 {
		return "", "", false
	}
	return parts[2] + "px", parts[3] + "px", true
}

// withUnit appends px to bare numeric dimensions.
func withUnit(dim string) string {
	lower := strings.ToLower(dim)
	for _, unit := range []string{"px", "pt", "cm", "mm", "in", "%", "em"} {
		if strings.HasSuffix(lower, unit) {
			return dim
		}
	}
	if _, err := strconv.ParseFloat(dim, 64); err == nil {
		return dim + "px"
	}
	return dim
}

// setDimensions rewrites or injects width/height on the opening tag.
func setDimensions(openTag, width, height string) string {
	if widthAttr.MatchString(openTag) {
		openTag = widthAttr.ReplaceAllString(openTag, `width="`+width+`"`)
	} else {
		openTag = injectAttr(openTag, `width="`+width+`"`)
	}
	if heightAttr.MatchString(openTag) {
		openTag = heightAttr.ReplaceAllString(openTag, `height="`+height+`"`)
	} else {
		openTag = injectAttr(openTag, `height="`+height+`"`)
	}
	return openTag
}

// injectAttr inserts an attribute right after "<svg".
func injectAttr(openTag, attr string) string {
	return "<svg " + attr + openTag[len("<svg"):]
}
