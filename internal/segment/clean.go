package segment

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var markupPattern = regexp.MustCompile(`(?i)<(?:p|br|li|ul|ol|div|h[1-6]|table|tr|td|span|b|strong|em)\b[^>]*>`)

// Clean prepares raw eligibility text for segmentation: HTML list markup is
// reduced to one line per block element, and line endings are normalized.
// Plain text is returned unchanged apart from line endings.
func Clean(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if !markupPattern.MatchString(text) {
		return text
	}

	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return text
	}
	return extractVisibleText(doc)
}

var blockElements = map[string]bool{
	"p": true, "br": true, "li": true, "ul": true, "ol": true, "div": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "tr": true, "section": true, "dd": true, "dt": true,
}

// extractVisibleText walks the HTML tree, skipping scripts/styles, and writes
// one line per block element
func extractVisibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
			if blockElements[n.Data] {
				buf.WriteString("\n")
			}
		}

		if n.Type == html.TextNode {
			buf.WriteString(collapseSpaces(n.Data))
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && blockElements[n.Data] {
			buf.WriteString("\n")
		}
	}

	walk(n)

	var lines []string
	for _, line := range strings.Split(buf.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// collapseSpaces folds whitespace runs (including newlines inside a text node)
// into single spaces, keeping a boundary space at either end
func collapseSpaces(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" {
			return " "
		}
		return ""
	}
	out := strings.Join(fields, " ")
	if isSpace(s[0]) {
		out = " " + out
	}
	if isSpace(s[len(s)-1]) {
		out += " "
	}
	return out
}
