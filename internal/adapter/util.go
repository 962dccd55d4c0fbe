package adapter

import (
	"html"
	"regexp"
	"strings"
)

var (
	htmlTagRegex   = regexp.MustCompile(`<[^>]*>`)
	htmlBlockRegex = regexp.MustCompile(`(?i)<\s*(br|/p|/li|/h[1-6]|/div|/tr)\s*/?>`)
	blankLineRegex = regexp.MustCompile(`\n\s*\n+`)
)

// extractText converts an HTML or HTML-encoded string to plain text.
// It first unescapes HTML entities (handles Greenhouse's double-encoding;
// no-op on already-real HTML), turns block boundaries into line breaks,
// strips the remaining tags, unescapes once more for entities that were
// encoded inside the markup, and collapses whitespace within each line.
func extractText(content string) string {
	unescaped := html.UnescapeString(content)
	unescaped = htmlBlockRegex.ReplaceAllString(unescaped, "\n")
	plain := html.UnescapeString(htmlTagRegex.ReplaceAllString(unescaped, " "))

	lines := strings.Split(plain, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	text := blankLineRegex.ReplaceAllString(strings.Join(lines, "\n"), "\n")
	return strings.TrimSpace(text)
}
