// Package ingestion turns job postings (plain text, HTML or a URL) into the
// cleaned job description text a run is created from.
package ingestion

import (
	"regexp"
	"strings"
)

var (
	multiSpace   = regexp.MustCompile(`[ \t]+`)
	excessBlanks = regexp.MustCompile(`\n{3,}`)
	htmlTag      = regexp.MustCompile(`(?i)<\s*(html|body|div|p|ul|li|h[1-6]|br|section|article)[\s>/]`)
)

// CleanText normalizes line endings and whitespace while keeping headings,
// bullets and paragraph breaks.
func CleanText(content string) string {
	if content == "" {
		return ""
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = cleanLine(line)
	}
	result := excessBlanks.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(result)
}

func cleanLine(line string) string {
	line = strings.TrimRight(line, " \t")
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" {
		return ""
	}
	// Headings lose their indentation.
	if strings.HasPrefix(trimmed, "#") {
		return trimmed
	}
	indent := strings.Repeat(" ", len(line)-len(trimmed))
	if isBulletLine(trimmed) {
		return indent + trimmed
	}
	return indent + multiSpace.ReplaceAllString(trimmed, " ")
}

func isBulletLine(trimmed string) bool {
	for _, prefix := range []string{"- ", "* ", "• ", "· "} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// LooksLikeHTML reports whether content appears to be an HTML document or fragment.
func LooksLikeHTML(content string) bool {
	return htmlTag.MatchString(content)
}

// Normalize prepares caller-supplied job description text. HTML input is
// reduced to its readable text first.
func Normalize(content string) (string, error) {
	if LooksLikeHTML(content) {
		text, err := TextFromHTML(content, DefaultSelectors())
		if err != nil {
			return "", err
		}
		content = text
	}
	return CleanText(content), nil
}
