package ingestion

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// noise is removed before text extraction.
const noise = "nav, footer, header, script, style, noscript, form, .ad, .advertisement, .sidebar, .cookie-banner, .popup"

// DefaultSelectors returns content selectors tried in order for job pages.
func DefaultSelectors() []string {
	return []string{
		".job-description",
		".job-content",
		"#job-description",
		".posting-content",
		".job-details",
		"[data-testid='job-description']",
		"main",
		"article",
		"#content",
		".content",
	}
}

// SelectorsForURL returns selectors tuned to known job boards, falling back to
// DefaultSelectors.
func SelectorsForURL(rawURL string) []string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return DefaultSelectors()
	}
	host := strings.ToLower(parsed.Host)
	switch {
	case strings.Contains(host, "greenhouse.io"):
		return append([]string{".job__description.body", ".job__description", ".job-post-container"}, DefaultSelectors()...)
	case strings.Contains(host, "lever.co"):
		return append([]string{".posting-page", ".posting-description"}, DefaultSelectors()...)
	case strings.Contains(host, "workday.com"), strings.Contains(host, "myworkdayjobs.com"):
		return append([]string{"[data-automation-id='jobDescription']"}, DefaultSelectors()...)
	}
	return DefaultSelectors()
}

// TextFromHTML returns the readable text of the first matching content
// selector, or of the body when none match. Block elements become line breaks
// and list items become bullets.
func TextFromHTML(html string, selectors []string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find(noise).Remove()

	var content *goquery.Selection
	for _, sel := range selectors {
		if s := doc.Find(sel); s.Length() > 0 {
			content = s.First()
			break
		}
	}
	if content == nil {
		content = doc.Find("body")
	}

	content.Find("li").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("- ")
	})
	content.Find("br").ReplaceWithHtml("\n")
	content.Find("p, div, li, h1, h2, h3, h4, h5, h6, ul, ol, section").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	lines := strings.Split(content.Text(), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n"), nil
}
