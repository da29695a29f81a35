// Package parser extracts structured data from archive markup. All
// site-specific selectors live here so a markup change touches one package.
package parser

import (
	"net/url"
	"strconv"
	"strings"
)

// cleanText trims whitespace and normalizes curly apostrophes, which the
// archive mixes freely with straight ones.
func cleanText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "’", "'"))
}

// ParseCount converts a human-formatted count ("12,345") to an int.
// Absent, malformed, or negative values yield 0.
func ParseCount(s string) int {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	value, err := strconv.Atoi(s)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

// WorkID returns the trailing path segment of a story URL, which the
// archive uses as the work identifier.
func WorkID(storyURL string) string {
	parsed, err := url.Parse(storyURL)
	if err != nil {
		return ""
	}
	path := strings.TrimSuffix(parsed.Path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 || idx == len(path)-1 {
		return ""
	}
	return path[idx+1:]
}

func parseBase(rawURL string) (*url.URL, error) {
	return url.Parse(rawURL)
}

// absoluteURL resolves href against base, returning "" when either side
// is unusable.
func absoluteURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
