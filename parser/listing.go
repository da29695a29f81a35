package parser

import (
	"bytes"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// Listing is one parsed search-results page.
type Listing struct {
	// StoryURLs holds the absolute story URLs found, in page order.
	StoryURLs []string
	// NextPage is the absolute URL of the next results page, or "" when
	// the page carries no usable next control. An empty NextPage is
	// authoritative: it means the results are exhausted.
	NextPage string
	// Skipped counts entries that were present but missing a usable
	// heading link.
	Skipped int
}

// ParseListing extracts story links and the pagination control from a
// search-results page. Malformed entries are skipped, never fatal.
func ParseListing(html []byte, pageURL string) (*Listing, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing markup: %w", err)
	}

	listing := &Listing{StoryURLs: []string{}}

	doc.Find("li.work").Each(func(_ int, entry *goquery.Selection) {
		href, ok := entry.Find("h4.heading a").First().Attr("href")
		if !ok {
			listing.Skipped++
			return
		}
		abs := absoluteURL(base, href)
		if abs == "" {
			listing.Skipped++
			return
		}
		listing.StoryURLs = append(listing.StoryURLs, abs)
	})

	// The last page renders the next control without an anchor.
	if href, ok := doc.Find("li.next a").First().Attr("href"); ok {
		listing.NextPage = absoluteURL(base, href)
	}

	return listing, nil
}
