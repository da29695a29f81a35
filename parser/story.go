package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-archive/models"
)

// ParseStory extracts the metadata record from a story page. Every field
// is looked up independently: a missing or malformed element leaves that
// field at its default and never fails the record.
func ParseStory(html []byte, storyURL string) (*models.Story, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse story markup: %w", err)
	}

	story := models.NewStory(WorkID(storyURL), storyURL)

	if title := cleanText(doc.Find("h2.title.heading").First().Text()); title != "" {
		story.Title = title
	}
	if author := cleanText(doc.Find("a[rel=author]").First().Text()); author != "" {
		story.Author = author
	}
	if fandoms := tagTexts(doc, ".fandom.tags .tag"); len(fandoms) > 0 {
		story.Fandom = strings.Join(fandoms, ", ")
	}

	story.Tags = tagTexts(doc, ".freeform.tags .tag")
	story.Characters = tagTexts(doc, ".character.tags .tag")
	story.Relationships = tagTexts(doc, ".relationship.tags .tag")
	story.Warnings = tagTexts(doc, ".warning.tags .tag")
	story.Categories = tagTexts(doc, ".category.tags .tag")

	if rating := cleanText(doc.Find(".rating.tags .tag").First().Text()); rating != "" {
		story.Rating = rating
	}

	story.Words = ParseCount(doc.Find("dd.words").First().Text())
	if chapters := cleanText(doc.Find("dd.chapters").First().Text()); chapters != "" {
		story.Chapters = chapters
	}
	if language := cleanText(doc.Find("dd.language").First().Text()); language != "" {
		story.Language = language
	}
	if status := cleanText(doc.Find("dd.status").First().Text()); status != "" {
		story.Status = status
	}

	story.Comments = ParseCount(doc.Find("dd.comments").First().Text())
	story.Kudos = ParseCount(doc.Find("dd.kudos").First().Text())
	story.Bookmarks = ParseCount(doc.Find("dd.bookmarks").First().Text())
	story.Collections = ParseCount(doc.Find("dd.collections").First().Text())
	story.Hits = ParseCount(doc.Find("dd.hits").First().Text())

	if summary := cleanText(doc.Find(".summary.module blockquote.userstuff").First().Text()); summary != "" {
		story.Summary = summary
	}

	story.DownloadPath = downloadPath(doc)

	return story, nil
}

// tagTexts returns the cleaned text of every element matching selector,
// in insertion order and without deduplication.
func tagTexts(doc *goquery.Document, selector string) []string {
	out := []string{}
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		if text := cleanText(sel.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// downloadPath returns the site-relative href of the first download link
// on the page, or "" when the download menu is absent.
func downloadPath(doc *goquery.Document) string {
	path := ""
	doc.Find("li.download a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return true
		}
		path = strings.TrimSpace(href)
		return false
	})
	return path
}

// DownloadURL picks the download link for the requested format from the
// candidates a story page offers, falling back to the archive's URL
// pattern when the menu was missing.
func DownloadURL(story *models.Story, format string) string {
	if story.DownloadPath != "" {
		if swapped := swapExtension(story.DownloadPath, format); swapped != "" {
			return resolveAgainstStory(story.URL, swapped)
		}
	}
	if story.WorkID == "" {
		return ""
	}
	return resolveAgainstStory(story.URL, "/downloads/"+story.WorkID+"/work."+format)
}

// swapExtension replaces the path extension of href with format,
// preserving any query string the archive attaches to download links.
func swapExtension(href, format string) string {
	parsed, err := parseBase(href)
	if err != nil {
		return ""
	}
	path := strings.TrimSuffix(parsed.Path, "/")
	if path == "" {
		return ""
	}
	if idx := strings.LastIndex(path, "."); idx > strings.LastIndex(path, "/") {
		path = path[:idx]
	}
	parsed.Path = path + "." + format
	return parsed.String()
}

func resolveAgainstStory(storyURL, href string) string {
	base, err := parseBase(storyURL)
	if err != nil {
		return ""
	}
	return absoluteURL(base, href)
}
