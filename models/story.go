// Package models defines data structures for the scraper.
package models

import "time"

// Placeholder is substituted for string fields that are absent from a
// story page. Numeric fields default to zero instead.
const Placeholder = "N/A"

// Story represents the metadata extracted for one archive work. String
// fields that cannot be found on the page hold Placeholder, numeric
// fields hold zero, and list fields are empty but never nil.
type Story struct {
	ID            string    `csv:"id" json:"id"`
	WorkID        string    `csv:"work_id" json:"work_id"`
	URL           string    `csv:"url" json:"url"`
	Title         string    `csv:"title" json:"title"`
	Author        string    `csv:"author" json:"author"`
	Fandom        string    `csv:"fandom" json:"fandom"`
	Tags          []string  `csv:"tags" json:"tags"`
	Characters    []string  `csv:"characters" json:"characters"`
	Relationships []string  `csv:"relationships" json:"relationships"`
	Rating        string    `csv:"rating" json:"rating"`
	Warnings      []string  `csv:"warnings" json:"warnings"`
	Categories    []string  `csv:"categories" json:"categories"`
	Words         int       `csv:"words" json:"words"`
	Chapters      string    `csv:"chapters" json:"chapters"`
	Language      string    `csv:"language" json:"language"`
	Status        string    `csv:"status" json:"status"`
	Comments      int       `csv:"comments" json:"comments"`
	Kudos         int       `csv:"kudos" json:"kudos"`
	Bookmarks     int       `csv:"bookmarks" json:"bookmarks"`
	Collections   int       `csv:"collections" json:"collections"`
	Hits          int       `csv:"hits" json:"hits"`
	Summary       string    `csv:"summary" json:"summary"`
	DownloadPath  string    `csv:"-" json:"-"`
	ContentFile   string    `csv:"content_file" json:"content_file"`
	ScrapedAt     time.Time `csv:"scraped_at" json:"scraped_at"`
}

// NewStory returns a Story with every field set to its documented default.
func NewStory(workID, url string) *Story {
	return &Story{
		WorkID:        workID,
		URL:           url,
		Title:         Placeholder,
		Author:        Placeholder,
		Fandom:        Placeholder,
		Tags:          []string{},
		Characters:    []string{},
		Relationships: []string{},
		Rating:        Placeholder,
		Warnings:      []string{},
		Categories:    []string{},
		Chapters:      Placeholder,
		Language:      Placeholder,
		Status:        Placeholder,
		Summary:       Placeholder,
		ContentFile:   Placeholder,
	}
}

// ScrapeResult holds the overall outcome of a scraping run.
type ScrapeResult struct {
	Stories      int
	Pages        int
	Downloads    int
	StartTime    time.Time
	EndTime      time.Time
	ErrorCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
	RetryCount   int
	RequestCount int
}
