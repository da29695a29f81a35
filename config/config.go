package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	SearchURL        string
	MaxStories       int
	Delay            time.Duration
	Timeout          time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	OutputFile       string
	OutputFormat     string // csv, json, dual, or sqlite
	ContentDir       string
	DownloadFormat   string // epub, mobi, pdf, or html
	UserAgent        string
	LogFile          string
	Verbose          bool
	MetricsAddr      string
	DedupeMaxSize    int
	RespectRobotsTxt bool
}

// DefaultConfig returns conservative defaults for the archive target.
func DefaultConfig() *Config {
	return &Config{
		SearchURL:        "",
		MaxStories:       20,
		Delay:            2 * time.Second,
		Timeout:          30 * time.Second,
		MaxRetries:       3,
		RetryDelay:       3 * time.Second,
		OutputFile:       "output/stories_metadata.csv",
		OutputFormat:     "csv",
		ContentDir:       "content",
		DownloadFormat:   "epub",
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		LogFile:          "scrape_archive.log",
		Verbose:          false,
		MetricsAddr:      "",
		DedupeMaxSize:    100000,
		RespectRobotsTxt: false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.SearchURL == "" {
		return fmt.Errorf("search URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.SearchURL)
	if err != nil {
		return fmt.Errorf("invalid search URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("search URL must include a host")
	}

	if c.MaxStories < 0 {
		return fmt.Errorf("max stories cannot be negative")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	switch c.OutputFormat {
	case "csv", "json", "dual", "sqlite":
	default:
		return fmt.Errorf("output format must be csv, json, dual, or sqlite")
	}
	if c.ContentDir == "" {
		return fmt.Errorf("content directory cannot be empty")
	}
	switch c.DownloadFormat {
	case "epub", "mobi", "pdf", "html":
	default:
		return fmt.Errorf("download format must be epub, mobi, pdf, or html")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}

	return nil
}

// EnvInt reads an integer environment variable. The second return value
// reports whether the variable was set.
func EnvInt(name string) (int, bool, error) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return value, true, nil
}

// EnvString reads a string environment variable, reporting whether it was set.
func EnvString(name string) (string, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}
