package scraper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aluiziolira/go-scrape-archive/models"
	"github.com/aluiziolira/go-scrape-archive/parser"
)

// Downloader fetches the packaged content file for a story and writes it
// under the content directory, named by the story's generated ID.
type Downloader struct {
	fetcher *Fetcher
	dir     string
	format  string
}

// NewDownloader builds a downloader writing format files into dir.
func NewDownloader(fetcher *Fetcher, dir, format string) *Downloader {
	return &Downloader{
		fetcher: fetcher,
		dir:     dir,
		format:  format,
	}
}

// Download fetches the story's content file with the given retry policy
// and writes it to disk. It returns the file name written. Failure is
// non-fatal to the caller: the metadata record survives without a file.
func (d *Downloader) Download(ctx context.Context, story *models.Story, retry RetryPolicy) (string, error) {
	downloadURL := parser.DownloadURL(story, d.format)
	if downloadURL == "" {
		return "", fmt.Errorf("no download URL derivable for work %s", story.WorkID)
	}

	var payload []byte
	err := retry.Do(ctx, "download", downloadURL, func() error {
		body, ferr := d.fetcher.Fetch(ctx, "download", downloadURL)
		if ferr != nil {
			return ferr
		}
		payload = body
		return nil
	})
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("create content directory %q: %w", d.dir, err)
	}

	name := story.ID + "." + d.format
	path := filepath.Join(d.dir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("write content file %q: %w", path, err)
	}
	return name, nil
}
