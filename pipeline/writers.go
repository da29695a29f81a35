package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-archive/models"
)

// Header is the fixed CSV column order. Multi-valued fields are
// comma-joined within a single cell.
var Header = []string{
	"ID", "Work ID", "URL",
	"Title", "Author", "Fandom", "Tags", "Characters", "Relationships",
	"Rating", "Warnings", "Categories", "Word Count", "Chapters",
	"Language", "Status", "Comments", "Kudos", "Bookmarks",
	"Collections", "Hits", "Summary", "Content File", "Scraped At",
}

// CSVWriter appends records to a CSV file, writing the header only when
// the file is new or empty.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter opens filename in append mode, creating it (and the
// header row) when absent.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}

	writer := csv.NewWriter(f)

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() == 0 {
		if err := writer.Write(Header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush csv header: %w", err)
		}
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends one story row and flushes it to disk.
func (cw *CSVWriter) Write(story *models.Story) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if err := cw.writer.Write(record(story)); err != nil {
		return fmt.Errorf("write csv record: %w", err)
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv record: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

func record(story *models.Story) []string {
	return []string{
		story.ID,
		story.WorkID,
		story.URL,
		story.Title,
		story.Author,
		story.Fandom,
		joinCell(story.Tags),
		joinCell(story.Characters),
		joinCell(story.Relationships),
		story.Rating,
		joinCell(story.Warnings),
		joinCell(story.Categories),
		strconv.Itoa(story.Words),
		story.Chapters,
		story.Language,
		story.Status,
		strconv.Itoa(story.Comments),
		strconv.Itoa(story.Kudos),
		strconv.Itoa(story.Bookmarks),
		strconv.Itoa(story.Collections),
		strconv.Itoa(story.Hits),
		story.Summary,
		story.ContentFile,
		story.ScrapedAt.Format(time.RFC3339),
	}
}

func joinCell(values []string) string {
	return strings.Join(values, ", ")
}

// JSONWriter appends newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter opens filename for appending JSONL records.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends one story in JSONL format.
func (jw *JSONWriter) Write(story *models.Story) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.encoder.Encode(story); err != nil {
		return fmt.Errorf("encode json record: %w", err)
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
