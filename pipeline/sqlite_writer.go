package pipeline

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-archive/models"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS stories (
	id            TEXT PRIMARY KEY,
	work_id       TEXT NOT NULL,
	url           TEXT NOT NULL,
	title         TEXT NOT NULL,
	author        TEXT NOT NULL,
	fandom        TEXT NOT NULL,
	tags          TEXT NOT NULL,
	characters    TEXT NOT NULL,
	relationships TEXT NOT NULL,
	rating        TEXT NOT NULL,
	warnings      TEXT NOT NULL,
	categories    TEXT NOT NULL,
	words         INTEGER NOT NULL,
	chapters      TEXT NOT NULL,
	language      TEXT NOT NULL,
	status        TEXT NOT NULL,
	comments      INTEGER NOT NULL,
	kudos         INTEGER NOT NULL,
	bookmarks     INTEGER NOT NULL,
	collections   INTEGER NOT NULL,
	hits          INTEGER NOT NULL,
	summary       TEXT NOT NULL,
	content_file  TEXT NOT NULL,
	scraped_at    TEXT NOT NULL
);`

const sqliteInsert = `
INSERT INTO stories (
	id, work_id, url, title, author, fandom, tags, characters,
	relationships, rating, warnings, categories, words, chapters,
	language, status, comments, kudos, bookmarks, collections, hits,
	summary, content_file, scraped_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SQLiteWriter appends records to a stories table, creating it on first use.
type SQLiteWriter struct {
	db     *sql.DB
	insert *sql.Stmt
	mu     sync.Mutex
}

// NewSQLiteWriter opens (or creates) the database at filename.
func NewSQLiteWriter(filename string) (*SQLiteWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create stories table: %w", err)
	}

	insert, err := db.Prepare(sqliteInsert)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}

	return &SQLiteWriter{
		db:     db,
		insert: insert,
	}, nil
}

// Write inserts one story row.
func (sw *SQLiteWriter) Write(story *models.Story) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	_, err := sw.insert.Exec(
		story.ID,
		story.WorkID,
		story.URL,
		story.Title,
		story.Author,
		story.Fandom,
		strings.Join(story.Tags, ", "),
		strings.Join(story.Characters, ", "),
		strings.Join(story.Relationships, ", "),
		story.Rating,
		strings.Join(story.Warnings, ", "),
		strings.Join(story.Categories, ", "),
		story.Words,
		story.Chapters,
		story.Language,
		story.Status,
		story.Comments,
		story.Kudos,
		story.Bookmarks,
		story.Collections,
		story.Hits,
		story.Summary,
		story.ContentFile,
		story.ScrapedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert story %s: %w", story.WorkID, err)
	}
	return nil
}

// Close releases the prepared statement and the database handle.
func (sw *SQLiteWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if err := sw.insert.Close(); err != nil {
		sw.db.Close()
		return fmt.Errorf("close insert statement: %w", err)
	}
	return sw.db.Close()
}

// Validate ensures at least one row was written.
func (sw *SQLiteWriter) Validate() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	var count int
	if err := sw.db.QueryRow("SELECT COUNT(*) FROM stories").Scan(&count); err != nil {
		return fmt.Errorf("count stories: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("stories table is empty")
	}
	return nil
}
