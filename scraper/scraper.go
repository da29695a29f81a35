// Package scraper drives the pagination loop over archive search results,
// pairing each story's metadata with a best-effort content download.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/aluiziolira/go-scrape-archive/config"
	"github.com/aluiziolira/go-scrape-archive/models"
	"github.com/aluiziolira/go-scrape-archive/parser"
	"github.com/aluiziolira/go-scrape-archive/pipeline"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Scraper owns the run state for one invocation: fetcher, downloader,
// and the per-operation retry policies.
type Scraper struct {
	cfg        *config.Config
	fetcher    *Fetcher
	downloader *Downloader
	Metrics    *Metrics

	pageRetry     RetryPolicy
	storyRetry    RetryPolicy
	downloadRetry RetryPolicy

	retryCount int
}

// session is the run-scoped cursor threaded through one Run call.
type session struct {
	target    int
	collected int
	pageURL   string
	seen      *lru.Cache[string, struct{}]
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	if _, err := url.Parse(cfg.SearchURL); err != nil {
		return nil, fmt.Errorf("parse search url: %w", err)
	}

	metrics := NewMetrics()
	fetcher, err := NewFetcher(cfg, metrics)
	if err != nil {
		return nil, err
	}

	s := &Scraper{
		cfg:        cfg,
		fetcher:    fetcher,
		downloader: NewDownloader(fetcher, cfg.ContentDir, cfg.DownloadFormat),
		Metrics:    metrics,
	}
	s.pageRetry = s.policy()
	s.storyRetry = s.policy()
	s.downloadRetry = s.policy()
	return s, nil
}

func (s *Scraper) policy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: s.cfg.MaxRetries,
		Delay:       s.cfg.RetryDelay,
		OnRetry: func(int) {
			s.retryCount++
			s.Metrics.IncRetries()
		},
	}
}

// WithTransport swaps the HTTP transport; used by tests.
func (s *Scraper) WithTransport(rt http.RoundTripper) {
	s.fetcher.WithTransport(rt)
}

// WithSleep injects the sleep used between retry attempts; used by tests.
func (s *Scraper) WithSleep(sleep func(time.Duration)) {
	s.pageRetry.Sleep = sleep
	s.storyRetry.Sleep = sleep
	s.downloadRetry.Sleep = sleep
}

// Run walks the search results sequentially until the requested story
// count is reached or the results are exhausted. A listing page that
// stays unreachable after retries halts the run; a failed story or
// download only skips that unit of work. Records collected before a
// halt are already flushed through the pipeline.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.ScrapeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	seen, err := lru.New[string, struct{}](s.cfg.DedupeMaxSize)
	if err != nil {
		return nil, fmt.Errorf("create dedup set: %w", err)
	}
	sess := &session{
		target:  s.cfg.MaxStories,
		pageURL: s.cfg.SearchURL,
		seen:    seen,
	}

	result := &models.ScrapeResult{
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}
	defer func() {
		result.EndTime = time.Now()
		result.RetryCount = s.retryCount
		result.RequestCount = s.fetcher.Requests()
		result.ErrorCount = s.fetcher.Errors()
		result.ErrorsByType = s.fetcher.ErrorsByType()
	}()

	for sess.pageURL != "" && sess.collected < sess.target {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		listing, err := s.fetchListing(ctx, sess.pageURL)
		if err != nil {
			s.recordFailure(result, sess.pageURL)
			return result, fmt.Errorf("listing page unreachable: %w", err)
		}
		result.Pages++
		if listing.Skipped > 0 {
			slog.Warn("skipped malformed listing entries",
				slog.String("page", sess.pageURL),
				slog.Int("skipped", listing.Skipped),
			)
		}

		for _, storyURL := range listing.StoryURLs {
			if sess.collected >= sess.target {
				break
			}
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			if _, dup := sess.seen.Get(storyURL); dup {
				continue
			}
			sess.seen.Add(storyURL, struct{}{})

			story, err := s.scrapeStory(ctx, storyURL)
			if err != nil {
				slog.Warn("skipping story",
					slog.String("url", storyURL),
					slog.String("category", string(errCategory(err))),
					slog.Any("error", err),
				)
				s.recordFailure(result, storyURL)
				continue
			}

			s.downloadContent(ctx, story, result)

			if err := p.Process(story); err != nil {
				if err == pipeline.ErrPipelineClosed {
					return result, err
				}
				slog.Error("pipeline process error", slog.Any("error", err))
				continue
			}

			sess.collected++
			result.Stories++
			s.Metrics.IncStories()
			slog.Info("scraped story",
				slog.Int("collected", sess.collected),
				slog.Int("target", sess.target),
				slog.String("title", story.Title),
			)
		}

		sess.pageURL = listing.NextPage
		if sess.pageURL == "" {
			slog.Info("no next page, results exhausted",
				slog.Int("collected", sess.collected),
				slog.Int("target", sess.target),
			)
		}
	}

	return result, nil
}

func (s *Scraper) fetchListing(ctx context.Context, pageURL string) (*parser.Listing, error) {
	var body []byte
	err := s.pageRetry.Do(ctx, "listing", pageURL, func() error {
		b, ferr := s.fetcher.Fetch(ctx, "listing", pageURL)
		if ferr != nil {
			return ferr
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return parser.ParseListing(body, pageURL)
}

func (s *Scraper) scrapeStory(ctx context.Context, storyURL string) (*models.Story, error) {
	// The archive interposes an age gate without this parameter.
	fetchURL := withAdultView(storyURL)

	var body []byte
	err := s.storyRetry.Do(ctx, "story", fetchURL, func() error {
		b, ferr := s.fetcher.Fetch(ctx, "story", fetchURL)
		if ferr != nil {
			return ferr
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	story, err := parser.ParseStory(body, storyURL)
	if err != nil {
		return nil, err
	}
	story.ID = uuid.NewString()
	story.ScrapedAt = time.Now()
	return story, nil
}

// downloadContent is best-effort: a failure leaves the record's content
// file at its placeholder and the record is still written.
func (s *Scraper) downloadContent(ctx context.Context, story *models.Story, result *models.ScrapeResult) {
	name, err := s.downloader.Download(ctx, story, s.downloadRetry)
	if err != nil {
		slog.Warn("content download failed",
			slog.String("work_id", story.WorkID),
			slog.String("category", string(errCategory(err))),
			slog.Any("error", err),
		)
		s.recordFailure(result, story.URL)
		s.Metrics.IncDownload("failure")
		return
	}
	story.ContentFile = name
	result.Downloads++
	s.Metrics.IncDownload("success")
}

func (s *Scraper) recordFailure(result *models.ScrapeResult, rawURL string) {
	result.FailedURLs = append(result.FailedURLs, rawURL)
}

func withAdultView(storyURL string) string {
	parsed, err := url.Parse(storyURL)
	if err != nil {
		return storyURL
	}
	query := parsed.Query()
	query.Set("view_adult", "true")
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
