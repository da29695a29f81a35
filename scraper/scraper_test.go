package scraper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-archive/config"
	"github.com/aluiziolira/go-scrape-archive/models"
	"github.com/aluiziolira/go-scrape-archive/pipeline"
	"github.com/jarcoal/httpmock"
)

type collectingWriter struct {
	mu      sync.Mutex
	stories []*models.Story
}

func (cw *collectingWriter) Write(story *models.Story) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.stories = append(cw.stories, story)
	return nil
}

func (cw *collectingWriter) Close() error    { return nil }
func (cw *collectingWriter) Validate() error { return nil }

func (cw *collectingWriter) Count() int {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return len(cw.stories)
}

func (cw *collectingWriter) All() []*models.Story {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	out := make([]*models.Story, len(cw.stories))
	copy(out, cw.stories)
	return out
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SearchURL = "http://archive.test/works/search?page=1"
	cfg.MaxStories = 3
	cfg.Delay = 0
	cfg.RetryDelay = 0
	cfg.MaxRetries = 2
	cfg.ContentDir = t.TempDir()
	cfg.DownloadFormat = "epub"
	cfg.DedupeMaxSize = 128
	return cfg
}

func newTestScraper(t *testing.T, cfg *config.Config, transport *httpmock.MockTransport) *Scraper {
	t.Helper()
	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.WithTransport(transport)
	s.WithSleep(func(time.Duration) {})
	return s
}

func runScraper(t *testing.T, s *Scraper, writer pipeline.OutputWriter) (*models.ScrapeResult, error) {
	t.Helper()
	p := pipeline.NewPipeline(writer)
	p.Start()
	result, err := s.Run(context.Background(), p)
	if cerr := p.Close(); cerr != nil {
		t.Fatalf("close pipeline: %v", cerr)
	}
	return result, err
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func buildListingPage(workIDs []int, nextPage string) string {
	var builder strings.Builder
	builder.WriteString("<html><body><ol class=\"work index group\">")
	for _, id := range workIDs {
		fmt.Fprintf(&builder, "<li class=\"work blurb group\"><h4 class=\"heading\"><a href=\"/works/%d\">Story %d</a></h4></li>", id, id)
	}
	builder.WriteString("</ol><ol class=\"pagination\">")
	if nextPage != "" {
		fmt.Fprintf(&builder, "<li class=\"next\"><a rel=\"next\" href=%q>Next</a></li>", nextPage)
	}
	builder.WriteString("</ol></body></html>")
	return builder.String()
}

func buildStoryPage(id int) string {
	return fmt.Sprintf(`<html><body>
<h2 class="title heading">Story %d</h2>
<a rel="author" href="/users/u%d">author %d</a>
<dd class="words">1,000</dd>
<dd class="chapters">1/1</dd>
<dd class="kudos">50</dd>
<li class="download"><ul><li><a href="/downloads/%d/work.epub">EPUB</a></li></ul></li>
</body></html>`, id, id, id, id)
}

func registerStory(transport *httpmock.MockTransport, id int, withDownload bool) {
	storyURL := fmt.Sprintf("http://archive.test/works/%d?view_adult=true", id)
	transport.RegisterResponder("GET", storyURL, htmlResponder(buildStoryPage(id)))
	if withDownload {
		downloadURL := fmt.Sprintf("http://archive.test/downloads/%d/work.epub", id)
		transport.RegisterResponder("GET", downloadURL, httpmock.NewStringResponder(200, "epub-bytes"))
	}
}

func contentFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read content dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func TestRunStopsAtRequestedCountMidPage(t *testing.T) {
	cfg := testConfig(t)

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", cfg.SearchURL,
		htmlResponder(buildListingPage([]int{1, 2, 3, 4, 5}, "?page=2")))
	for id := 1; id <= 5; id++ {
		registerStory(transport, id, true)
	}

	s := newTestScraper(t, cfg, transport)
	writer := &collectingWriter{}
	result, err := runScraper(t, s, writer)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if writer.Count() != 3 {
		t.Fatalf("records = %d, want 3", writer.Count())
	}
	if result.Stories != 3 {
		t.Errorf("result.Stories = %d, want 3", result.Stories)
	}
	if result.Pages != 1 {
		t.Errorf("result.Pages = %d, want 1", result.Pages)
	}
	if result.Downloads != 3 {
		t.Errorf("result.Downloads = %d, want 3", result.Downloads)
	}
	if files := contentFiles(t, cfg.ContentDir); len(files) != 3 {
		t.Errorf("content files = %d, want 3", len(files))
	}

	sample := writer.All()[0]
	if sample.Title != "Story 1" {
		t.Errorf("title = %q, want %q", sample.Title, "Story 1")
	}
	if sample.Words != 1000 {
		t.Errorf("words = %d, want 1000", sample.Words)
	}
	if sample.Kudos != 50 {
		t.Errorf("kudos = %d, want 50", sample.Kudos)
	}
	if sample.ID == "" {
		t.Error("record should carry a generated id")
	}
	if sample.ContentFile != sample.ID+".epub" {
		t.Errorf("content file = %q, want %q", sample.ContentFile, sample.ID+".epub")
	}
	if _, err := os.Stat(filepath.Join(cfg.ContentDir, sample.ContentFile)); err != nil {
		t.Errorf("content file missing on disk: %v", err)
	}
}

func TestRunHaltsWhenNoNextPage(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxStories = 10

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", cfg.SearchURL,
		htmlResponder(buildListingPage([]int{1, 2}, "")))
	registerStory(transport, 1, true)
	registerStory(transport, 2, true)

	s := newTestScraper(t, cfg, transport)
	writer := &collectingWriter{}
	result, err := runScraper(t, s, writer)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Stories != 2 {
		t.Errorf("result.Stories = %d, want 2 (exhaustion is not an error)", result.Stories)
	}
	if result.Pages != 1 {
		t.Errorf("result.Pages = %d, want 1", result.Pages)
	}
}

func TestRunDeduplicatesAcrossPages(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxStories = 10

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", cfg.SearchURL,
		htmlResponder(buildListingPage([]int{1, 2}, "/works/search?page=2")))
	transport.RegisterResponder("GET", "http://archive.test/works/search?page=2",
		htmlResponder(buildListingPage([]int{2, 3}, "")))
	for id := 1; id <= 3; id++ {
		registerStory(transport, id, true)
	}

	s := newTestScraper(t, cfg, transport)
	writer := &collectingWriter{}
	result, err := runScraper(t, s, writer)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Stories != 3 {
		t.Fatalf("result.Stories = %d, want 3", result.Stories)
	}
	info := transport.GetCallCountInfo()
	if got := info["GET http://archive.test/works/2?view_adult=true"]; got != 1 {
		t.Errorf("story 2 fetched %d times, want 1", got)
	}
}

func TestRunDownloadFailureKeepsRecord(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxStories = 1

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", cfg.SearchURL,
		htmlResponder(buildListingPage([]int{9}, "")))
	registerStory(transport, 9, false)
	transport.RegisterResponder("GET", "http://archive.test/downloads/9/work.epub",
		httpmock.NewStringResponder(500, "server error"))

	s := newTestScraper(t, cfg, transport)
	writer := &collectingWriter{}
	result, err := runScraper(t, s, writer)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if writer.Count() != 1 {
		t.Fatalf("records = %d, want 1 (download failure keeps metadata)", writer.Count())
	}
	if result.Downloads != 0 {
		t.Errorf("result.Downloads = %d, want 0", result.Downloads)
	}
	record := writer.All()[0]
	if record.ContentFile != models.Placeholder {
		t.Errorf("content file = %q, want placeholder", record.ContentFile)
	}
	if files := contentFiles(t, cfg.ContentDir); len(files) != 0 {
		t.Errorf("content files = %d, want 0", len(files))
	}
	if result.ErrorsByType[string(CategoryHTTP)] == 0 {
		t.Error("expected http error classification for failed download")
	}
}

func TestRunStoryFetchFailureSkipsStory(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxStories = 2

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", cfg.SearchURL,
		htmlResponder(buildListingPage([]int{1, 2}, "")))
	registerStory(transport, 2, true)
	transport.RegisterResponder("GET", "http://archive.test/works/1?view_adult=true",
		httpmock.NewStringResponder(404, "gone"))

	s := newTestScraper(t, cfg, transport)
	writer := &collectingWriter{}
	result, err := runScraper(t, s, writer)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if writer.Count() != 1 {
		t.Fatalf("records = %d, want 1", writer.Count())
	}
	if writer.All()[0].WorkID != "2" {
		t.Errorf("surviving record = %q, want work 2", writer.All()[0].WorkID)
	}
	if len(result.FailedURLs) == 0 {
		t.Error("failed story URL should be recorded")
	}
	if result.ErrorsByType[string(CategoryNotFound)] == 0 {
		t.Error("expected not_found classification")
	}
}

func TestRunListingFailureHaltsRun(t *testing.T) {
	cfg := testConfig(t)

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", cfg.SearchURL,
		httpmock.NewStringResponder(500, "down"))

	s := newTestScraper(t, cfg, transport)
	writer := &collectingWriter{}
	result, err := runScraper(t, s, writer)
	if err == nil {
		t.Fatal("expected error when listing page is unreachable")
	}

	if writer.Count() != 0 {
		t.Errorf("records = %d, want 0", writer.Count())
	}
	if result.RetryCount != cfg.MaxRetries-1 {
		t.Errorf("retries = %d, want %d", result.RetryCount, cfg.MaxRetries-1)
	}
}

func TestRunZeroTargetWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxStories = 0

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", cfg.SearchURL,
		htmlResponder(buildListingPage([]int{1}, "")))

	s := newTestScraper(t, cfg, transport)
	writer := &collectingWriter{}
	result, err := runScraper(t, s, writer)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if writer.Count() != 0 {
		t.Errorf("records = %d, want 0", writer.Count())
	}
	if result.RequestCount != 0 {
		t.Errorf("requests = %d, want 0", result.RequestCount)
	}
}
