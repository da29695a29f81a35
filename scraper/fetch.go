package scraper

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-archive/config"
	"github.com/gocolly/colly/v2"
)

const (
	ctxKeyKind   = "kind"
	ctxKeyStart  = "start"
	ctxKeyBody   = "body"
	ctxKeyErr    = "err"
	ctxKeyStatus = "status"
)

// Fetcher issues synchronous GET requests through a colly collector,
// which supplies the browser user-agent, the request timeout, and the
// fixed inter-request delay. The archive blocks default client
// identifiers, so the user-agent is not optional.
type Fetcher struct {
	collector *colly.Collector
	metrics   *Metrics

	mu           sync.Mutex
	requestCount int
	errorCount   int
	errorsByType map[string]int
}

// NewFetcher builds a fetcher from cfg. Revisits are allowed because
// retrying a URL is the caller's decision, not the collector's.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limit: %w", err)
	}

	f := &Fetcher{
		collector:    collector,
		metrics:      metrics,
		errorsByType: make(map[string]int),
	}
	f.installHandlers()
	return f, nil
}

// WithTransport swaps the underlying transport; used by tests.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Fetch performs one GET and returns the raw body. Failures come back as
// a *FetchError carrying the classification; no retrying happens here.
func (f *Fetcher) Fetch(ctx context.Context, kind, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.requestCount++
	f.mu.Unlock()

	cctx := colly.NewContext()
	cctx.Put(ctxKeyKind, kind)

	// The collector is synchronous, so handlers have run by the time
	// Request returns and the outcome is in cctx. The OnError capture is
	// checked first because it carries the HTTP status.
	reqErr := f.collector.Request(http.MethodGet, rawURL, nil, cctx, nil)

	if v := cctx.GetAny(ctxKeyErr); v != nil {
		err := v.(error)
		status := 0
		if sv, ok := cctx.GetAny(ctxKeyStatus).(int); ok {
			status = sv
		}
		category := classify(err, status)
		f.noteError(category)
		return nil, &FetchError{URL: rawURL, Category: category, StatusCode: status, Err: err}
	}

	if reqErr != nil {
		category := classify(reqErr, 0)
		f.noteError(category)
		return nil, &FetchError{URL: rawURL, Category: category, Err: reqErr}
	}

	body, _ := cctx.GetAny(ctxKeyBody).([]byte)
	return body, nil
}

func (f *Fetcher) noteError(category Category) {
	f.metrics.IncError(category)
	f.mu.Lock()
	f.errorCount++
	f.errorsByType[string(category)]++
	f.mu.Unlock()
}

// Requests reports how many fetches were attempted.
func (f *Fetcher) Requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requestCount
}

// Errors reports how many fetches failed.
func (f *Fetcher) Errors() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errorCount
}

// ErrorsByType returns a snapshot of failure counts per category.
func (f *Fetcher) ErrorsByType() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.errorsByType))
	for k, v := range f.errorsByType {
		out[k] = v
	}
	return out
}

func (f *Fetcher) installHandlers() {
	f.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxKeyStart, time.Now())
		kind, _ := r.Ctx.GetAny(ctxKeyKind).(string)
		f.metrics.IncRequest(kind)
	})

	f.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxKeyBody, r.Body)
		if start, ok := r.Ctx.GetAny(ctxKeyStart).(time.Time); ok {
			f.metrics.ObserveDuration(time.Since(start))
		}
	})

	f.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		r.Ctx.Put(ctxKeyErr, err)
		r.Ctx.Put(ctxKeyStatus, r.StatusCode)
	})
}
