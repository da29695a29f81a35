package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Category labels a fetch failure for logging and metrics.
type Category string

const (
	CategoryTimeout     Category = "timeout"
	CategoryConnection  Category = "connection"
	CategoryForbidden   Category = "forbidden"
	CategoryNotFound    Category = "not_found"
	CategoryRateLimited Category = "rate_limited"
	CategoryHTTP        Category = "http"
	CategoryOther       Category = "other"
)

// FetchError wraps a failed fetch with its classification and the HTTP
// status observed, if any.
type FetchError struct {
	URL        string
	Category   Category
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d): %v", e.URL, e.Category, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Category, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// classify buckets err and statusCode into a Category.
func classify(err error, statusCode int) Category {
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CategoryConnection
	}

	switch statusCode {
	case 0:
		return CategoryOther
	case http.StatusForbidden:
		return CategoryForbidden
	case http.StatusNotFound:
		return CategoryNotFound
	case http.StatusTooManyRequests:
		return CategoryRateLimited
	default:
		return CategoryHTTP
	}
}

// errCategory extracts the category from an error chain, defaulting to
// CategoryOther for unclassified errors.
func errCategory(err error) Category {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Category
	}
	return CategoryOther
}
