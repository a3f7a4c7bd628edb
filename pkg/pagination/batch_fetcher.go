package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel page requests.
	MaxConcurrency int

	// Timeout per page fetch.
	Timeout time.Duration

	// MaxPages is the largest page count accepted from the first page.
	MaxPages int
}

// ErrTooManyPages is returned when the reported page count exceeds MaxPages.
var ErrTooManyPages = errors.New("page count exceeds limit")

// DefaultConfig returns safe default configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
		MaxPages:       1000,
	}
}

// PageFetcher fetches single pages. Page numbers start at 1.
type PageFetcher[T any] interface {
	// FetchPage returns the items of one page and the total page count.
	FetchPage(ctx context.Context, page int) (items []T, totalPages int, err error)
}

// PageFetcherFunc adapts a function to the PageFetcher interface.
type PageFetcherFunc[T any] func(ctx context.Context, page int) ([]T, int, error)

// FetchPage calls f.
func (f PageFetcherFunc[T]) FetchPage(ctx context.Context, page int) ([]T, int, error) {
	return f(ctx, page)
}

// BatchFetcher fetches every page of a paginated read in parallel.
type BatchFetcher[T any] struct {
	fetcher PageFetcher[T]
	config  Config
}

// NewBatchFetcher creates a new batch fetcher.
func NewBatchFetcher[T any](fetcher PageFetcher[T], config Config) *BatchFetcher[T] {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultConfig().MaxPages
	}

	return &BatchFetcher[T]{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAllPages fetches page 1, then the remaining pages concurrently, and
// returns all items in page order. The first failing page cancels the rest
// and its error is returned.
func (bf *BatchFetcher[T]) FetchAllPages(ctx context.Context) ([]T, error) {
	start := time.Now()

	firstPage, totalPages, err := bf.fetchPage(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}

	// Single page optimization
	if totalPages <= 1 {
		log.Debug().
			Int("pages", 1).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return firstPage, nil
	}

	if totalPages > bf.config.MaxPages {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyPages, totalPages, bf.config.MaxPages)
	}

	log.Debug().
		Int("total_pages", totalPages).
		Int("max_concurrency", bf.config.MaxConcurrency).
		Msg("Starting parallel page fetch")

	pages := make([][]T, totalPages)
	pages[0] = firstPage

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bf.config.MaxConcurrency)

	for page := 2; page <= totalPages; page++ {
		g.Go(func() error {
			items, _, err := bf.fetchPage(gctx, page)
			if err != nil {
				log.Warn().
					Err(err).
					Int("page", page).
					Msg("Page fetch failed")
				return fmt.Errorf("fetch page %d: %w", page, err)
			}
			// Each goroutine owns one slot.
			pages[page-1] = items
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, items := range pages {
		total += len(items)
	}
	all := make([]T, 0, total)
	for _, items := range pages {
		all = append(all, items...)
	}

	log.Debug().
		Int("pages", totalPages).
		Int("items", len(all)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return all, nil
}

func (bf *BatchFetcher[T]) fetchPage(ctx context.Context, page int) ([]T, int, error) {
	pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()
	return bf.fetcher.FetchPage(pageCtx, page)
}
