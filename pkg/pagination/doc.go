// Package pagination provides parallel batch fetching for paginated reads.
//
// Paginated endpoints report the total page count with every page. The batch
// fetcher reads page 1 to learn that count, then fetches the remaining pages
// with bounded concurrency and returns every item in page order.
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher(rsvps.Pages(nil, 100), pagination.DefaultConfig())
//	all, err := fetcher.FetchAllPages(ctx)
//
// The batch fetcher:
//   - Fetches the first page to determine total pages
//   - Runs at most MaxConcurrency page requests at a time (errgroup)
//   - Bounds every page request with Timeout
//   - Cancels outstanding pages when one fails and returns that error
package pagination
