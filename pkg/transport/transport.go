package transport

import "context"

// Fetcher retrieves the body of a URL. The datasource depends on this rather
// than on *Client so tests can serve canned pages.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

var _ Fetcher = (*Client)(nil)
