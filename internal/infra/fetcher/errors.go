// Package fetcher holds the outbound HTTP adapters: the SSRF-safe client
// factory, the gofeed feed reader and the readability item scraper.
package fetcher

import "errors"

var (
	ErrInvalidURL       = errors.New("invalid URL")
	ErrPrivateIP        = errors.New("URL points to a private address")
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrBodyTooLarge     = errors.New("response body too large")
	ErrNoContent        = errors.New("no readable content found")
)
