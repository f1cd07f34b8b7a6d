// Package scraper reads RSS, Atom and JSON feeds with gofeed.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"feed-monitor/internal/usecase/fetch"
)

const defaultMaxBodySize = 10 * 1024 * 1024

// FeedReader implements fetch.FeedReader with a conditional GET followed by
// gofeed parsing. Failures are returned as the typed errors of the fetch
// package so the retry policy can classify them.
type FeedReader struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
}

func NewFeedReader(client *http.Client, userAgent string, maxBodySize int64) *FeedReader {
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxBodySize
	}
	if userAgent == "" {
		userAgent = "FeedMonitorBot/1.0"
	}
	return &FeedReader{client: client, userAgent: userAgent, maxBodySize: maxBodySize}
}

// Read implements fetch.FeedReader.
func (r *FeedReader) Read(ctx context.Context, req fetch.FeedRequest) (*fetch.FeedDocument, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, &fetch.UnexpectedError{Err: err}
	}
	httpReq.Header.Set("User-Agent", r.userAgent)
	httpReq.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml, text/xml, */*")
	if req.ETag != "" {
		httpReq.Header.Set("If-None-Match", req.ETag)
	}
	if req.LastModified != "" {
		httpReq.Header.Set("If-Modified-Since", req.LastModified)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	etag := firstNonEmpty(resp.Header.Get("ETag"), req.ETag)
	lastModified := firstNonEmpty(resp.Header.Get("Last-Modified"), req.LastModified)

	if resp.StatusCode == http.StatusNotModified {
		return &fetch.FeedDocument{NotModified: true, ETag: etag, LastModified: lastModified}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &fetch.HTTPError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBodySize+1))
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	if int64(len(body)) > r.maxBodySize {
		return nil, &fetch.ParsingError{Err: fmt.Errorf("feed exceeds %d bytes", r.maxBodySize)}
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &fetch.ParsingError{Err: err}
	}

	entries := make([]fetch.FeedEntry, 0, len(feed.Items))
	for _, it := range feed.Items {
		content := it.Content
		if content == "" {
			content = it.Description
		}
		published := it.PublishedParsed
		if published == nil {
			published = it.UpdatedParsed
		}
		entries = append(entries, fetch.FeedEntry{
			GUID:        it.GUID,
			Title:       it.Title,
			URL:         it.Link,
			Summary:     it.Description,
			Content:     content,
			PublishedAt: published,
		})
	}

	return &fetch.FeedDocument{Entries: entries, ETag: etag, LastModified: lastModified}, nil
}

func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &fetch.TimeoutError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &fetch.TimeoutError{Err: err}
	}
	return &fetch.ConnectionError{Err: err}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
