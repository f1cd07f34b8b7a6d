package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/resilience/circuitbreaker"
	"feed-monitor/internal/resilience/retry"
)

// ReadabilityScraper extracts an item's main text with Mozilla Readability
// and falls back to goquery text extraction when Readability finds nothing.
//
// Requests are spaced per host, retried with backoff on transient errors, and
// guarded by a per-host circuit breaker.
//
// Thread safety: ReadabilityScraper is safe for concurrent use.
type ReadabilityScraper struct {
	client   *http.Client
	config   Config
	limiter  *hostLimiter
	retryCfg retry.Config
	breakers *circuitbreaker.Group
	logger   *slog.Logger
}

func NewReadabilityScraper(cfg Config, logger *slog.Logger) *ReadabilityScraper {
	return NewReadabilityScraperWithClient(cfg, NewHTTPClient(cfg), logger)
}

func NewReadabilityScraperWithClient(cfg Config, client *http.Client, logger *slog.Logger) *ReadabilityScraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadabilityScraper{
		client:   client,
		config:   cfg,
		limiter:  newHostLimiter(cfg.HostInterval, cfg.HostBurst),
		retryCfg: retry.ScrapeConfig(),
		breakers: circuitbreaker.NewGroup(circuitbreaker.ScrapeHostConfig()),
		logger:   logger,
	}
}

// Scrape implements scraping.ItemScraper.
func (s *ReadabilityScraper) Scrape(ctx context.Context, item *entity.Item) (string, error) {
	if err := ValidateURL(item.URL, s.config.DenyPrivateIPs); err != nil {
		return "", err
	}
	u, _ := url.Parse(item.URL)
	host := strings.ToLower(u.Hostname())

	var content string
	err := retry.WithBackoff(ctx, s.retryCfg, func() error {
		if err := s.limiter.Wait(ctx, host); err != nil {
			return err
		}
		res, err := circuitbreaker.Do(s.breakers.Get(host), func() (string, error) {
			return s.doFetch(ctx, item.URL)
		})
		if err != nil {
			if circuitbreaker.IsRejected(err) {
				return retry.Permanent(err)
			}
			return err
		}
		content = res
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (s *ReadabilityScraper) doFetch(ctx context.Context, urlStr string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && (errors.Is(urlErr.Err, ErrTooManyRedirects) || errors.Is(urlErr.Err, ErrPrivateIP)) {
			return "", urlErr.Err
		}
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &retry.HTTPError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxBodySize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > s.config.MaxBodySize {
		return "", fmt.Errorf("%w: response exceeds %d bytes", ErrBodyTooLarge, s.config.MaxBodySize)
	}

	// the final URL may differ after redirects
	pageURL := resp.Request.URL

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil {
		if text := strings.TrimSpace(article.TextContent); text != "" {
			return text, nil
		}
	} else {
		s.logger.Debug("readability failed, using text fallback",
			slog.String("url", urlStr),
			slog.Any("error", err))
	}

	text, err := extractText(body)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrNoContent
	}
	return text, nil
}

// extractText returns the visible text of the first article, main or body element.
func extractText(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, nav, header, footer").Remove()

	for _, sel := range []string{"article", "main", "body"} {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if text := strings.Join(strings.Fields(node.Text()), " "); text != "" {
			return text, nil
		}
	}
	return "", nil
}
