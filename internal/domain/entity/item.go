// Package entity defines the core domain entities of the feed monitor.
// It contains Source, Item and Job along with their state enums,
// validation rules and domain-specific errors.
package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ScrapeStatus tracks an item through the scraping pipeline.
// The empty value means the item has never been queued.
type ScrapeStatus string

const (
	ScrapeStatusNone       ScrapeStatus = ""
	ScrapeStatusPending    ScrapeStatus = "pending"
	ScrapeStatusProcessing ScrapeStatus = "processing"
	ScrapeStatusSuccess    ScrapeStatus = "success"
	ScrapeStatusFailed     ScrapeStatus = "failed"
)

// InFlight reports whether the status marks work that has been handed to a worker.
func (s ScrapeStatus) InFlight() bool {
	return s == ScrapeStatusPending || s == ScrapeStatusProcessing
}

// Item is one piece of content discovered from a source's feed.
// It is unique per source by GUID, which falls back to the content fingerprint.
type Item struct {
	ID                 int64
	SourceID           int64
	GUID               string
	ContentFingerprint string
	Title              string
	URL                string
	Summary            string
	Content            string
	PublishedAt        *time.Time
	ScrapeStatus       ScrapeStatus
	ScrapedAt          *time.Time
	ScrapedContent     string
	CreatedAt          time.Time
	DeletedAt          *time.Time
}

// Fingerprint computes a stable content fingerprint from the identifying fields of an item.
func Fingerprint(title, url, content string, publishedAt *time.Time) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(title))
	b.WriteByte('\n')
	b.WriteString(strings.TrimSpace(url))
	b.WriteByte('\n')
	if publishedAt != nil {
		b.WriteString(publishedAt.UTC().Format(time.RFC3339))
	}
	b.WriteByte('\n')
	b.WriteString(strings.TrimSpace(content))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// DedupKey returns the key used to deduplicate the item within its source.
func (i *Item) DedupKey() string {
	if i.GUID != "" {
		return i.GUID
	}
	if i.ContentFingerprint == "" {
		i.ContentFingerprint = Fingerprint(i.Title, i.URL, i.Content, i.PublishedAt)
	}
	return i.ContentFingerprint
}
