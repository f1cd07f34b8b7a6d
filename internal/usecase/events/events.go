// Package events is the in-process event bus connecting the fetch and scrape
// pipelines to their observers (health monitor, metrics, broadcaster).
//
// Listeners are typed interfaces registered on an explicit Bus. Dispatch is
// synchronous and each listener is isolated: an error or panic in one
// listener is logged and never reaches the publisher or the other listeners.
package events

import (
	"context"
	"time"

	"feed-monitor/internal/domain/entity"
)

// FetchCompleted is published after every fetch run, including skipped and
// crashed runs. Result is nil when the fetch never executed.
type FetchCompleted struct {
	Source     *entity.Source
	Result     *entity.FetchResult
	Forced     bool
	Skipped    bool // circuit open, the fetcher was not invoked
	StartedAt  time.Time
	FinishedAt time.Time
}

// Executed reports whether the fetcher actually ran.
func (e FetchCompleted) Executed() bool { return e.Result != nil }

// ItemCreated is published for every item a fetch inserted.
type ItemCreated struct {
	Source *entity.Source
	Item   *entity.Item
}

// ItemScraped is published when a scrape attempt ends.
type ItemScraped struct {
	Item   *entity.Item
	Status entity.ScrapeStatus
	Err    error
}

// ItemStateChanged is published when an item's scrape status changes.
type ItemStateChanged struct {
	ItemID int64
	To     entity.ScrapeStatus
	At     time.Time
}

type FetchCompletedListener interface {
	OnFetchCompleted(ctx context.Context, ev FetchCompleted) error
}

type ItemCreatedListener interface {
	OnItemCreated(ctx context.Context, ev ItemCreated) error
}

type ItemScrapedListener interface {
	OnItemScraped(ctx context.Context, ev ItemScraped) error
}

type ItemStateChangedListener interface {
	OnItemStateChanged(ctx context.Context, ev ItemStateChanged) error
}

// FetchCompletedFunc adapts a function to FetchCompletedListener.
type FetchCompletedFunc func(ctx context.Context, ev FetchCompleted) error

func (f FetchCompletedFunc) OnFetchCompleted(ctx context.Context, ev FetchCompleted) error {
	return f(ctx, ev)
}

// ItemCreatedFunc adapts a function to ItemCreatedListener.
type ItemCreatedFunc func(ctx context.Context, ev ItemCreated) error

func (f ItemCreatedFunc) OnItemCreated(ctx context.Context, ev ItemCreated) error {
	return f(ctx, ev)
}

// ItemScrapedFunc adapts a function to ItemScrapedListener.
type ItemScrapedFunc func(ctx context.Context, ev ItemScraped) error

func (f ItemScrapedFunc) OnItemScraped(ctx context.Context, ev ItemScraped) error {
	return f(ctx, ev)
}

// ItemStateChangedFunc adapts a function to ItemStateChangedListener.
type ItemStateChangedFunc func(ctx context.Context, ev ItemStateChanged) error

func (f ItemStateChangedFunc) OnItemStateChanged(ctx context.Context, ev ItemStateChanged) error {
	return f(ctx, ev)
}
