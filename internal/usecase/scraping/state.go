// Package scraping schedules and runs full-content scrapes of feed items.
//
// An item's scrape status moves nil → pending → processing → success|failed.
// Every transition is a single compare-and-swap update, so concurrent
// workers never overwrite each other's state. A processing item goes back to
// pending when its run aborts, and items stuck in flight after a crash are
// cleared back to nil by the Reconciler.
package scraping

import (
	"context"
	"fmt"
	"time"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/repository"
	"feed-monitor/internal/usecase/events"
)

var (
	fromQueueable  = []entity.ScrapeStatus{entity.ScrapeStatusNone, entity.ScrapeStatusFailed}
	fromProcessing = []entity.ScrapeStatus{entity.ScrapeStatusProcessing}
	fromInFlight   = []entity.ScrapeStatus{entity.ScrapeStatusPending, entity.ScrapeStatusProcessing}
)

// State performs item scrape status transitions. Each method reports whether
// the row changed; false means the item was not in an allowed source state.
type State struct {
	items repository.ItemRepository
	bus   *events.Bus
	now   func() time.Time
}

// NewState creates a State. bus may be nil to skip change notifications.
func NewState(items repository.ItemRepository, bus *events.Bus) *State {
	return &State{items: items, bus: bus, now: time.Now}
}

// MarkPending moves a never-scraped or failed item to pending.
func (s *State) MarkPending(ctx context.Context, itemID int64) (bool, error) {
	return s.transition(ctx, itemID, fromQueueable, entity.ScrapeStatusPending)
}

// MarkProcessing moves an in-flight item to processing. A processing item is
// accepted so a job redelivered after its worker died can run it again.
func (s *State) MarkProcessing(ctx context.Context, itemID int64) (bool, error) {
	return s.transition(ctx, itemID, fromInFlight, entity.ScrapeStatusProcessing)
}

// Requeue moves a processing item back to pending.
func (s *State) Requeue(ctx context.Context, itemID int64) (bool, error) {
	return s.transition(ctx, itemID, fromProcessing, entity.ScrapeStatusPending)
}

// MarkFailed moves an in-flight item to failed.
func (s *State) MarkFailed(ctx context.Context, itemID int64) (bool, error) {
	return s.transition(ctx, itemID, fromInFlight, entity.ScrapeStatusFailed)
}

// ClearInflight moves a pending or processing item back to nil. Items in any
// other state are left untouched, so it is safe to call repeatedly.
func (s *State) ClearInflight(ctx context.Context, itemID int64) (bool, error) {
	return s.transition(ctx, itemID, fromInFlight, entity.ScrapeStatusNone)
}

// MarkSuccess stores the scraped content of a processing item.
func (s *State) MarkSuccess(ctx context.Context, itemID int64, content string) (bool, error) {
	at := s.now()
	changed, err := s.items.CompleteScrape(ctx, itemID, content, at)
	if err != nil {
		return false, fmt.Errorf("MarkSuccess: %w", err)
	}
	if changed {
		s.broadcast(ctx, itemID, entity.ScrapeStatusSuccess, at)
	}
	return changed, nil
}

func (s *State) transition(ctx context.Context, itemID int64, from []entity.ScrapeStatus, to entity.ScrapeStatus) (bool, error) {
	changed, err := s.items.TransitionScrapeStatus(ctx, itemID, from, to)
	if err != nil {
		return false, fmt.Errorf("transition item %d to %q: %w", itemID, to, err)
	}
	if changed {
		s.broadcast(ctx, itemID, to, s.now())
	}
	return changed, nil
}

func (s *State) broadcast(ctx context.Context, itemID int64, to entity.ScrapeStatus, at time.Time) {
	if s.bus == nil {
		return
	}
	s.bus.PublishItemStateChanged(ctx, events.ItemStateChanged{ItemID: itemID, To: to, At: at})
}
