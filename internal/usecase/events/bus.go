package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"feed-monitor/internal/domain/entity"
)

// Bus dispatches events to registered listeners.
// It is safe for concurrent use; listeners may be registered at any time.
type Bus struct {
	logger *slog.Logger

	mu               sync.RWMutex
	fetchCompleted   []FetchCompletedListener
	itemCreated      []ItemCreatedListener
	itemScraped      []ItemScrapedListener
	itemStateChanged []ItemStateChangedListener
}

// NewBus creates an empty bus. A nil logger means slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Register subscribes l to every event whose listener interface it implements.
// It returns the number of subscriptions added.
func (b *Bus) Register(l any) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	if v, ok := l.(FetchCompletedListener); ok {
		b.fetchCompleted = append(b.fetchCompleted, v)
		n++
	}
	if v, ok := l.(ItemCreatedListener); ok {
		b.itemCreated = append(b.itemCreated, v)
		n++
	}
	if v, ok := l.(ItemScrapedListener); ok {
		b.itemScraped = append(b.itemScraped, v)
		n++
	}
	if v, ok := l.(ItemStateChangedListener); ok {
		b.itemStateChanged = append(b.itemStateChanged, v)
		n++
	}
	return n
}

func (b *Bus) OnFetchCompleted(l FetchCompletedListener) {
	b.mu.Lock()
	b.fetchCompleted = append(b.fetchCompleted, l)
	b.mu.Unlock()
}

func (b *Bus) OnItemCreated(l ItemCreatedListener) {
	b.mu.Lock()
	b.itemCreated = append(b.itemCreated, l)
	b.mu.Unlock()
}

func (b *Bus) OnItemScraped(l ItemScrapedListener) {
	b.mu.Lock()
	b.itemScraped = append(b.itemScraped, l)
	b.mu.Unlock()
}

func (b *Bus) OnItemStateChanged(l ItemStateChangedListener) {
	b.mu.Lock()
	b.itemStateChanged = append(b.itemStateChanged, l)
	b.mu.Unlock()
}

// PublishFetchCompleted delivers ev to every FetchCompleted listener.
func (b *Bus) PublishFetchCompleted(ctx context.Context, ev FetchCompleted) {
	b.mu.RLock()
	listeners := append([]FetchCompletedListener(nil), b.fetchCompleted...)
	b.mu.RUnlock()

	var sourceID int64
	if ev.Source != nil {
		sourceID = ev.Source.ID
	}
	for _, l := range listeners {
		b.deliver(ctx, "fetch_completed", l, func() error { return l.OnFetchCompleted(ctx, ev) },
			slog.Int64("source_id", sourceID))
	}
}

// PublishItemCreated delivers ev to every ItemCreated listener.
func (b *Bus) PublishItemCreated(ctx context.Context, ev ItemCreated) {
	b.mu.RLock()
	listeners := append([]ItemCreatedListener(nil), b.itemCreated...)
	b.mu.RUnlock()

	for _, l := range listeners {
		b.deliver(ctx, "item_created", l, func() error { return l.OnItemCreated(ctx, ev) },
			slog.Int64("item_id", itemID(ev.Item)))
	}
}

// PublishItemScraped delivers ev to every ItemScraped listener.
func (b *Bus) PublishItemScraped(ctx context.Context, ev ItemScraped) {
	b.mu.RLock()
	listeners := append([]ItemScrapedListener(nil), b.itemScraped...)
	b.mu.RUnlock()

	for _, l := range listeners {
		b.deliver(ctx, "item_scraped", l, func() error { return l.OnItemScraped(ctx, ev) },
			slog.Int64("item_id", itemID(ev.Item)))
	}
}

// PublishItemStateChanged delivers ev to every ItemStateChanged listener.
func (b *Bus) PublishItemStateChanged(ctx context.Context, ev ItemStateChanged) {
	b.mu.RLock()
	listeners := append([]ItemStateChangedListener(nil), b.itemStateChanged...)
	b.mu.RUnlock()

	for _, l := range listeners {
		b.deliver(ctx, "item_state_changed", l, func() error { return l.OnItemStateChanged(ctx, ev) },
			slog.Int64("item_id", ev.ItemID))
	}
}

// deliver runs one listener call, logging its error or recovered panic.
func (b *Bus) deliver(ctx context.Context, event string, listener any, call func() error, attrs ...slog.Attr) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("listener panic: %v", r)
			}
		}()
		return call()
	}()
	if err == nil {
		return
	}

	args := []any{
		slog.String("event", event),
		slog.String("listener", fmt.Sprintf("%T", listener)),
		slog.Any("error", err),
	}
	for _, a := range attrs {
		args = append(args, a)
	}
	b.logger.WarnContext(ctx, "event listener failed", args...)
}

func itemID(it *entity.Item) int64 {
	if it == nil {
		return 0
	}
	return it.ID
}
